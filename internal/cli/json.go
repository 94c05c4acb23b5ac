package cli

import (
	"encoding/json"
	"io"
	"time"
)

// envelope is the §6 JSON output contract for --json mode.
type envelope struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp float64 `json:"timestamp"`
}

// printJSON writes the §6 envelope to w. err is formatted via Error();
// data is only included when err is nil.
func printJSON(w io.Writer, data any, err error) {
	env := envelope{Timestamp: float64(time.Now().UnixNano()) / 1e9}
	if err != nil {
		env.Success = false
		env.Error = err.Error()
	} else {
		env.Success = true
		env.Data = data
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(env)
}

// emit is the shared output path every subcommand's RunE funnels through:
// JSON envelope when --json is set, otherwise the plain renderer.
func emit(app *App, w io.Writer, data any, plain func() string) {
	if app.JSON {
		printJSON(w, data, nil)
		return
	}
	if plain != nil {
		io.WriteString(w, plain())
	}
}
