// tmuxorc manages fleets of Claude Code agents running in tmux.
package main

import (
	"os"

	"github.com/tmuxorc/tmuxorc/internal/cli"
)

func main() {
	os.Exit(cli.Execute(os.Args[1:]))
}
