// Package classify implements the pane-state classifier (§4.3): a pure
// function from a sequence of pane snapshots to an AgentState.
package classify

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/width"

	"github.com/tmuxorc/tmuxorc/internal/target"
)

// interfaceMarkers are the literal substrings whose presence on the final
// snapshot is taken as authoritative evidence the Claude Code REPL is
// running and accepting input (§4.3 Step A).
var interfaceMarkers = []string{
	"│ >",
	"assistant:",
	"Human:",
	"? for shortcuts",
	"Bypassing Permissions",
	"@anthropic-ai/claude-code",
	"╭─",
	"╰─",
}

// workingTokens are the lowercased "thinking" tokens checked alongside the
// ellipsis character in Step F.
var workingTokens = []string{
	"thinking",
	"pondering",
	"divining",
	"musing",
	"elucidating",
}

// corroboratingIdlePhrases are explicit idle announcements recognized as a
// secondary signal. They never override Step A-F; they only let the
// monitor shorten its idle-cycle requirement (see internal/monitor).
var corroboratingIdlePhrases = []string{
	"waiting for",
	"ready for",
	"awaiting instruction",
	"standing by",
}

// shellPromptEndings are the trailing characters that mark a non-empty
// last line as a shell prompt (§4.3 Step B).
var shellPromptEndings = []byte{'$', '#', '>', '%'}

// hasClaudeInterface reports whether any interface marker is present in
// the final snapshot.
func hasClaudeInterface(content string) bool {
	for _, m := range interfaceMarkers {
		if strings.Contains(content, m) {
			return true
		}
	}
	return false
}

// isCrashPrompt reports whether the trailing non-empty lines of content
// end in a recognizable shell prompt.
func isCrashPrompt(content string) bool {
	lines := strings.Split(content, "\n")
	nonEmpty := make([]string, 0, 5)
	for i := len(lines) - 1; i >= 0 && len(nonEmpty) < 5; i-- {
		line := strings.TrimRight(lines[i], " \t\r")
		if line == "" {
			continue
		}
		nonEmpty = append(nonEmpty, line)
	}
	for _, line := range nonEmpty {
		last := line[len(line)-1]
		for _, ending := range shellPromptEndings {
			if last == ending {
				return true
			}
		}
	}
	return false
}

// hasQueuedMessage implements Step C: the pane contains an input-box
// glyph "│ >" followed by visible non-whitespace text before the closing
// box border "╰─".
func hasQueuedMessage(content string) bool {
	idx := strings.Index(content, "│ >")
	if idx < 0 {
		return false
	}
	after := content[idx+len("│ >"):]
	closeIdx := strings.Index(after, "╰─")
	if closeIdx < 0 {
		closeIdx = len(after)
	}
	between := after[:closeIdx]
	return strings.TrimSpace(between) != ""
}

// isFresh implements Step D: the interface is present but no prior
// conversation turn token appears above the prompt.
func isFresh(content string) bool {
	return !strings.Contains(content, "assistant:") && !strings.Contains(content, "Human:")
}

// byteDiff counts differing bytes between two equal-or-unequal-length
// strings, matching the original's zip-based comparison (stops at the
// shorter string's length; a pure length difference beyond that point
// still counts because it represents new/removed content).
func byteDiff(a, b string) int {
	minLen := len(a)
	if len(b) < minLen {
		minLen = len(b)
	}
	diff := 0
	for i := 0; i < minLen; i++ {
		if a[i] != b[i] {
			diff++
		}
	}
	diff += abs(len(a) - len(b))
	return diff
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// isMeaningfulChange reports whether two adjacent snapshots differ by more
// than a single byte — the cursor-blink tolerance of §4.3 Step E. Content
// is first normalized through golang.org/x/text/width to fold East-Asian
// width variants that render identically but can encode differently
// across redraws, so a pure UTF-8 rendering artifact doesn't register as
// a multi-byte diff.
func isMeaningfulChange(prev, cur string) bool {
	return byteDiff(width.Narrow.String(prev), width.Narrow.String(cur)) > 1
}

// hasWorkingIndicator implements Step F: ellipsis plus a lowercased
// "thinking"-family token, or the literal "compacting conversation".
func hasWorkingIndicator(content string) bool {
	lower := strings.ToLower(content)
	if strings.Contains(lower, "compacting conversation") {
		return true
	}
	if !strings.ContainsRune(content, '…') {
		return false
	}
	for _, tok := range workingTokens {
		if strings.Contains(lower, tok) {
			return true
		}
	}
	return false
}

// HasCorroboratingIdlePhrase reports whether content contains one of the
// explicit idle-announcement phrases from the original source's
// _is_idle heuristic. Exported so internal/monitor can use it to shorten
// its idle-cycle threshold without re-deriving the phrase list.
func HasCorroboratingIdlePhrase(content string) bool {
	lower := strings.ToLower(content)
	for _, p := range corroboratingIdlePhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// Classify is the pure, total function at the center of §4.3: given a
// sequence of pane snapshots captured ~300ms apart, it returns the
// agent's classified state. It never errors — a capture failure is the
// caller's responsibility to represent as an empty or missing snapshot
// before calling in, or to skip the call entirely and report Unknown.
func Classify(snapshots []string) target.AgentState {
	if len(snapshots) == 0 {
		return target.StateUnknown
	}

	final := snapshots[len(snapshots)-1]

	if !hasClaudeInterface(final) {
		if strings.TrimSpace(final) == "" {
			return target.StateUnknown
		}
		if isCrashPrompt(final) {
			return target.StateCrashed
		}
		return target.StateError
	}

	if hasQueuedMessage(final) {
		return target.StateMessageQueued
	}

	if isFresh(final) {
		return target.StateFresh
	}

	active := false
	for i := 1; i < len(snapshots); i++ {
		if isMeaningfulChange(snapshots[i-1], snapshots[i]) {
			active = true
			break
		}
	}
	if !active && hasWorkingIndicator(final) {
		active = true
	}

	if active {
		return target.StateActive
	}
	return target.StateIdle
}

// ValidUTF8Lines splits content into lines, dropping any line that is not
// valid UTF-8 (defends the classifier against a torn multi-byte capture —
// tmux can hand back a snapshot mid-write that splits a rune across the
// buffer boundary). Exported for reuse by internal/monitor and
// internal/messaging when logging/truncating captured content.
func ValidUTF8Lines(content string) []string {
	lines := strings.Split(content, "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if utf8.ValidString(l) {
			out = append(out, l)
		}
	}
	return out
}
