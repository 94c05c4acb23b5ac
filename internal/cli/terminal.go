package cli

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
)

// terminalLauncher names an OS terminal emulator and how to ask it to run
// a command in a new window. Order matters — candidates are tried in
// listed order and the first one found on PATH wins.
type terminalLauncher struct {
	name string
	args func(command string) []string
}

// linuxTerminals is the §4.6 auto-detection table for Linux/BSD desktops.
var linuxTerminals = []terminalLauncher{
	{"gnome-terminal", func(cmd string) []string { return []string{"--", "sh", "-c", cmd} }},
	{"konsole", func(cmd string) []string { return []string{"-e", "sh", "-c", cmd} }},
	{"kitty", func(cmd string) []string { return []string{"sh", "-c", cmd} }},
	{"alacritty", func(cmd string) []string { return []string{"-e", "sh", "-c", cmd} }},
	{"xterm", func(cmd string) []string { return []string{"-e", "sh", "-c", cmd} }},
}

// launchInNewTerminal runs command in a freshly-opened terminal-emulator
// window, auto-detecting which emulator is available (§4.6). On macOS it
// prefers iTerm when installed, falling back to Terminal.app; on Linux it
// walks linuxTerminals in order. It returns an error only when no emulator
// could be found or started — the caller treats that as "fall back to
// --no-gui behavior", never as a spawn failure.
func launchInNewTerminal(command string) error {
	if runtime.GOOS == "darwin" {
		return launchInNewTerminalDarwin(command)
	}
	for _, term := range linuxTerminals {
		path, err := exec.LookPath(term.name)
		if err != nil {
			continue
		}
		c := exec.Command(path, term.args(command)...)
		c.Stdin, c.Stdout, c.Stderr = nil, nil, nil
		return c.Start()
	}
	return fmt.Errorf("cli: no supported terminal emulator found on PATH")
}

func launchInNewTerminalDarwin(command string) error {
	script := fmt.Sprintf(`tell application %q to do script %q`, "Terminal", command)
	app := "Terminal"
	if _, err := os.Stat("/Applications/iTerm.app"); err == nil {
		app = "iTerm"
		script = fmt.Sprintf(`tell application %q to create window with default profile command %q`, app, command)
	}
	path, err := exec.LookPath("osascript")
	if err != nil {
		return fmt.Errorf("cli: osascript not found: %w", err)
	}
	c := exec.Command(path, "-e", script)
	return c.Start()
}
