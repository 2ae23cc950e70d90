package shared

import (
	"fmt"
	"os/exec"
	"runtime"
)

var getRuntime = func() string { return runtime.GOOS }

// startCommand launches the command without waiting for it; swapped out in tests.
var startCommand = func(name string, args ...string) error {
	return exec.Command(name, args...).Start()
}

// browserCommands maps GOOS to the launcher used to open a URL.
var browserCommands = map[string][]string{
	"darwin":  {"open"},
	"linux":   {"xdg-open"},
	"freebsd": {"xdg-open"},
	"windows": {"rundll32", "url.dll,FileProtocolHandler"},
}

// OpenBrowser opens the default system browser on the consent URL.
func OpenBrowser(url string) error {
	rt := getRuntime()
	launcher, ok := browserCommands[rt]
	if !ok {
		return fmt.Errorf("%w: unsupported platform %s", ErrServiceUnavailable, rt)
	}

	args := append(launcher[1:len(launcher):len(launcher)], url)
	if err := startCommand(launcher[0], args...); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	return nil
}
