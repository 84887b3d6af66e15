package main

import (
	"os"
	"os/exec"
	"runtime"
)

// restoreTerminalFocus best-effort reactivates the terminal identified by
// EDAD_TERMINAL_BUNDLE_ID once --wait returns, so closing the editor window
// hands focus back to the terminal that launched it rather than whatever
// window happened to be frontmost. bundleID only reaches an OS-level command
// after terminalBundleIDAllowed has matched it against the configured
// allowlist; an empty or non-matching hint is a silent no-op. Terminal
// bundle ids are a macOS concept — elsewhere this is a no-op.
func restoreTerminalFocus(allowlistPattern string) {
	if runtime.GOOS != "darwin" {
		return
	}
	bundleID := os.Getenv("EDAD_TERMINAL_BUNDLE_ID")
	if bundleID == "" || !terminalBundleIDAllowed(bundleID, allowlistPattern) {
		return
	}
	script := `tell application id "` + bundleID + `" to activate`
	_ = exec.Command("osascript", "-e", script).Run()
}
