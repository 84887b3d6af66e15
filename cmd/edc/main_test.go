package main

import (
	"errors"
	"testing"
)

func TestTerminalBundleIDAllowedMatchesPattern(t *testing.T) {
	if !terminalBundleIDAllowed("com.apple.Terminal", `^com\.apple\.`) {
		t.Fatal("expected bundle id matching pattern to be allowed")
	}
	if terminalBundleIDAllowed("com.evil.inject; rm -rf /", `^com\.apple\.`) {
		t.Fatal("expected non-matching bundle id to be rejected")
	}
}

func TestTerminalBundleIDRejectsEmptyAllowlist(t *testing.T) {
	if terminalBundleIDAllowed("anything", "") {
		t.Fatal("expected empty allowlist to reject everything")
	}
}

func TestTerminalBundleIDRejectsBadPattern(t *testing.T) {
	if terminalBundleIDAllowed("anything", "([unclosed") {
		t.Fatal("expected an unparseable pattern to reject rather than panic")
	}
}

func TestExitCodeMappingForUsageError(t *testing.T) {
	var err error = usageError{msg: "--path is required"}
	switch err.(type) {
	case usageError:
	default:
		t.Fatalf("expected usageError, got %T", err)
	}
}

func TestExitCodeMappingForExitErr(t *testing.T) {
	err := exitErr{code: exitTimeout, err: errors.New("timed out")}
	if err.code != exitTimeout {
		t.Fatalf("expected exitTimeout, got %d", err.code)
	}
	if err.Error() != "timed out" {
		t.Fatalf("unexpected error string: %s", err.Error())
	}
}
