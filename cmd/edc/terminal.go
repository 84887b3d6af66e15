package main

import "regexp"

// terminalBundleIDAllowed validates a terminal bundle-id hint against the
// configured allowlist pattern before it is ever used to target an
// OS-level focus-restore command. A hint that fails the match, or an
// unparseable pattern, is treated as not allowed: edc never shells out
// with unvalidated input.
func terminalBundleIDAllowed(bundleID, allowlistPattern string) bool {
	if allowlistPattern == "" {
		return false
	}
	re, err := regexp.Compile(allowlistPattern)
	if err != nil {
		return false
	}
	return re.MatchString(bundleID)
}
