// Package device turns raw User-Agent strings into short display labels for
// consent metadata. Raw UA strings are noisy and can be arbitrarily long;
// ledger entries store the parsed label instead.
package device

import (
	"fmt"

	"github.com/mssola/useragent"
)

// ParseUserAgent returns a human-readable "Browser on OS" label.
// Unknown or empty agents degrade gracefully rather than erroring.
func ParseUserAgent(rawUA string) string {
	if rawUA == "" {
		return "Unknown Device"
	}

	ua := useragent.New(rawUA)

	browser, _ := ua.Browser()
	if browser == "" {
		browser = "Unknown Browser"
	}

	os := ua.OS()
	if os == "" {
		os = "Unknown OS"
	}

	return fmt.Sprintf("%s on %s", browser, os)
}
