// Package privacy scrubs sensitive substrings from log and error text before
// it reaches a file, stdout, or an external reporting hook.
package privacy

import "regexp"

var (
	urlRegex        = regexp.MustCompile(`(https?://[^?\s]+)\?\S*`)
	queryParamRegex = regexp.MustCompile(`[?&]([^=\s]+)=([^&\s]+)`)

	apiKeyRegexes = []*regexp.Regexp{
		regexp.MustCompile(`api[_-]?key[=:]\S+`),
		regexp.MustCompile(`token[=:]\S+`),
		regexp.MustCompile(`auth[=:]\S+`),
		regexp.MustCompile(`key[=:][0-9a-fA-F]{8,}`),
		regexp.MustCompile(`\b[0-9a-fA-F]{32}\b`),
	}

	idPatternRegexes = []*regexp.Regexp{
		regexp.MustCompile(`worker[_-]?id[=:]\S+`),
		regexp.MustCompile(`session[_-]?id[=:]\S+`),
		regexp.MustCompile(`device[_-]?id[=:]\S+`),
		regexp.MustCompile(`client[_-]?id[=:]\S+`),
	}

	// devicePathRegex scrubs capture device paths (e.g. "hw:1,0", "/dev/audio2")
	// which can reveal machine-specific hardware identifiers.
	devicePathRegex = regexp.MustCompile(`(?:/dev/\S+|hw:\d+,\d+)`)
)

// Scrub removes query parameters, API-key-shaped substrings, ID fields, and
// device paths from message, replacing each with a fixed placeholder.
func Scrub(message string) string {
	scrubbed := urlRegex.ReplaceAllString(message, "$1?[REDACTED]")
	scrubbed = queryParamRegex.ReplaceAllString(scrubbed, "?[REDACTED]")

	for _, re := range apiKeyRegexes {
		scrubbed = re.ReplaceAllString(scrubbed, "[API_KEY_REDACTED]")
	}
	for _, re := range idPatternRegexes {
		scrubbed = re.ReplaceAllString(scrubbed, "[ID_REDACTED]")
	}
	scrubbed = devicePathRegex.ReplaceAllString(scrubbed, "[DEVICE_REDACTED]")

	return scrubbed
}
