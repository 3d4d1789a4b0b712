package syncengine

import "time"

// providerTimeLayouts are tried in order when parsing a FIDS timestamp
// string. RFC3339 covers UTC-suffixed values; the bare layouts cover
// the provider's local-time strings, which carry no zone offset.
var providerTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// parseProviderTime parses a FIDS timestamp string to a UTC instant. A
// string with an explicit zone offset (RFC3339) is trusted as-is; a bare
// local-time string is interpreted in loc and converted. Returns ok=false
// for an empty or unparseable string (the caller skips the row, per
// spec §7's provider_parse handling).
func parseProviderTime(s string, loc *time.Location) (t time.Time, ok bool) {
	if s == "" {
		return time.Time{}, false
	}
	if parsed, err := time.Parse(time.RFC3339, s); err == nil {
		return parsed.UTC(), true
	}
	for _, layout := range providerTimeLayouts[1:] {
		if parsed, err := time.ParseInLocation(layout, s, loc); err == nil {
			return parsed.UTC(), true
		}
	}
	return time.Time{}, false
}
