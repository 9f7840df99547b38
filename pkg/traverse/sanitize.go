package traverse

import (
	"encoding/json"
	"regexp"
	"strings"
)

// These patterns nudge GDB's human-oriented value rendering just far
// enough toward JSON to parse it: quote hex addresses and char literals,
// collapse repeated-null-byte runs GDB elides for us, and quote struct
// field names when the whole value looks like `{field = val, ...}`.
var (
	reTrailingZeroRun = regexp.MustCompile(`, '\\000' <repeats \d+ times>`)
	reZeroRun         = regexp.MustCompile(`'\\000' <repeats \d+ times>`)
	reStructKey       = regexp.MustCompile(`([{ ])([^ ]+)  `)
	reHexLiteral      = regexp.MustCompile(`(0x[a-z0-9]+)`)
	reCharLiteral     = regexp.MustCompile(`(\d+ '.')`)
)

// sanitize turns a debugger-printed textual value into a generic JSON-like
// value (string, float64, bool, nil, map[string]interface{}, or
// []interface{}). The second return is false when the text could not be
// coerced — the SanitizeFail case — and the traversal engine's caller
// treats that as an opaque chunk rather than propagating the failure.
func sanitize(value string) (interface{}, bool) {
	value = reTrailingZeroRun.ReplaceAllString(value, "")
	value = reZeroRun.ReplaceAllString(value, `"\x00"`)
	if strings.HasPrefix(value, "{") {
		value = reStructKey.ReplaceAllString(value, `$1"$2":`)
	}
	value = reHexLiteral.ReplaceAllString(value, `"$1"`)
	value = reCharLiteral.ReplaceAllString(value, `"$1"`)

	var parsed interface{}
	if err := json.Unmarshal([]byte(value), &parsed); err != nil {
		return nil, false
	}
	return parsed, true
}
