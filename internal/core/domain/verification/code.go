package verification

import "strings"

// CodeLength is the number of digits in an issued one-time code.
const CodeLength = 6

// NormalizeCode strips every non-digit and truncates to CodeLength.
// It is applied on each edit, so NormalizeCode(NormalizeCode(s)) == NormalizeCode(s).
func NormalizeCode(raw string) string {
	var b strings.Builder
	b.Grow(CodeLength)
	n := 0
	for _, r := range raw {
		if r < '0' || r > '9' {
			continue
		}
		b.WriteRune(r)
		n++
		if n == CodeLength {
			break
		}
	}
	return b.String()
}
