package signer

import "strings"

// StripExcessSpaces trims a header value and collapses every run of
// spaces inside it to a single space.
func StripExcessSpaces(str string) string {
	str = strings.Trim(str, " ")
	if !strings.Contains(str, "  ") {
		return str
	}

	var b strings.Builder
	b.Grow(len(str))
	prevSpace := false
	for i := 0; i < len(str); i++ {
		c := str[i]
		if c == ' ' {
			if prevSpace {
				continue
			}
			prevSpace = true
		} else {
			prevSpace = false
		}
		b.WriteByte(c)
	}
	return b.String()
}
