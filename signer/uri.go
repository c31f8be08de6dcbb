package signer

import "strings"

const upperhex = "0123456789ABCDEF"

// shouldEscape reports whether c falls outside the RFC 3986 unreserved set.
func shouldEscape(c byte) bool {
	switch {
	case 'A' <= c && c <= 'Z', 'a' <= c && c <= 'z', '0' <= c && c <= '9':
		return false
	case c == '-', c == '_', c == '.', c == '~':
		return false
	}
	return true
}

// EscapeURIComponent percent-encodes every byte of s that is not an
// unreserved character, including '/'. Hex digits are upper case.
func EscapeURIComponent(s string) string {
	n := 0
	for i := 0; i < len(s); i++ {
		if shouldEscape(s[i]) {
			n++
		}
	}
	if n == 0 {
		return s
	}

	buf := make([]byte, 0, len(s)+2*n)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if shouldEscape(c) {
			buf = append(buf, '%', upperhex[c>>4], upperhex[c&15])
			continue
		}
		buf = append(buf, c)
	}
	return string(buf)
}

// CanonicalURI returns the canonical form of a decoded URL path.
// A single leading slash is dropped, the rest is escaped as one component
// and the encoded separators are turned back into literal slashes.
// Both "" and "/" canonicalize to "/".
func CanonicalURI(path string) string {
	path = strings.TrimPrefix(path, "/")
	escaped := EscapeURIComponent(path)
	return "/" + strings.ReplaceAll(escaped, "%2F", "/")
}
