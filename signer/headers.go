package signer

import "strings"

// Rule defines an interface for header validation rules.
type Rule interface {
	IsValid(value string) bool
}

// Rules is a slice of Rule that implements Rule interface.
type Rules []Rule

// IsValid returns true if any rule in the slice validates the value.
func (r Rules) IsValid(value string) bool {
	for _, rule := range r {
		if rule.IsValid(value) {
			return true
		}
	}
	return false
}

// MapRule is a map-based rule. Keys are matched exactly, so callers
// lower-case header names before asking.
type MapRule map[string]struct{}

// IsValid returns true if the value exists in the map.
func (m MapRule) IsValid(value string) bool {
	_, ok := m[value]
	return ok
}

// ExcludeList is a rule that excludes values matching the inner rule.
type ExcludeList struct {
	Rule
}

// IsValid returns true if the value does NOT match the inner rule.
func (e ExcludeList) IsValid(value string) bool {
	return !e.Rule.IsValid(value)
}

// ignoredHeaderNames lists the lower-cased header names the VOD API
// rejects in a signature. They are sent on the wire but never signed.
var ignoredHeaderNames = MapRule{
	"authorization":     struct{}{},
	"content-type":      struct{}{},
	"content-length":    struct{}{},
	"user-agent":        struct{}{},
	"referer":           struct{}{},
	"origin":            struct{}{},
	"accept":            struct{}{},
	"accept-encoding":   struct{}{},
	"accept-language":   struct{}{},
	"connection":        struct{}{},
	"cookie":            struct{}{},
	"expect":            struct{}{},
	"transfer-encoding": struct{}{},
	"x-amzn-trace-id":   struct{}{},
}

// IgnoredHeaders decides which lower-cased header names take part in the
// signature.
var IgnoredHeaders Rule = ExcludeList{ignoredHeaderNames}

// ExcludeHeaders returns IgnoredHeaders extended with names. Names are
// matched case-insensitively.
func ExcludeHeaders(names ...string) Rule {
	if len(names) == 0 {
		return IgnoredHeaders
	}
	extra := make(MapRule, len(names))
	for _, name := range names {
		extra[strings.ToLower(name)] = struct{}{}
	}
	return ExcludeList{Rules{ignoredHeaderNames, extra}}
}
