package signer

import "time"

// SigningTime wraps time.Time with both signing formats computed once.
type SigningTime struct {
	time.Time
	timeFormat      string
	shortTimeFormat string
}

// NewSigningTime creates a new SigningTime from a time.Time.
// The time is converted to UTC and truncated to the second.
func NewSigningTime(t time.Time) SigningTime {
	t = t.UTC().Truncate(time.Second)
	long := t.Format(TimeFormat)
	return SigningTime{
		Time:            t,
		timeFormat:      long,
		shortTimeFormat: long[:len(ShortTimeFormat)],
	}
}

// TimeFormat returns the time formatted for the X-Amz-Date header.
// Format: YYYYMMDDTHHMMSSZ (e.g., 20231201T120000Z)
func (st SigningTime) TimeFormat() string {
	return st.timeFormat
}

// ShortTimeFormat returns the first eight characters of TimeFormat,
// used in the credential scope and the key derivation.
func (st SigningTime) ShortTimeFormat() string {
	return st.shortTimeFormat
}
