package signer

import (
	"crypto/hmac"
	"crypto/sha256"
)

// DeriveKey performs the four round key derivation:
//   - kDate = HMAC-SHA256("AWS4" + secret, date)
//   - kRegion = HMAC-SHA256(kDate, region)
//   - kService = HMAC-SHA256(kRegion, service)
//   - kSigning = HMAC-SHA256(kService, "aws4_request")
//
// shortDate is the YYYYMMDD form of the signing time.
func DeriveKey(secret, shortDate, region, service string) []byte {
	key := HMACSHA256([]byte(keyPrefix+secret), []byte(shortDate))
	for _, part := range []string{region, service, scopeTerminator} {
		key = HMACSHA256(key, []byte(part))
	}
	return key
}

// HMACSHA256 computes HMAC-SHA256 of data with the given key.
func HMACSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}
