package signer

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"sort"
	"strings"
)

// BuildCredentialScope builds the credential scope.
// Format: date/region/service/aws4_request
func BuildCredentialScope(t SigningTime, region, service string) string {
	return strings.Join([]string{
		t.ShortTimeFormat(),
		region,
		service,
		scopeTerminator,
	}, "/")
}

// BuildCanonicalQuery escapes keys and values, sorts the pairs by escaped
// key and joins them as k=v with '&'. An empty map yields "".
func BuildCanonicalQuery(query map[string]string) string {
	if len(query) == 0 {
		return ""
	}

	pairs := make([][2]string, 0, len(query))
	for k, v := range query {
		pairs = append(pairs, [2]string{EscapeURIComponent(k), EscapeURIComponent(v)})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i][0] != pairs[j][0] {
			return pairs[i][0] < pairs[j][0]
		}
		return pairs[i][1] < pairs[j][1]
	})

	var b strings.Builder
	for i, p := range pairs {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(p[0])
		b.WriteByte('=')
		b.WriteString(p[1])
	}
	return b.String()
}

// BuildCanonicalHeaders builds the canonical headers block.
// Names are lower-cased and filtered through rule, values of repeated names
// are joined with a single space. Returns the signed headers string and the
// canonical headers, one "name:value\n" line per signed header.
func BuildCanonicalHeaders(rule Rule, header http.Header) (signedHeaders, canonicalHeaders string) {
	merged := make(map[string][]string, len(header))
	var names []string

	// Keys differing only in case are merged in sorted key order so the
	// value order does not depend on map iteration.
	keys := make([]string, 0, len(header))
	for k := range header {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := header[k]
		lowerKey := strings.ToLower(k)
		if !rule.IsValid(lowerKey) {
			continue
		}
		if _, ok := merged[lowerKey]; !ok {
			names = append(names, lowerKey)
		}
		merged[lowerKey] = append(merged[lowerKey], v...)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		b.WriteString(name)
		b.WriteByte(':')
		for j, val := range merged[name] {
			if j > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(StripExcessSpaces(val))
		}
		b.WriteByte('\n')
	}

	return strings.Join(names, ";"), b.String()
}

// BuildCanonicalString builds the canonical request string.
// Format: METHOD\nURI\nQUERY\nHEADERS\n\nSIGNED_HEADERS\nPAYLOAD_HASH
// canonicalHeaders already ends in a newline, so a blank line separates it
// from the signed headers.
func BuildCanonicalString(method, uri, query, signedHeaders, canonicalHeaders, payloadHash string) string {
	return strings.Join([]string{
		method,
		uri,
		query,
		canonicalHeaders,
		signedHeaders,
		payloadHash,
	}, "\n")
}

// BuildStringToSign builds the string to sign.
// Format: ALGORITHM\nTIMESTAMP\nSCOPE\nHASH(CANONICAL_REQUEST)
func BuildStringToSign(algorithm, timestamp, credentialScope, canonicalRequest string) string {
	hash := sha256.Sum256([]byte(canonicalRequest))
	return strings.Join([]string{
		algorithm,
		timestamp,
		credentialScope,
		hex.EncodeToString(hash[:]),
	}, "\n")
}

// BuildSignature computes the hex encoded HMAC-SHA256 signature.
func BuildSignature(key []byte, stringToSign string) string {
	return hex.EncodeToString(HMACSHA256(key, []byte(stringToSign)))
}

// BuildAuthorizationHeader builds the Authorization header value.
// Format: ALGORITHM Credential=..., SignedHeaders=..., Signature=...
func BuildAuthorizationHeader(credentialStr, signedHeadersStr, signature string) string {
	const credential = "Credential="
	const signedHeaders = "SignedHeaders="
	const signatureKey = "Signature="
	const commaSpace = ", "

	var parts strings.Builder
	parts.Grow(
		len(SigningAlgorithm) + 1 +
			len(credential) + len(credentialStr) + 2 +
			len(signedHeaders) + len(signedHeadersStr) + 2 +
			len(signatureKey) + len(signature),
	)
	parts.WriteString(SigningAlgorithm)
	parts.WriteRune(' ')
	parts.WriteString(credential)
	parts.WriteString(credentialStr)
	parts.WriteString(commaSpace)
	parts.WriteString(signedHeaders)
	parts.WriteString(signedHeadersStr)
	parts.WriteString(commaSpace)
	parts.WriteString(signatureKey)
	parts.WriteString(signature)
	return parts.String()
}

// PayloadHash returns hex(SHA-256(body)). An empty body hashes zero bytes.
func PayloadHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
