package signer

import "strings"

// keyDerivator is an interface for deriving signing keys.
type keyDerivator interface {
	DeriveKey(secretAccessKey, service, region string, signingTime SigningTime) []byte
}

// lookupKey creates the cache key date|region|service|AWS4<secret>.
func lookupKey(shortDate, region, service, secret string) string {
	var b strings.Builder
	b.Grow(len(shortDate) + len(region) + len(service) + len(keyPrefix) + len(secret) + 3)
	b.WriteString(shortDate)
	b.WriteByte('|')
	b.WriteString(region)
	b.WriteByte('|')
	b.WriteString(service)
	b.WriteByte('|')
	b.WriteString(keyPrefix)
	b.WriteString(secret)
	return b.String()
}

// SigningKeyDeriver derives signing keys with caching.
// Thread safety depends on the cache implementation provided.
type SigningKeyDeriver struct {
	cache KeyCache
}

// NewSigningKeyDeriver creates a new SigningKeyDeriver with the provided cache.
// A nil cache disables caching.
func NewSigningKeyDeriver(cache KeyCache) *SigningKeyDeriver {
	return &SigningKeyDeriver{
		cache: cache,
	}
}

// DeriveKey returns the signing key for the secret on the signing day.
// Keys are cached per day/region/service/secret; the access key ID plays no
// part, so two key pairs sharing a secret share a derived key.
func (k *SigningKeyDeriver) DeriveKey(secretAccessKey, service, region string, signingTime SigningTime) []byte {
	shortDate := signingTime.ShortTimeFormat()
	if k.cache == nil {
		return DeriveKey(secretAccessKey, shortDate, region, service)
	}

	cacheKey := lookupKey(shortDate, region, service, secretAccessKey)
	if key, ok := k.cache.Get(cacheKey); ok {
		return key
	}

	key := DeriveKey(secretAccessKey, shortDate, region, service)
	k.cache.Set(cacheKey, key)

	return key
}
