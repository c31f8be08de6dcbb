package signer

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingCredentials is returned when the access key or the secret
	// key is empty.
	ErrMissingCredentials = errors.New("missing credentials")

	// ErrInvalidURL is returned when the request URL cannot be parsed or
	// has no host.
	ErrInvalidURL = errors.New("invalid request url")

	// ErrRepeatedQueryKey is returned when a query key carries more than
	// one value.
	ErrRepeatedQueryKey = errors.New("repeated query key")
)

// Credentials holds everything needed to sign one request. A set is built
// per upload attempt and never persisted.
type Credentials struct {
	// AccessKeyID is placed in the Credential part of the Authorization header.
	AccessKeyID string

	// SecretAccessKey seeds the key derivation chain.
	SecretAccessKey string

	// SessionToken is sent as X-Amz-Security-Token when set.
	SessionToken string

	// Region is the signing region (e.g., "cn-north-1").
	Region string

	// Service is the signing service name (e.g., "vod").
	Service string
}

// Validate checks that both halves of the key pair are set.
func (c Credentials) Validate() error {
	if c.AccessKeyID == "" {
		return fmt.Errorf("access key ID is required: %w", ErrMissingCredentials)
	}
	if c.SecretAccessKey == "" {
		return fmt.Errorf("secret access key is required: %w", ErrMissingCredentials)
	}
	return nil
}
