// Package credentials maps the upload authorization blob handed out by the
// credential service onto signer.Credentials.
package credentials

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/forestrie/go-vodupload/signer"
)

// UploadAuth is the upload authorization object. Every field is optional
// on the wire; absent fields decode to "".
type UploadAuth struct {
	AccessKeyID      string `json:"AccessKeyID"`
	SecretAccessKey  string `json:"SecretAccessKey"`
	SessionToken     string `json:"SessionToken"`
	SignatureVersion string `json:"SignatureVersion"`
	ExpiredTime      string `json:"ExpiredTime"`
	CurrentTime      string `json:"CurrentTime"`
}

// Parse decodes an upload authorization blob. Only malformed JSON is an
// error; a blob without AccessKeyID yields an empty key pair that signs
// requests the server will reject.
func Parse(data []byte) (UploadAuth, error) {
	var auth UploadAuth
	if err := json.Unmarshal(data, &auth); err != nil {
		return UploadAuth{}, fmt.Errorf("failed to parse upload authorization: %w", err)
	}
	return auth, nil
}

// Read parses a blob from r.
func Read(r io.Reader) (UploadAuth, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return UploadAuth{}, fmt.Errorf("failed to read upload authorization: %w", err)
	}
	return Parse(data)
}

// Load parses the blob stored at path.
func Load(path string) (UploadAuth, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return UploadAuth{}, fmt.Errorf("failed to read upload authorization: %w", err)
	}
	return Parse(data)
}

// Credentials returns the signing credentials for region and service.
func (a UploadAuth) Credentials(region, service string) signer.Credentials {
	return signer.Credentials{
		AccessKeyID:     a.AccessKeyID,
		SecretAccessKey: a.SecretAccessKey,
		SessionToken:    a.SessionToken,
		Region:          region,
		Service:         service,
	}
}

// Expired reports whether ExpiredTime lies before now. A missing or
// unparsable ExpiredTime is never expired.
func (a UploadAuth) Expired(now time.Time) bool {
	if a.ExpiredTime == "" {
		return false
	}
	exp, err := time.Parse(time.RFC3339, a.ExpiredTime)
	if err != nil {
		return false
	}
	return now.After(exp)
}
