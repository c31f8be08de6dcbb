package signer

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Request is the input of a signing operation. Query holds the parameters
// to sign; parameters already present in URL are merged in, with Query
// taking precedence. Each query key carries one value: a URL repeating a
// key fails with ErrRepeatedQueryKey.
type Request struct {
	Method string
	URL    string
	Query  map[string]string
	Header http.Header
	Body   []byte
}

// SigningContext is the canonical form of one request, built once per
// signed call.
type SigningContext struct {
	Method           string
	Host             string
	CanonicalURI     string
	CanonicalQuery   string
	CanonicalHeaders string
	SignedHeaders    string
	PayloadHash      string
	CredentialScope  string
	Timestamp        string
}

// CanonicalRequest assembles the canonical request string.
func (c SigningContext) CanonicalRequest() string {
	return BuildCanonicalString(
		c.Method,
		c.CanonicalURI,
		c.CanonicalQuery,
		c.SignedHeaders,
		c.CanonicalHeaders,
		c.PayloadHash,
	)
}

// StringToSign hashes the canonical request into the string to sign.
func (c SigningContext) StringToSign() string {
	return BuildStringToSign(SigningAlgorithm, c.Timestamp, c.CredentialScope, c.CanonicalRequest())
}

// Signer computes Authorization headers for the VOD metadata API.
// A Signer is safe for concurrent use as long as its KeyCache is; the
// default shared cache is.
type Signer struct {
	now          func() time.Time
	keyDerivator keyDerivator
	headerRule   Rule
}

// Option configures a Signer.
type Option func(*Signer)

// WithClock overrides the wall clock used for the signing timestamp.
func WithClock(now func() time.Time) Option {
	return func(s *Signer) {
		s.now = now
	}
}

// WithKeyCache replaces the process-wide DefaultKeyCache.
func WithKeyCache(cache KeyCache) Option {
	return func(s *Signer) {
		s.keyDerivator = NewSigningKeyDeriver(cache)
	}
}

// WithExcludedHeaders leaves names out of the signature on top of
// IgnoredHeaders.
func WithExcludedHeaders(names ...string) Option {
	return func(s *Signer) {
		s.headerRule = ExcludeHeaders(names...)
	}
}

// NewSigner creates a Signer using the wall clock and DefaultKeyCache
// unless overridden.
func NewSigner(opts ...Option) *Signer {
	s := &Signer{
		now:          time.Now,
		keyDerivator: NewSigningKeyDeriver(DefaultKeyCache),
		headerRule:   IgnoredHeaders,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// requestSigner handles the signing process for a single request.
type requestSigner struct {
	Request      Request
	Credentials  Credentials
	Time         SigningTime
	KeyDerivator keyDerivator
	HeaderRule   Rule

	url   *url.URL
	query map[string]string
}

// Sign signs req with creds at the current time. The returned header is a
// new map holding every caller header plus Authorization, X-Amz-Date, Host
// and, for temporary credentials, X-Amz-Security-Token. Caller headers with
// one of those names are replaced; all other caller headers are returned
// verbatim, including those that were left out of the signature.
func (s *Signer) Sign(req Request, creds Credentials) (http.Header, error) {
	return s.SignAt(req, creds, s.now())
}

// SignAt is Sign with an explicit signing time.
func (s *Signer) SignAt(req Request, creds Credentials, t time.Time) (http.Header, error) {
	rs, err := s.newRequestSigner(req, creds, NewSigningTime(t))
	if err != nil {
		return nil, err
	}
	return rs.build(), nil
}

// Canonicalize returns the canonical form of req as it would be signed at t.
func (s *Signer) Canonicalize(req Request, creds Credentials, t SigningTime) (SigningContext, error) {
	rs, err := s.newRequestSigner(req, creds, t)
	if err != nil {
		return SigningContext{}, err
	}
	return rs.canonicalize(rs.signingHeaders()), nil
}

// SigningKey returns the derived key used for creds on the signing day.
func (s *Signer) SigningKey(creds Credentials, t SigningTime) []byte {
	return s.keyDerivator.DeriveKey(creds.SecretAccessKey, creds.Service, creds.Region, t)
}

// SignHTTP signs r in place. The query string of r.URL is rewritten in its
// canonical form so the wire query matches the signed one, and r.Header is
// replaced by the signed header set. body must be the exact request body.
// A query repeating a key is rejected with ErrRepeatedQueryKey and r is left
// untouched.
func (s *Signer) SignHTTP(r *http.Request, body []byte, creds Credentials) error {
	query, err := singleValued(r.URL.Query())
	if err != nil {
		return err
	}

	u := *r.URL
	u.RawQuery = ""
	header, err := s.Sign(Request{
		Method: r.Method,
		URL:    u.String(),
		Query:  query,
		Header: r.Header,
		Body:   body,
	}, creds)
	if err != nil {
		return err
	}

	r.Header = header
	r.URL.RawQuery = BuildCanonicalQuery(query)
	return nil
}

func (s *Signer) newRequestSigner(req Request, creds Credentials, t SigningTime) (*requestSigner, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: %q has no host", ErrInvalidURL, req.URL)
	}

	query, err := singleValued(u.Query())
	if err != nil {
		return nil, err
	}
	for k, v := range req.Query {
		query[k] = v
	}

	return &requestSigner{
		Request:      req,
		Credentials:  creds,
		Time:         t,
		KeyDerivator: s.keyDerivator,
		HeaderRule:   s.headerRule,
		url:          u,
		query:        query,
	}, nil
}

func singleValued(values url.Values) (map[string]string, error) {
	query := make(map[string]string, len(values))
	for k, v := range values {
		if len(v) > 1 {
			return nil, fmt.Errorf("%w: %q", ErrRepeatedQueryKey, k)
		}
		if len(v) == 1 {
			query[k] = v[0]
		}
	}
	return query, nil
}

// injectedHeaders returns the headers the signer adds to every request.
func (s *requestSigner) injectedHeaders() http.Header {
	h := http.Header{
		AmzDateKey: []string{s.Time.TimeFormat()},
		HostHeader: []string{s.url.Host},
	}
	if s.Credentials.SessionToken != "" {
		h[AmzSecurityTokenKey] = []string{s.Credentials.SessionToken}
	}
	return h
}

// mergeHeaders copies the caller headers, dropping any whose name collides
// with an injected one, and adds the injected headers.
func (s *requestSigner) mergeHeaders(injected http.Header) http.Header {
	out := make(http.Header, len(s.Request.Header)+len(injected)+1)
	for k, v := range s.Request.Header {
		if collides(k, injected) {
			continue
		}
		out[k] = append([]string(nil), v...)
	}
	for k, v := range injected {
		out[k] = v
	}
	return out
}

func (s *requestSigner) signingHeaders() http.Header {
	return s.mergeHeaders(s.injectedHeaders())
}

func collides(name string, h http.Header) bool {
	for k := range h {
		if strings.EqualFold(k, name) {
			return true
		}
	}
	return false
}

func (s *requestSigner) canonicalize(headers http.Header) SigningContext {
	signedHeaders, canonicalHeaders := BuildCanonicalHeaders(s.HeaderRule, headers)
	return SigningContext{
		Method:           strings.ToUpper(s.Request.Method),
		Host:             s.url.Host,
		CanonicalURI:     CanonicalURI(s.url.Path),
		CanonicalQuery:   BuildCanonicalQuery(s.query),
		CanonicalHeaders: canonicalHeaders,
		SignedHeaders:    signedHeaders,
		PayloadHash:      PayloadHash(s.Request.Body),
		CredentialScope:  BuildCredentialScope(s.Time, s.Credentials.Region, s.Credentials.Service),
		Timestamp:        s.Time.TimeFormat(),
	}
}

// build performs the signing process and returns the signed header set.
func (s *requestSigner) build() http.Header {
	headers := s.signingHeaders()
	ctx := s.canonicalize(headers)

	key := s.KeyDerivator.DeriveKey(
		s.Credentials.SecretAccessKey,
		s.Credentials.Service,
		s.Credentials.Region,
		s.Time,
	)
	signature := BuildSignature(key, ctx.StringToSign())

	credentialStr := s.Credentials.AccessKeyID + "/" + ctx.CredentialScope
	for k := range headers {
		if strings.EqualFold(k, AuthorizationHeader) {
			delete(headers, k)
		}
	}
	headers[AuthorizationHeader] = []string{
		BuildAuthorizationHeader(credentialStr, ctx.SignedHeaders, signature),
	}
	return headers
}
