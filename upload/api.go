package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/forestrie/go-vodupload/signer"
)

// APIClient is the signed trust domain: every call it makes carries a
// request signature computed from the account credentials.
type APIClient interface {
	Apply(ctx context.Context, fileSize int64) (Target, error)
	Commit(ctx context.Context, sessionKey string) (CommitResult, error)
}

// Defaults for the VOD metadata API.
const (
	DefaultEndpoint  = "https://vod.bytedanceapi.com"
	DefaultVersion   = "2020-11-19"
	DefaultSpaceName = "aweme"
	DefaultFileType  = "video"
)

const (
	actionApply  = "ApplyUploadInner"
	actionCommit = "CommitUploadInner"

	maxErrorBody = 4096
)

// APIConfig selects the endpoint and the identity parameters sent with
// the apply and commit calls.
type APIConfig struct {
	Endpoint  string
	Version   string
	SpaceName string
	FileType  string
	// Identity holds extra query parameters identifying the caller, such
	// as app_id and user_id.
	Identity map[string]string
}

func (c APIConfig) withDefaults() APIConfig {
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}
	if c.Version == "" {
		c.Version = DefaultVersion
	}
	if c.SpaceName == "" {
		c.SpaceName = DefaultSpaceName
	}
	if c.FileType == "" {
		c.FileType = DefaultFileType
	}
	return c
}

// API is the APIClient talking to the VOD metadata API.
type API struct {
	config      APIConfig
	credentials signer.Credentials
	signer      *signer.Signer
	httpClient  *http.Client
	nonce       func() string
	logger      *slog.Logger
}

// APIOption configures an API.
type APIOption func(*API)

// WithHTTPClient sets the HTTP client used for API calls.
func WithHTTPClient(c *http.Client) APIOption {
	return func(a *API) {
		a.httpClient = c
	}
}

// WithSigner replaces the default signer.
func WithSigner(s *signer.Signer) APIOption {
	return func(a *API) {
		a.signer = s
	}
}

// WithNonce replaces the random nonce generator of the apply call.
func WithNonce(f func() string) APIOption {
	return func(a *API) {
		a.nonce = f
	}
}

// WithAPILogger sets the logger.
func WithAPILogger(l *slog.Logger) APIOption {
	return func(a *API) {
		a.logger = l
	}
}

// NewAPI creates an API client signing with creds.
func NewAPI(config APIConfig, creds signer.Credentials, opts ...APIOption) *API {
	a := &API{
		config:      config.withDefaults(),
		credentials: creds,
		signer:      signer.NewSigner(),
		httpClient:  http.DefaultClient,
		nonce:       uuid.NewString,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *API) baseQuery(action string) url.Values {
	q := url.Values{}
	for k, v := range a.config.Identity {
		q.Set(k, v)
	}
	q.Set("Action", action)
	q.Set("Version", a.config.Version)
	q.Set("SpaceName", a.config.SpaceName)
	return q
}

// Apply reserves an upload slot for a file of fileSize bytes.
func (a *API) Apply(ctx context.Context, fileSize int64) (Target, error) {
	q := a.baseQuery(actionApply)
	q.Set("FileType", a.config.FileType)
	q.Set("IsInner", "1")
	q.Set("FileSize", strconv.FormatInt(fileSize, 10))
	q.Set("s", a.nonce())

	var resp applyResponse
	status, raw, err := a.call(ctx, PhaseApply, http.MethodGet, q, nil, &resp)
	if err != nil {
		return Target{}, err
	}

	target, err := resp.target()
	if err != nil {
		return Target{}, &ProtocolError{Phase: PhaseApply, StatusCode: status, Body: truncate(raw), Err: err}
	}

	a.logger.DebugContext(ctx, "upload slot applied",
		"vid", target.VideoID,
		"upload_host", target.UploadHost,
		"request_id", resp.ResponseMetadata.RequestID,
	)
	return target, nil
}

func (r *applyResponse) target() (Target, error) {
	nodes := r.Result.InnerUploadAddress.UploadNodes
	if len(nodes) == 0 {
		return Target{}, fmt.Errorf("%w: UploadNodes", ErrMissingField)
	}
	node := nodes[0]
	if len(node.StoreInfos) == 0 {
		return Target{}, fmt.Errorf("%w: StoreInfos", ErrMissingField)
	}
	store := node.StoreInfos[0]

	for _, f := range [][2]string{
		{"Vid", node.Vid},
		{"UploadHost", node.UploadHost},
		{"SessionKey", node.SessionKey},
		{"StoreUri", store.StoreURI},
		{"Auth", store.Auth},
	} {
		if f[1] == "" {
			return Target{}, fmt.Errorf("%w: %s", ErrMissingField, f[0])
		}
	}

	return Target{
		VideoID:    node.Vid,
		UploadHost: node.UploadHost,
		StoreURI:   store.StoreURI,
		UploadURL:  "https://" + node.UploadHost + "/upload/v1/" + store.StoreURI,
		AuthToken:  store.Auth,
		SessionKey: node.SessionKey,
	}, nil
}

// Commit finalises the upload identified by sessionKey.
func (a *API) Commit(ctx context.Context, sessionKey string) (CommitResult, error) {
	body, err := json.Marshal(commitRequest{
		SessionKey: sessionKey,
		Functions: []commitFunction{
			{Name: "GetMeta"},
			{Name: "Snapshot", Input: map[string]any{"SnapshotTime": 0}},
		},
	})
	if err != nil {
		return CommitResult{}, fmt.Errorf("%s: encode request: %w", PhaseCommit, err)
	}

	var resp commitResponse
	if _, _, err := a.call(ctx, PhaseCommit, http.MethodPost, a.baseQuery(actionCommit), body, &resp); err != nil {
		return CommitResult{}, err
	}

	return CommitResult{
		RequestID: resp.ResponseMetadata.RequestID,
		Results:   resp.Result.Results,
	}, nil
}

// call signs and sends one request and decodes the response into out. A
// non-empty ResponseMetadata.Error fails the call even on HTTP 200. The
// status and raw body are returned for errors found by the caller.
func (a *API) call(ctx context.Context, phase, method string, query url.Values, body []byte, out any) (int, []byte, error) {
	endpoint := strings.TrimSuffix(a.config.Endpoint, "/") + "/?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("%s: %w", phase, err)
	}
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	if err := a.signer.SignHTTP(req, body, a.credentials); err != nil {
		return 0, nil, fmt.Errorf("%s: sign request: %w", phase, err)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s: %w", phase, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("%s: read response: %w", phase, err)
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)
	if decodeErr == nil && !env.ResponseMetadata.Error.empty() {
		e := env.ResponseMetadata.Error
		return resp.StatusCode, raw, &ProtocolError{
			Phase:      phase,
			StatusCode: resp.StatusCode,
			Code:       e.Code,
			Message:    e.Message,
			Body:       truncate(raw),
			Err:        ErrRemote,
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, raw, &ProtocolError{
			Phase:      phase,
			StatusCode: resp.StatusCode,
			Body:       truncate(raw),
			Err:        ErrUnexpectedStatus,
		}
	}
	if decodeErr != nil {
		return resp.StatusCode, raw, &ProtocolError{
			Phase:      phase,
			StatusCode: resp.StatusCode,
			Body:       truncate(raw),
			Err:        fmt.Errorf("decode response: %w", decodeErr),
		}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return resp.StatusCode, raw, &ProtocolError{
			Phase:      phase,
			StatusCode: resp.StatusCode,
			Body:       truncate(raw),
			Err:        fmt.Errorf("decode response: %w", err),
		}
	}
	return resp.StatusCode, raw, nil
}

func truncate(b []byte) string {
	if len(b) > maxErrorBody {
		return string(b[:maxErrorBody]) + "..."
	}
	return string(b)
}
