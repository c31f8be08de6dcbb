// Package testserver runs an in-process fake of the VOD metadata API and
// its storage node. The API half verifies request signatures the way the
// real service does; the storage half checks bearer tokens and part
// checksums. Every call is recorded.
package testserver

import (
	"fmt"
	"hash/crc32"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/forestrie/go-vodupload/signer"
)

// Call is one request received by the server.
type Call struct {
	Method string
	// Name is the API action for metadata calls and the storage phase
	// ("upload", "init", "transfer", "finish") for storage calls.
	Name       string
	PartNumber int
	Header     http.Header
	Query      url.Values
	Body       []byte
}

// Config controls the fake.
type Config struct {
	Credentials signer.Credentials
	VideoID     string
	SessionKey  string
	StoreURI    string
	AuthToken   string
	UploadID    string

	// FailParts maps a part number to the HTTP status its PUT answers with.
	FailParts map[int]int
	// SingleStatus overrides the status of the single shot PUT.
	SingleStatus int
	// OmitApplyField blanks one field of the apply response: "Vid",
	// "UploadHost", "SessionKey", "StoreUri" or "Auth".
	OmitApplyField string
	// CommitError is returned in the commit response envelope with HTTP 200.
	CommitError string
	// FinishCode overrides the storage envelope code of the finish call.
	FinishCode int

	// BeforePart and AfterPart run around the handling of each part PUT.
	BeforePart func(part int)
	AfterPart  func(part int)
}

// Server is a running fake.
type Server struct {
	*httptest.Server

	cfg    Config
	signer *signer.Signer

	mu        sync.Mutex
	calls     []Call
	parts     map[int][]byte
	completed []int
	object    []byte
	manifest  string
}

// New starts a TLS fake. Use Client() for a client trusting it.
func New(cfg Config) *Server {
	if cfg.VideoID == "" {
		cfg.VideoID = "v0d00fg10000test"
	}
	if cfg.SessionKey == "" {
		cfg.SessionKey = "session-key"
	}
	if cfg.StoreURI == "" {
		cfg.StoreURI = "tos-cn-v-0000/object"
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = "SpaceKey/aweme/1/:version:v2:bearer"
	}
	if cfg.UploadID == "" {
		cfg.UploadID = "upload-id-1"
	}
	if cfg.FinishCode == 0 {
		cfg.FinishCode = 2000
	}

	s := &Server{
		cfg:    cfg,
		signer: signer.NewSigner(signer.WithKeyCache(signer.NewBoundedKeyCache(0))),
		parts:  make(map[int][]byte),
	}

	r := chi.NewRouter()
	r.Get("/", s.handleAPI)
	r.Post("/", s.handleAPI)
	r.Put("/upload/v1/*", s.handleStoragePut)
	r.Post("/upload/v1/*", s.handleStoragePost)

	s.Server = httptest.NewTLSServer(r)
	return s
}

// Host returns host:port of the server.
func (s *Server) Host() string {
	return strings.TrimPrefix(s.URL, "https://")
}

// Calls returns the recorded calls in arrival order.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallNames returns the Name of every recorded call in arrival order.
func (s *Server) CallNames() []string {
	var names []string
	for _, c := range s.Calls() {
		names = append(names, c.Name)
	}
	return names
}

// Object returns the body of the single shot PUT.
func (s *Server) Object() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.object
}

// Part returns the body received for a part.
func (s *Server) Part(n int) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.parts[n]
}

// CompletedParts returns part numbers in the order their PUTs finished.
func (s *Server) CompletedParts() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.completed...)
}

// Manifest returns the body of the finish call.
func (s *Server) Manifest() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.manifest
}

// Assembled concatenates the received parts in part order.
func (s *Server) Assembled() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	nums := make([]int, 0, len(s.parts))
	for n := range s.parts {
		nums = append(nums, n)
	}
	sort.Ints(nums)

	var out []byte
	for _, n := range nums {
		out = append(out, s.parts[n]...)
	}
	return out
}

func (s *Server) record(r *http.Request, name string, part int, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{
		Method:     r.Method,
		Name:       name,
		PartNumber: part,
		Header:     r.Header.Clone(),
		Query:      r.URL.Query(),
		Body:       body,
	})
}

type apiError struct {
	Code    string `json:"Code"`
	Message string `json:"Message"`
}

type metadata struct {
	RequestID string    `json:"RequestId"`
	Action    string    `json:"Action"`
	Version   string    `json:"Version"`
	Error     *apiError `json:"Error,omitempty"`
}

func (s *Server) apiFail(w http.ResponseWriter, r *http.Request, status int, action, code, message string) {
	render.Status(r, status)
	render.JSON(w, r, map[string]any{
		"ResponseMetadata": metadata{
			RequestID: "req-error",
			Action:    action,
			Version:   r.URL.Query().Get("Version"),
			Error:     &apiError{Code: code, Message: message},
		},
	})
}

func (s *Server) handleAPI(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	action := r.URL.Query().Get("Action")
	s.record(r, action, 0, body)

	if err := s.verifySignature(r, body); err != nil {
		s.apiFail(w, r, http.StatusForbidden, action, "SignatureDoesNotMatch", err.Error())
		return
	}

	switch {
	case action == "ApplyUploadInner" && r.Method == http.MethodGet:
		s.apply(w, r)
	case action == "CommitUploadInner" && r.Method == http.MethodPost:
		s.commit(w, r, body)
	default:
		s.apiFail(w, r, http.StatusBadRequest, action, "InvalidAction", "unknown action")
	}
}

// verifySignature recomputes the signature from the received request.
func (s *Server) verifySignature(r *http.Request, body []byte) error {
	got := r.Header.Get(signer.AuthorizationHeader)
	if got == "" {
		return fmt.Errorf("missing authorization")
	}
	ts, err := time.Parse(signer.TimeFormat, r.Header.Get(signer.AmzDateKey))
	if err != nil {
		return fmt.Errorf("bad %s: %v", signer.AmzDateKey, err)
	}

	query := make(map[string]string)
	for k, v := range r.URL.Query() {
		query[k] = v[0]
	}
	creds := s.cfg.Credentials
	creds.SessionToken = r.Header.Get(signer.AmzSecurityTokenKey)

	want, err := s.signer.SignAt(signer.Request{
		Method: r.Method,
		URL:    "https://" + r.Host + r.URL.Path,
		Query:  query,
		Header: r.Header,
		Body:   body,
	}, creds, ts)
	if err != nil {
		return err
	}
	if want.Get(signer.AuthorizationHeader) != got {
		return fmt.Errorf("expected %q", want.Get(signer.AuthorizationHeader))
	}
	return nil
}

func (s *Server) apply(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("FileSize") == "" || r.URL.Query().Get("s") == "" {
		s.apiFail(w, r, http.StatusBadRequest, "ApplyUploadInner", "MissingParameter", "FileSize and s are required")
		return
	}

	fields := map[string]string{
		"Vid":        s.cfg.VideoID,
		"UploadHost": s.Host(),
		"SessionKey": s.cfg.SessionKey,
		"StoreUri":   s.cfg.StoreURI,
		"Auth":       s.cfg.AuthToken,
	}
	if s.cfg.OmitApplyField != "" {
		fields[s.cfg.OmitApplyField] = ""
	}

	render.JSON(w, r, map[string]any{
		"ResponseMetadata": metadata{RequestID: "req-apply", Action: "ApplyUploadInner", Version: r.URL.Query().Get("Version")},
		"Result": map[string]any{
			"InnerUploadAddress": map[string]any{
				"UploadNodes": []map[string]any{{
					"Vid":        fields["Vid"],
					"UploadHost": fields["UploadHost"],
					"SessionKey": fields["SessionKey"],
					"StoreInfos": []map[string]any{{
						"StoreUri": fields["StoreUri"],
						"Auth":     fields["Auth"],
					}},
				}},
			},
		},
	})
}

func (s *Server) commit(w http.ResponseWriter, r *http.Request, body []byte) {
	if s.cfg.CommitError != "" {
		s.apiFail(w, r, http.StatusOK, "CommitUploadInner", s.cfg.CommitError, "commit rejected")
		return
	}
	if !strings.Contains(string(body), `"SessionKey":"`+s.cfg.SessionKey+`"`) {
		s.apiFail(w, r, http.StatusBadRequest, "CommitUploadInner", "InvalidSessionKey", "unknown session key")
		return
	}

	render.JSON(w, r, map[string]any{
		"ResponseMetadata": metadata{RequestID: "req-commit", Action: "CommitUploadInner", Version: r.URL.Query().Get("Version")},
		"Result": map[string]any{
			"Results": []map[string]any{{
				"Vid": s.cfg.VideoID,
				"VideoMeta": map[string]any{
					"Duration": 12.5,
					"Format":   "mp4",
					"Width":    1080,
					"Height":   1920,
				},
			}},
		},
	})
}

func (s *Server) storageAuthorized(w http.ResponseWriter, r *http.Request) bool {
	if r.Header.Get("Authorization") != s.cfg.AuthToken {
		http.Error(w, "bad token", http.StatusUnauthorized)
		return false
	}
	// Signed-request headers must not leak into the data plane.
	if r.Header.Get(signer.AmzDateKey) != "" || r.Header.Get(signer.AmzSecurityTokenKey) != "" {
		http.Error(w, "unexpected signing headers", http.StatusBadRequest)
		return false
	}
	if chi.URLParam(r, "*") != s.cfg.StoreURI {
		http.Error(w, "unknown store uri", http.StatusNotFound)
		return false
	}
	return true
}

func storageJSON(w http.ResponseWriter, r *http.Request, code int, data map[string]any) {
	render.JSON(w, r, map[string]any{
		"code":       code,
		"apiversion": "v1",
		"message":    "Success",
		"data":       data,
	})
}

func (s *Server) handleStoragePut(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	q := r.URL.Query()

	if q.Get("phase") != "transfer" {
		s.record(r, "upload", 0, body)
		if !s.storageAuthorized(w, r) {
			return
		}
		if s.cfg.SingleStatus != 0 {
			http.Error(w, "single put rejected", s.cfg.SingleStatus)
			return
		}
		if !crcMatches(r, body) {
			http.Error(w, "crc mismatch", http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		s.object = body
		s.mu.Unlock()
		storageJSON(w, r, 2000, map[string]any{"crc32": r.Header.Get("Content-CRC32")})
		return
	}

	part, _ := strconv.Atoi(q.Get("part_number"))
	s.record(r, "transfer", part, body)
	if !s.storageAuthorized(w, r) {
		return
	}
	if q.Get("uploadid") != s.cfg.UploadID {
		http.Error(w, "unknown upload id", http.StatusNotFound)
		return
	}

	if s.cfg.BeforePart != nil {
		s.cfg.BeforePart(part)
	}
	if status, ok := s.cfg.FailParts[part]; ok {
		http.Error(w, "part rejected", status)
		return
	}
	if !crcMatches(r, body) {
		http.Error(w, "crc mismatch", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.parts[part] = body
	s.completed = append(s.completed, part)
	s.mu.Unlock()
	if s.cfg.AfterPart != nil {
		s.cfg.AfterPart(part)
	}

	storageJSON(w, r, 2000, map[string]any{"crc32": r.Header.Get("Content-CRC32")})
}

func (s *Server) handleStoragePost(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	q := r.URL.Query()
	phase := q.Get("phase")
	s.record(r, phase, 0, body)
	if !s.storageAuthorized(w, r) {
		return
	}
	if q.Get("uploadmode") != "part" {
		http.Error(w, "bad upload mode", http.StatusBadRequest)
		return
	}

	switch phase {
	case "init":
		if r.Header.Get("X-Storage-U") != s.cfg.SessionKey {
			http.Error(w, "bad session key", http.StatusBadRequest)
			return
		}
		storageJSON(w, r, 2000, map[string]any{"uploadid": s.cfg.UploadID})
	case "finish":
		if q.Get("uploadid") != s.cfg.UploadID {
			http.Error(w, "unknown upload id", http.StatusNotFound)
			return
		}
		s.mu.Lock()
		s.manifest = string(body)
		s.mu.Unlock()
		storageJSON(w, r, s.cfg.FinishCode, map[string]any{})
	default:
		http.Error(w, "bad phase", http.StatusBadRequest)
	}
}

func crcMatches(r *http.Request, body []byte) bool {
	return r.Header.Get("Content-CRC32") == fmt.Sprintf("%08x", crc32.ChecksumIEEE(body))
}
