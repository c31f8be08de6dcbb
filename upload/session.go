// Package upload drives the three phase media upload: apply for an upload
// slot with a signed call, move the bytes to the storage node with the
// bearer token handed out by apply, and commit with a second signed call.
package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Defaults for Options.
const (
	DefaultChunkSize          = 5 << 20
	DefaultSmallFileThreshold = 5 << 20
	DefaultConcurrency        = 1
)

// Options tunes a Session.
type Options struct {
	// ChunkSize is the byte length of every part but the last.
	ChunkSize int64

	// SmallFileThreshold is the largest file sent with a single PUT.
	SmallFileThreshold int64

	// Concurrency bounds the number of parts in flight. 1 uploads parts
	// strictly in ascending order.
	Concurrency int

	// AllowPartialChunks finishes a multipart upload with only the parts
	// that succeeded, as long as at least one did. Off by default: the
	// finished object would be truncated.
	AllowPartialChunks bool

	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.SmallFileThreshold <= 0 {
		o.SmallFileThreshold = DefaultSmallFileThreshold
	}
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Session uploads files through an APIClient and a StorageClient. The two
// are passed separately so account credentials never reach the storage
// node and the bearer token never reaches the metadata API.
type Session struct {
	api     APIClient
	storage StorageClient
	opts    Options
	logger  *slog.Logger
}

// NewSession creates a Session.
func NewSession(api APIClient, storage StorageClient, opts Options) *Session {
	opts = opts.withDefaults()
	return &Session{
		api:     api,
		storage: storage,
		opts:    opts,
		logger:  opts.Logger,
	}
}

// Upload sends the file at path and returns its video ID. Cancelling ctx
// abandons the in-flight call; commit is never attempted after a
// cancellation.
func (s *Session) Upload(ctx context.Context, path string) (string, error) {
	f, size, err := openSource(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	logger := s.logger.With("file", path, "size", size)

	target, err := s.api.Apply(ctx, size)
	if err != nil {
		return "", err
	}
	logger = logger.With("vid", target.VideoID)
	logger.InfoContext(ctx, "upload applied", "upload_host", target.UploadHost)

	if size <= s.opts.SmallFileThreshold {
		err = s.transferSingle(ctx, f, size, target)
	} else {
		err = s.transferChunked(ctx, f, size, target, logger)
	}
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	result, err := s.api.Commit(ctx, target.SessionKey)
	if err != nil {
		return "", err
	}
	if len(result.Results) == 0 {
		logger.WarnContext(ctx, "commit returned no results", "request_id", result.RequestID)
	}
	for _, r := range result.Results {
		logger.InfoContext(ctx, "upload committed",
			"duration", r.VideoMeta.Duration,
			"format", r.VideoMeta.Format,
			"width", r.VideoMeta.Width,
			"height", r.VideoMeta.Height,
		)
	}

	return target.VideoID, nil
}

func openSource(path string) (*os.File, int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, 0, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return nil, 0, fmt.Errorf("%s: %w", path, ErrNotRegularFile)
	}
	if info.Size() == 0 {
		return nil, 0, fmt.Errorf("%s: %w", path, ErrEmptyFile)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open %s: %w", path, err)
	}
	return f, info.Size(), nil
}

func (s *Session) transferSingle(ctx context.Context, f *os.File, size int64, target Target) error {
	body, chunk, err := ReadChunk(f, Chunk{PartNumber: 1, Length: size})
	if err != nil {
		return fmt.Errorf("%s: %w", PhaseUpload, err)
	}
	return s.storage.PutObject(ctx, target, body, chunk.CRC32)
}

func (s *Session) transferChunked(ctx context.Context, f *os.File, size int64, target Target, logger *slog.Logger) error {
	uploadID, err := s.storage.InitMultipart(ctx, target)
	if err != nil {
		return err
	}

	chunks := PlanChunks(size, s.opts.ChunkSize)
	logger.InfoContext(ctx, "multipart upload started", "upload_id", uploadID, "parts", len(chunks))

	results := s.transferChunks(ctx, f, target, uploadID, chunks)
	if err := ctx.Err(); err != nil {
		return err
	}

	var (
		uploaded []Chunk
		failures []error
	)
	for _, r := range results {
		if r.OK() {
			uploaded = append(uploaded, r.Chunk)
			continue
		}
		logger.WarnContext(ctx, "part failed", "part", r.Chunk.PartNumber, "status", r.StatusCode, "error", r.Err)
		failures = append(failures, r.Err)
	}

	switch {
	case len(uploaded) == 0:
		return fmt.Errorf("%s: %w: %w", PhaseTransfer, ErrAllChunksFailed, errors.Join(failures...))
	case len(failures) > 0 && !s.opts.AllowPartialChunks:
		return fmt.Errorf("%s: %w: %d of %d parts failed: %w",
			PhaseTransfer, ErrIncompleteUpload, len(failures), len(chunks), errors.Join(failures...))
	case len(failures) > 0:
		logger.WarnContext(ctx, "finishing with missing parts", "uploaded", len(uploaded), "failed", len(failures))
	}

	return s.storage.FinishMultipart(ctx, target, uploadID, Manifest(uploaded))
}

// transferChunks uploads every chunk with at most Concurrency in flight.
// Each chunk is read at its own offset. Results come back sorted by part
// number regardless of completion order.
func (s *Session) transferChunks(ctx context.Context, f *os.File, target Target, uploadID string, chunks []Chunk) []ChunkResult {
	var (
		g       errgroup.Group
		mu      sync.Mutex
		results = make([]ChunkResult, 0, len(chunks))
	)
	g.SetLimit(s.opts.Concurrency)

	for _, c := range chunks {
		g.Go(func() error {
			r := s.transferChunk(ctx, f, target, uploadID, c)
			mu.Lock()
			results = append(results, r)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(results, func(i, j int) bool {
		return results[i].Chunk.PartNumber < results[j].Chunk.PartNumber
	})
	return results
}

func (s *Session) transferChunk(ctx context.Context, f *os.File, target Target, uploadID string, c Chunk) ChunkResult {
	if err := ctx.Err(); err != nil {
		return ChunkResult{Chunk: c, Err: err}
	}

	body, c, err := ReadChunk(f, c)
	if err != nil {
		return ChunkResult{Chunk: c, Err: err}
	}

	status, err := s.storage.PutPart(ctx, target, uploadID, c, body)
	return ChunkResult{Chunk: c, StatusCode: status, Err: err}
}
