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
)

// StorageClient is the bearer trust domain: calls are authenticated only
// with the token issued by the apply phase and never see the account
// credentials.
type StorageClient interface {
	PutObject(ctx context.Context, target Target, body []byte, crc string) error
	InitMultipart(ctx context.Context, target Target) (uploadID string, err error)
	PutPart(ctx context.Context, target Target, uploadID string, chunk Chunk, body []byte) (statusCode int, err error)
	FinishMultipart(ctx context.Context, target Target, uploadID, manifest string) error
}

// Header names used by the storage node.
const (
	HeaderCRC32      = "Content-CRC32"
	HeaderSessionKey = "X-Storage-U"
)

// storageOK is the success code of the storage node's JSON envelope.
const storageOK = 2000

// Storage is the StorageClient for the upload nodes returned by apply.
type Storage struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// NewStorage creates a storage client. A nil client means http.DefaultClient.
func NewStorage(httpClient *http.Client, logger *slog.Logger) *Storage {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Storage{httpClient: httpClient, logger: logger}
}

// PutObject uploads a whole file in one request. Only HTTP 200 counts as
// success.
func (s *Storage) PutObject(ctx context.Context, target Target, body []byte, crc string) error {
	header := http.Header{}
	header.Set("Content-Type", "application/octet-stream")
	header.Set(HeaderCRC32, crc)

	status, raw, err := s.do(ctx, target, http.MethodPut, target.UploadURL, header, body)
	if err != nil {
		return fmt.Errorf("%s: %w", PhaseUpload, err)
	}
	if status != http.StatusOK {
		return &ProtocolError{Phase: PhaseUpload, StatusCode: status, Body: truncate(raw), Err: ErrUnexpectedStatus}
	}
	return nil
}

// InitMultipart opens a multipart upload and returns its upload ID.
func (s *Storage) InitMultipart(ctx context.Context, target Target) (string, error) {
	header := http.Header{}
	header.Set("Content-Type", "application/x-www-form-urlencoded")
	header.Set(HeaderSessionKey, target.SessionKey)
	form := url.Values{"callback_url": []string{""}}

	resp, status, raw, err := s.envelopeCall(ctx, PhaseInit, target, http.MethodPost,
		target.UploadURL+"?uploadmode=part&phase=init", header, []byte(form.Encode()))
	if err != nil {
		return "", err
	}
	if resp.Data.UploadID == "" {
		return "", &ProtocolError{
			Phase:      PhaseInit,
			StatusCode: status,
			Body:       truncate(raw),
			Err:        fmt.Errorf("%w: uploadid", ErrMissingField),
		}
	}
	return resp.Data.UploadID, nil
}

// PutPart uploads one chunk. HTTP 200 and 201 count as success. The status
// code is returned with the error so callers can record it.
func (s *Storage) PutPart(ctx context.Context, target Target, uploadID string, chunk Chunk, body []byte) (int, error) {
	header := http.Header{}
	header.Set("Content-Type", "application/octet-stream")
	header.Set(HeaderCRC32, chunk.CRC32)

	u := target.UploadURL + "?phase=transfer" +
		"&part_number=" + strconv.Itoa(chunk.PartNumber) +
		"&part_offset=" + strconv.FormatInt(chunk.Offset, 10) +
		"&uploadid=" + url.QueryEscape(uploadID)

	status, raw, err := s.do(ctx, target, http.MethodPut, u, header, body)
	if err != nil {
		return 0, fmt.Errorf("%s: part %d: %w", PhaseTransfer, chunk.PartNumber, err)
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return status, &ProtocolError{
			Phase:      PhaseTransfer,
			StatusCode: status,
			Message:    "part " + strconv.Itoa(chunk.PartNumber),
			Body:       truncate(raw),
			Err:        ErrUnexpectedStatus,
		}
	}
	return status, nil
}

// FinishMultipart submits the ordered part manifest.
func (s *Storage) FinishMultipart(ctx context.Context, target Target, uploadID, manifest string) error {
	header := http.Header{}
	header.Set("Content-Type", "text/plain;charset=UTF-8")

	_, _, _, err := s.envelopeCall(ctx, PhaseFinish, target, http.MethodPost,
		target.UploadURL+"?uploadmode=part&phase=finish&uploadid="+url.QueryEscape(uploadID), header, []byte(manifest))
	return err
}

// envelopeCall sends a request expecting HTTP 200 and, when the body is a
// JSON envelope with a code, the storage success code. The status and raw
// body are returned alongside the decoded envelope.
func (s *Storage) envelopeCall(ctx context.Context, phase string, target Target, method, u string, header http.Header, body []byte) (storageResponse, int, []byte, error) {
	var resp storageResponse

	status, raw, err := s.do(ctx, target, method, u, header, body)
	if err != nil {
		return resp, status, raw, fmt.Errorf("%s: %w", phase, err)
	}
	if status != http.StatusOK {
		return resp, status, raw, &ProtocolError{Phase: phase, StatusCode: status, Body: truncate(raw), Err: ErrUnexpectedStatus}
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return resp, status, raw, nil
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return resp, status, raw, &ProtocolError{Phase: phase, StatusCode: status, Body: truncate(raw), Err: fmt.Errorf("decode response: %w", err)}
	}
	if resp.Code != nil && *resp.Code != storageOK {
		return resp, status, raw, &ProtocolError{
			Phase:      phase,
			StatusCode: status,
			Code:       strconv.Itoa(*resp.Code),
			Message:    resp.Message,
			Body:       truncate(raw),
			Err:        ErrRemote,
		}
	}
	return resp, status, raw, nil
}

func (s *Storage) do(ctx context.Context, target Target, method, u string, header http.Header, body []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header = header
	req.Header.Set("Authorization", target.AuthToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}

	s.logger.DebugContext(ctx, "storage call",
		"method", method,
		"url", u,
		"status", resp.StatusCode,
		"bytes", len(body),
	)
	return resp.StatusCode, raw, nil
}
