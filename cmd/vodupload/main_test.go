package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forestrie/go-vodupload/internal/testserver"
	"github.com/forestrie/go-vodupload/signer"
)

var fixedNow = time.Date(2024, time.March, 5, 10, 20, 30, 0, time.UTC)

func writeAuth(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "auth.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func run(t *testing.T, a *app, args ...string) (string, string, error) {
	t.Helper()
	return runWithInput(t, a, "", args...)
}

func runWithInput(t *testing.T, a *app, stdin string, args ...string) (string, string, error) {
	t.Helper()
	if a.now == nil {
		a.now = func() time.Time { return fixedNow }
	}

	var stdout, stderr bytes.Buffer
	cmd := newRootCommand(a)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestUploadCommand(t *testing.T) {
	srv := testserver.New(testserver.Config{
		Credentials: signer.Credentials{
			AccessKeyID:     "AKTEST",
			SecretAccessKey: "SECRETKEY",
			Region:          "cn-north-1",
			Service:         "vod",
		},
		VideoID: "v0cli",
	})
	defer srv.Close()
	t.Setenv("VODUPLOAD_ENDPOINT", srv.URL)

	auth := writeAuth(t, `{"AccessKeyID":"AKTEST","SecretAccessKey":"SECRETKEY","SessionToken":"STS","ExpiredTime":"2020-01-01T00:00:00Z"}`)
	media := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(media, bytes.Repeat([]byte{0x42}, 6<<20), 0o600))

	stdout, stderr, err := run(t, &app{httpClient: srv.Client()}, "upload", "--auth", auth, "--concurrency", "2", media)
	require.NoError(t, err)

	assert.Equal(t, "v0cli\n", stdout)
	assert.Contains(t, stderr, "upload credentials have expired")
	assert.Equal(t,
		[]string{"ApplyUploadInner", "init", "transfer", "transfer", "finish", "CommitUploadInner"},
		srv.CallNames())
}

func TestUploadCommandRequiresAuth(t *testing.T) {
	_, _, err := run(t, &app{}, "upload", "clip.mp4")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth")
}

func TestSignCommand(t *testing.T) {
	stdout, _, err := runWithInput(t, &app{}, `{"AccessKeyID":"AKTEST","SecretAccessKey":"SECRETKEY"}`, "sign", "--auth", "-",
		"https://vod.bytedanceapi.com/?Action=ApplyUploadInner&Version=2020-11-19&SpaceName=aweme&FileType=video&IsInner=1&FileSize=2097152&s=abc123")
	require.NoError(t, err)

	assert.Contains(t, stdout, "Canonical request:\nGET\n/\nAction=ApplyUploadInner&FileSize=2097152")
	assert.Contains(t, stdout, "String to sign:\nAWS4-HMAC-SHA256\n20240305T102030Z\n20240305/cn-north-1/vod/aws4_request\n")
	assert.Contains(t, stdout, "Signature=867ef5fd19e05fb3a14f41dee31f98efd9f30c524718a7f8871db75bfb093b23")
	assert.Contains(t, stdout, "X-Amz-Date: 20240305T102030Z")
}

func TestSignCommandExcludeHeader(t *testing.T) {
	auth := writeAuth(t, `{"AccessKeyID":"AKTEST","SecretAccessKey":"SECRETKEY"}`)

	stdout, _, err := run(t, &app{}, "sign", "--auth", auth, "-H", "X-Tt-Logid: 1", "--exclude-header", "x-tt-logid",
		"https://vod.bytedanceapi.com/?Action=ApplyUploadInner&Version=2020-11-19&SpaceName=aweme&FileType=video&IsInner=1&FileSize=2097152&s=abc123")
	require.NoError(t, err)

	assert.Contains(t, stdout, "SignedHeaders=host;x-amz-date,")
	assert.Contains(t, stdout, "X-Tt-Logid: 1")
}

func TestSignCommandBadHeader(t *testing.T) {
	auth := writeAuth(t, `{"AccessKeyID":"AKTEST","SecretAccessKey":"SECRETKEY"}`)

	_, _, err := run(t, &app{}, "sign", "--auth", auth, "-H", "no-colon", "https://vod.bytedanceapi.com/")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "Name: value"))
}
