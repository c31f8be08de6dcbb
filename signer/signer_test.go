package signer

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testTime = time.Date(2024, time.March, 5, 10, 20, 30, 0, time.UTC)

	testCredentials = Credentials{
		AccessKeyID:     "AKTEST",
		SecretAccessKey: "SECRETKEY",
		Region:          "cn-north-1",
		Service:         "vod",
	}
)

func newTestSigner() *Signer {
	return NewSigner(
		WithClock(func() time.Time { return testTime }),
		WithKeyCache(NewBoundedKeyCache(0)),
	)
}

func applyRequest() Request {
	return Request{
		Method: http.MethodGet,
		URL:    "https://vod.bytedanceapi.com/",
		Query: map[string]string{
			"Action":    "ApplyUploadInner",
			"Version":   "2020-11-19",
			"SpaceName": "aweme",
			"FileType":  "video",
			"IsInner":   "1",
			"FileSize":  "2097152",
			"s":         "abc123",
		},
		Header: http.Header{
			"User-Agent":   []string{"test-agent"},
			"Content-Type": []string{"application/json"},
		},
	}
}

func TestSignKnownAnswer(t *testing.T) {
	header, err := newTestSigner().Sign(applyRequest(), testCredentials)
	require.NoError(t, err)

	assert.Equal(t,
		"AWS4-HMAC-SHA256 Credential=AKTEST/20240305/cn-north-1/vod/aws4_request, SignedHeaders=host;x-amz-date, Signature=867ef5fd19e05fb3a14f41dee31f98efd9f30c524718a7f8871db75bfb093b23",
		header.Get(AuthorizationHeader),
	)
	assert.Equal(t, "20240305T102030Z", header.Get(AmzDateKey))
	assert.Equal(t, "vod.bytedanceapi.com", header.Get(HostHeader))
	assert.Empty(t, header.Get(AmzSecurityTokenKey))
}

func TestSignWithSessionTokenAndBody(t *testing.T) {
	creds := testCredentials
	creds.SessionToken = "TOKEN"

	req := Request{
		Method: http.MethodPost,
		URL:    "https://vod.bytedanceapi.com/",
		Query: map[string]string{
			"Action":    "CommitUploadInner",
			"Version":   "2020-11-19",
			"SpaceName": "aweme",
		},
		Header: http.Header{
			"Content-Type": []string{"application/json"},
			"X-Custom":     []string{"a  b"},
			"x-custom":     []string{"c"},
		},
		Body: []byte(`{"SessionKey":"sk"}`),
	}

	header, err := newTestSigner().Sign(req, creds)
	require.NoError(t, err)

	assert.Equal(t,
		"AWS4-HMAC-SHA256 Credential=AKTEST/20240305/cn-north-1/vod/aws4_request, SignedHeaders=host;x-amz-date;x-amz-security-token;x-custom, Signature=da12e5596b572121dda50f0cd7a2fe20650f20aac8a330e2e4d268fac90cf20e",
		header.Get(AuthorizationHeader),
	)
	assert.Equal(t, "TOKEN", header.Get(AmzSecurityTokenKey))
}

func TestCanonicalize(t *testing.T) {
	st := NewSigningTime(testTime)
	ctx, err := newTestSigner().Canonicalize(applyRequest(), testCredentials, st)
	require.NoError(t, err)

	assert.Equal(t, "/", ctx.CanonicalURI)
	assert.Equal(t, "host;x-amz-date", ctx.SignedHeaders)
	assert.Equal(t, EmptyStringSHA256, ctx.PayloadHash)
	assert.Equal(t,
		"GET\n/\nAction=ApplyUploadInner&FileSize=2097152&FileType=video&IsInner=1&SpaceName=aweme&Version=2020-11-19&s=abc123\n"+
			"host:vod.bytedanceapi.com\nx-amz-date:20240305T102030Z\n\nhost;x-amz-date\n"+EmptyStringSHA256,
		ctx.CanonicalRequest(),
	)
	assert.True(t, strings.HasPrefix(ctx.StringToSign(), "AWS4-HMAC-SHA256\n20240305T102030Z\n20240305/cn-north-1/vod/aws4_request\n"))
}

func TestSignDeterministic(t *testing.T) {
	s := newTestSigner()

	h1, err := s.Sign(applyRequest(), testCredentials)
	require.NoError(t, err)
	h2, err := s.Sign(applyRequest(), testCredentials)
	require.NoError(t, err)

	assert.Equal(t, h1.Get(AuthorizationHeader), h2.Get(AuthorizationHeader))
}

func TestSignExcludesIgnoredHeaders(t *testing.T) {
	req := applyRequest()
	req.Header.Set("Referer", "https://creator.example.com/")
	req.Header.Set("Authorization", "Bearer caller")
	req.Header.Set("Content-Length", "0")

	header, err := newTestSigner().Sign(req, testCredentials)
	require.NoError(t, err)

	auth := header.Get(AuthorizationHeader)
	signedHeaders := auth[strings.Index(auth, "SignedHeaders=")+len("SignedHeaders=") : strings.Index(auth, ", Signature=")]
	for _, name := range []string{"content-type", "content-length", "authorization", "user-agent", "referer"} {
		assert.NotContains(t, strings.Split(signedHeaders, ";"), name)
	}

	// Excluded headers are still sent verbatim.
	assert.Equal(t, "application/json", header.Get("Content-Type"))
	assert.Equal(t, "test-agent", header.Get("User-Agent"))
	assert.Equal(t, "https://creator.example.com/", header.Get("Referer"))
	assert.Equal(t, "0", header.Get("Content-Length"))
	assert.Len(t, header.Values(AuthorizationHeader), 1)

	// Excluded headers do not change the signature.
	plain, err := newTestSigner().Sign(applyRequest(), testCredentials)
	require.NoError(t, err)
	assert.Equal(t, plain.Get(AuthorizationHeader), auth)
}

func TestSignDoesNotMutateCallerHeader(t *testing.T) {
	req := applyRequest()
	req.Header.Set("X-Amz-Date", "19700101T000000Z")
	before := req.Header.Clone()

	header, err := newTestSigner().Sign(req, testCredentials)
	require.NoError(t, err)

	assert.Equal(t, before, req.Header)
	assert.Equal(t, []string{"20240305T102030Z"}, header.Values(AmzDateKey))
}

func TestSignEmptyBody(t *testing.T) {
	st := NewSigningTime(testTime)
	req := applyRequest()

	req.Body = nil
	ctx, err := newTestSigner().Canonicalize(req, testCredentials, st)
	require.NoError(t, err)
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", ctx.PayloadHash)

	req.Body = []byte{}
	ctx, err = newTestSigner().Canonicalize(req, testCredentials, st)
	require.NoError(t, err)
	assert.Equal(t, EmptyStringSHA256, ctx.PayloadHash)
}

func TestSignRootPath(t *testing.T) {
	st := NewSigningTime(testTime)
	for _, u := range []string{"https://vod.bytedanceapi.com", "https://vod.bytedanceapi.com/"} {
		req := applyRequest()
		req.URL = u
		ctx, err := newTestSigner().Canonicalize(req, testCredentials, st)
		require.NoError(t, err)
		assert.Equal(t, "/", ctx.CanonicalURI, u)
	}
}

func TestSignMergesURLQuery(t *testing.T) {
	st := NewSigningTime(testTime)
	req := Request{
		Method: http.MethodGet,
		URL:    "https://vod.bytedanceapi.com/?Action=Old&Extra=1",
		Query:  map[string]string{"Action": "ApplyUploadInner"},
	}

	ctx, err := newTestSigner().Canonicalize(req, testCredentials, st)
	require.NoError(t, err)
	assert.Equal(t, "Action=ApplyUploadInner&Extra=1", ctx.CanonicalQuery)
}

func TestSigningKeyShared(t *testing.T) {
	s := newTestSigner()
	st := NewSigningTime(testTime)

	other := testCredentials
	other.AccessKeyID = "AKOTHER"

	assert.Equal(t, s.SigningKey(testCredentials, st), s.SigningKey(other, st))

	h1, err := s.Sign(applyRequest(), testCredentials)
	require.NoError(t, err)
	h2, err := s.Sign(applyRequest(), other)
	require.NoError(t, err)
	assert.NotEqual(t, h1.Get(AuthorizationHeader), h2.Get(AuthorizationHeader))

	changed := applyRequest()
	changed.Query["FileSize"] = "1"
	h3, err := s.Sign(changed, testCredentials)
	require.NoError(t, err)
	assert.NotEqual(t, signatureOf(h1), signatureOf(h3))
}

func TestSignErrors(t *testing.T) {
	s := newTestSigner()

	_, err := s.Sign(applyRequest(), Credentials{AccessKeyID: "AK", Region: "r", Service: "s"})
	assert.ErrorIs(t, err, ErrMissingCredentials)

	_, err = s.Sign(applyRequest(), Credentials{SecretAccessKey: "SK", Region: "r", Service: "s"})
	assert.ErrorIs(t, err, ErrMissingCredentials)

	req := applyRequest()
	req.URL = "://missing-scheme"
	_, err = s.Sign(req, testCredentials)
	assert.ErrorIs(t, err, ErrInvalidURL)

	req.URL = "/relative/only"
	_, err = s.Sign(req, testCredentials)
	assert.ErrorIs(t, err, ErrInvalidURL)
}

func TestSignWithExcludedHeaders(t *testing.T) {
	req := applyRequest()
	req.Header.Set("X-Tt-Logid", "20240305102030")

	st := NewSigningTime(testTime)
	ctx, err := newTestSigner().Canonicalize(req, testCredentials, st)
	require.NoError(t, err)
	assert.Equal(t, "host;x-amz-date;x-tt-logid", ctx.SignedHeaders)

	s := NewSigner(
		WithClock(func() time.Time { return testTime }),
		WithKeyCache(NewBoundedKeyCache(0)),
		WithExcludedHeaders("x-tt-logid"),
	)
	header, err := s.Sign(req, testCredentials)
	require.NoError(t, err)
	assert.Equal(t, "867ef5fd19e05fb3a14f41dee31f98efd9f30c524718a7f8871db75bfb093b23", signatureOf(header))
	assert.Equal(t, "20240305102030", header.Get("X-Tt-Logid"))
}

func TestSignRejectsRepeatedQueryKey(t *testing.T) {
	req := applyRequest()
	req.URL = "https://vod.bytedanceapi.com/?a=1&a=2"
	_, err := newTestSigner().Sign(req, testCredentials)
	assert.ErrorIs(t, err, ErrRepeatedQueryKey)

	r, err := http.NewRequest(http.MethodGet, "https://vod.bytedanceapi.com/?a=1&a=2", nil)
	require.NoError(t, err)
	err = newTestSigner().SignHTTP(r, nil, testCredentials)
	require.ErrorIs(t, err, ErrRepeatedQueryKey)
	assert.Equal(t, "a=1&a=2", r.URL.RawQuery)
	assert.Empty(t, r.Header.Get(AuthorizationHeader))
}

func TestSignHTTP(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "https://vod.bytedanceapi.com/", nil)
	require.NoError(t, err)
	q := req.URL.Query()
	for k, v := range applyRequest().Query {
		q.Set(k, v)
	}
	req.URL.RawQuery = q.Encode()
	req.Header.Set("User-Agent", "test-agent")

	require.NoError(t, newTestSigner().SignHTTP(req, nil, testCredentials))

	assert.Equal(t, "Action=ApplyUploadInner&FileSize=2097152&FileType=video&IsInner=1&SpaceName=aweme&Version=2020-11-19&s=abc123", req.URL.RawQuery)
	assert.Equal(t, "867ef5fd19e05fb3a14f41dee31f98efd9f30c524718a7f8871db75bfb093b23", signatureOf(req.Header))
	assert.Equal(t, "test-agent", req.Header.Get("User-Agent"))
}

// For a bodiless GET with only unreserved characters in path and query the
// canonical request matches the one built by the AWS SDK signer.
func TestSignMatchesAWSSDK(t *testing.T) {
	creds := testCredentials
	creds.SessionToken = "SESSION"

	const rawURL = "https://vod.example.com/upload/v1/object?Action=GetObject&Version=2020-11-19"

	sdkReq, err := http.NewRequest(http.MethodGet, rawURL, nil)
	require.NoError(t, err)
	err = v4.NewSigner().SignHTTP(context.Background(), aws.Credentials{
		AccessKeyID:     creds.AccessKeyID,
		SecretAccessKey: creds.SecretAccessKey,
		SessionToken:    creds.SessionToken,
	}, sdkReq, EmptyStringSHA256, creds.Service, creds.Region, testTime)
	require.NoError(t, err)

	ourReq, err := http.NewRequest(http.MethodGet, rawURL, nil)
	require.NoError(t, err)
	require.NoError(t, newTestSigner().SignHTTP(ourReq, nil, creds))

	assert.Equal(t, sdkReq.Header.Get(AuthorizationHeader), ourReq.Header.Get(AuthorizationHeader))
	assert.Equal(t, sdkReq.Header.Get(AmzDateKey), ourReq.Header.Get(AmzDateKey))
	assert.Equal(t, sdkReq.Header.Get(AmzSecurityTokenKey), ourReq.Header.Get(AmzSecurityTokenKey))
}

func signatureOf(h http.Header) string {
	auth := h.Get(AuthorizationHeader)
	const marker = "Signature="
	return auth[strings.Index(auth, marker)+len(marker):]
}
