package signer

// Signature constants shared by the VOD metadata API and the signer.

const (
	// EmptyStringSHA256 is the hex encoded SHA256 hash of zero bytes.
	// Requests with no body are signed with this payload hash.
	EmptyStringSHA256 = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

	// SigningAlgorithm is the algorithm identifier placed in the string to
	// sign and in the Authorization header.
	SigningAlgorithm = "AWS4-HMAC-SHA256"

	// AuthorizationHeader is the HTTP header name for authorization.
	AuthorizationHeader = "Authorization"

	// AmzDateKey is the header carrying the request timestamp.
	// Format: YYYYMMDDTHHMMSSZ (e.g., 20231201T120000Z)
	AmzDateKey = "X-Amz-Date"

	// AmzSecurityTokenKey carries the session token of temporary credentials.
	AmzSecurityTokenKey = "X-Amz-Security-Token"

	// HostHeader is always part of the signed header set.
	HostHeader = "Host"

	// TimeFormat is the time format for the X-Amz-Date header.
	TimeFormat = "20060102T150405Z"

	// ShortTimeFormat is the shortened time format for the credential scope.
	ShortTimeFormat = "20060102"

	// scopeTerminator closes every credential scope and the key derivation chain.
	scopeTerminator = "aws4_request"

	// keyPrefix is prepended to the secret key before the first HMAC round.
	keyPrefix = "AWS4"
)
