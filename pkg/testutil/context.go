package testutil

import (
	"net/http"

	id "consentgate/pkg/domain"
	"consentgate/pkg/requestcontext"
)

// WithUserID adds a user ID to the request context, simulating what the
// auth middleware does for authenticated requests.
func WithUserID(req *http.Request, userID id.UserID) *http.Request {
	return req.WithContext(requestcontext.WithUserID(req.Context(), userID))
}

// WithClientMetadata adds client IP and user agent to the request context,
// simulating the client metadata middleware.
func WithClientMetadata(req *http.Request, ip, userAgent string) *http.Request {
	return req.WithContext(requestcontext.WithClientMetadata(req.Context(), ip, userAgent))
}

// WithRequestID adds a request ID to the request context.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), requestID))
}
