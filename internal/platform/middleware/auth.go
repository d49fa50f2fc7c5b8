package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	id "consentgate/pkg/domain"
	dErrors "consentgate/pkg/domain-errors"
	"consentgate/pkg/platform/audit"
	"consentgate/pkg/platform/audit/publishers/security"
	"consentgate/pkg/platform/httputil"
	"consentgate/pkg/requestcontext"
)

// Claims are the token claims the auth middleware needs.
type Claims struct {
	UserID id.UserID
}

// JWTValidator validates bearer tokens.
type JWTValidator interface {
	ValidateToken(tokenString string) (*Claims, error)
}

// RequireAuth rejects requests without a valid bearer token and stores the
// authenticated user ID in the request context. Rejections are reported to
// the security audit publisher when one is configured.
func RequireAuth(validator JWTValidator, logger *slog.Logger, secAudit *security.Publisher) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				reject(secAudit, r, requestID, "missing_token")
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing or invalid Authorization header"))
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				reject(secAudit, r, requestID, "invalid_token")
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid or expired token"))
				return
			}

			ctx = requestcontext.WithUserID(ctx, claims.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func reject(secAudit *security.Publisher, r *http.Request, requestID, reason string) {
	if secAudit == nil {
		return
	}
	secAudit.Emit(audit.SecurityEvent{
		Subject:   r.URL.Path,
		Action:    string(audit.EventAuthFailed),
		Reason:    reason,
		IP:        requestcontext.ClientIP(r.Context()),
		RequestID: requestID,
		Severity:  audit.SeverityWarning,
	})
}
