package middleware

import (
	"errors"
	"net/http"

	"github.com/abdul-hamid-achik/luzimarket-ledger/api/responses"
	pkgAuth "github.com/abdul-hamid-achik/luzimarket-ledger/pkg/auth"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/config"
	pkgerrors "github.com/abdul-hamid-achik/luzimarket-ledger/pkg/errors"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/logger"
)

// Auth validates the bearer token and seeds the request context with the
// caller. A misconfigured signer fails every request with 500.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	signer, signerErr := pkgAuth.NewSigner(cfg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if signerErr != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, signerErr, "auth is not configured"))
				return
			}

			token := pkgAuth.BearerToken(r.Header.Get("Authorization"))
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := signer.Parse(token)
			if err != nil {
				msg := "invalid token"
				if errors.Is(err, pkgAuth.ErrTokenExpired) {
					msg = "token expired"
				}
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, msg))
				return
			}

			role := string(claims.Role)
			ctx := WithActor(r.Context(), claims.Subject, role)
			if logg != nil {
				ctx = logg.WithField(logg.WithActor(ctx, claims.Subject, role), "jti", claims.ID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
