package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/LeventeLantos/drama-notifier/internal/auth"
	"github.com/LeventeLantos/drama-notifier/internal/model"
)

type principalKey struct{}

func withPrincipal(ctx context.Context, p model.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func principalFrom(ctx context.Context) model.Principal {
	p, _ := ctx.Value(principalKey{}).(model.Principal)
	return p
}

// require wraps next so it only runs for a bearer token whose role satisfies
// role.
func (h *Handler) require(role model.Role, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		p, err := h.auth.ParseToken(strings.TrimSpace(raw))
		if err != nil {
			writeError(w, http.StatusUnauthorized, auth.ErrInvalidToken.Error())
			return
		}
		if !auth.Authorize(p, role) {
			writeError(w, http.StatusForbidden, "insufficient role")
			return
		}

		next(w, r.WithContext(withPrincipal(r.Context(), p)))
	}
}
