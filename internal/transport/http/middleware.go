// Copyright 2026 The Crewdesk Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package http

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/crewdesk/crewdesk/internal/audit"
	"github.com/crewdesk/crewdesk/internal/observability/logger"
	"github.com/crewdesk/crewdesk/internal/tenant"
)

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			slog.InfoContext(r.Context(), "http_request_start",
				logger.RequestID(middleware.GetReqID(r.Context())),
				logger.Method(r.Method),
				logger.Path(r.URL.Path),
				logger.Host(r.Host),
				logger.RemoteAddr(r.RemoteAddr),
			)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				slog.InfoContext(r.Context(), "http_request_end",
					logger.RequestID(middleware.GetReqID(r.Context())),
					logger.Method(r.Method),
					logger.Path(r.URL.Path),
					logger.Host(r.Host),
					logger.RemoteAddr(r.RemoteAddr),
					logger.UserAgent(r.UserAgent()),
					logger.StatusCode(ww.Status()),
					logger.Duration(time.Since(start).Milliseconds()),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// TenantMiddleware resolves the request host to a tenant and stores it in
// the context. Tenant context comes EXCLUSIVELY from the Host header; any
// tenant identifier in headers or payloads is ignored. Requests whose host
// carries no tenant (root domain, localhost, IP literal) pass through with
// no tenant in context.
func (h *Handler) TenantMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t, err := h.resolver.Resolve(r.Context(), r.Host)
		if err != nil {
			if errors.Is(err, tenant.ErrNoTenant) {
				next.ServeHTTP(w, r)
				return
			}
			// Unknown subdomain and internal lookup failure render the
			// same generic response.
			respondError(w, http.StatusNotFound, "unknown tenant")
			return
		}

		next.ServeHTTP(w, r.WithContext(withTenant(r.Context(), t)))
	})
}

// RequireTenant enforces that a tenant context is present. Authentication
// flows are invalid on the root domain.
func RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetTenant(r.Context()) == nil {
			respondError(w, http.StatusNotFound, "unknown tenant")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AuthMiddleware validates the session cookie and binds it to the tenant
// resolved from the host. A session valid for tenant A must never be
// honored while the host resolves to tenant B; that binding check is the
// single most important correctness property of the system.
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t := GetTenant(r.Context())
		if t == nil {
			respondError(w, http.StatusUnauthorized, "not authenticated")
			return
		}

		cookie, err := r.Cookie(h.cookies.Name())
		if err != nil || cookie.Value == "" {
			respondError(w, http.StatusUnauthorized, "not authenticated")
			return
		}

		sess, err := h.codec.Validate(cookie.Value)
		if err != nil {
			// Invalid and expired sessions are treated identically to no
			// session at all.
			http.SetCookie(w, h.cookies.Expired(r.Host))
			respondError(w, http.StatusUnauthorized, "not authenticated")
			return
		}

		if sess.TenantID != t.ID {
			h.auditLogger.Log(r.Context(), audit.Event{
				Type:      audit.TypeCrossTenantRejected,
				TenantID:  t.ID,
				ActorID:   sess.UserID,
				Resource:  sess.TenantID,
				IPAddress: getIPAddress(r),
				UserAgent: r.UserAgent(),
			})
			respondError(w, http.StatusUnauthorized, "not authenticated")
			return
		}

		next.ServeHTTP(w, r.WithContext(withSession(r.Context(), sess)))
	})
}

func getIPAddress(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
