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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/crewdesk/crewdesk/internal/audit"
	"github.com/crewdesk/crewdesk/internal/identity"
	"github.com/crewdesk/crewdesk/internal/observability/logger"
	"github.com/crewdesk/crewdesk/internal/recovery"
	"github.com/crewdesk/crewdesk/internal/registration"
	"github.com/crewdesk/crewdesk/internal/session"
	"github.com/crewdesk/crewdesk/internal/tenant"
)

// Handler holds HTTP handlers and dependencies
type Handler struct {
	resolver    *tenant.Resolver
	tenants     *tenant.Service
	users       *identity.Service
	codec       *session.Codec
	cookies     *session.CookieWriter
	registrar   *registration.Orchestrator
	recovery    *recovery.Flow
	auditLogger audit.Logger
	rootDomain  string
}

// NewHandler creates a new HTTP handler
func NewHandler(
	resolver *tenant.Resolver,
	tenants *tenant.Service,
	users *identity.Service,
	codec *session.Codec,
	cookies *session.CookieWriter,
	registrar *registration.Orchestrator,
	recoveryFlow *recovery.Flow,
	auditLogger audit.Logger,
	rootDomain string,
) *Handler {
	return &Handler{
		resolver:    resolver,
		tenants:     tenants,
		users:       users,
		codec:       codec,
		cookies:     cookies,
		registrar:   registrar,
		recovery:    recoveryFlow,
		auditLogger: auditLogger,
		rootDomain:  rootDomain,
	}
}

// NewRouter creates a new HTTP router
func NewRouter(h *Handler, rateLimiter *RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RateLimitMiddleware(rateLimiter))
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(h.TenantMiddleware)

	r.Get("/health", h.HealthCheck)

	// Root-domain entry points: tenant registration and the recovery
	// variant that names its tenant explicitly.
	r.Post("/register", h.RegisterTenant)
	r.Post("/forgot-password", h.ForgotPasswordWithDomain)

	// Tenant-scoped endpoints fail closed when the host resolves to no
	// tenant.
	r.Group(func(r chi.Router) {
		r.Use(RequireTenant)

		r.Post("/auth/login", h.Login)
		r.Post("/auth/forgot-password", h.ForgotPassword)
		r.Post("/auth/reset-password", h.ResetPassword)

		r.Group(func(r chi.Router) {
			r.Use(h.AuthMiddleware)

			r.Post("/auth/logout", h.Logout)
			r.Get("/auth/me", h.GetCurrentUser)
			r.Post("/auth/change-password", h.ChangePassword)

			r.Route("/users", func(r chi.Router) {
				r.Post("/", h.CreateUser)
				r.Get("/{userID}", h.GetUser)
				r.Patch("/{userID}", h.UpdateUser)
				r.Delete("/{userID}", h.DeleteUser)
				r.Put("/{userID}/role", h.SetUserRole)
			})
		})
	})

	return r
}

// HealthCheck reports process liveness.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "crewdesk",
	})
}

// LoginRequest represents login credentials. The tenant is derived from the
// request host, never from the payload.
type LoginRequest struct {
	LoginIdentifier string `json:"loginIdentifier"`
	Password        string `json:"password"`
}

// Login authenticates a user against the tenant resolved from the host and
// sets the session cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.LoginIdentifier == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "loginIdentifier and password are required")
		return
	}

	t := GetTenant(r.Context())

	user, err := h.users.Authenticate(r.Context(), t.ID, req.LoginIdentifier, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrAccountLocked) {
			respondError(w, http.StatusTooManyRequests, "account temporarily locked")
			return
		}
		// Identical message whether the account is missing, inactive or the
		// password is wrong.
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, _, err := h.codec.Issue(user.ID, t.ID, t.Subdomain, user.Role)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to issue session", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	http.SetCookie(w, h.cookies.Cookie(token, r.Host))

	respondJSON(w, http.StatusOK, map[string]any{
		"user": user.Safe(),
	})
}

// Logout clears the session cookie using the same domain and path
// attributes used to set it, and returns the tenant login URL recovered
// from the expiring session.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	sess := GetSession(r.Context())

	h.auditLogger.Log(r.Context(), audit.Event{
		Type:      audit.TypeLogout,
		TenantID:  sess.TenantID,
		ActorID:   sess.UserID,
		Resource:  "session",
		IPAddress: getIPAddress(r),
	})

	http.SetCookie(w, h.cookies.Expired(r.Host))

	respondJSON(w, http.StatusOK, map[string]string{
		"login_url": fmt.Sprintf("https://%s.%s/login", sess.TenantDomain, h.rootDomain),
	})
}

// GetCurrentUser returns the authenticated user's safe record.
func (h *Handler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	sess := GetSession(r.Context())

	user, err := h.users.GetUser(r.Context(), sess.UserID)
	if err != nil {
		respondError(w, http.StatusNotFound, "user not found")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"user": user.Safe()})
}

// ChangePasswordRequest carries an authenticated password change.
type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

// ChangePassword changes the caller's own password.
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess := GetSession(r.Context())
	if err := h.users.ChangePassword(r.Context(), sess.UserID, req.OldPassword, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, identity.ErrInvalidCredentials):
			respondError(w, http.StatusUnauthorized, "invalid credentials")
		case errors.Is(err, identity.ErrWeakPassword):
			respondError(w, http.StatusBadRequest, "password does not meet security requirements")
		default:
			respondError(w, http.StatusInternalServerError, "failed to change password")
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "password changed successfully"})
}

// RegisterTenant provisions a new tenant with its first Admin user.
func (h *Handler) RegisterTenant(w http.ResponseWriter, r *http.Request) {
	var in registration.Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.registrar.Register(r.Context(), in)
	if err != nil {
		var verrs registration.ValidationErrors
		var dup *registration.DuplicateError
		switch {
		case errors.As(err, &verrs):
			respondJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"fields": verrs,
			})
		case errors.As(err, &dup):
			respondJSON(w, http.StatusConflict, map[string]any{
				"error": dup.Error(),
				"field": dup.Field,
			})
		case errors.Is(err, registration.ErrStoreUnavailable):
			slog.ErrorContext(r.Context(), "registration store unavailable", logger.Error(err))
			respondError(w, http.StatusServiceUnavailable, "service temporarily unavailable")
		default:
			slog.ErrorContext(r.Context(), "registration failed", logger.Error(err))
			respondError(w, http.StatusInternalServerError, "registration failed")
		}
		return
	}

	respondJSON(w, http.StatusCreated, result)
}

// ForgotPasswordRequest is the tenant-subdomain variant: the tenant comes
// from the request host.
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// ForgotPassword starts password recovery for users already on a tenant
// subdomain.
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	t := GetTenant(r.Context())
	h.handleReset(w, r, req.Email, t.Subdomain)
}

// ForgotPasswordWithDomainRequest is the root-domain variant with an
// explicit company domain.
type ForgotPasswordWithDomainRequest struct {
	Email         string `json:"email"`
	CompanyDomain string `json:"companyDomain"`
}

// ForgotPasswordWithDomain starts password recovery from the root-domain
// entry point.
func (h *Handler) ForgotPasswordWithDomain(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordWithDomainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CompanyDomain == "" {
		respondError(w, http.StatusBadRequest, "companyDomain is required")
		return
	}

	h.handleReset(w, r, req.Email, req.CompanyDomain)
}

// handleReset funnels both forgot-password variants into the recovery flow.
// The response shape is byte-identical whether or not the account exists.
func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request, email, domain string) {
	if err := h.recovery.RequestReset(r.Context(), email, domain); err != nil {
		if errors.Is(err, recovery.ErrDeliveryFailed) {
			respondError(w, http.StatusInternalServerError, "server could not send email")
			return
		}
		slog.ErrorContext(r.Context(), "password reset request failed", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "server could not process request")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "If an account exists for " + email + ", a reset link has been sent.",
	})
}

// ResetPasswordRequest consumes a reset token.
type ResetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

// ResetPassword completes password recovery with a single-use token.
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.recovery.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, recovery.ErrTokenInvalid):
			respondError(w, http.StatusBadRequest, "reset link is invalid or has expired")
		case errors.Is(err, identity.ErrWeakPassword):
			respondError(w, http.StatusBadRequest, "password does not meet security requirements")
		default:
			slog.ErrorContext(r.Context(), "password reset failed", logger.Error(err))
			respondError(w, http.StatusInternalServerError, "failed to reset password")
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "password has been reset"})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
