// SPDX-FileCopyrightText: Copyright 2025 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/uitsmijter/uitsmijter/pkg/token"
)

// refreshFloor is the minimum remaining lifetime below which the session is
// always refreshed.
const refreshFloor = 2 * time.Minute

// handleInterceptor answers forward-auth subrequests from a reverse proxy:
// 200 allows the original request through, 307 sends the user agent to the
// login page.
func (s *Server) handleInterceptor(w http.ResponseWriter, r *http.Request) error {
	info := clientInfoFrom(r.Context())
	if info == nil {
		return badRequest(ReasonExpectedValueUnset)
	}
	tenant := info.Tenant
	if tenant == nil {
		return badRequest(ReasonNoTenant)
	}
	if !tenant.Interceptor.Enabled {
		return forbidden(ReasonTenantNotAllowed)
	}

	if !info.ValidPayload || info.Payload == nil {
		http.Redirect(w, r, s.interceptorLoginURL(info, tenant.Interceptor.Domain), http.StatusTemporaryRedirect)
		return nil
	}

	if s.needsSlidingRefresh(info.Payload) {
		if err := s.refreshSession(w, r, info); err != nil {
			return err
		}
	}
	w.WriteHeader(http.StatusOK)
	return nil
}

// interceptorLoginURL builds the login redirect carrying the original URL in
// the "for" parameter.
func (s *Server) interceptorLoginURL(info *ClientInfo, interceptorDomain string) string {
	domain := interceptorDomain
	if domain == "" {
		domain = s.cfg.PublicDomain
	}
	if domain == "" {
		domain = info.Host
	}

	original := url.URL{Scheme: info.Scheme, Host: info.Host, Path: info.URI}
	login := url.URL{Scheme: info.Scheme, Host: domain, Path: "/login"}
	query := login.Query()
	query.Set("for", original.String())
	query.Set("mode", ModeInterceptor)
	login.RawQuery = query.Encode()
	return login.String()
}

// needsSlidingRefresh reports whether the session cookie is close enough to
// its expiry to be reissued: past three quarters of the cookie lifetime or
// under the hard floor.
func (s *Server) needsSlidingRefresh(payload *token.Payload) bool {
	if payload.ExpiresAt == nil {
		return true
	}
	now := time.Now()
	remaining := payload.ExpiresAt.Sub(now)
	if remaining < refreshFloor {
		return true
	}
	return now.After(payload.ExpiresAt.Add(-s.cfg.CookieExpiration / 4))
}

// refreshSession re-validates the user through the tenant's provider and
// reissues the session JWT with a fresh expiry.
func (s *Server) refreshSession(w http.ResponseWriter, r *http.Request, info *ClientInfo) error {
	tenant := info.Tenant
	validation, err := s.runtime.Validate(r.Context(), tenant.Name, tenant.ProviderSource(), info.Payload.User)
	if err != nil || !validation.IsValid {
		return forbidden(ReasonInvalidate)
	}

	now := time.Now()
	payload := *info.Payload
	payload.ExpiresAt = jwt.NewNumericDate(now.Add(s.cfg.CookieExpiration))
	payload.IssuedAt = jwt.NewNumericDate(now)

	signed, _, err := s.signer.SignWith(r.Context(), &payload, s.tenantAlgorithm(tenant))
	if err != nil {
		return err
	}
	w.Header().Set("Authorization", "Bearer "+signed)
	s.setSessionCookie(w, info, signed)
	return nil
}
