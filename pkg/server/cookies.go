// SPDX-FileCopyrightText: Copyright 2025 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"net/http"
	"net/url"
)

// CookieName is the name of the SSO session cookie.
const CookieName = "uitsmijter-sso"

// invalidCookieValue is written on logout to overwrite the session cookie.
const invalidCookieValue = "invalid"

// cookieDomain selects the domain for a session cookie: the tenant's
// interceptor override first, then the referer host, the requested host, the
// configured public domain, and finally "localhost".
func (s *Server) cookieDomain(info *ClientInfo) string {
	if info.Tenant != nil && info.Tenant.Interceptor.Domain != "" {
		return info.Tenant.Interceptor.Domain
	}
	if info.Referer != "" {
		if u, err := url.Parse(info.Referer); err == nil && u.Host != "" {
			return u.Hostname()
		}
	}
	if info.Host != "" {
		return info.Host
	}
	if s.cfg.PublicDomain != "" {
		return s.cfg.PublicDomain
	}
	return "localhost"
}

// setSessionCookie writes the SSO cookie carrying the signed session JWT.
func (s *Server) setSessionCookie(w http.ResponseWriter, info *ClientInfo, signedJWT string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    signedJWT,
		Path:     "/",
		Domain:   s.cookieDomain(info),
		MaxAge:   int(s.cfg.CookieExpiration.Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

// clearSessionCookie overwrites the SSO cookie with an immediately expiring
// invalid value.
func (s *Server) clearSessionCookie(w http.ResponseWriter, info *ClientInfo) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    invalidCookieValue,
		Path:     "/",
		Domain:   s.cookieDomain(info),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}
