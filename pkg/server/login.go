// SPDX-FileCopyrightText: Copyright 2025 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/uitsmijter/uitsmijter/pkg/entities"
	"github.com/uitsmijter/uitsmijter/pkg/provider"
	"github.com/uitsmijter/uitsmijter/pkg/token"
)

// handleLoginPage renders the login form. The post-login destination comes
// from the "for" query in interceptor mode or the "location" query in the
// code flow.
func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) error {
	info := clientInfoFrom(r.Context())

	location := r.URL.Query().Get("for")
	if location == "" {
		location = r.URL.Query().Get("location")
	}

	tenantName := ""
	if info != nil && info.Tenant != nil {
		tenantName = info.Tenant.Name
	}
	renderPage(w, http.StatusOK, "login.html", loginPageData{
		TenantName: tenantName,
		Location:   location,
		Mode:       r.URL.Query().Get("mode"),
	})
	return nil
}

// handleLogin exchanges credentials for a session cookie and sends the user
// back to where they came from.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) error {
	if err := r.ParseForm(); err != nil {
		return badRequest(ReasonFormNotParseable)
	}
	info := clientInfoFrom(r.Context())

	username := r.PostFormValue("username")
	password := r.PostFormValue("password")
	if username == "" || password == "" {
		return badRequest(ReasonFormNotParseable)
	}
	if info == nil || info.ForwardInfo == nil {
		return preconditionFailed(ReasonMissingLocation)
	}
	client, err := s.loginClient(info)
	if err != nil {
		return err
	}
	tenant := info.Tenant
	if tenant == nil && client != nil {
		tenant = s.store.FindTenantByName(client.TenantName)
	}
	if tenant == nil {
		return badRequest(ReasonNoTenant)
	}
	if client != nil {
		location := info.ForwardInfo.Location
		// Locations issued by this server are relative; an absolute location
		// must itself satisfy the client's redirect patterns, or the 303
		// below would hand the session to a foreign host.
		if location.IsAbs() && !client.MatchesRedirectURI(location.String()) {
			return forbidden(ReasonForbidden)
		}
		if redirectURI := location.Query().Get("redirect_uri"); redirectURI != "" {
			if !client.MatchesRedirectURI(redirectURI) {
				return forbidden(ReasonForbidden)
			}
		}
	}

	result, err := s.runtime.Login(r.Context(), tenant.Name, tenant.ProviderSource(), provider.Credentials{
		Username: username,
		Password: password,
	})
	if err != nil || !result.CanLogin {
		clientIdent := ""
		if client != nil {
			clientIdent = client.Ident.String()
		}
		s.metrics.LoginDenied(tenant.Name, clientIdent)
		return forbidden(ReasonWrongCredentials)
	}
	s.metrics.LoginSucceeded(tenant.Name)

	now := time.Now()
	payload := &token.Payload{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   result.Subject(username),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.CookieExpiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer(r),
		},
		AuthTime:       jwt.NewNumericDate(now),
		Tenant:         tenant.Name,
		Responsibility: token.ResponsibilityHash(info.Responsibility),
		Role:           result.Role,
		User:           username,
		Profile:        result.Profile,
	}
	if client != nil {
		payload.Audience = jwt.ClaimStrings{client.Ident.String()}
		payload.Scopes = client.AllowedScopes(
			entities.SplitScopes(r.PostFormValue("scope")), result.Scopes)
	}

	signed, _, err := s.signer.SignWith(r.Context(), payload, s.tenantAlgorithm(tenant))
	if err != nil {
		return err
	}
	s.setSessionCookie(w, info, signed)

	http.Redirect(w, r, info.ForwardInfo.Location.String(), http.StatusSeeOther)
	return nil
}

// loginClient resolves the client a login belongs to: the client_id embedded
// in the forwarded authorize URL wins over the one on the request itself.
func (s *Server) loginClient(info *ClientInfo) (*entities.Client, error) {
	if info.ForwardInfo != nil {
		if clientID := info.ForwardInfo.Location.Query().Get("client_id"); clientID != "" {
			ident, err := uuid.Parse(clientID)
			if err != nil {
				return nil, badRequest(ReasonNoClient)
			}
			if client := s.store.FindClientByIdent(ident); client != nil {
				return client, nil
			}
			return nil, notFound(ReasonNoClient)
		}
	}
	return info.Client, nil
}

// handleLogout shows the logout confirmation page. Active refresh tokens are
// not revoked here; that stays an explicit operator decision.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) error {
	info := clientInfoFrom(r.Context())
	tenantName := ""
	if info != nil && info.Tenant != nil {
		tenantName = info.Tenant.Name
	}
	renderPage(w, http.StatusOK, "logout.html", logoutPageData{TenantName: tenantName})
	return nil
}

// handleLogoutFinalize invalidates the session cookie and sends the user to
// the root page.
func (s *Server) handleLogoutFinalize(w http.ResponseWriter, r *http.Request) error {
	info := clientInfoFrom(r.Context())
	if info == nil {
		info = &ClientInfo{}
	}
	s.clearSessionCookie(w, info)
	http.Redirect(w, r, "/", http.StatusSeeOther)
	return nil
}
