// SPDX-FileCopyrightText: Copyright 2025 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/uitsmijter/uitsmijter/pkg/entities"
	"github.com/uitsmijter/uitsmijter/pkg/token"
)

// Login modes.
const (
	ModeOAuth       = "oauth"
	ModeInterceptor = "interceptor"
)

// modeHeader forces the login mode from a proxy.
const modeHeader = "X-Uitsmijter-Mode"

// ForwardInfo is the parsed post-login destination of a POST /login request.
type ForwardInfo struct {
	Location *url.URL
	Host     string
}

// ClientInfo decorates a request with everything the controllers need: the
// resolved tenant and client, the login mode, the responsibility domain, and
// the verified session payload when one is present.
type ClientInfo struct {
	Mode           string
	Scheme         string
	Host           string
	URI            string
	Referer        string
	Responsibility string

	Tenant *entities.Tenant
	Client *entities.Client

	// Payload is the verified session JWT claim set; ValidPayload reports
	// whether it may be trusted for this request. Expired or unverifiable
	// tokens leave Payload nil, the same as no token at all.
	Payload      *token.Payload
	ValidPayload bool

	// ForwardInfo is set for POST /login requests only.
	ForwardInfo *ForwardInfo
}

type clientInfoKey struct{}

// clientInfoFrom returns the ClientInfo stored by the resolver middleware.
func clientInfoFrom(ctx context.Context) *ClientInfo {
	info, _ := ctx.Value(clientInfoKey{}).(*ClientInfo)
	return info
}

// passthroughPaths are not annotated with a ClientInfo.
var passthroughPaths = map[string]bool{
	"/health":       true,
	"/health/ready": true,
	"/metrics":      true,
	"/versions":     true,
	"/token":        true,
	"/token/info":   true,
}

// clientInfoMiddleware resolves the ClientInfo for every non-passthrough
// request and stores it in the request context. Resolution failures render
// the typed error response.
func (s *Server) clientInfoMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if passthroughPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}
		info, err := s.resolveClientInfo(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), clientInfoKey{}, info)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// resolveClientInfo implements the resolution order for mode, host, and
// responsibility domain, then attempts to verify the session JWT and binds
// tenant and client to the request.
func (s *Server) resolveClientInfo(r *http.Request) (*ClientInfo, error) {
	// The form must be parsed before the mode lookup may consult it.
	_ = r.ParseForm()

	info := &ClientInfo{
		Mode:    s.resolveMode(r),
		Scheme:  resolveScheme(r),
		URI:     r.Header.Get("X-Forwarded-Uri"),
		Referer: r.Referer(),
	}
	info.Host = s.resolveHost(r)
	info.Responsibility = s.resolveResponsibility(r, info)

	payload := s.verifySessionToken(r)
	if payload != nil {
		if err := s.bindWithPayload(r, info, payload); err != nil {
			return nil, err
		}
		return info, nil
	}

	if err := s.bindWithoutPayload(r, info); err != nil {
		return nil, err
	}
	return info, nil
}

func (s *Server) resolveMode(r *http.Request) string {
	for _, mode := range []string{
		r.Header.Get(modeHeader),
		r.URL.Query().Get("mode"),
		r.PostFormValue("mode"),
	} {
		switch mode {
		case ModeOAuth, ModeInterceptor:
			return mode
		}
	}
	if r.URL.Path == "/interceptor" {
		return ModeInterceptor
	}
	return ModeOAuth
}

func resolveScheme(r *http.Request) string {
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		return proto
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

// resolveHost picks the host the request is about, in a deterministic order.
func (s *Server) resolveHost(r *http.Request) string {
	if forURL := r.URL.Query().Get("for"); forURL != "" {
		if u, err := url.Parse(forURL); err == nil && u.Host != "" {
			return u.Hostname()
		}
	}
	if location := r.PostFormValue("location"); location != "" {
		// The login form's location is usually the original authorize URL;
		// the host the request is about is that of its redirect_uri.
		if u, err := url.Parse(location); err == nil {
			if inner, err := url.Parse(u.Query().Get("redirect_uri")); err == nil && inner.Host != "" {
				return inner.Hostname()
			}
		}
	}
	for _, raw := range []string{r.URL.Query().Get("redirect_uri"), r.URL.Query().Get("location")} {
		if raw == "" {
			continue
		}
		if u, err := url.Parse(raw); err == nil && u.Host != "" {
			return u.Hostname()
		}
	}
	if host := r.Header.Get("X-Forwarded-Host"); host != "" {
		return hostnameOf(host)
	}
	if s.cfg.PublicDomain != "" {
		return s.cfg.PublicDomain
	}
	return "localhost"
}

// resolveResponsibility determines the domain JWTs issued by this request
// are bound to.
func (s *Server) resolveResponsibility(r *http.Request, info *ClientInfo) string {
	if info.Mode == ModeOAuth {
		return info.Host
	}
	if strings.HasPrefix(r.URL.Path, "/logout") && info.Referer != "" {
		if u, err := url.Parse(info.Referer); err == nil && u.Host != "" {
			return u.Hostname()
		}
	}
	if location := r.PostFormValue("location"); location != "" {
		if u, err := url.Parse(location); err == nil && u.Host != "" {
			return u.Hostname()
		}
	}
	return info.Host
}

// verifySessionToken extracts and verifies the session JWT from the cookie
// or a bearer Authorization header. It returns nil when no valid token is
// present.
func (s *Server) verifySessionToken(r *http.Request) *token.Payload {
	var raw string
	if cookie, err := r.Cookie(CookieName); err == nil {
		raw = cookie.Value
	}
	if auth := r.Header.Get("Authorization"); auth != "" {
		if bearer, ok := strings.CutPrefix(auth, "Bearer "); ok {
			raw = bearer
		}
	}
	if raw == "" || raw == invalidCookieValue {
		return nil
	}
	payload, err := s.signer.Verify(r.Context(), raw)
	if err != nil {
		return nil
	}
	return payload
}

// bindWithPayload resolves tenant and client for a request carrying a valid
// session JWT and enforces the tenant consistency rules.
func (s *Server) bindWithPayload(r *http.Request, info *ClientInfo, payload *token.Payload) error {
	info.Payload = payload
	info.ValidPayload = true

	if clientID := requestClientID(r); clientID != "" {
		client, err := s.findClient(clientID)
		if err != nil {
			return err
		}
		info.Client = client
	}

	if info.Client != nil {
		tenant := s.store.FindTenantByName(info.Client.TenantName)
		if tenant == nil {
			return badRequest(ReasonNoTenant)
		}
		info.Tenant = tenant
	} else if payload.Tenant != "" {
		info.Tenant = s.store.FindTenantByName(payload.Tenant)
	}
	if info.Tenant == nil {
		return badRequest(ReasonNoTenant)
	}

	if info.Client != nil && info.Client.TenantName != info.Tenant.Name {
		return notAcceptable(ReasonClientTenantMismatch)
	}

	if !strings.HasPrefix(r.URL.Path, "/logout") && info.Host != "localhost" {
		responsible := s.store.FindTenantByHost(info.Responsibility)
		if responsible == nil || responsible.Name != info.Tenant.Name {
			return forbidden(ReasonForbidden)
		}
	}

	if !payload.BoundTo(info.Responsibility) {
		info.ValidPayload = false
	}
	return nil
}

// bindWithoutPayload resolves tenant and client from the request alone.
func (s *Server) bindWithoutPayload(r *http.Request, info *ClientInfo) error {
	if clientID := requestClientID(r); clientID != "" {
		client, err := s.findClient(clientID)
		if err != nil {
			return err
		}
		info.Client = client
		info.Tenant = s.store.FindTenantByName(client.TenantName)
	}
	if info.Tenant == nil {
		info.Tenant = s.store.FindTenantByHost(info.Host)
	}

	if r.URL.Path == "/login" && r.Method == http.MethodPost {
		location := r.PostFormValue("location")
		if location != "" {
			// The location may be a relative authorize URL on this server.
			u, err := url.Parse(location)
			if err != nil {
				return preconditionFailed(ReasonMissingLocation)
			}
			info.ForwardInfo = &ForwardInfo{Location: u, Host: u.Hostname()}
			if info.Tenant == nil && u.Hostname() != "" {
				info.Tenant = s.store.FindTenantByHost(u.Hostname())
			}
			if info.Tenant == nil {
				info.Tenant = s.store.FindTenantByHost(info.Host)
			}
		}
	}
	return nil
}

// requestClientID finds a client_id in header, query, or form.
func requestClientID(r *http.Request) string {
	if id := r.Header.Get("X-Client-Id"); id != "" {
		return id
	}
	if id := r.URL.Query().Get("client_id"); id != "" {
		return id
	}
	return r.PostFormValue("client_id")
}

func (s *Server) findClient(clientID string) (*entities.Client, error) {
	ident, err := uuid.Parse(clientID)
	if err != nil {
		return nil, badRequest(ReasonNoClient)
	}
	client := s.store.FindClientByIdent(ident)
	if client == nil {
		return nil, notFound(ReasonNoClient)
	}
	return client, nil
}

func hostnameOf(hostport string) string {
	if idx := strings.IndexByte(hostport, ':'); idx >= 0 {
		return hostport[:idx]
	}
	return hostport
}
