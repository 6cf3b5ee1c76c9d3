// SPDX-FileCopyrightText: Copyright 2025 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"net/http"
	"net/url"
	"time"

	"github.com/uitsmijter/uitsmijter/pkg/entities"
	"github.com/uitsmijter/uitsmijter/pkg/oauth"
	"github.com/uitsmijter/uitsmijter/pkg/session"
)

// handleAuthorize starts the authorization-code flow. Without a valid
// session the user gets the login page; with one, a fresh code is persisted
// and the user agent is sent back to the client's redirect URI.
func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) error {
	info := clientInfoFrom(r.Context())
	req := oauth.ParseAuthorizeRequest(r.URL.Query())

	if req.ResponseType == "" {
		return &HTTPError{Status: http.StatusBadRequest, Reason: "No String was found at 'response_type'"}
	}
	if req.ResponseType != "code" {
		return notImplemented(ReasonResponseTypeNotImplemented)
	}
	if !oauth.KnownChallengeMethod(req.CodeChallengeMethod) {
		return notImplemented(ReasonChallengeMethodUnsupported)
	}

	client, err := s.findClient(req.ClientID)
	if err != nil {
		return err
	}
	tenant := s.store.FindTenantByName(client.TenantName)
	if tenant == nil {
		return badRequest(ReasonNoTenant)
	}

	if req.RedirectURI == "" || !client.MatchesRedirectURI(req.RedirectURI) {
		return forbidden(ReasonForbidden)
	}
	if info.Referer != "" && !client.MatchesReferer(info.Referer) {
		return forbidden(ReasonWrongReferer)
	}

	scopes := entities.FilterScopes(req.Scopes(), client.Scopes)

	if info.Payload == nil || !info.ValidPayload || info.Payload.Tenant != tenant.Name {
		renderPage(w, http.StatusUnauthorized, "login.html", loginPageData{
			TenantName: tenant.Name,
			Location:   r.URL.RequestURI(),
			Mode:       info.Mode,
		})
		return nil
	}

	code, err := session.GenerateCode()
	if err != nil {
		return err
	}
	authSession := &session.AuthSession{
		Type:                session.TypeCode,
		CodeValue:           code,
		State:               req.State,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: session.CodeChallengeMethod(req.CodeChallengeMethod),
		Scopes:              scopes,
		Payload:             info.Payload,
		RedirectURI:         req.RedirectURI,
		ExpiresAt:           time.Now().Add(authCodeTTL),
	}
	if err := s.sessions.Set(r.Context(), authSession); err != nil {
		return storageUnavailable(err)
	}

	target, err := url.Parse(req.RedirectURI)
	if err != nil {
		return preconditionFailed(ReasonMissingLocation)
	}
	query := target.Query()
	query.Set("code", code)
	query.Set("state", req.State)
	target.RawQuery = query.Encode()

	http.Redirect(w, r, target.String(), http.StatusSeeOther)
	return nil
}
