// SPDX-FileCopyrightText: Copyright 2025 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/uitsmijter/uitsmijter/pkg/entities"
	"github.com/uitsmijter/uitsmijter/pkg/oauth"
	"github.com/uitsmijter/uitsmijter/pkg/provider"
	"github.com/uitsmijter/uitsmijter/pkg/session"
	"github.com/uitsmijter/uitsmijter/pkg/token"
)

// handleToken is the token endpoint. It dispatches on grant_type.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) error {
	if err := r.ParseForm(); err != nil {
		return badRequest(ReasonFormNotParseable)
	}
	req := oauth.ParseTokenRequest(r)

	client, err := s.findClient(req.ClientID)
	if err != nil {
		return err
	}
	tenant := s.store.FindTenantByName(client.TenantName)
	if tenant == nil {
		return badRequest(ReasonNoTenant)
	}
	if client.Secret != "" && client.Secret != req.ClientSecret {
		return forbidden(ReasonWrongCredentials)
	}

	switch entities.GrantType(req.GrantType) {
	case entities.GrantTypeAuthorizationCode:
		return s.tokenFromCode(w, r, req, client, tenant)
	case entities.GrantTypeRefreshToken:
		return s.tokenFromRefresh(w, r, req, client, tenant)
	case entities.GrantTypePassword:
		return s.tokenFromPassword(w, r, req, client, tenant)
	default:
		return notImplemented(ReasonGrantTypeNotImplemented)
	}
}

// tokenFromCode redeems an authorization code. The session lookup consumes
// the record, so a second redemption of the same code fails.
func (s *Server) tokenFromCode(
	w http.ResponseWriter, r *http.Request,
	req oauth.TokenRequest, client *entities.Client, tenant *entities.Tenant,
) error {
	if !client.AllowsGrantType(entities.GrantTypeAuthorizationCode) {
		return forbidden(ReasonUnsupportedGrantType)
	}

	authSession, err := s.sessions.Get(r.Context(), session.TypeCode, req.Code, true)
	if err != nil {
		return storageUnavailable(err)
	}
	if authSession == nil || authSession.Payload == nil {
		return forbidden(ReasonInvalidCode)
	}
	if authSession.Payload.Tenant != tenant.Name {
		return forbidden(ReasonTenantMismatch)
	}
	if !oauth.VerifyPKCE(authSession, req.CodeVerifier, req.CodeChallengeMethod) {
		return forbidden(ReasonChallengeMethodMismatch)
	}

	scopes, ok := oauth.ReconcileScopes(authSession.Scopes, req.Scopes())
	if !ok {
		return forbidden(ReasonInvalidScopes)
	}

	return s.issueTokenPair(w, r, authSession.Payload, client, tenant, scopes, string(entities.GrantTypeAuthorizationCode))
}

// tokenFromRefresh rotates a refresh token. The old code is consumed
// atomically; the user is re-validated through the tenant's provider.
func (s *Server) tokenFromRefresh(
	w http.ResponseWriter, r *http.Request,
	req oauth.TokenRequest, client *entities.Client, tenant *entities.Tenant,
) error {
	if !client.AllowsGrantType(entities.GrantTypeRefreshToken) {
		return forbidden(ReasonUnsupportedGrantType)
	}

	authSession, err := s.sessions.Get(r.Context(), session.TypeRefresh, req.RefreshToken, true)
	if err != nil {
		return storageUnavailable(err)
	}
	if authSession == nil || authSession.Payload == nil {
		return forbidden(ReasonInvalidCode)
	}
	if authSession.Payload.Tenant != tenant.Name {
		return forbidden(ReasonTenantMismatch)
	}

	validation, err := s.runtime.Validate(r.Context(), tenant.Name, tenant.ProviderSource(), authSession.Payload.User)
	if err != nil || !validation.IsValid {
		return forbidden(ReasonInvalidate)
	}

	scopes, ok := oauth.ReconcileScopes(authSession.Scopes, req.Scopes())
	if !ok {
		return forbidden(ReasonInvalidScopes)
	}

	return s.issueTokenPair(w, r, authSession.Payload, client, tenant, scopes, string(entities.GrantTypeRefreshToken))
}

// tokenFromPassword implements the resource-owner-password grant. Only an
// access token is issued, no refresh token.
func (s *Server) tokenFromPassword(
	w http.ResponseWriter, r *http.Request,
	req oauth.TokenRequest, client *entities.Client, tenant *entities.Tenant,
) error {
	if !client.AllowsGrantType(entities.GrantTypePassword) {
		return forbidden(ReasonUnsupportedGrantType)
	}

	result, err := s.runtime.Login(r.Context(), tenant.Name, tenant.ProviderSource(), provider.Credentials{
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil || !result.CanLogin {
		s.metrics.LoginDenied(tenant.Name, client.Ident.String())
		return forbidden(ReasonWrongCredentials)
	}
	s.metrics.LoginSucceeded(tenant.Name)

	scopes := client.AllowedScopes(req.Scopes(), result.Scopes)
	now := time.Now()
	payload := &token.Payload{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  result.Subject(req.Username),
			Audience: jwt.ClaimStrings{client.Ident.String()},
			IssuedAt: jwt.NewNumericDate(now),
		},
		AuthTime:       jwt.NewNumericDate(now),
		Tenant:         tenant.Name,
		Responsibility: token.ResponsibilityHash(r.Host),
		Role:           result.Role,
		User:           req.Username,
		Profile:        result.Profile,
	}

	access, err := s.signAccessToken(r, payload, client, tenant, scopes)
	if err != nil {
		return err
	}
	s.metrics.TokenIssued(string(entities.GrantTypePassword))

	return writeJSON(w, http.StatusOK, oauth.TokenResponse{
		AccessToken: access,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.cfg.TokenExpiration.Seconds()),
		Scope:       strings.Join(scopes, " "),
	})
}

// issueTokenPair signs an access token and persists a fresh refresh session
// carrying the same payload.
func (s *Server) issueTokenPair(
	w http.ResponseWriter, r *http.Request,
	payload *token.Payload, client *entities.Client, tenant *entities.Tenant,
	scopes []string, grantType string,
) error {
	access, err := s.signAccessToken(r, payload, client, tenant, scopes)
	if err != nil {
		return err
	}

	refreshCode, err := session.GenerateCode()
	if err != nil {
		return err
	}
	refreshSession := &session.AuthSession{
		Type:      session.TypeRefresh,
		CodeValue: refreshCode,
		Scopes:    scopes,
		Payload:   payload,
		ExpiresAt: time.Now().Add(s.cfg.RefreshExpiration),
	}
	if err := s.sessions.Set(r.Context(), refreshSession); err != nil {
		return storageUnavailable(err)
	}
	s.metrics.TokenIssued(grantType)

	return writeJSON(w, http.StatusOK, oauth.TokenResponse{
		AccessToken:  access,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.cfg.TokenExpiration.Seconds()),
		RefreshToken: refreshCode,
		Scope:        strings.Join(scopes, " "),
	})
}

// signAccessToken builds and signs the access-token JWT with the tenant's
// algorithm.
func (s *Server) signAccessToken(
	r *http.Request,
	base *token.Payload, client *entities.Client, tenant *entities.Tenant,
	scopes []string,
) (string, error) {
	now := time.Now()
	payload := *base
	payload.Audience = jwt.ClaimStrings{client.Ident.String()}
	payload.ExpiresAt = jwt.NewNumericDate(now.Add(s.cfg.TokenExpiration))
	payload.IssuedAt = jwt.NewNumericDate(now)
	if payload.AuthTime == nil {
		payload.AuthTime = jwt.NewNumericDate(now)
	}
	payload.Scopes = scopes
	if payload.Issuer == "" {
		payload.Issuer = s.issuer(r)
	}

	signed, _, err := s.signer.SignWith(r.Context(), &payload, s.tenantAlgorithm(tenant))
	return signed, err
}

func (s *Server) tenantAlgorithm(tenant *entities.Tenant) string {
	if tenant.JWTAlgorithm != "" {
		return tenant.JWTAlgorithm
	}
	return s.cfg.JWTAlgorithm
}

func (s *Server) issuer(r *http.Request) string {
	if s.cfg.PublicDomain != "" {
		return s.cfg.PublicDomain
	}
	return r.Host
}
