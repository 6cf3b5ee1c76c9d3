// SPDX-FileCopyrightText: Copyright 2025 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

package oauth

import (
	"net/http"
	"net/url"

	"github.com/uitsmijter/uitsmijter/pkg/entities"
)

// AuthorizeRequest is the decoded query of GET /authorize.
type AuthorizeRequest struct {
	ResponseType        string
	ClientID            string
	RedirectURI         string
	State               string
	Scope               string
	CodeChallenge       string
	CodeChallengeMethod string
}

// ParseAuthorizeRequest decodes the authorize query parameters.
func ParseAuthorizeRequest(q url.Values) AuthorizeRequest {
	return AuthorizeRequest{
		ResponseType:        q.Get("response_type"),
		ClientID:            q.Get("client_id"),
		RedirectURI:         q.Get("redirect_uri"),
		State:               q.Get("state"),
		Scope:               q.Get("scope"),
		CodeChallenge:       q.Get("code_challenge"),
		CodeChallengeMethod: q.Get("code_challenge_method"),
	}
}

// Scopes splits the requested scope string on spaces or plus signs.
func (r AuthorizeRequest) Scopes() []string {
	return entities.SplitScopes(r.Scope)
}

// TokenRequest is the decoded form body of POST /token. The populated
// fields depend on the grant type.
type TokenRequest struct {
	GrantType           string
	ClientID            string
	ClientSecret        string
	Code                string
	CodeVerifier        string
	CodeChallengeMethod string
	RefreshToken        string
	Username            string
	Password            string
	Scope               string
}

// ParseTokenRequest decodes the token form. The request body must already
// be parsed with ParseForm.
func ParseTokenRequest(r *http.Request) TokenRequest {
	return TokenRequest{
		GrantType:           r.PostFormValue("grant_type"),
		ClientID:            r.PostFormValue("client_id"),
		ClientSecret:        r.PostFormValue("client_secret"),
		Code:                r.PostFormValue("code"),
		CodeVerifier:        r.PostFormValue("code_verifier"),
		CodeChallengeMethod: r.PostFormValue("code_challenge_method"),
		RefreshToken:        r.PostFormValue("refresh_token"),
		Username:            r.PostFormValue("username"),
		Password:            r.PostFormValue("password"),
		Scope:               r.PostFormValue("scope"),
	}
}

// Scopes splits the requested scope string on spaces or plus signs.
func (r TokenRequest) Scopes() []string {
	return entities.SplitScopes(r.Scope)
}

// TokenResponse is the JSON body of a successful POST /token.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}
