// SPDX-FileCopyrightText: Copyright 2025 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

package entities

import (
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

// GrantType enumerates the OAuth grant types a client may use.
type GrantType string

// Grant types known to the token endpoint.
const (
	GrantTypeAuthorizationCode GrantType = "authorization_code"
	GrantTypeRefreshToken      GrantType = "refresh_token"
	GrantTypePassword          GrantType = "password"
)

// defaultGrantTypes apply when a client spec lists none.
var defaultGrantTypes = []GrantType{GrantTypeAuthorizationCode, GrantTypeRefreshToken}

// ClientSpec is the user-supplied part of a client definition.
type ClientSpec struct {
	// Ident is the globally unique client id (a UUID).
	Ident string `json:"ident"`

	// TenantName is the owning tenant, resolved through the entity store.
	TenantName string `json:"tenantname"`

	// RedirectURLs are regular expressions matched against redirect URIs.
	RedirectURLs []string `json:"redirect_urls"`

	GrantTypes []GrantType `json:"grant_types,omitempty"`

	// Scopes are literal names or patterns containing '*' wildcards.
	Scopes []string `json:"scopes,omitempty"`

	// AllowedProviderScopes filter scopes pushed by the login provider.
	// When unset, all provider scopes are admitted.
	AllowedProviderScopes []string `json:"allowedProviderScopes,omitempty"`

	// Referrers are regular expressions matched against the Referer header.
	Referrers []string `json:"referrers,omitempty"`

	Secret string `json:"secret,omitempty"`
}

// Client is a registered relying party.
type Client struct {
	Ident      uuid.UUID
	Name       string
	TenantName string
	Ref        Ref

	RedirectURLs          []string
	GrantTypes            []GrantType
	Scopes                []string
	AllowedProviderScopes []string
	Referrers             []string
	Secret                string

	redirectPatterns []*regexp.Regexp
	refererPatterns  []*regexp.Regexp
}

// NewClient validates a spec and builds a Client. All regex patterns are
// compiled eagerly so that bad definitions are rejected at load time, not on
// the request path.
func NewClient(name string, spec ClientSpec, ref Ref) (*Client, error) {
	ident, err := uuid.Parse(spec.Ident)
	if err != nil {
		return nil, fmt.Errorf("client %s: ident is not a UUID: %w", name, err)
	}
	if spec.TenantName == "" {
		return nil, fmt.Errorf("client %s: tenantname is required", name)
	}
	if len(spec.RedirectURLs) == 0 {
		return nil, fmt.Errorf("client %s: at least one redirect url is required", name)
	}

	c := &Client{
		Ident:                 ident,
		Name:                  name,
		TenantName:            spec.TenantName,
		Ref:                   ref,
		RedirectURLs:          spec.RedirectURLs,
		GrantTypes:            spec.GrantTypes,
		Scopes:                spec.Scopes,
		AllowedProviderScopes: spec.AllowedProviderScopes,
		Referrers:             spec.Referrers,
		Secret:                spec.Secret,
	}
	if len(c.GrantTypes) == 0 {
		c.GrantTypes = defaultGrantTypes
	}

	for _, raw := range spec.RedirectURLs {
		re, err := regexp.Compile(raw)
		if err != nil {
			return nil, fmt.Errorf("client %s: invalid redirect url pattern %q: %w", name, raw, err)
		}
		c.redirectPatterns = append(c.redirectPatterns, re)
	}
	for _, raw := range spec.Referrers {
		re, err := regexp.Compile(raw)
		if err != nil {
			return nil, fmt.Errorf("client %s: invalid referrer pattern %q: %w", name, raw, err)
		}
		c.refererPatterns = append(c.refererPatterns, re)
	}
	return c, nil
}

// AllowsGrantType reports whether the client may use the given grant type.
func (c *Client) AllowsGrantType(gt GrantType) bool {
	for _, allowed := range c.GrantTypes {
		if allowed == gt {
			return true
		}
	}
	return false
}

// MatchesRedirectURI reports whether the URI matches at least one of the
// client's redirect url patterns.
func (c *Client) MatchesRedirectURI(uri string) bool {
	for _, re := range c.redirectPatterns {
		if re.MatchString(uri) {
			return true
		}
	}
	return false
}

// MatchesReferer reports whether the referer matches the client's referrer
// patterns. A client without referrer patterns accepts every referer.
func (c *Client) MatchesReferer(referer string) bool {
	if len(c.refererPatterns) == 0 {
		return true
	}
	for _, re := range c.refererPatterns {
		if re.MatchString(referer) {
			return true
		}
	}
	return false
}
