// SPDX-FileCopyrightText: Copyright 2025 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

package entities

import (
	"fmt"
	"strings"
)

// InterceptorSettings controls the forward-auth mode of a tenant.
type InterceptorSettings struct {
	// Enabled allows /interceptor requests for this tenant's hosts.
	Enabled bool `json:"enabled"`

	// Domain overrides the cookie domain used for interceptor sessions.
	Domain string `json:"domain,omitempty"`
}

// TemplatesSettings carries optional metadata for custom login page
// templates. Template rendering itself lives outside this package.
type TemplatesSettings struct {
	AccessKeyID     string `json:"access_key_id,omitempty"`
	SecretAccessKey string `json:"secret_access_key,omitempty"`
	Bucket          string `json:"bucket,omitempty"`
	Host            string `json:"host,omitempty"`
	Path            string `json:"path,omitempty"`
}

// TenantSpec is the user-supplied part of a tenant definition, identical in
// shape for YAML files and cluster resources.
type TenantSpec struct {
	// Hosts are exact host names or leftmost-wildcard patterns like
	// "*.egg.example.com".
	Hosts []string `json:"hosts"`

	// Providers are script sources; concatenated they form the tenant's
	// provider program.
	Providers []string `json:"providers"`

	Interceptor *InterceptorSettings `json:"interceptor,omitempty"`

	// JWTAlgorithm optionally overrides the server-wide signing algorithm
	// for tokens issued to this tenant.
	JWTAlgorithm string `json:"jwt_algorithm,omitempty"`

	Templates *TemplatesSettings `json:"templates,omitempty"`
}

// Tenant is a logical security domain with its own hosts and provider
// scripts. Tenants are immutable once inserted into the store; updates
// replace the whole value.
type Tenant struct {
	Name string
	Ref  Ref

	Hosts        []string
	Providers    []string
	Interceptor  InterceptorSettings
	JWTAlgorithm string
	Templates    *TemplatesSettings
}

// NewTenant validates a spec and builds a Tenant.
func NewTenant(name string, spec TenantSpec, ref Ref) (*Tenant, error) {
	if name == "" {
		return nil, fmt.Errorf("tenant name must not be empty")
	}
	if len(spec.Hosts) == 0 {
		return nil, fmt.Errorf("tenant %s: at least one host is required", name)
	}

	t := &Tenant{
		Name:         name,
		Ref:          ref,
		Hosts:        spec.Hosts,
		Providers:    spec.Providers,
		JWTAlgorithm: spec.JWTAlgorithm,
		Templates:    spec.Templates,
	}
	if spec.Interceptor != nil {
		t.Interceptor = *spec.Interceptor
	}
	return t, nil
}

// ProviderSource returns the tenant's provider scripts concatenated into a
// single program.
func (t *Tenant) ProviderSource() string {
	return strings.Join(t.Providers, "\n")
}

// MatchesHost reports whether the given host belongs to this tenant.
// A pattern starting with "*." matches any host whose suffix equals the
// remainder; the bare remainder itself does not match.
func (t *Tenant) MatchesHost(host string) bool {
	for _, pattern := range t.Hosts {
		if hostMatches(pattern, host) {
			return true
		}
	}
	return false
}

func hostMatches(pattern, host string) bool {
	if pattern == host {
		return true
	}
	if rest, ok := strings.CutPrefix(pattern, "*."); ok {
		return strings.HasSuffix(host, "."+rest)
	}
	return false
}
