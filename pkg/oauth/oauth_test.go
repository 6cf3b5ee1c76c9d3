// SPDX-FileCopyrightText: Copyright 2025 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

package oauth

import (
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uitsmijter/uitsmijter/pkg/session"
)

func TestS256ChallengeVectors(t *testing.T) {
	cases := []struct {
		verifier  string
		challenge string
	}{
		{
			verifier:  "AAbb",
			challenge: "wd0obL9-LvFPXDvrEMbPUlN6pgT-AqndJ1DpABlGmkQ",
		},
		{
			verifier: "139EEDgEmydiFGhxFHlBMsBacEodEvavuPBhDjcqmJEND0pVfJOYNG4yxCDzRNZS" +
				"NmToG7GB6fYetwmdcp3sw7rJOlOBSzSxfe7pAebxZmm5myUNXykMoU1w9ihhsZQt",
			challenge: "9zkoYZ7h3xF9hnvrV_J9wgQl13HIajqzAV2EcJVseU8",
		},
	}
	for _, tc := range cases {
		s := &session.AuthSession{
			CodeChallenge:       tc.challenge,
			CodeChallengeMethod: session.ChallengeMethodS256,
		}
		assert.True(t, VerifyPKCE(s, tc.verifier, ""))
		assert.True(t, VerifyPKCE(s, tc.verifier, "S256"))
		assert.False(t, VerifyPKCE(s, tc.verifier+"x", ""))
		// Cross-method mismatch fails even with the right verifier.
		assert.False(t, VerifyPKCE(s, tc.verifier, "plain"))
	}
}

func TestVerifyPKCEPlain(t *testing.T) {
	s := &session.AuthSession{
		CodeChallenge:       "AAbb",
		CodeChallengeMethod: session.ChallengeMethodPlain,
	}
	assert.True(t, VerifyPKCE(s, "AAbb", ""))
	assert.True(t, VerifyPKCE(s, "AAbb", "plain"))
	assert.False(t, VerifyPKCE(s, "other", ""))
	assert.False(t, VerifyPKCE(s, "AAbb", "S256"))
}

func TestVerifyPKCEWithoutChallenge(t *testing.T) {
	s := &session.AuthSession{}
	assert.True(t, VerifyPKCE(s, "", ""))
	assert.True(t, VerifyPKCE(s, "anything", "S256"))
}

func TestKnownChallengeMethod(t *testing.T) {
	assert.True(t, KnownChallengeMethod(""))
	assert.True(t, KnownChallengeMethod("plain"))
	assert.True(t, KnownChallengeMethod("S256"))
	assert.False(t, KnownChallengeMethod("nonexistent"))
	assert.False(t, KnownChallengeMethod("s256"))
}

func TestReconcileScopes(t *testing.T) {
	scopes, ok := ReconcileScopes([]string{"access", "openid"}, []string{"openid", "access"})
	assert.True(t, ok)
	assert.Equal(t, []string{"access", "openid"}, scopes)

	_, ok = ReconcileScopes([]string{"access"}, []string{"access", "admin"})
	assert.False(t, ok)

	// Empty session scopes inherit the request's.
	scopes, ok = ReconcileScopes(nil, []string{"test"})
	assert.True(t, ok)
	assert.Equal(t, []string{"test"}, scopes)

	scopes, ok = ReconcileScopes([]string{"access"}, nil)
	assert.True(t, ok)
	assert.Equal(t, []string{"access"}, scopes)
}

func TestParseAuthorizeRequest(t *testing.T) {
	q, err := url.ParseQuery("response_type=code&client_id=C&redirect_uri=http%3A%2F%2Flocalhost%3A9090&state=rii4EPh5&scope=test+openid")
	require.NoError(t, err)

	req := ParseAuthorizeRequest(q)
	assert.Equal(t, "code", req.ResponseType)
	assert.Equal(t, "C", req.ClientID)
	assert.Equal(t, "http://localhost:9090", req.RedirectURI)
	assert.Equal(t, "rii4EPh5", req.State)
	assert.Equal(t, []string{"test", "openid"}, req.Scopes())
}

func TestParseTokenRequest(t *testing.T) {
	form := url.Values{
		"grant_type": {"authorization_code"},
		"client_id":  {"C"},
		"code":       {"abcdefgh12345678"},
		"scope":      {"access openid"},
	}
	r := httptest.NewRequest("POST", "/token", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	req := ParseTokenRequest(r)
	assert.Equal(t, "authorization_code", req.GrantType)
	assert.Equal(t, "abcdefgh12345678", req.Code)
	assert.Equal(t, []string{"access", "openid"}, req.Scopes())
}
