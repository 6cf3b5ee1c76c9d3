// SPDX-FileCopyrightText: Copyright 2025 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

// Package oauth carries the wire types of the token endpoint and the PKCE
// and scope rules shared between the authorize and token controllers.
package oauth

import (
	"golang.org/x/oauth2"

	"github.com/uitsmijter/uitsmijter/pkg/session"
)

// KnownChallengeMethod reports whether a code_challenge_method value is
// supported. An empty method is valid and means "plain" on verification.
func KnownChallengeMethod(method string) bool {
	switch session.CodeChallengeMethod(method) {
	case "", session.ChallengeMethodPlain, session.ChallengeMethodS256:
		return true
	}
	return false
}

// VerifyPKCE checks a token-request code_verifier against the challenge
// recorded at authorize time. A session without a challenge passes without
// checks. When the request names a method it must equal the session's; the
// verifier is then compared per method: plain by equality, S256 by
// base64url-without-padding of the verifier's SHA-256.
func VerifyPKCE(s *session.AuthSession, verifier, requestMethod string) bool {
	if s.CodeChallenge == "" {
		return true
	}
	if requestMethod != "" && session.CodeChallengeMethod(requestMethod) != s.CodeChallengeMethod {
		return false
	}

	switch s.CodeChallengeMethod {
	case session.ChallengeMethodS256:
		return oauth2.S256ChallengeFromVerifier(verifier) == s.CodeChallenge
	case session.ChallengeMethodPlain, "":
		return verifier == s.CodeChallenge
	}
	return false
}
