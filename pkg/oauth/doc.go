// SPDX-FileCopyrightText: Copyright 2025 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

// Package oauth carries the protocol-level pieces of the token flows:
// request and response shapes of the authorize and token endpoints, PKCE
// verification, and scope reconciliation between sessions and requests.
package oauth
