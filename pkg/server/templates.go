// SPDX-FileCopyrightText: Copyright 2025 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/uitsmijter/uitsmijter/pkg/logger"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// loginPageData feeds the login template. Location carries the URL the user
// is sent back to after a successful login.
type loginPageData struct {
	TenantName string
	Location   string
	Mode       string
	Failed     bool
}

type logoutPageData struct {
	TenantName string
}

func renderPage(w http.ResponseWriter, status int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := pageTemplates.ExecuteTemplate(w, name, data); err != nil {
		logger.Errorw("failed to render page", "template", name, "error", err)
	}
}
