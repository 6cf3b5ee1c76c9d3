// SPDX-FileCopyrightText: Copyright 2025 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

// Package server is the HTTP surface of the authorization server: the OAuth
// endpoints, the forward-auth interceptor, login and logout pages, JWKS
// publication, and the operational endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/uitsmijter/uitsmijter/pkg/config"
	"github.com/uitsmijter/uitsmijter/pkg/entities"
	"github.com/uitsmijter/uitsmijter/pkg/keystore"
	"github.com/uitsmijter/uitsmijter/pkg/logger"
	"github.com/uitsmijter/uitsmijter/pkg/provider"
	"github.com/uitsmijter/uitsmijter/pkg/session"
)

// authCodeTTL bounds how long an authorization code may stay unredeemed.
const authCodeTTL = 10 * time.Minute

// VersionInfo is reported by GET /versions.
type VersionInfo struct {
	Version   string `json:"version"`
	BuildDate string `json:"builddate"`
}

// Server owns all request-scoped dependencies. Handlers receive it
// explicitly; there are no hidden singletons.
type Server struct {
	cfg      *config.Config
	store    *entities.Store
	sessions session.Store
	keys     *keystore.Manager
	signer   *keystore.Signer
	runtime  *provider.Runtime
	metrics  *Metrics
	version  VersionInfo
}

// New wires a server from its dependencies. Removing a client from the
// entity store also drops its denied-attempts tracking.
func New(
	cfg *config.Config,
	store *entities.Store,
	sessions session.Store,
	keys *keystore.Manager,
	signer *keystore.Signer,
	runtime *provider.Runtime,
	version VersionInfo,
) *Server {
	s := &Server{
		cfg:      cfg,
		store:    store,
		sessions: sessions,
		keys:     keys,
		signer:   signer,
		runtime:  runtime,
		metrics:  NewMetrics(),
		version:  version,
	}
	store.SetClientRemovedHook(func(ident uuid.UUID) {
		s.metrics.ForgetClient(ident.String())
	})
	return s
}

// Routes builds the router with all endpoints registered.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(s.clientInfoMiddleware)

	r.Get("/authorize", handle(s.handleAuthorize))
	r.Post("/token", handle(s.handleToken))
	r.Post("/token/info", handle(s.handleTokenInfo))
	r.Get("/interceptor", handle(s.handleInterceptor))
	r.Get("/login", handle(s.handleLoginPage))
	r.Post("/login", handle(s.handleLogin))
	r.Get("/logout", handle(s.handleLogout))
	r.Get("/logout/finalize", handle(s.handleLogoutFinalize))

	r.Get("/.well-known/jwks.json", handle(s.handleJWKS))
	r.Get("/health", s.handleHealth)
	r.Get("/health/ready", s.handleReady)
	r.Get("/metrics", s.handleMetrics())
	r.Get("/versions", s.handleVersions)
	return r
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infow("server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger.Debugw("request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"requestId", middleware.GetReqID(r.Context()))
	})
}
