// SPDX-FileCopyrightText: Copyright 2025 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the runtime configuration of the authorization server
// from environment variables (optionally overridden by CLI flags through viper).
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Environment variable names understood by the server.
const (
	EnvJWTAlgorithm          = "JWT_ALGORITHM"
	EnvJWTSecret             = "JWT_SECRET"
	EnvTokenExpirationHours  = "TOKEN_EXPIRATION_IN_HOURS"
	EnvCookieExpirationDays  = "COOKIE_EXPIRATION_DAYS"
	EnvRefreshExpirationHrs  = "REFRESH_EXPIRATION_HOURS"
	EnvPublicDomain          = "PUBLIC_DOMAIN"
	EnvRedisHost             = "REDIS_HOST"
	EnvRedisPassword         = "REDIS_PASSWORD"
	EnvScopedCRD             = "SCOPED_KUBERNETES_CRD"
	EnvNamespace             = "UITSMIJTER_NAMESPACE"
	EnvDisableFileMonitoring = "DISABLE_FILE_MONITORING"
	EnvKeyRotationDays       = "KEY_ROTATION_DAYS"
	EnvProviderTimeoutMS     = "PROVIDER_TIMEOUT_MS"
	EnvProviderFetchTimeout  = "PROVIDER_FETCH_TIMEOUT_MS"
	EnvProviderFetchMaxBytes = "PROVIDER_FETCH_MAX_BYTES"
)

// JWT signing algorithms supported for access tokens and session cookies.
const (
	AlgorithmHS256 = "HS256"
	AlgorithmRS256 = "RS256"
)

// Config is the process-wide runtime configuration.
type Config struct {
	// JWTAlgorithm selects the default token signing algorithm (HS256 or RS256).
	JWTAlgorithm string

	// JWTSecret is the symmetric secret. Required when JWTAlgorithm is HS256.
	JWTSecret string

	// TokenExpiration is the lifetime of issued access tokens.
	TokenExpiration time.Duration

	// CookieExpiration is the lifetime of the SSO session cookie.
	CookieExpiration time.Duration

	// RefreshExpiration is the lifetime of refresh tokens.
	RefreshExpiration time.Duration

	// PublicDomain is the externally reachable domain of the server itself.
	PublicDomain string

	// RedisHost enables the shared key/value backends when non-empty.
	RedisHost     string
	RedisPassword string

	// ScopedCRD restricts the cluster watch to Namespace when true.
	ScopedCRD bool
	Namespace string

	// DisableFileMonitoring turns off live reloading of entity YAML files.
	DisableFileMonitoring bool

	// KeyRotationMaxAge is the maximum age of the active signing key before
	// a new one is generated.
	KeyRotationMaxAge time.Duration

	// ProviderTimeout bounds a single script evaluation.
	ProviderTimeout time.Duration

	// ProviderFetchTimeout bounds one fetch() call issued by a script.
	ProviderFetchTimeout time.Duration

	// ProviderFetchMaxBytes caps the response body size of a fetch() call.
	ProviderFetchMaxBytes int64
}

func setDefaults() {
	viper.SetDefault(EnvJWTAlgorithm, AlgorithmRS256)
	viper.SetDefault(EnvTokenExpirationHours, 2)
	viper.SetDefault(EnvCookieExpirationDays, 7)
	viper.SetDefault(EnvRefreshExpirationHrs, 720)
	viper.SetDefault(EnvKeyRotationDays, 90)
	viper.SetDefault(EnvProviderTimeoutMS, 500)
	viper.SetDefault(EnvProviderFetchTimeout, 500)
	viper.SetDefault(EnvProviderFetchMaxBytes, 1<<20)
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	setDefaults()
	viper.AutomaticEnv()

	cfg := &Config{
		JWTAlgorithm:          viper.GetString(EnvJWTAlgorithm),
		JWTSecret:             viper.GetString(EnvJWTSecret),
		TokenExpiration:       time.Duration(viper.GetInt(EnvTokenExpirationHours)) * time.Hour,
		CookieExpiration:      time.Duration(viper.GetInt(EnvCookieExpirationDays)) * 24 * time.Hour,
		RefreshExpiration:     time.Duration(viper.GetInt(EnvRefreshExpirationHrs)) * time.Hour,
		PublicDomain:          viper.GetString(EnvPublicDomain),
		RedisHost:             viper.GetString(EnvRedisHost),
		RedisPassword:         viper.GetString(EnvRedisPassword),
		ScopedCRD:             viper.GetBool(EnvScopedCRD),
		Namespace:             viper.GetString(EnvNamespace),
		DisableFileMonitoring: viper.GetBool(EnvDisableFileMonitoring),
		KeyRotationMaxAge:     time.Duration(viper.GetInt(EnvKeyRotationDays)) * 24 * time.Hour,
		ProviderTimeout:       time.Duration(viper.GetInt(EnvProviderTimeoutMS)) * time.Millisecond,
		ProviderFetchTimeout:  time.Duration(viper.GetInt(EnvProviderFetchTimeout)) * time.Millisecond,
		ProviderFetchMaxBytes: viper.GetInt64(EnvProviderFetchMaxBytes),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants between settings.
func (c *Config) Validate() error {
	switch c.JWTAlgorithm {
	case AlgorithmHS256:
		if c.JWTSecret == "" {
			return fmt.Errorf("%s is required when %s is %s", EnvJWTSecret, EnvJWTAlgorithm, AlgorithmHS256)
		}
	case AlgorithmRS256:
		// Keys are generated and rotated by the key store.
	default:
		return fmt.Errorf("unsupported %s: %q", EnvJWTAlgorithm, c.JWTAlgorithm)
	}

	if c.TokenExpiration <= 0 {
		return fmt.Errorf("%s must be positive", EnvTokenExpirationHours)
	}
	if c.RefreshExpiration <= 0 {
		return fmt.Errorf("%s must be positive", EnvRefreshExpirationHrs)
	}
	return nil
}
