// SPDX-FileCopyrightText: Copyright 2025 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, AlgorithmRS256, cfg.JWTAlgorithm)
	assert.Equal(t, 2*time.Hour, cfg.TokenExpiration)
	assert.Equal(t, 7*24*time.Hour, cfg.CookieExpiration)
	assert.Equal(t, 90*24*time.Hour, cfg.KeyRotationMaxAge)
	assert.Equal(t, 500*time.Millisecond, cfg.ProviderTimeout)
	assert.Equal(t, int64(1<<20), cfg.ProviderFetchMaxBytes)
}

func TestHS256RequiresSecret(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv(EnvJWTAlgorithm, "HS256")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvJWTSecret)

	t.Setenv(EnvJWTSecret, "super-secret")
	viper.Reset()
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "super-secret", cfg.JWTSecret)
}

func TestUnknownAlgorithmRejected(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv(EnvJWTAlgorithm, "none")

	_, err := Load()
	require.Error(t, err)
}
