/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	log, err := New(nil, "test")
	require.NoError(t, err)
	require.NotNil(t, log)
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(&Config{Level: "shouting"}, "test")
	require.Error(t, err)
}

func TestNewDebugOverridesLevel(t *testing.T) {
	log, err := New(&Config{Level: "error", Debug: true}, "test")
	require.NoError(t, err)

	adapter, ok := log.(*zerologAdapter)
	require.True(t, ok)
	assert.Equal(t, "debug", adapter.logger.GetLevel().String())
}

func TestDefaultConfig(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("LOG_DEBUG", "")
	t.Setenv("LOG_OUTPUT", "")

	cfg := DefaultConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.False(t, cfg.Debug)
	assert.Equal(t, "stdout", cfg.Output)
}

func TestDefaultConfigEnvOverride(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("LOG_DEBUG", "true")

	cfg := DefaultConfig()
	assert.Equal(t, "warn", cfg.Level)
	assert.True(t, cfg.Debug)
}

func TestTestLoggerDiscards(t *testing.T) {
	log := NewTestLogger()
	log.Info().Str("k", "v").Msg("dropped")
	log.Error().Msg("also dropped")
}
