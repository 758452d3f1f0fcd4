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

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/bthost/pkg/logger"
	"github.com/carverauto/bthost/pkg/models"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "bthost.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadAndValidate(t *testing.T) {
	path := writeConfigFile(t, `{
		"database": {"host": "localhost", "database": "bthost", "username": "bthost"},
		"policy": {"le_audio_enabled_by_default": true},
		"profiles": {"max_connected_audio_devices": 2}
	}`)

	var cfg models.BthostConfig

	c := NewConfig(logger.NewTestLogger())
	require.NoError(t, c.LoadAndValidate(context.Background(), path, &cfg))

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.True(t, cfg.Policy.LEAudioEnabledByDefault)
	assert.Equal(t, 2, cfg.Profiles.MaxConnectedAudioDevices)
	assert.Equal(t, 10, cfg.Profiles.MaxHearingAidStateMachines)
}

func TestLoadAndValidateMissingHost(t *testing.T) {
	path := writeConfigFile(t, `{"database": {"database": "bthost"}}`)

	var cfg models.BthostConfig

	c := NewConfig(logger.NewTestLogger())
	err := c.LoadAndValidate(context.Background(), path, &cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "host")
}

func TestLoadMissingFile(t *testing.T) {
	var cfg models.BthostConfig

	c := NewConfig(nil)
	err := c.LoadAndValidate(context.Background(), "/nonexistent/bthost.json", &cfg)
	require.Error(t, err)
}

func TestLoadBadJSON(t *testing.T) {
	path := writeConfigFile(t, `{not json`)

	var cfg models.BthostConfig

	c := NewConfig(logger.NewTestLogger())
	err := c.LoadAndValidate(context.Background(), path, &cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal")
}
