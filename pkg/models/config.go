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

package models

import (
	"errors"
	"fmt"

	"github.com/carverauto/bthost/pkg/logger"
)

// Database holds the connection settings for the metadata record store.
type Database struct {
	Host               string            `json:"host"`
	Port               int               `json:"port"`
	Database           string            `json:"database"`
	Username           string            `json:"username"`
	Password           string            `json:"password"`
	SSLMode            string            `json:"ssl_mode,omitempty"`
	ApplicationName    string            `json:"application_name,omitempty"`
	ExtraRuntimeParams map[string]string `json:"extra_runtime_params,omitempty"`
}

// PolicyConfig tunes the phone/connection policy engine.
type PolicyConfig struct {
	// LEAudioEnabledByDefault allows LE Audio on eligible devices without an
	// explicit allow-list entry.
	LEAudioEnabledByDefault bool `json:"le_audio_enabled_by_default"`
	// BypassLEAudioAllowList skips the allow-list gate entirely.
	BypassLEAudioAllowList bool `json:"bypass_le_audio_allow_list"`
	// DualModeAudioEnabled permits classic audio and LE Audio to coexist on
	// the same device instead of forbidding the losing family.
	DualModeAudioEnabled bool `json:"dual_mode_audio_enabled"`
	// AutoConnectMultipleHFP enables the multi-HFP fallback when no A2DP
	// device is known at power-on.
	AutoConnectMultipleHFP bool `json:"auto_connect_multiple_hfp"`
	// ConnectOtherProfilesDelayMS overrides the delayed-sweep interval.
	// Zero means the default of 6000 ms.
	ConnectOtherProfilesDelayMS int `json:"connect_other_profiles_delay_ms,omitempty"`
}

// ProfilesConfig tunes the per-profile services.
type ProfilesConfig struct {
	// MaxConnectedAudioDevices bounds concurrent A2DP sink state machines.
	MaxConnectedAudioDevices int `json:"max_connected_audio_devices"`
	// MaxHearingAidStateMachines bounds concurrent ASHA state machines.
	MaxHearingAidStateMachines int `json:"max_hearing_aid_state_machines"`
}

// BthostConfig is the top-level daemon configuration.
type BthostConfig struct {
	Database Database       `json:"database"`
	Logging  *logger.Config `json:"logging,omitempty"`
	Policy   PolicyConfig   `json:"policy"`
	Profiles ProfilesConfig `json:"profiles"`
}

var (
	errDatabaseHostRequired = errors.New("database host is required")
	errDatabaseNameRequired = errors.New("database name is required")
)

// Validate checks required fields and fills in defaults for zero values.
func (c *BthostConfig) Validate() error {
	if c.Database.Host == "" {
		return errDatabaseHostRequired
	}

	if c.Database.Database == "" {
		return errDatabaseNameRequired
	}

	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}

	if c.Policy.ConnectOtherProfilesDelayMS < 0 {
		return fmt.Errorf("connect_other_profiles_delay_ms must be >= 0, got %d",
			c.Policy.ConnectOtherProfilesDelayMS)
	}

	if c.Profiles.MaxConnectedAudioDevices == 0 {
		c.Profiles.MaxConnectedAudioDevices = 1
	}

	if c.Profiles.MaxHearingAidStateMachines == 0 {
		c.Profiles.MaxHearingAidStateMachines = 10
	}

	return nil
}
