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

package storage

import "github.com/carverauto/bthost/pkg/models"

// Legacy flat-preference priority values predating connection policies.
const (
	legacyPriorityAutoConnect = 1000
	legacyPriorityOn          = 100
	legacyPriorityOff         = 0
)

var legacyProfileKeys = map[models.Profile]string{
	models.ProfileHeadset:       "bluetooth_headset_priority",
	models.ProfileA2DP:          "bluetooth_a2dp_priority",
	models.ProfileA2DPSink:      "bluetooth_a2dp_sink_priority",
	models.ProfileHIDHost:       "bluetooth_input_device_priority",
	models.ProfilePAN:           "bluetooth_pan_priority",
	models.ProfileHeadsetClient: "bluetooth_headset_client_priority",
	models.ProfilePBAPClient:    "bluetooth_pbap_client_priority",
	models.ProfileMAP:           "bluetooth_map_priority",
	models.ProfileMAPClient:     "bluetooth_map_client_priority",
	models.ProfileSAP:           "bluetooth_sap_priority",
	models.ProfileHearingAid:    "bluetooth_hearing_aid_priority",
}

// MigrateLegacySettings imports per-profile priorities from the legacy flat
// preference store into connection policies for the given bonded devices.
// Runs at most once: the sentinel record's migrated flag persists completion.
// Returns true when a migration was performed.
func (m *Manager) MigrateLegacySettings(legacy LegacySettings, bonded []models.Address) bool {
	if legacy == nil {
		return false
	}

	m.cacheMu.Lock()
	sentinel, ok := m.cache[models.LocalStorageAddress]
	migrated := ok && sentinel.Migrated
	m.cacheMu.Unlock()

	if migrated {
		return false
	}

	for _, addr := range bonded {
		for profile, key := range legacyProfileKeys {
			value, ok := legacy.GetInt(key + "_" + string(addr))
			if !ok {
				continue
			}

			policy, ok := legacyPriorityToPolicy(value)
			if !ok {
				continue
			}

			if m.GetProfileConnectionPolicy(addr, profile) == models.PolicyUnknown {
				m.SetProfileConnectionPolicy(addr, profile, policy)
			}
		}
	}

	m.cacheMu.Lock()
	sentinel = m.getOrCreateLocked(models.LocalStorageAddress)
	sentinel.Migrated = true
	m.updateLocked(sentinel)
	m.cacheMu.Unlock()

	m.logger.Info().Int("devices", len(bonded)).Msg("Legacy settings migration complete")

	return true
}

func legacyPriorityToPolicy(priority int) (models.ConnectionPolicy, bool) {
	switch priority {
	case legacyPriorityAutoConnect, legacyPriorityOn:
		return models.PolicyAllowed, true
	case legacyPriorityOff:
		return models.PolicyForbidden, true
	default:
		return models.PolicyUnknown, false
	}
}
