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

import (
	"bytes"
	"sort"

	"github.com/carverauto/bthost/pkg/models"
)

// SetProfileConnectionPolicy persists the connection policy for the
// (device, profile) pair. A record is created lazily unless the write would
// only record PolicyUnknown. Returns false on invalid input; an unchanged
// value is a successful no-op with no persisted write.
func (m *Manager) SetProfileConnectionPolicy(addr models.Address, profile models.Profile, policy models.ConnectionPolicy) bool {
	if addr == "" {
		m.logger.Warn().Msg("SetProfileConnectionPolicy: empty address")
		return false
	}

	if !policy.Valid() {
		m.logger.Warn().
			Str("device", addr.Anonymized()).
			Int("policy", int(policy)).
			Msg("SetProfileConnectionPolicy: invalid policy value")

		return false
	}

	m.cacheMu.Lock()

	record, ok := m.cache[addr]
	if !ok {
		if policy == models.PolicyUnknown {
			m.cacheMu.Unlock()
			return true
		}

		record = m.getOrCreateLocked(addr)
	}

	if record.ProfileConnectionPolicy(profile) == policy {
		m.cacheMu.Unlock()
		return true
	}

	record.SetProfileConnectionPolicy(profile, policy)
	m.updateLocked(record)
	m.cacheMu.Unlock()

	m.logChange("policy %s=%s %s", profile, policy, addr.Anonymized())

	return true
}

// GetProfileConnectionPolicy returns the stored policy, PolicyUnknown when
// the device has no record or no entry for the profile.
func (m *Manager) GetProfileConnectionPolicy(addr models.Address, profile models.Profile) models.ConnectionPolicy {
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()

	record, ok := m.cache[addr]
	if !ok {
		return models.PolicyUnknown
	}

	return record.ProfileConnectionPolicy(profile)
}

// SetCustomMeta stores an opaque blob under a bounded key, creating the
// device record as a side effect. A byte-equal value is a no-op; nil clears
// the key.
func (m *Manager) SetCustomMeta(addr models.Address, key int, value []byte) bool {
	if addr == "" {
		m.logger.Warn().Msg("SetCustomMeta: empty address")
		return false
	}

	if key < 0 || key > models.MaxCustomMetaKey {
		m.logger.Warn().
			Str("device", addr.Anonymized()).
			Int("key", key).
			Msg("SetCustomMeta: key out of range")

		return false
	}

	m.cacheMu.Lock()

	record := m.getOrCreateLocked(addr)

	if bytes.Equal(record.CustomMetaValue(key), value) {
		m.cacheMu.Unlock()
		return true
	}

	var valueCopy []byte
	if value != nil {
		valueCopy = make([]byte, len(value))
		copy(valueCopy, value)
	}

	record.SetCustomMetaValue(key, valueCopy)
	m.updateLocked(record)
	m.cacheMu.Unlock()

	m.logChange("custom meta key=%d %s", key, addr.Anonymized())

	return true
}

// GetCustomMeta returns a copy of the blob stored under key, nil when absent.
func (m *Manager) GetCustomMeta(addr models.Address, key int) []byte {
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()

	record, ok := m.cache[addr]
	if !ok {
		return nil
	}

	value := record.CustomMetaValue(key)
	if value == nil {
		return nil
	}

	out := make([]byte, len(value))
	copy(out, value)

	return out
}

// SetAudioPolicy stores the audio policy triad, creating the record when
// absent.
func (m *Manager) SetAudioPolicy(addr models.Address, policy models.AudioPolicy) bool {
	if addr == "" {
		m.logger.Warn().Msg("SetAudioPolicy: empty address")
		return false
	}

	m.cacheMu.Lock()

	record := m.getOrCreateLocked(addr)

	if record.AudioPolicy == policy {
		m.cacheMu.Unlock()
		return true
	}

	record.AudioPolicy = policy
	m.updateLocked(record)
	m.cacheMu.Unlock()

	m.logChange("audio policy %s", addr.Anonymized())

	return true
}

// GetAudioPolicy returns the stored triad; ok is false when the device has
// no record.
func (m *Manager) GetAudioPolicy(addr models.Address) (models.AudioPolicy, bool) {
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()

	record, ok := m.cache[addr]
	if !ok {
		return models.AudioPolicy{}, false
	}

	return record.AudioPolicy, true
}

// SetPreferredAudioProfiles updates the preferred output-only and duplex
// profiles on every group member that already has a record. A zero profile
// leaves the corresponding mode untouched.
func (m *Manager) SetPreferredAudioProfiles(group []models.Address, outputOnly, duplex models.Profile) bool {
	if len(group) == 0 {
		m.logger.Warn().Msg("SetPreferredAudioProfiles: empty group")
		return false
	}

	m.cacheMu.Lock()

	for _, addr := range group {
		record, ok := m.cache[addr]
		if !ok {
			continue
		}

		changed := false

		if outputOnly != 0 && record.PreferredOutputOnlyProfile != outputOnly {
			record.PreferredOutputOnlyProfile = outputOnly
			changed = true
		}

		if duplex != 0 && record.PreferredDuplexProfile != duplex {
			record.PreferredDuplexProfile = duplex
			changed = true
		}

		if changed {
			m.updateLocked(record)
		}
	}

	m.cacheMu.Unlock()

	return true
}

// GetPreferredAudioProfiles returns the preferred profile per audio mode,
// zero when unset or the device has no record.
func (m *Manager) GetPreferredAudioProfiles(addr models.Address) (outputOnly, duplex models.Profile) {
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()

	record, ok := m.cache[addr]
	if !ok {
		return 0, 0
	}

	return record.PreferredOutputOnlyProfile, record.PreferredDuplexProfile
}

// SetConnection records a profile connection: bumps the device's
// connection-order counter, and for A2DP or Headset first clears the active
// flag on every other cached device then sets it here. The full sweep is
// intentional, trading O(n) for an unambiguous single-active invariant.
func (m *Manager) SetConnection(addr models.Address, profile models.Profile) {
	if addr == "" {
		m.logger.Warn().Msg("SetConnection: empty address")
		return
	}

	m.cacheMu.Lock()

	if profile == models.ProfileA2DP {
		m.resetActiveA2DPDeviceLocked(addr)
	}

	if profile == models.ProfileHeadset {
		m.resetActiveHFPDeviceLocked(addr)
	}

	record := m.getOrCreateLocked(addr)

	switch profile {
	case models.ProfileA2DP:
		record.IsActiveA2DPDevice = true
	case models.ProfileHeadset:
		record.IsActiveHFPDevice = true
	}

	record.LastActiveTime = m.connectionCounter
	m.connectionCounter++

	m.updateLocked(record)
	m.cacheMu.Unlock()

	m.logChange("connection %s %s", profile, addr.Anonymized())
}

// SetDisconnection clears the active flag set by SetConnection for the
// profile, if this device holds it.
func (m *Manager) SetDisconnection(addr models.Address, profile models.Profile) {
	if addr == "" {
		return
	}

	m.cacheMu.Lock()

	record, ok := m.cache[addr]
	if ok {
		switch profile {
		case models.ProfileA2DP:
			if record.IsActiveA2DPDevice {
				record.IsActiveA2DPDevice = false
				m.updateLocked(record)
			}
		case models.ProfileHeadset:
			if record.IsActiveHFPDevice {
				record.IsActiveHFPDevice = false
				m.updateLocked(record)
			}
		}
	}

	m.cacheMu.Unlock()
}

func (m *Manager) resetActiveA2DPDeviceLocked(except models.Address) {
	for addr, record := range m.cache {
		if addr == except || !record.IsActiveA2DPDevice {
			continue
		}

		record.IsActiveA2DPDevice = false
		m.updateLocked(record)
	}
}

func (m *Manager) resetActiveHFPDeviceLocked(except models.Address) {
	for addr, record := range m.cache {
		if addr == except || !record.IsActiveHFPDevice {
			continue
		}

		record.IsActiveHFPDevice = false
		m.updateLocked(record)
	}
}

// MostRecentlyConnectedDevices returns every device that has ever connected,
// most recent first.
func (m *Manager) MostRecentlyConnectedDevices() []models.Address {
	m.cacheMu.Lock()

	type entry struct {
		addr models.Address
		time int64
	}

	entries := make([]entry, 0, len(m.cache))

	for addr, record := range m.cache {
		if addr.IsLocalStorage() || record.LastActiveTime < 0 {
			continue
		}

		entries = append(entries, entry{addr: addr, time: record.LastActiveTime})
	}

	m.cacheMu.Unlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].time > entries[j].time })

	out := make([]models.Address, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.addr)
	}

	return out
}

// MostRecentlyActiveA2DPDevice returns the device currently holding the
// active A2DP flag.
func (m *Manager) MostRecentlyActiveA2DPDevice() (models.Address, bool) {
	for _, addr := range m.MostRecentlyConnectedDevices() {
		m.cacheMu.Lock()
		record, ok := m.cache[addr]
		active := ok && record.IsActiveA2DPDevice
		m.cacheMu.Unlock()

		if active {
			return addr, true
		}
	}

	return "", false
}

// MostRecentlyActiveHFPDevices returns every device holding the active HFP
// flag, most recent first.
func (m *Manager) MostRecentlyActiveHFPDevices() []models.Address {
	var out []models.Address

	for _, addr := range m.MostRecentlyConnectedDevices() {
		m.cacheMu.Lock()
		record, ok := m.cache[addr]
		active := ok && record.IsActiveHFPDevice
		m.cacheMu.Unlock()

		if active {
			out = append(out, addr)
		}
	}

	return out
}

// HandleBondStateChanged keeps the record set aligned with the bond table:
// a completed bond creates the record, unbonding deletes it.
func (m *Manager) HandleBondStateChanged(addr models.Address, _, to models.BondState) {
	if addr == "" || addr.IsLocalStorage() {
		return
	}

	m.cacheMu.Lock()

	switch to {
	case models.BondBonded:
		if _, ok := m.cache[addr]; !ok {
			record := m.getOrCreateLocked(addr)
			m.updateLocked(record)
		}
	case models.BondNone:
		if _, ok := m.cache[addr]; ok {
			delete(m.cache, addr)
			m.enqueue(deleteCommand{addr: addr})
		}
	}

	m.cacheMu.Unlock()
}

// RemoveUnusedMetadata deletes every non-sentinel record whose device is no
// longer bonded.
func (m *Manager) RemoveUnusedMetadata(bonded func(models.Address) bool) {
	m.cacheMu.Lock()

	for addr := range m.cache {
		if addr.IsLocalStorage() || bonded(addr) {
			continue
		}

		delete(m.cache, addr)
		m.enqueue(deleteCommand{addr: addr})
	}

	m.cacheMu.Unlock()
}

// FactoryReset clears the entire store, then recreates the sentinel record
// so legacy-settings migration does not run again.
func (m *Manager) FactoryReset() {
	m.cacheMu.Lock()

	m.cache = make(map[models.Address]*models.DeviceMetadata)
	m.connectionCounter = 0
	m.enqueue(clearCommand{})

	sentinel := m.getOrCreateLocked(models.LocalStorageAddress)
	sentinel.Migrated = true
	m.updateLocked(sentinel)

	m.cacheMu.Unlock()

	m.logChange("factory reset")
}
