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
	"regexp"
	"strings"
)

// Address is a canonical (upper-case, colon-separated) Bluetooth device address.
type Address string

// LocalStorageAddress is the reserved sentinel address used for the record
// carrying host-local state such as the legacy-settings migration flag. It is
// excluded from all device-facing queries.
const LocalStorageAddress Address = "LocalStorage"

var (
	ErrInvalidAddress = errors.New("invalid bluetooth address")

	addressPattern = regexp.MustCompile(`^([0-9A-F]{2}:){5}[0-9A-F]{2}$`)
)

// ParseAddress canonicalizes and validates a Bluetooth device address.
func ParseAddress(s string) (Address, error) {
	canon := strings.ToUpper(strings.TrimSpace(s))
	if !addressPattern.MatchString(canon) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}

	return Address(canon), nil
}

// IsLocalStorage reports whether this is the sentinel record address.
func (a Address) IsLocalStorage() bool {
	return a == LocalStorageAddress
}

// Anonymized returns the address with all but the last octet masked, for logs.
func (a Address) Anonymized() string {
	if a.IsLocalStorage() || len(a) < 2 {
		return string(a)
	}

	return "XX:XX:XX:XX:XX:" + string(a[len(a)-2:])
}

// MaxCustomMetaKey bounds the opaque per-key custom metadata range. Keys
// outside [0, MaxCustomMetaKey] are rejected at the API boundary.
const MaxCustomMetaKey = 32

// MetadataChangedLogSize is the number of change-log lines kept for dumpsys.
const MetadataChangedLogSize = 20

// AudioPolicy is the per-device audio policy triad persisted for call-control
// bearers. Zero means "unconfigured" for every field.
type AudioPolicy struct {
	CallEstablish  int `json:"call_establish"`
	ConnectingTime int `json:"connecting_time"`
	InBandRingtone int `json:"in_band_ringtone"`
}

// DeviceMetadata is the persisted per-device record. One record exists per
// bonded (or policy-touched) remote address, plus the LocalStorage sentinel.
type DeviceMetadata struct {
	Address  Address `json:"address"`
	Migrated bool    `json:"migrated"`

	// ConnectionPolicies maps profile id to the stored connection policy.
	// A missing entry reads as PolicyUnknown.
	ConnectionPolicies map[Profile]ConnectionPolicy `json:"connection_policies"`

	// LastActiveTime is a monotonic connection-order counter, not wall clock.
	// -1 means the device has never connected.
	LastActiveTime int64 `json:"last_active_time"`

	IsActiveA2DPDevice bool `json:"is_active_a2dp_device"`
	IsActiveHFPDevice  bool `json:"is_active_hfp_device"`

	// Preferred audio profile per audio mode; 0 means unset.
	PreferredOutputOnlyProfile Profile `json:"preferred_output_only_profile"`
	PreferredDuplexProfile     Profile `json:"preferred_duplex_profile"`

	CustomMeta map[int][]byte `json:"custom_meta,omitempty"`

	AudioPolicy AudioPolicy `json:"audio_policy"`
}

// NewDeviceMetadata returns an empty record for the given address.
func NewDeviceMetadata(addr Address) *DeviceMetadata {
	return &DeviceMetadata{
		Address:            addr,
		ConnectionPolicies: make(map[Profile]ConnectionPolicy),
		LastActiveTime:     -1,
		CustomMeta:         make(map[int][]byte),
	}
}

// ProfileConnectionPolicy returns the stored policy for the profile,
// PolicyUnknown if none was ever set.
func (m *DeviceMetadata) ProfileConnectionPolicy(profile Profile) ConnectionPolicy {
	if policy, ok := m.ConnectionPolicies[profile]; ok {
		return policy
	}

	return PolicyUnknown
}

// SetProfileConnectionPolicy records the policy for the profile.
func (m *DeviceMetadata) SetProfileConnectionPolicy(profile Profile, policy ConnectionPolicy) {
	if m.ConnectionPolicies == nil {
		m.ConnectionPolicies = make(map[Profile]ConnectionPolicy)
	}

	m.ConnectionPolicies[profile] = policy
}

// CustomMetaValue returns the stored blob for the key, nil if absent.
func (m *DeviceMetadata) CustomMetaValue(key int) []byte {
	return m.CustomMeta[key]
}

// SetCustomMetaValue stores the blob for the key. A nil value clears the key.
func (m *DeviceMetadata) SetCustomMetaValue(key int, value []byte) {
	if m.CustomMeta == nil {
		m.CustomMeta = make(map[int][]byte)
	}

	if value == nil {
		delete(m.CustomMeta, key)
		return
	}

	m.CustomMeta[key] = value
}

// ChangedCustomMetaKeys returns every key that currently holds a value.
func (m *DeviceMetadata) ChangedCustomMetaKeys() []int {
	keys := make([]int, 0, len(m.CustomMeta))
	for key := range m.CustomMeta {
		keys = append(keys, key)
	}

	return keys
}

// Clone returns a deep copy so cached records never share mutable state with
// the write queue or with callers.
func (m *DeviceMetadata) Clone() *DeviceMetadata {
	if m == nil {
		return nil
	}

	out := *m

	out.ConnectionPolicies = make(map[Profile]ConnectionPolicy, len(m.ConnectionPolicies))
	for profile, policy := range m.ConnectionPolicies {
		out.ConnectionPolicies[profile] = policy
	}

	out.CustomMeta = make(map[int][]byte, len(m.CustomMeta))
	for key, value := range m.CustomMeta {
		buf := make([]byte, len(value))
		copy(buf, value)
		out.CustomMeta[key] = buf
	}

	return &out
}

func (m *DeviceMetadata) String() string {
	return fmt.Sprintf("{addr=%s lastActive=%d activeA2DP=%t activeHFP=%t policies=%d}",
		m.Address.Anonymized(), m.LastActiveTime, m.IsActiveA2DPDevice, m.IsActiveHFPDevice,
		len(m.ConnectionPolicies))
}
