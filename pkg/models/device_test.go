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
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddress(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Address
		wantErr bool
	}{
		{name: "canonical", input: "AA:BB:CC:DD:EE:FF", want: "AA:BB:CC:DD:EE:FF"},
		{name: "lowercase", input: "aa:bb:cc:dd:ee:ff", want: "AA:BB:CC:DD:EE:FF"},
		{name: "whitespace", input: "  AA:BB:CC:DD:EE:FF\n", want: "AA:BB:CC:DD:EE:FF"},
		{name: "too short", input: "AA:BB:CC:DD:EE", wantErr: true},
		{name: "bad separator", input: "AA-BB-CC-DD-EE-FF", wantErr: true},
		{name: "non hex", input: "GG:BB:CC:DD:EE:FF", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAddress(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidAddress)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAddressAnonymized(t *testing.T) {
	assert.Equal(t, "XX:XX:XX:XX:XX:FF", Address("AA:BB:CC:DD:EE:FF").Anonymized())
	assert.Equal(t, string(LocalStorageAddress), LocalStorageAddress.Anonymized())
	assert.Equal(t, "", Address("").Anonymized())
}

func TestDeviceMetadataPolicies(t *testing.T) {
	m := NewDeviceMetadata("AA:BB:CC:DD:EE:FF")

	assert.Equal(t, PolicyUnknown, m.ProfileConnectionPolicy(ProfileA2DP))
	assert.Equal(t, int64(-1), m.LastActiveTime)

	m.SetProfileConnectionPolicy(ProfileA2DP, PolicyAllowed)
	assert.Equal(t, PolicyAllowed, m.ProfileConnectionPolicy(ProfileA2DP))
	assert.Equal(t, PolicyUnknown, m.ProfileConnectionPolicy(ProfileHeadset))
}

func TestDeviceMetadataCustomMeta(t *testing.T) {
	m := NewDeviceMetadata("AA:BB:CC:DD:EE:FF")

	assert.Nil(t, m.CustomMetaValue(3))

	m.SetCustomMetaValue(3, []byte("blob"))
	assert.Equal(t, []byte("blob"), m.CustomMetaValue(3))
	assert.Equal(t, []int{3}, m.ChangedCustomMetaKeys())

	// Nil clears the key.
	m.SetCustomMetaValue(3, nil)
	assert.Nil(t, m.CustomMetaValue(3))
	assert.Empty(t, m.ChangedCustomMetaKeys())
}

func TestDeviceMetadataCloneIsDeep(t *testing.T) {
	m := NewDeviceMetadata("AA:BB:CC:DD:EE:FF")
	m.SetProfileConnectionPolicy(ProfileHeadset, PolicyAllowed)
	m.SetCustomMetaValue(1, []byte{0x01})

	clone := m.Clone()
	require.NotNil(t, clone)

	clone.SetProfileConnectionPolicy(ProfileHeadset, PolicyForbidden)
	clone.CustomMetaValue(1)[0] = 0xFF
	clone.SetCustomMetaValue(2, []byte{0x02})

	assert.Equal(t, PolicyAllowed, m.ProfileConnectionPolicy(ProfileHeadset))
	assert.Equal(t, []byte{0x01}, m.CustomMetaValue(1))
	assert.Nil(t, m.CustomMetaValue(2))

	var nilMeta *DeviceMetadata

	assert.Nil(t, nilMeta.Clone())
}

func TestContainsUUID(t *testing.T) {
	discovered := []uuid.UUID{UUIDHFP, UUIDAudioSink}

	assert.True(t, ContainsUUID(discovered, UUIDHFP))
	assert.True(t, ContainsUUID(discovered, UUIDAudioSink))
	assert.False(t, ContainsUUID(discovered, UUIDLEAudio))
	assert.False(t, ContainsUUID(nil, UUIDHFP))
}
