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

// Profile identifies a Bluetooth profile handled by the host stack.
type Profile int

const (
	ProfileHeadset Profile = iota + 1
	ProfileA2DP
	ProfileHealth
	ProfileHIDHost
	ProfilePAN
	ProfilePBAP
	ProfileGATT
	ProfileHeadsetClient
	ProfilePBAPClient
	ProfileMAP
	ProfileA2DPSink
	ProfileAVRCPController
	ProfileSAP
	ProfileMAPClient
	ProfileHearingAid
	ProfileLEAudio
	ProfileVolumeControl
	ProfileCSIPSetCoordinator
	ProfileHAPClient
	ProfileBASSClient
	ProfileBattery

	// MaxProfileID bounds iteration over all known profiles.
	MaxProfileID = int(ProfileBattery)
)

var profileNames = map[Profile]string{
	ProfileHeadset:            "HEADSET",
	ProfileA2DP:               "A2DP",
	ProfileHealth:             "HEALTH",
	ProfileHIDHost:            "HID_HOST",
	ProfilePAN:                "PAN",
	ProfilePBAP:               "PBAP",
	ProfileGATT:               "GATT",
	ProfileHeadsetClient:      "HEADSET_CLIENT",
	ProfilePBAPClient:         "PBAP_CLIENT",
	ProfileMAP:                "MAP",
	ProfileA2DPSink:           "A2DP_SINK",
	ProfileAVRCPController:    "AVRCP_CONTROLLER",
	ProfileSAP:                "SAP",
	ProfileMAPClient:          "MAP_CLIENT",
	ProfileHearingAid:         "HEARING_AID",
	ProfileLEAudio:            "LE_AUDIO",
	ProfileVolumeControl:      "VOLUME_CONTROL",
	ProfileCSIPSetCoordinator: "CSIP_SET_COORDINATOR",
	ProfileHAPClient:          "HAP_CLIENT",
	ProfileBASSClient:         "LE_AUDIO_BROADCAST_ASSISTANT",
	ProfileBattery:            "BATTERY",
}

func (p Profile) String() string {
	if name, ok := profileNames[p]; ok {
		return name
	}

	return "UNKNOWN_PROFILE"
}

// AllProfiles returns every profile id known to the host, in ascending order.
func AllProfiles() []Profile {
	out := make([]Profile, 0, MaxProfileID)
	for id := 1; id <= MaxProfileID; id++ {
		out = append(out, Profile(id))
	}

	return out
}

// ConnectionPolicy is the stored per-(device, profile) connection preference.
// The numeric values are part of the persisted schema and must not change.
type ConnectionPolicy int

const (
	PolicyUnknown   ConnectionPolicy = -1
	PolicyForbidden ConnectionPolicy = 0
	PolicyAllowed   ConnectionPolicy = 100
)

func (p ConnectionPolicy) String() string {
	switch p {
	case PolicyUnknown:
		return "UNKNOWN"
	case PolicyForbidden:
		return "FORBIDDEN"
	case PolicyAllowed:
		return "ALLOWED"
	default:
		return "INVALID"
	}
}

// Valid reports whether the value is one of the three defined policies.
func (p ConnectionPolicy) Valid() bool {
	return p == PolicyUnknown || p == PolicyForbidden || p == PolicyAllowed
}

// ConnectionState is the per-(device, profile) connection lifecycle state.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateDisconnecting
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateDisconnecting:
		return "DISCONNECTING"
	default:
		return "INVALID"
	}
}
