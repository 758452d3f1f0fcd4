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

import "github.com/google/uuid"

// Service-class UUIDs advertised by remote devices during SDP/GATT discovery.
// 16-bit assigned numbers expanded against the Bluetooth base UUID.
var (
	UUIDHSP            = uuid.MustParse("00001108-0000-1000-8000-00805F9B34FB")
	UUIDHFP            = uuid.MustParse("0000111E-0000-1000-8000-00805F9B34FB")
	UUIDAudioSink      = uuid.MustParse("0000110B-0000-1000-8000-00805F9B34FB")
	UUIDAdvAudioDist   = uuid.MustParse("0000110D-0000-1000-8000-00805F9B34FB")
	UUIDHID            = uuid.MustParse("00001124-0000-1000-8000-00805F9B34FB")
	UUIDHOGP           = uuid.MustParse("00001812-0000-1000-8000-00805F9B34FB")
	UUIDPANU           = uuid.MustParse("00001115-0000-1000-8000-00805F9B34FB")
	UUIDHearingAid     = uuid.MustParse("0000FDF0-0000-1000-8000-00805F9B34FB")
	UUIDLEAudio        = uuid.MustParse("0000184E-0000-1000-8000-00805F9B34FB")
	UUIDCoordinatedSet = uuid.MustParse("00001846-0000-1000-8000-00805F9B34FB")
	UUIDVolumeControl  = uuid.MustParse("00001844-0000-1000-8000-00805F9B34FB")
	UUIDHAS            = uuid.MustParse("00001854-0000-1000-8000-00805F9B34FB")
	UUIDBASS           = uuid.MustParse("0000184F-0000-1000-8000-00805F9B34FB")
	UUIDBattery        = uuid.MustParse("0000180F-0000-1000-8000-00805F9B34FB")
	UUIDCAP            = uuid.MustParse("00001853-0000-1000-8000-00805F9B34FB")
)

// ContainsUUID reports whether the discovered set contains the wanted service.
func ContainsUUID(uuids []uuid.UUID, want uuid.UUID) bool {
	for _, u := range uuids {
		if u == want {
			return true
		}
	}

	return false
}
