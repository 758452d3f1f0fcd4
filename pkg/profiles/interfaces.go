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

// Package profiles defines the per-profile service boundary and the registry
// the policy engine resolves services through.
package profiles

import "github.com/carverauto/bthost/pkg/models"

//go:generate mockgen -destination=mock_profiles.go -package=profiles github.com/carverauto/bthost/pkg/profiles Service

// Service is the per-profile connect/disconnect/policy surface. Connect and
// Disconnect return false when the request is rejected (policy forbidden,
// state machine cap, invalid device); outcomes arrive later as connection
// state transitions.
type Service interface {
	Profile() models.Profile

	Connect(addr models.Address) bool
	Disconnect(addr models.Address) bool

	SetConnectionPolicy(addr models.Address, policy models.ConnectionPolicy) bool
	ConnectionPolicy(addr models.Address) models.ConnectionPolicy

	ConnectionState(addr models.Address) models.ConnectionState
	ConnectedDevices() []models.Address

	Stop()
}

// ConnectionListener observes profile connection state transitions. The
// policy engine and adapter facade implement this.
type ConnectionListener interface {
	ProfileConnectionStateChanged(profile models.Profile, addr models.Address, from, to models.ConnectionState)
}

// ActiveDeviceListener observes active-device changes on audio profiles.
type ActiveDeviceListener interface {
	ProfileActiveDeviceChanged(profile models.Profile, addr models.Address)
}

// PolicyStore is the slice of the metadata store profile services need.
type PolicyStore interface {
	GetProfileConnectionPolicy(addr models.Address, profile models.Profile) models.ConnectionPolicy
	SetProfileConnectionPolicy(addr models.Address, profile models.Profile, policy models.ConnectionPolicy) bool
}
