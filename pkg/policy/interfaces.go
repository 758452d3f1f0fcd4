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

// Package policy decides, per device and per profile, whether a profile may
// auto-connect, and coordinates connection ordering across profiles.
package policy

import (
	"time"

	"github.com/carverauto/bthost/pkg/models"
)

//go:generate mockgen -destination=mock_policy.go -package=policy github.com/carverauto/bthost/pkg/policy Clock,Timer

// Clock schedules delayed work. Tests substitute a mock to control the
// connect-other-profiles sweep without real waiting.
type Clock interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

// Timer is a cancelable unit of delayed work.
type Timer interface {
	Stop() bool
}

// MetadataStore is the slice of the metadata store the engine consumes.
// storage.Manager satisfies it.
type MetadataStore interface {
	GetProfileConnectionPolicy(addr models.Address, profile models.Profile) models.ConnectionPolicy
	SetProfileConnectionPolicy(addr models.Address, profile models.Profile, policy models.ConnectionPolicy) bool
	SetConnection(addr models.Address, profile models.Profile)
	SetDisconnection(addr models.Address, profile models.Profile)
	MostRecentlyActiveA2DPDevice() (models.Address, bool)
	MostRecentlyActiveHFPDevices() []models.Address
}

// DeviceInfo answers adapter-level questions about a device. The adapter
// facade satisfies it.
type DeviceInfo interface {
	BondState(addr models.Address) models.BondState
	QuietMode() bool
	LEAudioAllowed(addr models.Address) bool
	GroupMembers(addr models.Address) []models.Address
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// NewClock returns the wall clock.
func NewClock() Clock { return realClock{} }
