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

// Package adapter tracks adapter-level device state: power, bonds, quiet
// mode, discovered service UUIDs, and LE Audio allow-list answers. It is the
// fan-out point between the native adapter lifecycle and the policy engine.
package adapter

import (
	"io"

	"github.com/google/uuid"

	"github.com/carverauto/bthost/pkg/models"
)

//go:generate mockgen -destination=mock_adapter.go -package=adapter github.com/carverauto/bthost/pkg/adapter PolicyEngine,BondStore

// PowerState is the adapter radio state.
type PowerState int

const (
	PowerOff PowerState = iota
	PowerOn
)

func (p PowerState) String() string {
	if p == PowerOn {
		return "ON"
	}

	return "OFF"
}

// BondObserver receives bond-state transitions. Observers are invoked
// synchronously on the caller's goroutine, in subscription order.
type BondObserver interface {
	BondStateChanged(addr models.Address, from, to models.BondState)
}

// PowerObserver receives adapter power transitions.
type PowerObserver interface {
	AdapterPowerStateChanged(from, to PowerState)
}

// PolicyEngine is the slice of the policy engine the adapter drives.
type PolicyEngine interface {
	OnUuidsDiscovered(addr models.Address, uuids []uuid.UUID)
	AutoConnect()
	HandleACLConnected(addr models.Address)
}

// BondStore is the slice of the metadata store fed by the bond lifecycle.
type BondStore interface {
	HandleBondStateChanged(addr models.Address, from, to models.BondState)
	Dump(w io.Writer)
}
