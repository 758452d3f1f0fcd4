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

package adapter

import (
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/carverauto/bthost/pkg/logger"
	"github.com/carverauto/bthost/pkg/models"
)

// Adapter is the adapter lifecycle facade. It satisfies policy.DeviceInfo.
type Adapter struct {
	engine PolicyEngine
	store  BondStore
	logger logger.Logger

	mu        sync.Mutex
	power     PowerState
	quiet     bool
	bonds     map[models.Address]models.BondState
	uuids     map[models.Address][]uuid.UUID
	allowList map[models.Address]bool
	groups    map[models.Address][]models.Address

	observerMu     sync.Mutex
	bondObservers  []BondObserver
	powerObservers []PowerObserver
}

func New(engine PolicyEngine, store BondStore, log logger.Logger) *Adapter {
	return &Adapter{
		engine:    engine,
		store:     store,
		logger:    log,
		bonds:     make(map[models.Address]models.BondState),
		uuids:     make(map[models.Address][]uuid.UUID),
		allowList: make(map[models.Address]bool),
		groups:    make(map[models.Address][]models.Address),
	}
}

// SetPolicyEngine wires the engine after construction. The adapter and the
// engine reference each other, so one side is attached late; call this
// before any lifecycle events flow.
func (a *Adapter) SetPolicyEngine(engine PolicyEngine) {
	a.engine = engine
}

// SetPowerState records a power transition, notifies observers, and kicks
// the policy engine's auto-connect pass on the off-to-on edge.
func (a *Adapter) SetPowerState(state PowerState) {
	a.mu.Lock()
	prev := a.power

	if prev == state {
		a.mu.Unlock()
		return
	}

	a.power = state
	a.mu.Unlock()

	a.logger.Info().
		Str("from", prev.String()).
		Str("to", state.String()).
		Msg("Adapter power state changed")

	a.observerMu.Lock()
	observers := make([]PowerObserver, len(a.powerObservers))
	copy(observers, a.powerObservers)
	a.observerMu.Unlock()

	for _, o := range observers {
		o.AdapterPowerStateChanged(prev, state)
	}

	if prev == PowerOff && state == PowerOn {
		a.engine.AutoConnect()
	}
}

func (a *Adapter) PowerState() PowerState {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.power
}

// SetQuietMode suppresses policy-driven connection attempts while set.
func (a *Adapter) SetQuietMode(quiet bool) {
	a.mu.Lock()
	a.quiet = quiet
	a.mu.Unlock()
}

func (a *Adapter) QuietMode() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.quiet
}

// HandleBondStateChanged updates the bond table, forwards the transition to
// the metadata store, and notifies observers. Unbonding drops the device's
// cached discovery state.
func (a *Adapter) HandleBondStateChanged(addr models.Address, from, to models.BondState) {
	if addr == "" {
		a.logger.Warn().Msg("HandleBondStateChanged: empty address")
		return
	}

	a.mu.Lock()

	if to == models.BondNone {
		delete(a.bonds, addr)
		delete(a.uuids, addr)
		delete(a.groups, addr)
	} else {
		a.bonds[addr] = to
	}

	a.mu.Unlock()

	a.store.HandleBondStateChanged(addr, from, to)

	a.observerMu.Lock()
	observers := make([]BondObserver, len(a.bondObservers))
	copy(observers, a.bondObservers)
	a.observerMu.Unlock()

	for _, o := range observers {
		o.BondStateChanged(addr, from, to)
	}
}

// BondState returns the tracked bond state, BondNone for unknown devices.
func (a *Adapter) BondState(addr models.Address) models.BondState {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.bonds[addr]
}

// BondedDevices returns every device currently bonded or bonding.
func (a *Adapter) BondedDevices() []models.Address {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]models.Address, 0, len(a.bonds))

	for addr, state := range a.bonds {
		if state == models.BondBonded {
			out = append(out, addr)
		}
	}

	return out
}

// OnUuidsDiscovered caches the discovered service classes and forwards them
// to the policy engine.
func (a *Adapter) OnUuidsDiscovered(addr models.Address, uuids []uuid.UUID) {
	a.mu.Lock()
	a.uuids[addr] = append([]uuid.UUID(nil), uuids...)
	a.mu.Unlock()

	a.logger.Debug().
		Str("device", addr.Anonymized()).
		Int("count", len(uuids)).
		Msg("Service UUIDs discovered")

	a.engine.OnUuidsDiscovered(addr, uuids)
}

// DiscoveredUUIDs returns the cached service classes for the device.
func (a *Adapter) DiscoveredUUIDs(addr models.Address) []uuid.UUID {
	a.mu.Lock()
	defer a.mu.Unlock()

	return append([]uuid.UUID(nil), a.uuids[addr]...)
}

// AllowLEAudio records the allow-list answer for the device.
func (a *Adapter) AllowLEAudio(addr models.Address, allowed bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if allowed {
		a.allowList[addr] = true
	} else {
		delete(a.allowList, addr)
	}
}

func (a *Adapter) LEAudioAllowed(addr models.Address) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.allowList[addr]
}

// SetCoordinatedGroup records a CSIP coordinated set; every member resolves
// the full membership.
func (a *Adapter) SetCoordinatedGroup(members []models.Address) {
	group := append([]models.Address(nil), members...)

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, member := range group {
		a.groups[member] = group
	}
}

// GroupMembers returns the coordinated set containing the device; a device
// with no set is its own group of one.
func (a *Adapter) GroupMembers(addr models.Address) []models.Address {
	a.mu.Lock()
	defer a.mu.Unlock()

	if group, ok := a.groups[addr]; ok {
		return append([]models.Address(nil), group...)
	}

	return []models.Address{addr}
}

// HandleACLConnected forwards a link-level connection to the policy engine.
func (a *Adapter) HandleACLConnected(addr models.Address) {
	a.engine.HandleACLConnected(addr)
}

func (a *Adapter) SubscribeBondObserver(o BondObserver) {
	a.observerMu.Lock()
	defer a.observerMu.Unlock()

	a.bondObservers = append(a.bondObservers, o)
}

func (a *Adapter) UnsubscribeBondObserver(o BondObserver) {
	a.observerMu.Lock()
	defer a.observerMu.Unlock()

	for i, existing := range a.bondObservers {
		if existing == o {
			a.bondObservers = append(a.bondObservers[:i], a.bondObservers[i+1:]...)
			return
		}
	}
}

func (a *Adapter) SubscribePowerObserver(o PowerObserver) {
	a.observerMu.Lock()
	defer a.observerMu.Unlock()

	a.powerObservers = append(a.powerObservers, o)
}

func (a *Adapter) UnsubscribePowerObserver(o PowerObserver) {
	a.observerMu.Lock()
	defer a.observerMu.Unlock()

	for i, existing := range a.powerObservers {
		if existing == o {
			a.powerObservers = append(a.powerObservers[:i], a.powerObservers[i+1:]...)
			return
		}
	}
}

// Dump writes the adapter summary followed by the metadata store dump.
func (a *Adapter) Dump(w io.Writer) {
	a.mu.Lock()
	power := a.power
	quiet := a.quiet
	bonded := 0

	for _, state := range a.bonds {
		if state == models.BondBonded {
			bonded++
		}
	}

	a.mu.Unlock()

	fmt.Fprintf(w, "Adapter: power=%s quiet=%t bonded=%d\n", power, quiet, bonded)

	a.store.Dump(w)
}
