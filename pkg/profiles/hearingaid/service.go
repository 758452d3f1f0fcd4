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

// Package hearingaid implements the ASHA hearing aid service. Devices that
// share a hiSyncId form a binaural pair and connect and disconnect together;
// at most one pair is active at a time.
package hearingaid

import (
	"sync"

	"github.com/carverauto/bthost/pkg/logger"
	"github.com/carverauto/bthost/pkg/models"
	"github.com/carverauto/bthost/pkg/profiles"
	"github.com/carverauto/bthost/pkg/stack"
)

// unknownSyncID marks a device whose hiSyncId has not been reported yet.
const unknownSyncID int64 = 0

// Service owns the hearing aid state machines and the hiSyncId grouping.
type Service struct {
	bridge stack.Bridge
	store  profiles.PolicyStore
	logger logger.Logger

	maxStateMachines int

	// bondState and quietMode are wired by the daemon to the adapter; nil
	// hooks do not gate.
	bondState func(models.Address) models.BondState
	quietMode func() bool

	mu           sync.Mutex
	machines     map[models.Address]*stateMachine
	states       map[models.Address]models.ConnectionState
	syncIDs      map[models.Address]int64
	activeSyncID int64

	listenerMu    sync.Mutex
	connListeners []profiles.ConnectionListener
}

// New builds the service and registers it as the bridge's event sink.
func New(bridge stack.Bridge, store profiles.PolicyStore, maxStateMachines int, log logger.Logger) *Service {
	s := &Service{
		bridge:           bridge,
		store:            store,
		logger:           log,
		maxStateMachines: maxStateMachines,
		machines:         make(map[models.Address]*stateMachine),
		states:           make(map[models.Address]models.ConnectionState),
		syncIDs:          make(map[models.Address]int64),
	}

	bridge.RegisterEventSink(s.handleStackEvent)

	return s
}

func (*Service) Profile() models.Profile { return models.ProfileHearingAid }

// SetBondStateProvider wires the bond table lookup used by the connect gate.
func (s *Service) SetBondStateProvider(fn func(models.Address) models.BondState) {
	s.bondState = fn
}

// SetQuietModeProvider wires the quiet-mode flag used by the connect gate.
func (s *Service) SetQuietModeProvider(fn func() bool) {
	s.quietMode = fn
}

// Connect connects the device and every bonded device sharing its hiSyncId.
// A different currently active pair is disconnected first.
func (s *Service) Connect(addr models.Address) bool {
	if addr == "" {
		s.logger.Warn().Msg("Connect: empty address")
		return false
	}

	if !s.okToConnect(addr) {
		return false
	}

	s.mu.Lock()
	syncID := s.syncIDs[addr]

	// Switching pairs: tear down the previous group before bringing up the
	// new one.
	var evicted []*stateMachine

	if syncID != unknownSyncID && s.activeSyncID != unknownSyncID && syncID != s.activeSyncID {
		for _, member := range s.groupMembersLocked(s.activeSyncID) {
			if sm, ok := s.machines[member]; ok {
				evicted = append(evicted, sm)
			}
		}
	}

	group := []models.Address{addr}
	if syncID != unknownSyncID {
		group = s.groupMembersLocked(syncID)
		s.activeSyncID = syncID
	}

	sms := make([]*stateMachine, 0, len(group))
	requested := false

	for _, member := range group {
		if member != addr && !s.okToConnect(member) {
			continue
		}

		sm, ok := s.machines[member]
		if !ok {
			if len(s.machines) >= s.maxStateMachines {
				s.logger.Warn().
					Str("device", member.Anonymized()).
					Int("max", s.maxStateMachines).
					Msg("Connect rejected: state machine cap reached")

				continue
			}

			sm = newStateMachine(member, s, s.bridge, s.logger)
			s.machines[member] = sm
			s.states[member] = models.StateDisconnected
		}

		sms = append(sms, sm)

		if member == addr {
			requested = true
		}
	}

	s.mu.Unlock()

	for _, sm := range evicted {
		sm.send(smMessage{kind: smDisconnect})
	}

	for _, sm := range sms {
		sm.send(smMessage{kind: smConnect})
	}

	return requested
}

// Disconnect tears down the device and every device sharing its hiSyncId.
func (s *Service) Disconnect(addr models.Address) bool {
	s.mu.Lock()

	group := []models.Address{addr}
	if syncID := s.syncIDs[addr]; syncID != unknownSyncID {
		group = s.groupMembersLocked(syncID)
	}

	var sms []*stateMachine

	for _, member := range group {
		if sm, ok := s.machines[member]; ok {
			if st := s.states[member]; st == models.StateDisconnected || st == models.StateDisconnecting {
				continue
			}

			sms = append(sms, sm)
		}
	}

	s.mu.Unlock()

	if len(sms) == 0 {
		return false
	}

	for _, sm := range sms {
		sm.send(smMessage{kind: smDisconnect})
	}

	return true
}

func (s *Service) SetConnectionPolicy(addr models.Address, policy models.ConnectionPolicy) bool {
	if !s.store.SetProfileConnectionPolicy(addr, s.Profile(), policy) {
		return false
	}

	switch policy {
	case models.PolicyAllowed:
		s.Connect(addr)
	case models.PolicyForbidden:
		s.Disconnect(addr)
	}

	return true
}

func (s *Service) ConnectionPolicy(addr models.Address) models.ConnectionPolicy {
	return s.store.GetProfileConnectionPolicy(addr, s.Profile())
}

func (s *Service) ConnectionState(addr models.Address) models.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.states[addr]
}

func (s *Service) ConnectedDevices() []models.Address {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Address

	for addr, state := range s.states {
		if state == models.StateConnected {
			out = append(out, addr)
		}
	}

	return out
}

// HiSyncID returns the reported synchronization id for the device,
// unknownSyncID when none was seen.
func (s *Service) HiSyncID(addr models.Address) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.syncIDs[addr]
}

func (s *Service) Stop() {
	s.mu.Lock()
	machines := s.machines
	s.machines = make(map[models.Address]*stateMachine)
	s.states = make(map[models.Address]models.ConnectionState)
	s.activeSyncID = unknownSyncID
	s.mu.Unlock()

	for _, sm := range machines {
		sm.send(smMessage{kind: smQuit})
	}
}

func (s *Service) SubscribeConnectionListener(l profiles.ConnectionListener) {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()

	s.connListeners = append(s.connListeners, l)
}

func (s *Service) UnsubscribeConnectionListener(l profiles.ConnectionListener) {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()

	for i, existing := range s.connListeners {
		if existing == l {
			s.connListeners = append(s.connListeners[:i], s.connListeners[i+1:]...)
			return
		}
	}
}

// okToConnect gates on stored policy, bond state, and quiet mode.
func (s *Service) okToConnect(addr models.Address) bool {
	if s.store.GetProfileConnectionPolicy(addr, s.Profile()) == models.PolicyForbidden {
		s.logger.Warn().
			Str("device", addr.Anonymized()).
			Msg("Connect rejected: policy forbidden")

		return false
	}

	if s.bondState != nil && s.bondState(addr) == models.BondNone {
		s.logger.Warn().
			Str("device", addr.Anonymized()).
			Msg("Connect rejected: not bonded")

		return false
	}

	if s.quietMode != nil && s.quietMode() {
		s.logger.Debug().
			Str("device", addr.Anonymized()).
			Msg("Connect suppressed: quiet mode")

		return false
	}

	return true
}

// groupMembersLocked returns every known device sharing the syncID. Caller
// holds mu.
func (s *Service) groupMembersLocked(syncID int64) []models.Address {
	var out []models.Address

	for addr, id := range s.syncIDs {
		if id == syncID {
			out = append(out, addr)
		}
	}

	return out
}

func (s *Service) handleStackEvent(ev stack.Event) {
	switch ev.Type {
	case stack.EventHiSyncIDChanged:
		s.mu.Lock()
		s.syncIDs[ev.Addr] = ev.Long
		s.mu.Unlock()

		s.logger.Debug().
			Str("device", ev.Addr.Anonymized()).
			Int64("hi_sync_id", ev.Long).
			Msg("hiSyncId reported")

	case stack.EventConnectionStateChanged:
		s.routeConnectionEvent(ev)
	}
}

func (s *Service) routeConnectionEvent(ev stack.Event) {
	s.mu.Lock()
	sm, ok := s.machines[ev.Addr]
	s.mu.Unlock()

	if !ok {
		state := models.ConnectionState(ev.Int)
		if state != models.StateConnecting && state != models.StateConnected {
			return
		}

		if !s.okToConnect(ev.Addr) {
			s.bridge.Disconnect(ev.Addr)
			return
		}

		s.mu.Lock()

		if len(s.machines) >= s.maxStateMachines {
			s.mu.Unlock()
			s.bridge.Disconnect(ev.Addr)

			return
		}

		sm = newStateMachine(ev.Addr, s, s.bridge, s.logger)
		s.machines[ev.Addr] = sm
		s.states[ev.Addr] = models.StateDisconnected
		s.mu.Unlock()
	}

	sm.send(smMessage{kind: smStackEvent, event: ev})
}

func (s *Service) connectionStateChanged(addr models.Address, from, to models.ConnectionState) {
	s.mu.Lock()

	if _, ok := s.machines[addr]; ok {
		s.states[addr] = to
	}

	s.mu.Unlock()

	s.listenerMu.Lock()
	listeners := make([]profiles.ConnectionListener, len(s.connListeners))
	copy(listeners, s.connListeners)
	s.listenerMu.Unlock()

	for _, l := range listeners {
		l.ProfileConnectionStateChanged(s.Profile(), addr, from, to)
	}
}

func (s *Service) removeStateMachine(addr models.Address) {
	s.mu.Lock()

	delete(s.machines, addr)
	delete(s.states, addr)

	// Last member of the active pair gone: no active group.
	if syncID := s.syncIDs[addr]; syncID != unknownSyncID && syncID == s.activeSyncID {
		remaining := false

		for _, member := range s.groupMembersLocked(syncID) {
			if _, ok := s.machines[member]; ok {
				remaining = true
				break
			}
		}

		if !remaining {
			s.activeSyncID = unknownSyncID
		}
	}

	s.mu.Unlock()
}
