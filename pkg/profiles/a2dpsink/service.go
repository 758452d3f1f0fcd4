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

// Package a2dpsink implements the A2DP sink profile service: policy-gated
// connection management over per-device state machines, plus audio focus
// handling for the incoming stream.
package a2dpsink

import (
	"sync"

	"github.com/carverauto/bthost/pkg/logger"
	"github.com/carverauto/bthost/pkg/models"
	"github.com/carverauto/bthost/pkg/profiles"
	"github.com/carverauto/bthost/pkg/stack"
)

// AudioFocusHandler is the OS audio-routing collaborator. Nil means no
// focus bookkeeping.
type AudioFocusHandler interface {
	RequestFocus(addr models.Address) bool
	AbandonFocus(addr models.Address)
}

// Service owns the device-to-state-machine map for the A2DP sink profile.
// At most one state machine exists per device, bounded by maxConnected.
type Service struct {
	bridge stack.Bridge
	store  profiles.PolicyStore
	logger logger.Logger

	maxConnected int

	mu        sync.Mutex
	machines  map[models.Address]*stateMachine
	states    map[models.Address]models.ConnectionState
	focusHeld map[models.Address]bool
	active    models.Address

	listenerMu      sync.Mutex
	connListeners   []profiles.ConnectionListener
	activeListeners []profiles.ActiveDeviceListener

	focus AudioFocusHandler
}

// New builds the service and registers it as the bridge's event sink.
func New(bridge stack.Bridge, store profiles.PolicyStore, maxConnected int, focus AudioFocusHandler, log logger.Logger) *Service {
	s := &Service{
		bridge:       bridge,
		store:        store,
		logger:       log,
		maxConnected: maxConnected,
		machines:     make(map[models.Address]*stateMachine),
		states:       make(map[models.Address]models.ConnectionState),
		focusHeld:    make(map[models.Address]bool),
		focus:        focus,
	}

	bridge.RegisterEventSink(s.handleStackEvent)

	return s
}

func (*Service) Profile() models.Profile { return models.ProfileA2DPSink }

// Connect starts a connection attempt. Rejected without a stack call when
// the stored policy is forbidden or the state machine cap is reached.
func (s *Service) Connect(addr models.Address) bool {
	if addr == "" {
		s.logger.Warn().Msg("Connect: empty address")
		return false
	}

	if s.store.GetProfileConnectionPolicy(addr, s.Profile()) == models.PolicyForbidden {
		s.logger.Warn().
			Str("device", addr.Anonymized()).
			Msg("Connect rejected: policy forbidden")

		return false
	}

	s.mu.Lock()

	sm, ok := s.machines[addr]
	if ok {
		state := s.states[addr]
		s.mu.Unlock()

		switch state {
		case models.StateConnecting, models.StateConnected:
			return true
		case models.StateDisconnecting:
			return false
		}

		sm.send(smMessage{kind: smConnect})

		return true
	}

	if len(s.machines) >= s.maxConnected {
		s.mu.Unlock()
		s.logger.Warn().
			Str("device", addr.Anonymized()).
			Int("max", s.maxConnected).
			Msg("Connect rejected: state machine cap reached")

		return false
	}

	sm = s.newStateMachineLocked(addr)
	s.mu.Unlock()

	sm.send(smMessage{kind: smConnect})

	return true
}

// Disconnect is a no-op when no state machine exists or teardown is already
// under way.
func (s *Service) Disconnect(addr models.Address) bool {
	s.mu.Lock()
	sm, ok := s.machines[addr]
	state := s.states[addr]
	s.mu.Unlock()

	if !ok {
		return false
	}

	if state == models.StateDisconnected || state == models.StateDisconnecting {
		return false
	}

	sm.send(smMessage{kind: smDisconnect})

	return true
}

// SetConnectionPolicy persists the policy, then connects or disconnects as
// a side effect.
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

// SetActiveDevice routes audio to the given connected device. An empty
// address clears the active device.
func (s *Service) SetActiveDevice(addr models.Address) bool {
	if addr != "" && s.ConnectionState(addr) != models.StateConnected {
		s.logger.Warn().
			Str("device", addr.Anonymized()).
			Msg("SetActiveDevice rejected: not connected")

		return false
	}

	if !s.bridge.SetActiveDevice(addr) {
		return false
	}

	s.mu.Lock()
	s.active = addr
	s.mu.Unlock()

	if addr != "" {
		s.notifyActiveDeviceChanged(addr)
	}

	return true
}

func (s *Service) ActiveDevice() models.Address {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.active
}

// Stop terminates every state machine without emitting transitions.
func (s *Service) Stop() {
	s.mu.Lock()
	machines := s.machines
	s.machines = make(map[models.Address]*stateMachine)
	s.states = make(map[models.Address]models.ConnectionState)
	s.focusHeld = make(map[models.Address]bool)
	s.active = ""
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

func (s *Service) SubscribeActiveDeviceListener(l profiles.ActiveDeviceListener) {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()

	s.activeListeners = append(s.activeListeners, l)
}

// newStateMachineLocked creates and registers the state machine. Caller
// holds mu and has checked the cap.
func (s *Service) newStateMachineLocked(addr models.Address) *stateMachine {
	sm := newStateMachine(addr, s, s.bridge, s.logger)
	s.machines[addr] = sm
	s.states[addr] = models.StateDisconnected

	return sm
}

// handleStackEvent routes native events to the owning state machine,
// creating one lazily for remote-initiated connections when policy and the
// cap allow it.
func (s *Service) handleStackEvent(ev stack.Event) {
	switch ev.Type {
	case stack.EventConnectionStateChanged:
		s.routeConnectionEvent(ev)
	case stack.EventAudioStateChanged:
		s.handleAudioState(ev)
	case stack.EventAudioConfigChanged:
		s.logger.Debug().
			Str("device", ev.Addr.Anonymized()).
			Msg("Audio config changed")
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

		if s.store.GetProfileConnectionPolicy(ev.Addr, s.Profile()) == models.PolicyForbidden {
			s.logger.Warn().
				Str("device", ev.Addr.Anonymized()).
				Msg("Rejecting remote connection: policy forbidden")
			s.bridge.Disconnect(ev.Addr)

			return
		}

		s.mu.Lock()

		if len(s.machines) >= s.maxConnected {
			s.mu.Unlock()
			s.logger.Warn().
				Str("device", ev.Addr.Anonymized()).
				Msg("Rejecting remote connection: state machine cap reached")
			s.bridge.Disconnect(ev.Addr)

			return
		}

		sm = s.newStateMachineLocked(ev.Addr)
		s.mu.Unlock()
	}

	sm.send(smMessage{kind: smStackEvent, event: ev})
}

// handleAudioState drives audio focus from streaming state: request focus
// when the remote starts playing, abandon it on stop or suspend.
func (s *Service) handleAudioState(ev stack.Event) {
	if s.focus == nil {
		return
	}

	audioState := stack.AudioState(ev.Int)

	s.mu.Lock()
	held := s.focusHeld[ev.Addr]

	switch audioState {
	case stack.AudioStatePlaying:
		if !held {
			s.focusHeld[ev.Addr] = true
			s.mu.Unlock()

			if !s.focus.RequestFocus(ev.Addr) {
				s.mu.Lock()
				delete(s.focusHeld, ev.Addr)
				s.mu.Unlock()
			}

			return
		}
	case stack.AudioStateStopped, stack.AudioStateRemoteSuspend:
		if held {
			delete(s.focusHeld, ev.Addr)
			s.mu.Unlock()
			s.focus.AbandonFocus(ev.Addr)

			return
		}
	}

	s.mu.Unlock()
}

// connectionStateChanged is invoked from state machine goroutines on every
// transition.
func (s *Service) connectionStateChanged(addr models.Address, from, to models.ConnectionState) {
	s.mu.Lock()

	if _, ok := s.machines[addr]; ok {
		s.states[addr] = to
	}

	held := s.focusHeld[addr]
	if to == models.StateDisconnected {
		delete(s.focusHeld, addr)
	}

	s.mu.Unlock()

	if to == models.StateDisconnected && held && s.focus != nil {
		s.focus.AbandonFocus(addr)
	}

	s.listenerMu.Lock()
	listeners := make([]profiles.ConnectionListener, len(s.connListeners))
	copy(listeners, s.connListeners)
	s.listenerMu.Unlock()

	for _, l := range listeners {
		l.ProfileConnectionStateChanged(s.Profile(), addr, from, to)
	}
}

// removeStateMachine is the self-removal callback from a state machine that
// reached its terminal disconnect.
func (s *Service) removeStateMachine(addr models.Address) {
	s.mu.Lock()

	delete(s.machines, addr)
	delete(s.states, addr)
	delete(s.focusHeld, addr)

	if s.active == addr {
		s.active = ""
	}

	s.mu.Unlock()
}

func (s *Service) notifyActiveDeviceChanged(addr models.Address) {
	s.listenerMu.Lock()
	listeners := make([]profiles.ActiveDeviceListener, len(s.activeListeners))
	copy(listeners, s.activeListeners)
	s.listenerMu.Unlock()

	for _, l := range listeners {
		l.ProfileActiveDeviceChanged(s.Profile(), addr)
	}
}
