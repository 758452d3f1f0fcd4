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

package a2dpsink

import (
	"time"

	"github.com/carverauto/bthost/pkg/logger"
	"github.com/carverauto/bthost/pkg/models"
	"github.com/carverauto/bthost/pkg/stack"
)

const (
	connectTimeout = 30 * time.Second

	smQueueSize = 32
)

type smMessageKind int

const (
	smConnect smMessageKind = iota
	smDisconnect
	smStackEvent
	smQuit
)

type smMessage struct {
	kind  smMessageKind
	event stack.Event
}

// stateMachine serializes connect/disconnect requests and stack events for
// one device on its own goroutine. Messages are processed strictly in
// arrival order. The owning service holds the only reference; the back
// pointer is for lifecycle callbacks, not ownership.
type stateMachine struct {
	addr   models.Address
	svc    *Service
	bridge stack.Bridge
	logger logger.Logger

	msgs chan smMessage
	done chan struct{}

	state models.ConnectionState
}

func newStateMachine(addr models.Address, svc *Service, bridge stack.Bridge, log logger.Logger) *stateMachine {
	sm := &stateMachine{
		addr:   addr,
		svc:    svc,
		bridge: bridge,
		logger: log,
		msgs:   make(chan smMessage, smQueueSize),
		done:   make(chan struct{}),
		state:  models.StateDisconnected,
	}

	go sm.run()

	return sm
}

func (sm *stateMachine) send(msg smMessage) {
	select {
	case sm.msgs <- msg:
	case <-sm.done:
	}
}

func (sm *stateMachine) run() {
	defer close(sm.done)

	var timeout *time.Timer

	var timeoutCh <-chan time.Time

	armTimeout := func() {
		timeout = time.NewTimer(connectTimeout)
		timeoutCh = timeout.C
	}

	disarmTimeout := func() {
		if timeout != nil {
			timeout.Stop()
			timeout = nil
			timeoutCh = nil
		}
	}

	for {
		select {
		case msg := <-sm.msgs:
			switch msg.kind {
			case smQuit:
				disarmTimeout()
				return

			case smConnect:
				if sm.state != models.StateDisconnected {
					continue
				}

				if !sm.bridge.Connect(sm.addr) {
					sm.logger.Warn().
						Str("device", sm.addr.Anonymized()).
						Msg("Connect dispatch failed")

					sm.svc.removeStateMachine(sm.addr)

					return
				}

				sm.transitionTo(models.StateConnecting)
				armTimeout()

			case smDisconnect:
				switch sm.state {
				case models.StateConnected:
					sm.bridge.Disconnect(sm.addr)
					sm.transitionTo(models.StateDisconnecting)
					armTimeout()
				case models.StateConnecting:
					// Abort: no user-visible disconnecting phase.
					sm.bridge.Disconnect(sm.addr)
					disarmTimeout()
					sm.enterDisconnected()

					return
				}

			case smStackEvent:
				if sm.handleStackEvent(msg.event, disarmTimeout, armTimeout) {
					return
				}
			}

		case <-timeoutCh:
			sm.logger.Warn().
				Str("device", sm.addr.Anonymized()).
				Str("state", sm.state.String()).
				Msg("Connection attempt timed out")

			disarmTimeout()
			sm.enterDisconnected()

			return
		}
	}
}

// handleStackEvent applies a native connection-state event. Returns true
// when the state machine has terminated.
func (sm *stateMachine) handleStackEvent(ev stack.Event, disarmTimeout, armTimeout func()) bool {
	if ev.Type != stack.EventConnectionStateChanged {
		return false
	}

	remote := models.ConnectionState(ev.Int)

	switch remote {
	case models.StateConnected:
		if sm.state == models.StateConnecting || sm.state == models.StateDisconnected {
			disarmTimeout()
			sm.transitionTo(models.StateConnected)
		}

	case models.StateConnecting:
		if sm.state == models.StateDisconnected {
			sm.transitionTo(models.StateConnecting)
			armTimeout()
		}

	case models.StateDisconnecting:
		if sm.state == models.StateConnected {
			sm.transitionTo(models.StateDisconnecting)
			armTimeout()
		}

	case models.StateDisconnected:
		// Clean teardown and unexpected loss both land here; only the
		// bookkeeping above differs by what states were announced.
		disarmTimeout()
		sm.enterDisconnected()

		return true
	}

	return false
}

func (sm *stateMachine) transitionTo(state models.ConnectionState) {
	from := sm.state
	sm.state = state

	sm.logger.Debug().
		Str("device", sm.addr.Anonymized()).
		Str("from", from.String()).
		Str("to", state.String()).
		Msg("Connection state changed")

	sm.svc.connectionStateChanged(sm.addr, from, state)
}

// enterDisconnected finishes the lifecycle: announce the transition, then
// unregister from the owning service.
func (sm *stateMachine) enterDisconnected() {
	if sm.state != models.StateDisconnected {
		sm.transitionTo(models.StateDisconnected)
	}

	sm.svc.removeStateMachine(sm.addr)
}
