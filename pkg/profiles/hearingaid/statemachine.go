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

package hearingaid

import (
	"time"

	"github.com/carverauto/bthost/pkg/logger"
	"github.com/carverauto/bthost/pkg/models"
	"github.com/carverauto/bthost/pkg/stack"
)

// Hearing aids pair over LE; connection establishment can be slow while the
// remote is out of its case, so the timeout is generous.
const connectTimeout = 30 * time.Second

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

// stateMachine drives one hearing aid device. Same serialization contract
// as the other profile machines: one goroutine, messages in arrival order,
// self-removal on terminal disconnect.
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
		msgs:   make(chan smMessage, 32),
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

	var timer *time.Timer

	var timerCh <-chan time.Time

	arm := func() {
		timer = time.NewTimer(connectTimeout)
		timerCh = timer.C
	}

	disarm := func() {
		if timer != nil {
			timer.Stop()
			timer = nil
			timerCh = nil
		}
	}

	for {
		select {
		case msg := <-sm.msgs:
			switch msg.kind {
			case smQuit:
				disarm()
				return

			case smConnect:
				if sm.state != models.StateDisconnected {
					continue
				}

				if !sm.bridge.Connect(sm.addr) {
					sm.svc.removeStateMachine(sm.addr)
					return
				}

				sm.transitionTo(models.StateConnecting)
				arm()

			case smDisconnect:
				switch sm.state {
				case models.StateConnected:
					sm.bridge.Disconnect(sm.addr)
					sm.transitionTo(models.StateDisconnecting)
					arm()
				case models.StateConnecting:
					sm.bridge.Disconnect(sm.addr)
					disarm()
					sm.finish()

					return
				}

			case smStackEvent:
				if msg.event.Type != stack.EventConnectionStateChanged {
					continue
				}

				switch models.ConnectionState(msg.event.Int) {
				case models.StateConnected:
					if sm.state == models.StateConnecting || sm.state == models.StateDisconnected {
						disarm()
						sm.transitionTo(models.StateConnected)
					}
				case models.StateConnecting:
					if sm.state == models.StateDisconnected {
						sm.transitionTo(models.StateConnecting)
						arm()
					}
				case models.StateDisconnecting:
					if sm.state == models.StateConnected {
						sm.transitionTo(models.StateDisconnecting)
						arm()
					}
				case models.StateDisconnected:
					disarm()
					sm.finish()

					return
				}
			}

		case <-timerCh:
			sm.logger.Warn().
				Str("device", sm.addr.Anonymized()).
				Str("state", sm.state.String()).
				Msg("Hearing aid connection attempt timed out")

			disarm()
			sm.finish()

			return
		}
	}
}

func (sm *stateMachine) transitionTo(state models.ConnectionState) {
	from := sm.state
	sm.state = state
	sm.svc.connectionStateChanged(sm.addr, from, state)
}

func (sm *stateMachine) finish() {
	if sm.state != models.StateDisconnected {
		sm.transitionTo(models.StateDisconnected)
	}

	sm.svc.removeStateMachine(sm.addr)
}
