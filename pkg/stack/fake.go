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

package stack

import (
	"sync"

	"github.com/carverauto/bthost/pkg/models"
)

// Command records one outbound bridge call for test inspection.
type Command struct {
	Op   string
	Addr models.Address
}

// FakeBridge is an in-memory Bridge for tests. It records every command and
// lets the test inject events into the registered sink.
type FakeBridge struct {
	mu       sync.Mutex
	sink     func(Event)
	commands []Command

	// Per-op dispatch results, default true.
	ConnectErr    bool
	DisconnectErr bool
	SetActiveErr  bool
}

// NewFakeBridge returns a FakeBridge whose commands all succeed.
func NewFakeBridge() *FakeBridge {
	return &FakeBridge{}
}

func (f *FakeBridge) Connect(addr models.Address) bool {
	f.record("connect", addr)
	return !f.ConnectErr
}

func (f *FakeBridge) Disconnect(addr models.Address) bool {
	f.record("disconnect", addr)
	return !f.DisconnectErr
}

func (f *FakeBridge) SetActiveDevice(addr models.Address) bool {
	f.record("set_active", addr)
	return !f.SetActiveErr
}

func (f *FakeBridge) RegisterEventSink(sink func(Event)) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sink = sink
}

// Inject delivers an event to the registered sink, synchronously on the
// caller's goroutine. No-op when no sink is registered.
func (f *FakeBridge) Inject(ev Event) {
	f.mu.Lock()
	sink := f.sink
	f.mu.Unlock()

	if sink != nil {
		sink(ev)
	}
}

// Commands returns a copy of the recorded command list.
func (f *FakeBridge) Commands() []Command {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]Command, len(f.commands))
	copy(out, f.commands)

	return out
}

// CommandCount returns how many times the given op was dispatched for addr.
func (f *FakeBridge) CommandCount(op string, addr models.Address) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	count := 0

	for _, c := range f.commands {
		if c.Op == op && c.Addr == addr {
			count++
		}
	}

	return count
}

func (f *FakeBridge) record(op string, addr models.Address) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.commands = append(f.commands, Command{Op: op, Addr: addr})
}
