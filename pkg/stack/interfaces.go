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

import "github.com/carverauto/bthost/pkg/models"

//go:generate mockgen -destination=mock_stack.go -package=stack github.com/carverauto/bthost/pkg/stack Bridge

// Bridge is the per-profile command surface into the native stack. Commands
// are fire-and-forget: the bool return only reports that the command was
// dispatched, and the outcome arrives later as an Event on the registered
// sink.
type Bridge interface {
	Connect(addr models.Address) bool
	Disconnect(addr models.Address) bool
	SetActiveDevice(addr models.Address) bool

	// RegisterEventSink installs the callback receiving stack events. Must be
	// called before any command; events may be delivered from an internal
	// goroutine.
	RegisterEventSink(sink func(Event))
}
