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

// Package stack defines the boundary to the native Bluetooth stack: outbound
// fire-and-forget commands and inbound asynchronous events.
package stack

import (
	"fmt"

	"github.com/carverauto/bthost/pkg/models"
)

// EventType identifies the kind of native stack event.
type EventType int

const (
	// EventConnectionStateChanged carries the new ConnectionState in Int.
	EventConnectionStateChanged EventType = iota + 1
	// EventAudioStateChanged carries the new AudioState in Int.
	EventAudioStateChanged
	// EventAudioConfigChanged signals a codec or channel config change.
	EventAudioConfigChanged
	// EventHiSyncIDChanged carries the hearing-aid hiSyncId in Long.
	EventHiSyncIDChanged
)

func (t EventType) String() string {
	switch t {
	case EventConnectionStateChanged:
		return "CONNECTION_STATE_CHANGED"
	case EventAudioStateChanged:
		return "AUDIO_STATE_CHANGED"
	case EventAudioConfigChanged:
		return "AUDIO_CONFIG_CHANGED"
	case EventHiSyncIDChanged:
		return "HI_SYNC_ID_CHANGED"
	default:
		return "UNKNOWN_EVENT"
	}
}

// AudioState is the streaming state reported for audio profiles.
type AudioState int

const (
	AudioStateStopped AudioState = iota
	AudioStatePlaying
	AudioStateRemoteSuspend
)

func (s AudioState) String() string {
	switch s {
	case AudioStateStopped:
		return "STOPPED"
	case AudioStatePlaying:
		return "PLAYING"
	case AudioStateRemoteSuspend:
		return "REMOTE_SUSPEND"
	default:
		return "INVALID"
	}
}

// Event is a single asynchronous notification from the native stack. Int and
// Long carry type-dependent payloads.
type Event struct {
	Type EventType
	Addr models.Address
	Int  int
	Long int64
}

func (e Event) String() string {
	return fmt.Sprintf("{%s addr=%s int=%d long=%d}", e.Type, e.Addr.Anonymized(), e.Int, e.Long)
}
