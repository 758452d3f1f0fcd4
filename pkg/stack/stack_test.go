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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/bthost/pkg/models"
)

const testAddr = models.Address("AA:BB:CC:DD:EE:FF")

func TestFakeBridgeRecordsCommands(t *testing.T) {
	fb := NewFakeBridge()

	assert.True(t, fb.Connect(testAddr))
	assert.True(t, fb.Disconnect(testAddr))
	assert.True(t, fb.SetActiveDevice(testAddr))

	cmds := fb.Commands()
	require.Len(t, cmds, 3)
	assert.Equal(t, Command{Op: "connect", Addr: testAddr}, cmds[0])
	assert.Equal(t, Command{Op: "disconnect", Addr: testAddr}, cmds[1])
	assert.Equal(t, Command{Op: "set_active", Addr: testAddr}, cmds[2])

	assert.Equal(t, 1, fb.CommandCount("connect", testAddr))
	assert.Equal(t, 0, fb.CommandCount("connect", models.Address("11:22:33:44:55:66")))
}

func TestFakeBridgeDispatchFailure(t *testing.T) {
	fb := NewFakeBridge()
	fb.ConnectErr = true

	assert.False(t, fb.Connect(testAddr))
	assert.True(t, fb.Disconnect(testAddr))
}

func TestFakeBridgeInject(t *testing.T) {
	fb := NewFakeBridge()

	var got []Event

	fb.RegisterEventSink(func(ev Event) { got = append(got, ev) })

	fb.Inject(Event{Type: EventConnectionStateChanged, Addr: testAddr, Int: int(models.StateConnected)})
	fb.Inject(Event{Type: EventHiSyncIDChanged, Addr: testAddr, Long: 42})

	require.Len(t, got, 2)
	assert.Equal(t, EventConnectionStateChanged, got[0].Type)
	assert.Equal(t, int(models.StateConnected), got[0].Int)
	assert.Equal(t, int64(42), got[1].Long)
}

func TestFakeBridgeInjectWithoutSink(t *testing.T) {
	fb := NewFakeBridge()
	fb.Inject(Event{Type: EventAudioStateChanged, Addr: testAddr})
}

func TestEventString(t *testing.T) {
	ev := Event{Type: EventConnectionStateChanged, Addr: testAddr, Int: 2}
	assert.Contains(t, ev.String(), "CONNECTION_STATE_CHANGED")
	assert.Contains(t, ev.String(), "XX:XX:XX:XX:XX:FF")
}
