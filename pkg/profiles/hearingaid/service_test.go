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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/bthost/pkg/logger"
	"github.com/carverauto/bthost/pkg/models"
	"github.com/carverauto/bthost/pkg/stack"
)

const (
	leftEar  = models.Address("AA:BB:CC:DD:EE:01")
	rightEar = models.Address("AA:BB:CC:DD:EE:02")
	otherAid = models.Address("11:22:33:44:55:66")

	pairSyncID  = int64(0x1122334455)
	otherSyncID = int64(0x99AABBCCDD)
)

const (
	waitFor = time.Second
	tick    = 5 * time.Millisecond
)

type policyKey struct {
	addr    models.Address
	profile models.Profile
}

type fakeStore struct {
	mu       sync.Mutex
	policies map[policyKey]models.ConnectionPolicy
}

func newFakeStore() *fakeStore {
	return &fakeStore{policies: make(map[policyKey]models.ConnectionPolicy)}
}

func (f *fakeStore) GetProfileConnectionPolicy(addr models.Address, profile models.Profile) models.ConnectionPolicy {
	f.mu.Lock()
	defer f.mu.Unlock()

	if p, ok := f.policies[policyKey{addr, profile}]; ok {
		return p
	}

	return models.PolicyUnknown
}

func (f *fakeStore) SetProfileConnectionPolicy(addr models.Address, profile models.Profile, policy models.ConnectionPolicy) bool {
	if addr == "" || !policy.Valid() {
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.policies[policyKey{addr, profile}] = policy

	return true
}

func newService(t *testing.T, store *fakeStore, maxStateMachines int) (*Service, *stack.FakeBridge) {
	t.Helper()

	fb := stack.NewFakeBridge()
	svc := New(fb, store, maxStateMachines, logger.NewTestLogger())
	t.Cleanup(svc.Stop)

	return svc, fb
}

func reportSyncID(fb *stack.FakeBridge, addr models.Address, syncID int64) {
	fb.Inject(stack.Event{Type: stack.EventHiSyncIDChanged, Addr: addr, Long: syncID})
}

func connectDevice(t *testing.T, svc *Service, fb *stack.FakeBridge, addr models.Address) {
	t.Helper()

	require.True(t, svc.Connect(addr))
	require.Eventually(t, func() bool {
		return fb.CommandCount("connect", addr) >= 1
	}, waitFor, tick)

	fb.Inject(stack.Event{
		Type: stack.EventConnectionStateChanged,
		Addr: addr,
		Int:  int(models.StateConnected),
	})
	require.Eventually(t, func() bool {
		return svc.ConnectionState(addr) == models.StateConnected
	}, waitFor, tick)
}

func TestHiSyncIDTracking(t *testing.T) {
	svc, fb := newService(t, newFakeStore(), 4)

	assert.Equal(t, int64(0), svc.HiSyncID(leftEar))

	reportSyncID(fb, leftEar, pairSyncID)
	reportSyncID(fb, rightEar, pairSyncID)

	assert.Equal(t, pairSyncID, svc.HiSyncID(leftEar))
	assert.Equal(t, pairSyncID, svc.HiSyncID(rightEar))
}

func TestConnectPropagatesToPair(t *testing.T) {
	svc, fb := newService(t, newFakeStore(), 4)

	reportSyncID(fb, leftEar, pairSyncID)
	reportSyncID(fb, rightEar, pairSyncID)

	require.True(t, svc.Connect(leftEar))

	// Both ears of the pair get a stack dispatch.
	require.Eventually(t, func() bool {
		return fb.CommandCount("connect", leftEar) == 1 &&
			fb.CommandCount("connect", rightEar) == 1
	}, waitFor, tick)
}

func TestConnectWithoutSyncIDIsSingleDevice(t *testing.T) {
	svc, fb := newService(t, newFakeStore(), 4)

	require.True(t, svc.Connect(leftEar))
	require.Eventually(t, func() bool {
		return fb.CommandCount("connect", leftEar) == 1
	}, waitFor, tick)

	assert.Equal(t, 0, fb.CommandCount("connect", rightEar))
}

func TestConnectForbiddenPolicy(t *testing.T) {
	store := newFakeStore()
	store.SetProfileConnectionPolicy(leftEar, models.ProfileHearingAid, models.PolicyForbidden)

	svc, fb := newService(t, store, 4)

	assert.False(t, svc.Connect(leftEar))
	assert.Empty(t, fb.Commands())
}

func TestConnectForbiddenPairMemberSkipped(t *testing.T) {
	store := newFakeStore()
	store.SetProfileConnectionPolicy(rightEar, models.ProfileHearingAid, models.PolicyForbidden)

	svc, fb := newService(t, store, 4)

	reportSyncID(fb, leftEar, pairSyncID)
	reportSyncID(fb, rightEar, pairSyncID)

	require.True(t, svc.Connect(leftEar))
	require.Eventually(t, func() bool {
		return fb.CommandCount("connect", leftEar) == 1
	}, waitFor, tick)

	assert.Equal(t, 0, fb.CommandCount("connect", rightEar))
}

func TestConnectNotBonded(t *testing.T) {
	svc, fb := newService(t, newFakeStore(), 4)
	svc.SetBondStateProvider(func(models.Address) models.BondState {
		return models.BondNone
	})

	assert.False(t, svc.Connect(leftEar))
	assert.Empty(t, fb.Commands())
}

func TestConnectQuietMode(t *testing.T) {
	svc, fb := newService(t, newFakeStore(), 4)

	quiet := true
	svc.SetQuietModeProvider(func() bool { return quiet })

	assert.False(t, svc.Connect(leftEar))
	assert.Empty(t, fb.Commands())

	quiet = false
	require.True(t, svc.Connect(leftEar))
	require.Eventually(t, func() bool {
		return fb.CommandCount("connect", leftEar) == 1
	}, waitFor, tick)
}

func TestSwitchingPairsDisconnectsPrevious(t *testing.T) {
	svc, fb := newService(t, newFakeStore(), 8)

	reportSyncID(fb, leftEar, pairSyncID)
	reportSyncID(fb, rightEar, pairSyncID)
	reportSyncID(fb, otherAid, otherSyncID)

	connectDevice(t, svc, fb, leftEar)
	fb.Inject(stack.Event{
		Type: stack.EventConnectionStateChanged,
		Addr: rightEar,
		Int:  int(models.StateConnected),
	})
	require.Eventually(t, func() bool {
		return svc.ConnectionState(rightEar) == models.StateConnected
	}, waitFor, tick)

	// Connecting a different pair tears down the active one first.
	require.True(t, svc.Connect(otherAid))

	require.Eventually(t, func() bool {
		return fb.CommandCount("disconnect", leftEar) == 1 &&
			fb.CommandCount("disconnect", rightEar) == 1 &&
			fb.CommandCount("connect", otherAid) == 1
	}, waitFor, tick)
}

func TestDisconnectPropagatesToPair(t *testing.T) {
	svc, fb := newService(t, newFakeStore(), 4)

	reportSyncID(fb, leftEar, pairSyncID)
	reportSyncID(fb, rightEar, pairSyncID)

	connectDevice(t, svc, fb, leftEar)
	fb.Inject(stack.Event{
		Type: stack.EventConnectionStateChanged,
		Addr: rightEar,
		Int:  int(models.StateConnected),
	})
	require.Eventually(t, func() bool {
		return svc.ConnectionState(rightEar) == models.StateConnected
	}, waitFor, tick)

	require.True(t, svc.Disconnect(leftEar))
	require.Eventually(t, func() bool {
		return fb.CommandCount("disconnect", leftEar) == 1 &&
			fb.CommandCount("disconnect", rightEar) == 1
	}, waitFor, tick)
}

func TestDisconnectWithoutStateMachine(t *testing.T) {
	svc, fb := newService(t, newFakeStore(), 4)

	assert.False(t, svc.Disconnect(leftEar))
	assert.Empty(t, fb.Commands())
}

func TestBoundedStateMachines(t *testing.T) {
	svc, fb := newService(t, newFakeStore(), 1)

	require.True(t, svc.Connect(leftEar))
	require.Eventually(t, func() bool {
		return fb.CommandCount("connect", leftEar) == 1
	}, waitFor, tick)

	// The cap leaves no slot for a second machine; the request itself still
	// fails because the target device got none.
	assert.False(t, svc.Connect(otherAid))
	assert.Equal(t, 0, fb.CommandCount("connect", otherAid))
}

func TestRemoteConnectionForbiddenPolicy(t *testing.T) {
	store := newFakeStore()
	store.SetProfileConnectionPolicy(leftEar, models.ProfileHearingAid, models.PolicyForbidden)

	svc, fb := newService(t, store, 4)

	fb.Inject(stack.Event{
		Type: stack.EventConnectionStateChanged,
		Addr: leftEar,
		Int:  int(models.StateConnecting),
	})

	assert.Equal(t, 1, fb.CommandCount("disconnect", leftEar))
	assert.Equal(t, models.StateDisconnected, svc.ConnectionState(leftEar))
}

func TestRemoteConnectionCreatesStateMachine(t *testing.T) {
	svc, fb := newService(t, newFakeStore(), 4)

	fb.Inject(stack.Event{
		Type: stack.EventConnectionStateChanged,
		Addr: leftEar,
		Int:  int(models.StateConnected),
	})

	require.Eventually(t, func() bool {
		return svc.ConnectionState(leftEar) == models.StateConnected
	}, waitFor, tick)

	assert.Equal(t, []models.Address{leftEar}, svc.ConnectedDevices())
}

func TestSelfRemovalFreesSlot(t *testing.T) {
	svc, fb := newService(t, newFakeStore(), 1)

	connectDevice(t, svc, fb, leftEar)

	require.True(t, svc.Disconnect(leftEar))
	fb.Inject(stack.Event{
		Type: stack.EventConnectionStateChanged,
		Addr: leftEar,
		Int:  int(models.StateDisconnected),
	})
	require.Eventually(t, func() bool {
		return svc.ConnectionState(leftEar) == models.StateDisconnected
	}, waitFor, tick)

	require.Eventually(t, func() bool {
		return svc.Connect(otherAid)
	}, waitFor, tick)
}

func TestSetConnectionPolicySideEffects(t *testing.T) {
	store := newFakeStore()
	svc, fb := newService(t, store, 4)

	require.True(t, svc.SetConnectionPolicy(leftEar, models.PolicyAllowed))
	require.Eventually(t, func() bool {
		return fb.CommandCount("connect", leftEar) == 1
	}, waitFor, tick)

	fb.Inject(stack.Event{
		Type: stack.EventConnectionStateChanged,
		Addr: leftEar,
		Int:  int(models.StateConnected),
	})
	require.Eventually(t, func() bool {
		return svc.ConnectionState(leftEar) == models.StateConnected
	}, waitFor, tick)

	require.True(t, svc.SetConnectionPolicy(leftEar, models.PolicyForbidden))
	require.Eventually(t, func() bool {
		return fb.CommandCount("disconnect", leftEar) == 1
	}, waitFor, tick)

	assert.Equal(t, models.PolicyForbidden, svc.ConnectionPolicy(leftEar))
}

func TestStopTerminatesStateMachines(t *testing.T) {
	svc, fb := newService(t, newFakeStore(), 4)

	reportSyncID(fb, leftEar, pairSyncID)
	reportSyncID(fb, rightEar, pairSyncID)

	connectDevice(t, svc, fb, leftEar)

	svc.Stop()

	assert.Empty(t, svc.ConnectedDevices())
	assert.Equal(t, models.StateDisconnected, svc.ConnectionState(leftEar))

	// The sync id table survives Stop; only the machines are torn down.
	assert.Equal(t, pairSyncID, svc.HiSyncID(leftEar))
}
