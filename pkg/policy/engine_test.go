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

package policy

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/carverauto/bthost/pkg/logger"
	"github.com/carverauto/bthost/pkg/models"
	"github.com/carverauto/bthost/pkg/profiles"
)

const (
	dev1 = models.Address("AA:BB:CC:DD:EE:FF")
	dev2 = models.Address("11:22:33:44:55:66")
)

const (
	waitFor = time.Second
	tick    = 5 * time.Millisecond
)

type serviceCall struct {
	profile models.Profile
	op      string
	addr    models.Address
	policy  models.ConnectionPolicy
}

// callLog is shared across fake services so cross-profile ordering is
// observable.
type callLog struct {
	mu    sync.Mutex
	calls []serviceCall
}

func (l *callLog) add(c serviceCall) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.calls = append(l.calls, c)
}

func (l *callLog) all() []serviceCall {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]serviceCall, len(l.calls))
	copy(out, l.calls)

	return out
}

func (l *callLog) count(profile models.Profile, op string, addr models.Address) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0

	for _, c := range l.calls {
		if c.profile == profile && c.op == op && c.addr == addr {
			n++
		}
	}

	return n
}

type fakeService struct {
	profile models.Profile
	log     *callLog

	mu       sync.Mutex
	policies map[models.Address]models.ConnectionPolicy
	states   map[models.Address]models.ConnectionState
}

func newFakeService(profile models.Profile, log *callLog) *fakeService {
	return &fakeService{
		profile:  profile,
		log:      log,
		policies: make(map[models.Address]models.ConnectionPolicy),
		states:   make(map[models.Address]models.ConnectionState),
	}
}

func (f *fakeService) Profile() models.Profile { return f.profile }

func (f *fakeService) Connect(addr models.Address) bool {
	f.log.add(serviceCall{profile: f.profile, op: "connect", addr: addr})
	return true
}

func (f *fakeService) Disconnect(addr models.Address) bool {
	f.log.add(serviceCall{profile: f.profile, op: "disconnect", addr: addr})
	return true
}

func (f *fakeService) SetConnectionPolicy(addr models.Address, policy models.ConnectionPolicy) bool {
	f.log.add(serviceCall{profile: f.profile, op: "set_policy", addr: addr, policy: policy})

	f.mu.Lock()
	f.policies[addr] = policy
	f.mu.Unlock()

	return true
}

func (f *fakeService) ConnectionPolicy(addr models.Address) models.ConnectionPolicy {
	f.mu.Lock()
	defer f.mu.Unlock()

	if p, ok := f.policies[addr]; ok {
		return p
	}

	return models.PolicyUnknown
}

func (f *fakeService) ConnectionState(addr models.Address) models.ConnectionState {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.states[addr]
}

func (f *fakeService) setState(addr models.Address, state models.ConnectionState) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.states[addr] = state
}

func (f *fakeService) ConnectedDevices() []models.Address {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []models.Address

	for addr, state := range f.states {
		if state == models.StateConnected {
			out = append(out, addr)
		}
	}

	return out
}

func (*fakeService) Stop() {}

type policyKey struct {
	addr    models.Address
	profile models.Profile
}

type profileEvent struct {
	addr    models.Address
	profile models.Profile
}

type fakeMetaStore struct {
	mu             sync.Mutex
	policies       map[policyKey]models.ConnectionPolicy
	connections    []profileEvent
	disconnections []profileEvent
	activeA2DP     models.Address
	hfpDevices     []models.Address
}

func newFakeMetaStore() *fakeMetaStore {
	return &fakeMetaStore{policies: make(map[policyKey]models.ConnectionPolicy)}
}

func (f *fakeMetaStore) GetProfileConnectionPolicy(addr models.Address, profile models.Profile) models.ConnectionPolicy {
	f.mu.Lock()
	defer f.mu.Unlock()

	if p, ok := f.policies[policyKey{addr, profile}]; ok {
		return p
	}

	return models.PolicyUnknown
}

func (f *fakeMetaStore) SetProfileConnectionPolicy(addr models.Address, profile models.Profile, policy models.ConnectionPolicy) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.policies[policyKey{addr, profile}] = policy

	return true
}

func (f *fakeMetaStore) SetConnection(addr models.Address, profile models.Profile) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.connections = append(f.connections, profileEvent{addr, profile})

	if profile == models.ProfileA2DP {
		f.activeA2DP = addr
	}
}

func (f *fakeMetaStore) SetDisconnection(addr models.Address, profile models.Profile) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.disconnections = append(f.disconnections, profileEvent{addr, profile})
}

func (f *fakeMetaStore) MostRecentlyActiveA2DPDevice() (models.Address, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.activeA2DP, f.activeA2DP != ""
}

func (f *fakeMetaStore) MostRecentlyActiveHFPDevices() []models.Address {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.hfpDevices
}

func (f *fakeMetaStore) connectionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.connections)
}

func (f *fakeMetaStore) disconnectionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.disconnections)
}

type fakeDevices struct {
	mu        sync.Mutex
	bonds     map[models.Address]models.BondState
	quiet     bool
	allowList map[models.Address]bool
	groups    map[models.Address][]models.Address
}

func newFakeDevices() *fakeDevices {
	return &fakeDevices{
		bonds:     make(map[models.Address]models.BondState),
		allowList: make(map[models.Address]bool),
		groups:    make(map[models.Address][]models.Address),
	}
}

func (f *fakeDevices) BondState(addr models.Address) models.BondState {
	f.mu.Lock()
	defer f.mu.Unlock()

	if st, ok := f.bonds[addr]; ok {
		return st
	}

	return models.BondBonded
}

func (f *fakeDevices) QuietMode() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.quiet
}

func (f *fakeDevices) LEAudioAllowed(addr models.Address) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.allowList[addr]
}

func (f *fakeDevices) GroupMembers(addr models.Address) []models.Address {
	f.mu.Lock()
	defer f.mu.Unlock()

	if g, ok := f.groups[addr]; ok {
		return g
	}

	return []models.Address{addr}
}

type engineFixture struct {
	engine   *Engine
	registry *profiles.Registry
	store    *fakeMetaStore
	devices  *fakeDevices
	log      *callLog
}

func newEngine(t *testing.T, cfg models.PolicyConfig, clock Clock) *engineFixture {
	t.Helper()

	f := &engineFixture{
		registry: profiles.NewRegistry(),
		store:    newFakeMetaStore(),
		devices:  newFakeDevices(),
		log:      &callLog{},
	}

	f.engine = NewEngine(f.registry, f.store, f.devices, cfg, clock, logger.NewTestLogger())
	f.engine.Start()
	t.Cleanup(f.engine.Stop)

	return f
}

func (f *engineFixture) addService(profile models.Profile) *fakeService {
	svc := newFakeService(profile, f.log)
	f.registry.Register(svc)

	return svc
}

func classicAudioUUIDs() []uuid.UUID {
	return []uuid.UUID{models.UUIDHFP, models.UUIDAudioSink}
}

func TestInitialPoliciesClassicOnly(t *testing.T) {
	f := newEngine(t, models.PolicyConfig{}, nil)
	f.addService(models.ProfileHeadset)
	f.addService(models.ProfileA2DP)
	f.addService(models.ProfileHIDHost)

	f.engine.OnUuidsDiscovered(dev1, classicAudioUUIDs())

	require.Eventually(t, func() bool {
		return f.log.count(models.ProfileHeadset, "set_policy", dev1) == 1 &&
			f.log.count(models.ProfileA2DP, "set_policy", dev1) == 1
	}, waitFor, tick)

	for _, c := range f.log.all() {
		assert.Equal(t, models.PolicyAllowed, c.policy)
	}

	// HID was not advertised.
	assert.Equal(t, 0, f.log.count(models.ProfileHIDHost, "set_policy", dev1))
}

func TestInitialPoliciesLEAudioWinsAudioFamily(t *testing.T) {
	cfg := models.PolicyConfig{LEAudioEnabledByDefault: true}
	f := newEngine(t, cfg, nil)
	f.devices.allowList[dev1] = true

	headset := f.addService(models.ProfileHeadset)
	a2dp := f.addService(models.ProfileA2DP)
	le := f.addService(models.ProfileLEAudio)
	csip := f.addService(models.ProfileCSIPSetCoordinator)
	vc := f.addService(models.ProfileVolumeControl)

	f.engine.OnUuidsDiscovered(dev1, []uuid.UUID{
		models.UUIDHFP,
		models.UUIDAudioSink,
		models.UUIDLEAudio,
		models.UUIDCoordinatedSet,
		models.UUIDVolumeControl,
	})

	require.Eventually(t, func() bool {
		return le.ConnectionPolicy(dev1) == models.PolicyAllowed
	}, waitFor, tick)

	assert.Equal(t, models.PolicyForbidden, headset.ConnectionPolicy(dev1))
	assert.Equal(t, models.PolicyForbidden, a2dp.ConnectionPolicy(dev1))
	assert.Equal(t, models.PolicyAllowed, csip.ConnectionPolicy(dev1))
	assert.Equal(t, models.PolicyAllowed, vc.ConnectionPolicy(dev1))

	// CSIP and Volume Control are decided before LE Audio.
	var order []models.Profile

	for _, c := range f.log.all() {
		if c.op == "set_policy" {
			order = append(order, c.profile)
		}
	}

	idx := func(p models.Profile) int {
		for i, q := range order {
			if q == p {
				return i
			}
		}

		return -1
	}

	assert.Less(t, idx(models.ProfileCSIPSetCoordinator), idx(models.ProfileLEAudio))
	assert.Less(t, idx(models.ProfileVolumeControl), idx(models.ProfileLEAudio))
}

func TestInitialPoliciesLEAudioNotOnAllowList(t *testing.T) {
	cfg := models.PolicyConfig{LEAudioEnabledByDefault: true}
	f := newEngine(t, cfg, nil)

	headset := f.addService(models.ProfileHeadset)
	le := f.addService(models.ProfileLEAudio)

	f.engine.OnUuidsDiscovered(dev1, []uuid.UUID{models.UUIDHFP, models.UUIDLEAudio})

	require.Eventually(t, func() bool {
		return le.ConnectionPolicy(dev1) == models.PolicyForbidden
	}, waitFor, tick)

	assert.Equal(t, models.PolicyAllowed, headset.ConnectionPolicy(dev1))
}

func TestInitialPoliciesLEAudioOnlyBypassesAllowList(t *testing.T) {
	cfg := models.PolicyConfig{LEAudioEnabledByDefault: true}
	f := newEngine(t, cfg, nil)

	le := f.addService(models.ProfileLEAudio)

	f.engine.OnUuidsDiscovered(dev1, []uuid.UUID{models.UUIDLEAudio})

	require.Eventually(t, func() bool {
		return le.ConnectionPolicy(dev1) == models.PolicyAllowed
	}, waitFor, tick)
}

func TestInitialPoliciesSkipUnbonded(t *testing.T) {
	f := newEngine(t, models.PolicyConfig{}, nil)
	f.devices.bonds[dev1] = models.BondNone
	f.addService(models.ProfileHeadset)

	f.engine.OnUuidsDiscovered(dev1, classicAudioUUIDs())

	// Give the worker a chance to mishandle it.
	f.engine.HandleACLConnected(dev2)
	require.Eventually(t, func() bool {
		return f.store.connectionCount() == 1
	}, waitFor, tick)

	assert.Empty(t, f.log.all())
}

func TestInitialPoliciesSkipKnownPolicy(t *testing.T) {
	f := newEngine(t, models.PolicyConfig{}, nil)
	f.addService(models.ProfileHeadset)
	f.store.SetProfileConnectionPolicy(dev1, models.ProfileHeadset, models.PolicyForbidden)

	f.engine.OnUuidsDiscovered(dev1, []uuid.UUID{models.UUIDHFP})

	f.engine.HandleACLConnected(dev2)
	require.Eventually(t, func() bool {
		return f.store.connectionCount() == 1
	}, waitFor, tick)

	// A previously decided policy is left alone.
	assert.Equal(t, 0, f.log.count(models.ProfileHeadset, "set_policy", dev1))
}

func TestAutoConnectQuietMode(t *testing.T) {
	f := newEngine(t, models.PolicyConfig{}, nil)
	f.devices.quiet = true
	f.store.activeA2DP = dev1

	headset := f.addService(models.ProfileHeadset)
	headset.SetConnectionPolicy(dev1, models.PolicyAllowed)

	f.engine.AutoConnect()

	f.engine.HandleACLConnected(dev2)
	require.Eventually(t, func() bool {
		return f.store.connectionCount() == 1
	}, waitFor, tick)

	assert.Equal(t, 0, f.log.count(models.ProfileHeadset, "connect", dev1))
}

func TestAutoConnectMostRecentA2DPDevice(t *testing.T) {
	f := newEngine(t, models.PolicyConfig{}, nil)
	f.store.activeA2DP = dev1
	f.store.hfpDevices = []models.Address{dev2}

	headset := f.addService(models.ProfileHeadset)
	a2dp := f.addService(models.ProfileA2DP)
	hid := f.addService(models.ProfileHIDHost)

	headset.SetConnectionPolicy(dev1, models.PolicyAllowed)
	a2dp.SetConnectionPolicy(dev1, models.PolicyAllowed)
	hid.SetConnectionPolicy(dev1, models.PolicyForbidden)

	f.engine.AutoConnect()

	require.Eventually(t, func() bool {
		return f.log.count(models.ProfileHeadset, "connect", dev1) == 1 &&
			f.log.count(models.ProfileA2DP, "connect", dev1) == 1
	}, waitFor, tick)

	// HID policy is forbidden, and the HFP fallback path must not run.
	assert.Equal(t, 0, f.log.count(models.ProfileHIDHost, "connect", dev1))
	assert.Equal(t, 0, f.log.count(models.ProfileHeadset, "connect", dev2))
}

func TestAutoConnectHFPFallback(t *testing.T) {
	f := newEngine(t, models.PolicyConfig{}, nil)
	f.store.hfpDevices = []models.Address{dev1, dev2}

	headset := f.addService(models.ProfileHeadset)
	headset.SetConnectionPolicy(dev1, models.PolicyAllowed)
	headset.SetConnectionPolicy(dev2, models.PolicyAllowed)

	f.engine.AutoConnect()

	require.Eventually(t, func() bool {
		return f.log.count(models.ProfileHeadset, "connect", dev1) == 1
	}, waitFor, tick)

	// Multi-HFP is off: only the most recent device connects.
	assert.Equal(t, 0, f.log.count(models.ProfileHeadset, "connect", dev2))
}

func TestAutoConnectMultipleHFP(t *testing.T) {
	f := newEngine(t, models.PolicyConfig{AutoConnectMultipleHFP: true}, nil)
	f.store.hfpDevices = []models.Address{dev1, dev2}

	headset := f.addService(models.ProfileHeadset)
	headset.SetConnectionPolicy(dev1, models.PolicyAllowed)
	headset.SetConnectionPolicy(dev2, models.PolicyAllowed)

	f.engine.AutoConnect()

	require.Eventually(t, func() bool {
		return f.log.count(models.ProfileHeadset, "connect", dev1) == 1 &&
			f.log.count(models.ProfileHeadset, "connect", dev2) == 1
	}, waitFor, tick)
}

func TestConnectOtherProfilesSweep(t *testing.T) {
	ctrl := gomock.NewController(t)
	clock := NewMockClock(ctrl)

	var (
		mu      sync.Mutex
		sweepFn func()
	)

	scheduled := make(chan struct{})

	clock.EXPECT().
		AfterFunc(defaultConnectOtherProfilesDelay, gomock.Any()).
		DoAndReturn(func(_ time.Duration, fn func()) Timer {
			mu.Lock()
			sweepFn = fn
			mu.Unlock()
			close(scheduled)

			return NewMockTimer(ctrl)
		}).
		Times(1)

	f := newEngine(t, models.PolicyConfig{}, clock)

	headset := f.addService(models.ProfileHeadset)
	a2dp := f.addService(models.ProfileA2DP)

	headset.SetConnectionPolicy(dev1, models.PolicyAllowed)
	a2dp.SetConnectionPolicy(dev1, models.PolicyAllowed)
	headset.setState(dev1, models.StateConnected)

	f.engine.ProfileConnectionStateChanged(models.ProfileHeadset, dev1, models.StateConnecting, models.StateConnected)

	select {
	case <-scheduled:
	case <-time.After(waitFor):
		t.Fatal("sweep was not scheduled")
	}

	// A second CONNECTED transition while a sweep is pending must not arm
	// another timer; the mock's Times(1) enforces it.
	f.engine.ProfileConnectionStateChanged(models.ProfileA2DP, dev1, models.StateConnecting, models.StateConnected)

	mu.Lock()
	fire := sweepFn
	mu.Unlock()
	fire()

	require.Eventually(t, func() bool {
		return f.log.count(models.ProfileA2DP, "connect", dev1) == 1
	}, waitFor, tick)

	// The headset is already connected; no attempt.
	assert.Equal(t, 0, f.log.count(models.ProfileHeadset, "connect", dev1))
}

func TestSweepRetriesEachProfileOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	clock := NewMockClock(ctrl)

	var (
		mu      sync.Mutex
		sweepFn func()
	)

	fired := make(chan struct{}, 4)

	clock.EXPECT().
		AfterFunc(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ time.Duration, fn func()) Timer {
			mu.Lock()
			sweepFn = fn
			mu.Unlock()
			fired <- struct{}{}

			return NewMockTimer(ctrl)
		}).
		AnyTimes()

	f := newEngine(t, models.PolicyConfig{}, clock)

	headset := f.addService(models.ProfileHeadset)
	a2dp := f.addService(models.ProfileA2DP)

	headset.SetConnectionPolicy(dev1, models.PolicyAllowed)
	a2dp.SetConnectionPolicy(dev1, models.PolicyAllowed)
	headset.setState(dev1, models.StateConnected)

	f.engine.ProfileConnectionStateChanged(models.ProfileHeadset, dev1, models.StateConnecting, models.StateConnected)
	<-fired

	mu.Lock()
	sweepFn()
	mu.Unlock()

	require.Eventually(t, func() bool {
		return f.log.count(models.ProfileA2DP, "connect", dev1) == 1
	}, waitFor, tick)

	// Another CONNECTED transition schedules a new sweep, but A2DP carries a
	// retry mark and is skipped.
	f.engine.ProfileConnectionStateChanged(models.ProfileHeadset, dev1, models.StateConnecting, models.StateConnected)
	<-fired

	mu.Lock()
	sweepFn()
	mu.Unlock()

	f.engine.HandleACLConnected(dev2)
	require.Eventually(t, func() bool {
		return f.store.connectionCount() == 1
	}, waitFor, tick)

	assert.Equal(t, 1, f.log.count(models.ProfileA2DP, "connect", dev1))
}

func TestDisconnectionFromConnectingRecorded(t *testing.T) {
	f := newEngine(t, models.PolicyConfig{}, nil)
	f.addService(models.ProfileHeadset)

	f.engine.ProfileConnectionStateChanged(models.ProfileHeadset, dev1, models.StateConnecting, models.StateDisconnected)

	require.Eventually(t, func() bool {
		return f.store.disconnectionCount() == 1
	}, waitFor, tick)
}

func TestFullDisconnectCancelsPendingSweep(t *testing.T) {
	ctrl := gomock.NewController(t)
	clock := NewMockClock(ctrl)
	timer := NewMockTimer(ctrl)

	stopped := make(chan struct{})

	clock.EXPECT().
		AfterFunc(gomock.Any(), gomock.Any()).
		Return(timer).
		Times(1)
	timer.EXPECT().
		Stop().
		DoAndReturn(func() bool {
			close(stopped)
			return true
		}).
		Times(1)

	f := newEngine(t, models.PolicyConfig{}, clock)

	headset := f.addService(models.ProfileHeadset)
	headset.setState(dev1, models.StateConnected)

	f.engine.ProfileConnectionStateChanged(models.ProfileHeadset, dev1, models.StateConnecting, models.StateConnected)

	headset.setState(dev1, models.StateDisconnected)
	f.engine.ProfileConnectionStateChanged(models.ProfileHeadset, dev1, models.StateConnected, models.StateDisconnected)

	select {
	case <-stopped:
	case <-time.After(waitFor):
		t.Fatal("pending sweep was not canceled")
	}
}

func TestActiveDeviceRecordsConnection(t *testing.T) {
	f := newEngine(t, models.PolicyConfig{}, nil)

	f.engine.ProfileActiveDeviceChanged(models.ProfileA2DP, dev1)

	require.Eventually(t, func() bool {
		return f.store.connectionCount() == 1
	}, waitFor, tick)

	addr, ok := f.store.MostRecentlyActiveA2DPDevice()
	require.True(t, ok)
	assert.Equal(t, dev1, addr)
}

func TestLEAudioActiveForbidsClassicForGroup(t *testing.T) {
	f := newEngine(t, models.PolicyConfig{}, nil)
	f.devices.groups[dev1] = []models.Address{dev1, dev2}

	headset := f.addService(models.ProfileHeadset)
	a2dp := f.addService(models.ProfileA2DP)
	asha := f.addService(models.ProfileHearingAid)

	f.engine.ProfileActiveDeviceChanged(models.ProfileLEAudio, dev1)

	require.Eventually(t, func() bool {
		return asha.ConnectionPolicy(dev2) == models.PolicyForbidden
	}, waitFor, tick)

	for _, addr := range []models.Address{dev1, dev2} {
		assert.Equal(t, models.PolicyForbidden, headset.ConnectionPolicy(addr))
		assert.Equal(t, models.PolicyForbidden, a2dp.ConnectionPolicy(addr))
		assert.Equal(t, models.PolicyForbidden, asha.ConnectionPolicy(addr))
	}
}

func TestLEAudioActiveDualModeKeepsClassic(t *testing.T) {
	f := newEngine(t, models.PolicyConfig{DualModeAudioEnabled: true}, nil)
	f.devices.groups[dev1] = []models.Address{dev1, dev2}

	headset := f.addService(models.ProfileHeadset)

	f.engine.ProfileActiveDeviceChanged(models.ProfileLEAudio, dev1)

	require.Eventually(t, func() bool {
		return f.store.connectionCount() == 1
	}, waitFor, tick)

	assert.Equal(t, models.PolicyUnknown, headset.ConnectionPolicy(dev1))
	assert.Equal(t, models.PolicyUnknown, headset.ConnectionPolicy(dev2))
}

// Bond, discover A2DP-sink UUID only, record the connection, then power-on
// auto-connect picks the same device first.
func TestDiscoveryToAutoConnectFlow(t *testing.T) {
	f := newEngine(t, models.PolicyConfig{}, nil)

	headset := f.addService(models.ProfileHeadset)
	a2dp := f.addService(models.ProfileA2DP)

	f.engine.OnUuidsDiscovered(dev1, []uuid.UUID{models.UUIDAudioSink})

	require.Eventually(t, func() bool {
		return a2dp.ConnectionPolicy(dev1) == models.PolicyAllowed
	}, waitFor, tick)

	// Headset UUID was absent, so its policy stays unknown.
	assert.Equal(t, models.PolicyUnknown, headset.ConnectionPolicy(dev1))

	f.engine.ProfileActiveDeviceChanged(models.ProfileA2DP, dev1)

	require.Eventually(t, func() bool {
		addr, ok := f.store.MostRecentlyActiveA2DPDevice()
		return ok && addr == dev1
	}, waitFor, tick)

	f.engine.AutoConnect()

	require.Eventually(t, func() bool {
		return f.log.count(models.ProfileA2DP, "connect", dev1) == 1
	}, waitFor, tick)

	// Headset stays unknown, so no headset attempt.
	assert.Equal(t, 0, f.log.count(models.ProfileHeadset, "connect", dev1))
}
