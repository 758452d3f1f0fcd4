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
	"time"

	"github.com/google/uuid"

	"github.com/carverauto/bthost/pkg/logger"
	"github.com/carverauto/bthost/pkg/models"
	"github.com/carverauto/bthost/pkg/profiles"
)

const (
	defaultConnectOtherProfilesDelay = 6 * time.Second
	commandQueueSize                 = 256
)

// command is the typed unit of work consumed by the engine goroutine.
type command interface {
	commandName() string
}

type uuidsDiscoveredCommand struct {
	addr  models.Address
	uuids []uuid.UUID
}

type autoConnectCommand struct{}

type connectionStateCommand struct {
	profile  models.Profile
	addr     models.Address
	from, to models.ConnectionState
}

type activeDeviceCommand struct {
	profile models.Profile
	addr    models.Address
}

type aclConnectedCommand struct {
	addr models.Address
}

type sweepCommand struct {
	addr models.Address
}

type stopCommand struct{}

func (uuidsDiscoveredCommand) commandName() string { return "uuids_discovered" }
func (autoConnectCommand) commandName() string     { return "auto_connect" }
func (connectionStateCommand) commandName() string { return "connection_state" }
func (activeDeviceCommand) commandName() string    { return "active_device" }
func (aclConnectedCommand) commandName() string    { return "acl_connected" }
func (sweepCommand) commandName() string           { return "connect_other_profiles" }
func (stopCommand) commandName() string            { return "stop" }

// profileInit maps a profile to the service-class UUIDs that advertise it.
// The slice order matters: CSIP and Volume Control come before LE Audio
// because LE Audio's connection logic depends on them.
type profileInit struct {
	profile models.Profile
	uuids   []uuid.UUID
}

var initOrder = []profileInit{
	{models.ProfileHeadset, []uuid.UUID{models.UUIDHSP, models.UUIDHFP}},
	{models.ProfileA2DP, []uuid.UUID{models.UUIDAudioSink, models.UUIDAdvAudioDist}},
	{models.ProfileHIDHost, []uuid.UUID{models.UUIDHID, models.UUIDHOGP}},
	{models.ProfilePAN, []uuid.UUID{models.UUIDPANU}},
	{models.ProfileHearingAid, []uuid.UUID{models.UUIDHearingAid}},
	{models.ProfileCSIPSetCoordinator, []uuid.UUID{models.UUIDCoordinatedSet}},
	{models.ProfileVolumeControl, []uuid.UUID{models.UUIDVolumeControl}},
	{models.ProfileLEAudio, []uuid.UUID{models.UUIDLEAudio}},
	{models.ProfileHAPClient, []uuid.UUID{models.UUIDHAS}},
	{models.ProfileBASSClient, []uuid.UUID{models.UUIDBASS}},
	{models.ProfileBattery, []uuid.UUID{models.UUIDBattery}},
}

// classicAudioProfiles lose to LE Audio when dual-mode audio is disabled.
var classicAudioProfiles = []models.Profile{
	models.ProfileHeadset,
	models.ProfileA2DP,
	models.ProfileHearingAid,
}

// Engine is the phone policy engine. All decisions run on a single goroutine
// fed by a typed command channel; public methods enqueue and return.
type Engine struct {
	registry *profiles.Registry
	store    MetadataStore
	devices  DeviceInfo
	cfg      models.PolicyConfig
	clock    Clock
	logger   logger.Logger

	sweepDelay time.Duration

	commands   chan command
	workerDone chan struct{}
	startOnce  sync.Once
	stopOnce   sync.Once

	// Owned by the worker goroutine.
	pendingSweeps map[models.Address]Timer
	retried       map[models.Address]map[models.Profile]struct{}
}

// NewEngine builds the engine. A nil clock selects the wall clock.
func NewEngine(registry *profiles.Registry, store MetadataStore, devices DeviceInfo, cfg models.PolicyConfig, clock Clock, log logger.Logger) *Engine {
	if clock == nil {
		clock = NewClock()
	}

	delay := defaultConnectOtherProfilesDelay
	if cfg.ConnectOtherProfilesDelayMS > 0 {
		delay = time.Duration(cfg.ConnectOtherProfilesDelayMS) * time.Millisecond
	}

	return &Engine{
		registry:      registry,
		store:         store,
		devices:       devices,
		cfg:           cfg,
		clock:         clock,
		logger:        log,
		sweepDelay:    delay,
		commands:      make(chan command, commandQueueSize),
		workerDone:    make(chan struct{}),
		pendingSweeps: make(map[models.Address]Timer),
		retried:       make(map[models.Address]map[models.Profile]struct{}),
	}
}

// Start launches the worker goroutine.
func (e *Engine) Start() {
	e.startOnce.Do(func() {
		go e.worker()
	})
}

// Stop drains the queue and terminates the worker. Pending sweep timers are
// canceled.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.enqueue(stopCommand{})
		<-e.workerDone
	})
}

// OnUuidsDiscovered assigns initial connection policies after service
// discovery.
func (e *Engine) OnUuidsDiscovered(addr models.Address, uuids []uuid.UUID) {
	e.enqueue(uuidsDiscoveredCommand{addr: addr, uuids: uuids})
}

// AutoConnect kicks the power-on reconnection pass.
func (e *Engine) AutoConnect() {
	e.enqueue(autoConnectCommand{})
}

// ProfileConnectionStateChanged implements profiles.ConnectionListener.
func (e *Engine) ProfileConnectionStateChanged(profile models.Profile, addr models.Address, from, to models.ConnectionState) {
	e.enqueue(connectionStateCommand{profile: profile, addr: addr, from: from, to: to})
}

// ProfileActiveDeviceChanged implements profiles.ActiveDeviceListener.
func (e *Engine) ProfileActiveDeviceChanged(profile models.Profile, addr models.Address) {
	e.enqueue(activeDeviceCommand{profile: profile, addr: addr})
}

// HandleACLConnected records link-level connections in the store's
// connection ordering.
func (e *Engine) HandleACLConnected(addr models.Address) {
	e.enqueue(aclConnectedCommand{addr: addr})
}

func (e *Engine) enqueue(cmd command) {
	select {
	case e.commands <- cmd:
	case <-e.workerDone:
		e.logger.Warn().
			Str("command", cmd.commandName()).
			Msg("Dropping command: engine stopped")
	}
}

func (e *Engine) worker() {
	defer close(e.workerDone)

	for cmd := range e.commands {
		switch c := cmd.(type) {
		case uuidsDiscoveredCommand:
			e.handleUuidsDiscovered(c.addr, c.uuids)
		case autoConnectCommand:
			e.handleAutoConnect()
		case connectionStateCommand:
			e.handleConnectionState(c.profile, c.addr, c.from, c.to)
		case activeDeviceCommand:
			e.handleActiveDevice(c.profile, c.addr)
		case aclConnectedCommand:
			e.store.SetConnection(c.addr, models.ProfileGATT)
		case sweepCommand:
			e.handleSweep(c.addr)
		case stopCommand:
			for addr, timer := range e.pendingSweeps {
				timer.Stop()
				delete(e.pendingSweeps, addr)
			}

			return
		}
	}
}

func (e *Engine) handleUuidsDiscovered(addr models.Address, uuids []uuid.UUID) {
	if e.devices.BondState(addr) == models.BondNone {
		e.logger.Debug().
			Str("device", addr.Anonymized()).
			Msg("Skipping policy init: device not bonded")

		return
	}

	leEligible := e.leAudioEligible(addr, uuids)

	for _, init := range initOrder {
		if e.store.GetProfileConnectionPolicy(addr, init.profile) != models.PolicyUnknown {
			continue
		}

		advertised := containsAny(uuids, init.uuids)

		switch init.profile {
		case models.ProfileHeadset, models.ProfileA2DP, models.ProfileHearingAid:
			if !advertised {
				continue
			}

			// LE Audio wins the audio family unless dual-mode audio
			// explicitly permits both.
			if leEligible && !e.cfg.DualModeAudioEnabled {
				e.setPolicy(addr, init.profile, models.PolicyForbidden)
			} else {
				e.setPolicy(addr, init.profile, models.PolicyAllowed)
			}

		case models.ProfileLEAudio:
			if !advertised {
				continue
			}

			if leEligible {
				e.setPolicy(addr, init.profile, models.PolicyAllowed)
			} else {
				e.setPolicy(addr, init.profile, models.PolicyForbidden)
			}

		default:
			if advertised {
				e.setPolicy(addr, init.profile, models.PolicyAllowed)
			}
		}
	}
}

// leAudioEligible applies the feature-flag and allow-list gate. A device
// advertising only LE Audio with no classic audio fallback bypasses the
// allow-list.
func (e *Engine) leAudioEligible(addr models.Address, uuids []uuid.UUID) bool {
	if !models.ContainsUUID(uuids, models.UUIDLEAudio) {
		return false
	}

	if !e.cfg.LEAudioEnabledByDefault {
		return false
	}

	if e.cfg.BypassLEAudioAllowList || e.devices.LEAudioAllowed(addr) {
		return true
	}

	classic := containsAny(uuids, []uuid.UUID{
		models.UUIDHSP,
		models.UUIDHFP,
		models.UUIDAudioSink,
		models.UUIDAdvAudioDist,
		models.UUIDHearingAid,
	})

	return !classic
}

func (e *Engine) handleAutoConnect() {
	if e.devices.QuietMode() {
		e.logger.Info().Msg("Auto-connect suppressed: quiet mode")
		return
	}

	if addr, ok := e.store.MostRecentlyActiveA2DPDevice(); ok {
		e.logger.Info().
			Str("device", addr.Anonymized()).
			Msg("Auto-connecting most recently active A2DP device")

		for _, profile := range []models.Profile{models.ProfileHeadset, models.ProfileA2DP, models.ProfileHIDHost} {
			e.autoConnectProfile(addr, profile)
		}

		return
	}

	hfpDevices := e.store.MostRecentlyActiveHFPDevices()
	if len(hfpDevices) == 0 {
		e.logger.Info().Msg("Auto-connect: no known audio device")
		return
	}

	if !e.cfg.AutoConnectMultipleHFP {
		hfpDevices = hfpDevices[:1]
	}

	for _, addr := range hfpDevices {
		e.autoConnectProfile(addr, models.ProfileHeadset)
	}
}

func (e *Engine) autoConnectProfile(addr models.Address, profile models.Profile) {
	svc := e.registry.Get(profile)
	if svc == nil {
		return
	}

	if svc.ConnectionPolicy(addr) != models.PolicyAllowed {
		return
	}

	svc.Connect(addr)
}

func (e *Engine) handleConnectionState(profile models.Profile, addr models.Address, from, to models.ConnectionState) {
	switch {
	case to == models.StateConnected:
		if marks, ok := e.retried[addr]; ok {
			delete(marks, profile)
		}

		e.scheduleSweep(addr)

	case to == models.StateDisconnected &&
		(from == models.StateConnecting || from == models.StateDisconnecting):
		e.store.SetDisconnection(addr, profile)
	}

	if to == models.StateDisconnected && e.allDisconnected(addr) {
		delete(e.retried, addr)
		e.cancelSweep(addr)
	}
}

func (e *Engine) handleActiveDevice(profile models.Profile, addr models.Address) {
	e.store.SetConnection(addr, profile)

	if profile != models.ProfileLEAudio || e.cfg.DualModeAudioEnabled {
		return
	}

	// LE Audio took the audio route: the whole coordinated set drops its
	// classic audio profiles.
	for _, member := range e.devices.GroupMembers(addr) {
		for _, classic := range classicAudioProfiles {
			e.setPolicy(member, classic, models.PolicyForbidden)
		}
	}
}

// scheduleSweep arms the delayed connect-other-profiles sweep, at most one
// pending per device.
func (e *Engine) scheduleSweep(addr models.Address) {
	if _, pending := e.pendingSweeps[addr]; pending {
		return
	}

	e.pendingSweeps[addr] = e.clock.AfterFunc(e.sweepDelay, func() {
		e.enqueue(sweepCommand{addr: addr})
	})
}

// cancelSweep is idempotent: canceling an absent or already-fired sweep is a
// no-op.
func (e *Engine) cancelSweep(addr models.Address) {
	timer, ok := e.pendingSweeps[addr]
	if !ok {
		return
	}

	timer.Stop()
	delete(e.pendingSweeps, addr)
}

// handleSweep attempts every other allowed-but-disconnected profile for the
// device, each at most once until the device fully disconnects.
func (e *Engine) handleSweep(addr models.Address) {
	delete(e.pendingSweeps, addr)

	for _, svc := range e.registry.All() {
		if svc.ConnectionPolicy(addr) != models.PolicyAllowed {
			continue
		}

		if svc.ConnectionState(addr) != models.StateDisconnected {
			continue
		}

		if e.retryMarked(addr, svc.Profile()) {
			continue
		}

		e.markRetry(addr, svc.Profile())

		e.logger.Debug().
			Str("device", addr.Anonymized()).
			Str("profile", svc.Profile().String()).
			Msg("Connecting other profile")

		svc.Connect(addr)
	}
}

func (e *Engine) allDisconnected(addr models.Address) bool {
	for _, svc := range e.registry.All() {
		if svc.ConnectionState(addr) != models.StateDisconnected {
			return false
		}
	}

	return true
}

func (e *Engine) retryMarked(addr models.Address, profile models.Profile) bool {
	_, ok := e.retried[addr][profile]
	return ok
}

func (e *Engine) markRetry(addr models.Address, profile models.Profile) {
	marks, ok := e.retried[addr]
	if !ok {
		marks = make(map[models.Profile]struct{})
		e.retried[addr] = marks
	}

	marks[profile] = struct{}{}
}

// setPolicy routes through the profile service when one is registered so the
// connect/disconnect side effect fires; a missing service writes the store
// directly.
func (e *Engine) setPolicy(addr models.Address, profile models.Profile, policy models.ConnectionPolicy) {
	if svc := e.registry.Get(profile); svc != nil {
		svc.SetConnectionPolicy(addr, policy)
		return
	}

	e.store.SetProfileConnectionPolicy(addr, profile, policy)
}

func containsAny(uuids []uuid.UUID, wanted []uuid.UUID) bool {
	for _, want := range wanted {
		if models.ContainsUUID(uuids, want) {
			return true
		}
	}

	return false
}
