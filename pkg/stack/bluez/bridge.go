//go:build linux

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

// Package bluez bridges profile commands to BlueZ over the system D-Bus.
package bluez

import (
	"fmt"
	"strings"
	"sync"

	dbus "github.com/godbus/dbus/v5"

	"github.com/carverauto/bthost/pkg/logger"
	"github.com/carverauto/bthost/pkg/models"
	"github.com/carverauto/bthost/pkg/stack"
)

const (
	bluezService = "org.bluez"
	deviceIface  = "org.bluez.Device1"
	propsIface   = "org.freedesktop.DBus.Properties"
)

// Bridge implements stack.Bridge for one profile UUID against a BlueZ
// adapter. Connect and Disconnect dispatch asynchronously; connection state
// transitions are synthesized from Device1 PropertiesChanged signals.
type Bridge struct {
	conn        *dbus.Conn
	adapterPath dbus.ObjectPath
	profileUUID string
	logger      logger.Logger

	mu     sync.Mutex
	sink   func(stack.Event)
	sigCh  chan *dbus.Signal
	closed bool
}

// New connects to the system bus and starts watching Device1 property
// changes under the given adapter (e.g. "hci0").
func New(adapter, profileUUID string, log logger.Logger) (*Bridge, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect system bus: %w", err)
	}

	b := &Bridge{
		conn:        conn,
		adapterPath: dbus.ObjectPath("/org/bluez/" + adapter),
		profileUUID: profileUUID,
		logger:      log,
		sigCh:       make(chan *dbus.Signal, 16),
	}

	if err := conn.AddMatchSignal(
		dbus.WithMatchInterface(propsIface),
		dbus.WithMatchMember("PropertiesChanged"),
		dbus.WithMatchArg(0, deviceIface),
	); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to add signal match: %w", err)
	}

	conn.Signal(b.sigCh)

	go b.signalLoop()

	return b, nil
}

func (b *Bridge) RegisterEventSink(sink func(stack.Event)) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.sink = sink
}

func (b *Bridge) Connect(addr models.Address) bool {
	return b.callDevice(addr, "ConnectProfile", b.profileUUID)
}

func (b *Bridge) Disconnect(addr models.Address) bool {
	return b.callDevice(addr, "DisconnectProfile", b.profileUUID)
}

// SetActiveDevice is host-side routing state; BlueZ has no command for it, so
// dispatch always succeeds and the service keeps the authoritative value.
func (b *Bridge) SetActiveDevice(models.Address) bool {
	return true
}

// Close stops the signal loop and releases the bus connection.
func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}

	b.closed = true
	b.mu.Unlock()

	b.conn.RemoveSignal(b.sigCh)
	close(b.sigCh)

	return b.conn.Close()
}

func (b *Bridge) callDevice(addr models.Address, method string, args ...interface{}) bool {
	obj := b.conn.Object(bluezService, b.devicePath(addr))

	// Dispatch without waiting for the reply; failures surface as the absence
	// of a later connection event.
	go func() {
		if call := obj.Call(deviceIface+"."+method, 0, args...); call.Err != nil {
			b.logger.Warn().
				Str("device", addr.Anonymized()).
				Str("method", method).
				Err(call.Err).
				Msg("BlueZ device call failed")
		}
	}()

	return true
}

func (b *Bridge) devicePath(addr models.Address) dbus.ObjectPath {
	return b.adapterPath + dbus.ObjectPath("/dev_"+strings.ReplaceAll(string(addr), ":", "_"))
}

func (b *Bridge) signalLoop() {
	for sig := range b.sigCh {
		if sig == nil || len(sig.Body) < 2 {
			continue
		}

		iface, _ := sig.Body[0].(string)
		if iface != deviceIface {
			continue
		}

		changed, _ := sig.Body[1].(map[string]dbus.Variant)

		connectedVar, ok := changed["Connected"]
		if !ok {
			continue
		}

		connected, _ := connectedVar.Value().(bool)

		addr, err := models.ParseAddress(macFromPath(sig.Path))
		if err != nil {
			continue
		}

		state := models.StateDisconnected
		if connected {
			state = models.StateConnected
		}

		b.mu.Lock()
		sink := b.sink
		b.mu.Unlock()

		if sink != nil {
			sink(stack.Event{
				Type: stack.EventConnectionStateChanged,
				Addr: addr,
				Int:  int(state),
			})
		}
	}
}

// macFromPath extracts the device address from a BlueZ object path of the
// form .../dev_XX_XX_XX_XX_XX_XX.
func macFromPath(p dbus.ObjectPath) string {
	s := string(p)

	idx := strings.LastIndex(s, "/dev_")
	if idx < 0 {
		return ""
	}

	return strings.ReplaceAll(s[idx+5:], "_", ":")
}
