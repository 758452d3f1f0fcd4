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

//go:build linux

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/carverauto/bthost/pkg/adapter"
	"github.com/carverauto/bthost/pkg/logger"
	"github.com/carverauto/bthost/pkg/stack"
	"github.com/carverauto/bthost/pkg/stack/bluez"
)

func newBridge(adapter string, profileUUID string, log logger.Logger) (stack.Bridge, error) {
	bridge, err := bluez.New(adapter, profileUUID, log)
	if err != nil {
		return nil, fmt.Errorf("bluez bridge for %s: %w", profileUUID, err)
	}

	return bridge, nil
}

// registerDumpHandler writes the diagnostics dump to stderr on SIGUSR1.
func registerDumpHandler(a *adapter.Adapter) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGUSR1)

	go func() {
		for range ch {
			a.Dump(os.Stderr)
		}
	}()
}
