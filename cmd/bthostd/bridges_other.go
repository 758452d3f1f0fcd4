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

//go:build !linux

package main

import (
	"github.com/carverauto/bthost/pkg/adapter"
	"github.com/carverauto/bthost/pkg/logger"
	"github.com/carverauto/bthost/pkg/stack"
)

// BlueZ is only reachable over D-Bus on Linux. Elsewhere the daemon runs
// with an inert bridge so development setups still start.
func newBridge(_ string, profileUUID string, log logger.Logger) (stack.Bridge, error) {
	log.Warn().
		Str("profile_uuid", profileUUID).
		Msg("BlueZ unavailable on this platform, using inert stack bridge")

	return stack.NewFakeBridge(), nil
}

// SIGUSR1 is not portable; the dump hook is Linux-only.
func registerDumpHandler(*adapter.Adapter) {}
