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

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/carverauto/bthost/pkg/adapter"
	"github.com/carverauto/bthost/pkg/config"
	"github.com/carverauto/bthost/pkg/logger"
	"github.com/carverauto/bthost/pkg/models"
	"github.com/carverauto/bthost/pkg/policy"
	"github.com/carverauto/bthost/pkg/profiles"
	"github.com/carverauto/bthost/pkg/profiles/a2dpsink"
	"github.com/carverauto/bthost/pkg/profiles/hearingaid"
	"github.com/carverauto/bthost/pkg/storage"
	"github.com/carverauto/bthost/pkg/storage/pgstore"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "/etc/bthost/bthostd.json", "Path to bthostd config file")
	adapterName := flag.String("adapter", "hci0", "BlueZ adapter name")
	flag.Parse()

	ctx := context.Background()

	var cfg models.BthostConfig

	cfgLoader := config.NewConfig(nil)
	if err := cfgLoader.LoadAndValidate(ctx, *configPath, &cfg); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logCfg := cfg.Logging
	if logCfg == nil {
		logCfg = logger.DefaultConfig()
	}

	mainLogger, err := logger.New(logCfg, "bthostd")
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	pool, err := pgstore.NewPool(ctx, &cfg.Database, mainLogger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	recordStore := pgstore.New(pool, mainLogger)
	if err := recordStore.Migrate(ctx); err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}

	meta := storage.NewManager(recordStore, mainLogger)
	meta.Start(ctx)
	defer meta.Stop()

	a2dpBridge, err := newBridge(*adapterName, models.UUIDAudioSink.String(), mainLogger)
	if err != nil {
		return err
	}

	haBridge, err := newBridge(*adapterName, models.UUIDHearingAid.String(), mainLogger)
	if err != nil {
		return err
	}

	registry := profiles.NewRegistry()
	defer registry.StopAll()

	a2dp := a2dpsink.New(a2dpBridge, meta, cfg.Profiles.MaxConnectedAudioDevices, nil, mainLogger)
	ha := hearingaid.New(haBridge, meta, cfg.Profiles.MaxHearingAidStateMachines, mainLogger)

	registry.Register(a2dp)
	registry.Register(ha)

	adpt := adapter.New(nil, meta, mainLogger)

	engine := policy.NewEngine(registry, meta, adpt, cfg.Policy, nil, mainLogger)
	adpt.SetPolicyEngine(engine)

	a2dp.SubscribeConnectionListener(engine)
	a2dp.SubscribeActiveDeviceListener(engine)
	ha.SubscribeConnectionListener(engine)
	ha.SetBondStateProvider(adpt.BondState)
	ha.SetQuietModeProvider(adpt.QuietMode)

	engine.Start()
	defer engine.Stop()

	adpt.SetPowerState(adapter.PowerOn)
	registerDumpHandler(adpt)

	mainLogger.Info().
		Str("adapter", *adapterName).
		Msg("bthostd started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	sig := <-sigCh
	mainLogger.Info().
		Str("signal", sig.String()).
		Msg("Shutting down")

	adpt.SetPowerState(adapter.PowerOff)

	return nil
}
