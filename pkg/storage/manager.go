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

// Package storage implements the per-device metadata store: an in-memory
// cache backed by a durable record store, with all backend writes serialized
// through a single worker goroutine.
package storage

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/carverauto/bthost/pkg/logger"
	"github.com/carverauto/bthost/pkg/models"
)

const (
	// loadWaitTimeout bounds how long Start blocks for the initial load to
	// merge into the cache. On timeout queries proceed against a cold cache.
	loadWaitTimeout = 500 * time.Millisecond

	commandQueueSize = 512
)

type command interface {
	commandName() string
}

type loadCommand struct{}
type upsertCommand struct{ record *models.DeviceMetadata }
type deleteCommand struct{ addr models.Address }
type clearCommand struct{}
type stopCommand struct{}

func (loadCommand) commandName() string   { return "load" }
func (upsertCommand) commandName() string { return "upsert" }
func (deleteCommand) commandName() string { return "delete" }
func (clearCommand) commandName() string  { return "clear" }
func (stopCommand) commandName() string   { return "stop" }

// Manager owns the metadata cache and the serialized write path to the
// record store. The cache is the read-of-record once warm; the backend is
// only read during the initial load.
type Manager struct {
	store  RecordStore
	logger logger.Logger

	cacheMu           sync.Mutex
	cache             map[models.Address]*models.DeviceMetadata
	connectionCounter int64

	logMu     sync.Mutex
	changeLog []string

	commands   chan command
	loadDone   chan struct{}
	loadOnce   sync.Once
	workerDone chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once

	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager builds a Manager over the given record store.
func NewManager(store RecordStore, log logger.Logger) *Manager {
	return &Manager{
		store:      store,
		logger:     log,
		cache:      make(map[models.Address]*models.DeviceMetadata),
		commands:   make(chan command, commandQueueSize),
		loadDone:   make(chan struct{}),
		workerDone: make(chan struct{}),
	}
}

// Start launches the write worker, enqueues the initial load, and blocks
// until the load merges into the cache or the bounded wait elapses.
func (m *Manager) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		m.ctx, m.cancel = context.WithCancel(ctx)

		go m.worker()

		m.commands <- loadCommand{}

		select {
		case <-m.loadDone:
		case <-time.After(loadWaitTimeout):
			m.logger.Warn().Msg("Metadata load did not finish in time, continuing with a cold cache")
		}
	})
}

// Stop drains the queue and terminates the worker. Writes enqueued before
// Stop are flushed; writes attempted afterward are dropped with a warning.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		m.commands <- stopCommand{}
		<-m.workerDone

		if m.cancel != nil {
			m.cancel()
		}
	})
}

func (m *Manager) worker() {
	defer close(m.workerDone)

	for cmd := range m.commands {
		switch c := cmd.(type) {
		case loadCommand:
			m.handleLoad()
		case upsertCommand:
			if err := m.store.Upsert(m.ctx, c.record); err != nil {
				m.logger.Error().
					Err(err).
					Str("device", c.record.Address.Anonymized()).
					Msg("Metadata upsert failed")
			}
		case deleteCommand:
			if err := m.store.Delete(m.ctx, c.addr); err != nil {
				m.logger.Error().
					Err(err).
					Str("device", c.addr.Anonymized()).
					Msg("Metadata delete failed")
			}
		case clearCommand:
			if err := m.store.DeleteAll(m.ctx); err != nil {
				m.logger.Error().Err(err).Msg("Metadata clear failed")
			}
		case stopCommand:
			return
		}
	}
}

// handleLoad reads the backend, falling back to a destructive reset when the
// store is corrupt, then merges the records and compacts the connection
// counters.
func (m *Manager) handleLoad() {
	records, err := m.store.Load(m.ctx)
	if err != nil {
		m.logger.Error().Err(err).Msg("Metadata load failed, reinitializing store")

		records = nil

		if rerr := m.store.Reset(m.ctx); rerr != nil {
			m.logger.Error().Err(rerr).Msg("Metadata store reset failed")
		} else if records, err = m.store.Load(m.ctx); err != nil {
			m.logger.Error().Err(err).Msg("Metadata reload after reset failed")

			records = nil
		}
	}

	compacted := m.mergeRecords(records)

	m.loadOnce.Do(func() { close(m.loadDone) })

	for _, record := range compacted {
		if err := m.store.Upsert(m.ctx, record); err != nil {
			m.logger.Error().
				Err(err).
				Str("device", record.Address.Anonymized()).
				Msg("Compacted metadata upsert failed")
		}
	}
}

// mergeRecords installs loaded records that are not already cached, then
// reassigns last-active counters as a dense zero-based sequence preserving
// relative order. Returns clones of records whose counter changed so the
// caller can persist them.
func (m *Manager) mergeRecords(records []*models.DeviceMetadata) []*models.DeviceMetadata {
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()

	for _, record := range records {
		if _, ok := m.cache[record.Address]; !ok {
			m.cache[record.Address] = record
		}
	}

	return m.compactLastConnectionTimeLocked()
}

func (m *Manager) compactLastConnectionTimeLocked() []*models.DeviceMetadata {
	active := make([]*models.DeviceMetadata, 0, len(m.cache))

	for _, record := range m.cache {
		if record.Address.IsLocalStorage() || record.LastActiveTime < 0 {
			continue
		}

		active = append(active, record)
	}

	sort.Slice(active, func(i, j int) bool {
		return active[i].LastActiveTime < active[j].LastActiveTime
	})

	var changed []*models.DeviceMetadata

	for i, record := range active {
		if record.LastActiveTime != int64(i) {
			record.LastActiveTime = int64(i)
			changed = append(changed, record.Clone())
		}
	}

	m.connectionCounter = int64(len(active))

	return changed
}

// getOrCreateLocked returns the cached record for addr, creating it when
// absent. Caller holds cacheMu.
func (m *Manager) getOrCreateLocked(addr models.Address) *models.DeviceMetadata {
	if record, ok := m.cache[addr]; ok {
		return record
	}

	record := models.NewDeviceMetadata(addr)
	m.cache[addr] = record

	return record
}

// updateLocked enqueues a persistent write for the record. Caller holds
// cacheMu; the clone is taken under the lock so per-device write order
// matches cache mutation order.
func (m *Manager) updateLocked(record *models.DeviceMetadata) {
	m.enqueue(upsertCommand{record: record.Clone()})
}

func (m *Manager) enqueue(cmd command) {
	select {
	case m.commands <- cmd:
	case <-m.workerDone:
		m.logger.Warn().
			Str("command", cmd.commandName()).
			Msg("Metadata write dropped after stop")
	}
}

func (m *Manager) logChange(format string, args ...interface{}) {
	line := time.Now().Format(time.RFC3339) + " " + fmt.Sprintf(format, args...)

	m.logMu.Lock()
	defer m.logMu.Unlock()

	m.changeLog = append(m.changeLog, line)
	if len(m.changeLog) > models.MetadataChangedLogSize {
		m.changeLog = m.changeLog[len(m.changeLog)-models.MetadataChangedLogSize:]
	}
}

// Dump writes the recent change log and every non-sentinel record, most
// recently active first.
func (m *Manager) Dump(w io.Writer) {
	m.logMu.Lock()
	lines := make([]string, len(m.changeLog))
	copy(lines, m.changeLog)
	m.logMu.Unlock()

	fmt.Fprintf(w, "Metadata changed log (most recent %d):\n", models.MetadataChangedLogSize)

	for _, line := range lines {
		fmt.Fprintf(w, "  %s\n", line)
	}

	m.cacheMu.Lock()
	records := make([]*models.DeviceMetadata, 0, len(m.cache))

	for _, record := range m.cache {
		if record.Address.IsLocalStorage() {
			continue
		}

		records = append(records, record.Clone())
	}
	m.cacheMu.Unlock()

	sort.Slice(records, func(i, j int) bool {
		return records[i].LastActiveTime > records[j].LastActiveTime
	})

	fmt.Fprintf(w, "Devices (%d):\n", len(records))

	for _, record := range records {
		fmt.Fprintf(w, "  %s\n", record)
	}
}
