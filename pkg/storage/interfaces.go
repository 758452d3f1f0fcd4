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

package storage

import (
	"context"

	"github.com/carverauto/bthost/pkg/models"
)

//go:generate mockgen -destination=mock_storage.go -package=storage github.com/carverauto/bthost/pkg/storage RecordStore,LegacySettings

// RecordStore is the durable backend for device metadata. Load returns every
// persisted record ordered by descending last_active_time. A failing Load
// means the backing store is corrupt and the caller must Reset destructively
// rather than retry.
type RecordStore interface {
	Load(ctx context.Context) ([]*models.DeviceMetadata, error)
	Upsert(ctx context.Context, record *models.DeviceMetadata) error
	Delete(ctx context.Context, addr models.Address) error
	DeleteAll(ctx context.Context) error

	// Reset drops and recreates the store at the current schema version
	// without running migrations. All data is lost.
	Reset(ctx context.Context) error
}

// LegacySettings exposes the old flat key/value preference store consulted
// once to import per-profile priorities into connection policies.
type LegacySettings interface {
	GetInt(key string) (int, bool)
}
