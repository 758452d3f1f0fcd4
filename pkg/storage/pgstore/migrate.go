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

package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	metadataTable = "metadata"

	// currentSchemaVersion is the newest schema. Fresh installs are created
	// here directly; existing stores walk the chain below.
	currentSchemaVersion = 105
)

var (
	errMigrationChainGap = errors.New("migration chain gap")
	errVersionTooNew     = errors.New("stored schema version newer than supported")
)

// sqlRunner is the narrow surface the migration chain executes against,
// separable from a live pool for tests.
type sqlRunner interface {
	Exec(ctx context.Context, sql string) error
	ColumnExists(ctx context.Context, table, column string) (bool, error)
}

// migration upgrades the schema from one version to the next. probeColumn
// identifies a column that only exists after this step has run; when present
// the step is treated as already applied, recovering from a prior partial
// run without re-executing DDL.
type migration struct {
	from        int
	to          int
	probeColumn string
	statements  []string
}

// Profiles with a legacy priority column predating the policy rename.
var classicProfiles = []string{
	"headset", "a2dp", "health", "hid_host", "pan", "pbap", "gatt",
	"headset_client", "pbap_client", "map", "a2dp_sink", "avrcp_controller",
	"sap", "map_client", "hearing_aid",
}

// Profiles added after the policy rename, with a policy column from the start.
var leAudioProfiles = []string{
	"le_audio", "volume_control", "csip_set_coordinator", "hap_client",
	"bass_client", "battery",
}

func migrationChain() []migration {
	return []migration{
		{
			from:        100,
			to:          101,
			probeColumn: "pbap_client_priority",
			statements: []string{
				`ALTER TABLE metadata ADD COLUMN pbap_client_priority INTEGER DEFAULT -1`,
			},
		},
		{
			from:        101,
			to:          102,
			probeColumn: "a2dp_connection_policy",
			statements:  renamePriorityStatements(),
		},
		{
			from:        102,
			to:          103,
			probeColumn: "last_active_time",
			statements: []string{
				`ALTER TABLE metadata ADD COLUMN last_active_time BIGINT NOT NULL DEFAULT -1`,
				`ALTER TABLE metadata ADD COLUMN is_active_a2dp_device BOOLEAN NOT NULL DEFAULT FALSE`,
			},
		},
		{
			from:        103,
			to:          104,
			probeColumn: "le_audio_connection_policy",
			statements:  addLEAudioStatements(),
		},
		{
			from:        104,
			to:          105,
			probeColumn: "preferred_output_only_profile",
			statements: []string{
				`ALTER TABLE metadata ADD COLUMN preferred_output_only_profile INTEGER NOT NULL DEFAULT 0`,
				`ALTER TABLE metadata ADD COLUMN preferred_duplex_profile INTEGER NOT NULL DEFAULT 0`,
				`ALTER TABLE metadata ADD COLUMN is_active_hfp_device BOOLEAN NOT NULL DEFAULT FALSE`,
				`ALTER TABLE metadata ADD COLUMN call_establish_audio_policy INTEGER NOT NULL DEFAULT 0`,
				`ALTER TABLE metadata ADD COLUMN connecting_time_audio_policy INTEGER NOT NULL DEFAULT 0`,
				`ALTER TABLE metadata ADD COLUMN in_band_ringtone_audio_policy INTEGER NOT NULL DEFAULT 0`,
				`ALTER TABLE metadata ADD COLUMN custom_meta JSONB`,
			},
		},
	}
}

// renamePriorityStatements rebuilds the table, renaming every *_priority
// column to *_connection_policy and rewriting the legacy auto-connect value
// 1000 to 100.
func renamePriorityStatements() []string {
	cols := make([]string, 0, len(classicProfiles))
	selects := make([]string, 0, len(classicProfiles))

	for _, p := range classicProfiles {
		cols = append(cols, fmt.Sprintf("%s_connection_policy INTEGER DEFAULT -1", p))
		selects = append(selects,
			fmt.Sprintf("CASE WHEN %s_priority = 1000 THEN 100 ELSE %s_priority END", p, p))
	}

	return []string{
		fmt.Sprintf(`CREATE TABLE metadata_tmp (
			address TEXT PRIMARY KEY,
			migrated BOOLEAN NOT NULL DEFAULT FALSE,
			%s
		)`, strings.Join(cols, ",\n\t\t\t")),
		fmt.Sprintf(`INSERT INTO metadata_tmp SELECT address, migrated, %s FROM metadata`,
			strings.Join(selects, ", ")),
		`DROP TABLE metadata`,
		`ALTER TABLE metadata_tmp RENAME TO metadata`,
	}
}

func addLEAudioStatements() []string {
	out := make([]string, 0, len(leAudioProfiles))

	for _, p := range leAudioProfiles {
		out = append(out,
			fmt.Sprintf(`ALTER TABLE metadata ADD COLUMN %s_connection_policy INTEGER DEFAULT 100`, p))
	}

	return out
}

// runMigrationChain walks the chain strictly ascending from the stored
// version. Each step probes for its post-migration column first: presence
// means a previous run already applied it. Returns the resulting version.
func runMigrationChain(ctx context.Context, r sqlRunner, fromVersion int) (int, error) {
	if fromVersion > currentSchemaVersion {
		return fromVersion, fmt.Errorf("%w: %d > %d", errVersionTooNew, fromVersion, currentSchemaVersion)
	}

	version := fromVersion

	for _, m := range migrationChain() {
		if m.to <= version {
			continue
		}

		if m.from != version {
			return version, fmt.Errorf("%w: at version %d, next step is %d->%d",
				errMigrationChainGap, version, m.from, m.to)
		}

		applied, err := r.ColumnExists(ctx, metadataTable, m.probeColumn)
		if err != nil {
			return version, fmt.Errorf("probe for %s.%s failed: %w", metadataTable, m.probeColumn, err)
		}

		if !applied {
			for _, stmt := range m.statements {
				if err := r.Exec(ctx, stmt); err != nil {
					return version, fmt.Errorf("migration %d->%d failed: %w", m.from, m.to, err)
				}
			}
		}

		version = m.to
	}

	return version, nil
}

// currentSchemaStatements creates the schema at the newest version in one
// shot, used for fresh installs and destructive resets.
func currentSchemaStatements() []string {
	cols := make([]string, 0, len(classicProfiles)+len(leAudioProfiles))

	for _, p := range classicProfiles {
		cols = append(cols, fmt.Sprintf("%s_connection_policy INTEGER DEFAULT -1", p))
	}

	for _, p := range leAudioProfiles {
		cols = append(cols, fmt.Sprintf("%s_connection_policy INTEGER DEFAULT 100", p))
	}

	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS metadata (
			address TEXT PRIMARY KEY,
			migrated BOOLEAN NOT NULL DEFAULT FALSE,
			%s,
			last_active_time BIGINT NOT NULL DEFAULT -1,
			is_active_a2dp_device BOOLEAN NOT NULL DEFAULT FALSE,
			is_active_hfp_device BOOLEAN NOT NULL DEFAULT FALSE,
			preferred_output_only_profile INTEGER NOT NULL DEFAULT 0,
			preferred_duplex_profile INTEGER NOT NULL DEFAULT 0,
			call_establish_audio_policy INTEGER NOT NULL DEFAULT 0,
			connecting_time_audio_policy INTEGER NOT NULL DEFAULT 0,
			in_band_ringtone_audio_policy INTEGER NOT NULL DEFAULT 0,
			custom_meta JSONB
		)`, strings.Join(cols, ",\n\t\t\t")),
	}
}
