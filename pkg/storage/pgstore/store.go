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
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carverauto/bthost/pkg/logger"
	"github.com/carverauto/bthost/pkg/models"
)

type policyColumn struct {
	profile models.Profile
	column  string
}

// policyColumns maps every profile to its schema column, in column order.
var policyColumns = []policyColumn{
	{models.ProfileHeadset, "headset_connection_policy"},
	{models.ProfileA2DP, "a2dp_connection_policy"},
	{models.ProfileHealth, "health_connection_policy"},
	{models.ProfileHIDHost, "hid_host_connection_policy"},
	{models.ProfilePAN, "pan_connection_policy"},
	{models.ProfilePBAP, "pbap_connection_policy"},
	{models.ProfileGATT, "gatt_connection_policy"},
	{models.ProfileHeadsetClient, "headset_client_connection_policy"},
	{models.ProfilePBAPClient, "pbap_client_connection_policy"},
	{models.ProfileMAP, "map_connection_policy"},
	{models.ProfileA2DPSink, "a2dp_sink_connection_policy"},
	{models.ProfileAVRCPController, "avrcp_controller_connection_policy"},
	{models.ProfileSAP, "sap_connection_policy"},
	{models.ProfileMAPClient, "map_client_connection_policy"},
	{models.ProfileHearingAid, "hearing_aid_connection_policy"},
	{models.ProfileLEAudio, "le_audio_connection_policy"},
	{models.ProfileVolumeControl, "volume_control_connection_policy"},
	{models.ProfileCSIPSetCoordinator, "csip_set_coordinator_connection_policy"},
	{models.ProfileHAPClient, "hap_client_connection_policy"},
	{models.ProfileBASSClient, "bass_client_connection_policy"},
	{models.ProfileBattery, "battery_connection_policy"},
}

var scalarColumns = []string{
	"last_active_time",
	"is_active_a2dp_device",
	"is_active_hfp_device",
	"preferred_output_only_profile",
	"preferred_duplex_profile",
	"call_establish_audio_policy",
	"connecting_time_audio_policy",
	"in_band_ringtone_audio_policy",
	"custom_meta",
}

// Store implements the metadata record store on PostgreSQL.
type Store struct {
	pool   *pgxpool.Pool
	runner sqlRunner
	logger logger.Logger
}

// New builds a Store over the pool. Call Migrate before first use.
func New(pool *pgxpool.Pool, log logger.Logger) *Store {
	return &Store{
		pool:   pool,
		runner: poolRunner{pool: pool},
		logger: log,
	}
}

// Migrate brings the schema to the current version: fresh installs are
// created at the newest schema directly, existing stores walk the migration
// chain from their recorded version.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx,
		`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("pgstore: create version table: %w", err)
	}

	var version int

	err := s.pool.QueryRow(ctx, `SELECT version FROM schema_version LIMIT 1`).Scan(&version)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return s.createCurrent(ctx)
	case err != nil:
		return fmt.Errorf("pgstore: read schema version: %w", err)
	}

	if version == currentSchemaVersion {
		return nil
	}

	newVersion, err := runMigrationChain(ctx, s.runner, version)
	if err != nil {
		return fmt.Errorf("pgstore: migrate from %d: %w", version, err)
	}

	if _, err := s.pool.Exec(ctx, `UPDATE schema_version SET version = $1`, newVersion); err != nil {
		return fmt.Errorf("pgstore: record schema version: %w", err)
	}

	s.logger.Info().
		Int("from", version).
		Int("to", newVersion).
		Msg("metadata schema migrated")

	return nil
}

// Load returns every persisted record, most recently active first.
func (s *Store) Load(ctx context.Context) ([]*models.DeviceMetadata, error) {
	rows, err := s.pool.Query(ctx, loadQuery())
	if err != nil {
		return nil, fmt.Errorf("pgstore: load: %w", err)
	}
	defer rows.Close()

	var out []*models.DeviceMetadata

	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("pgstore: scan record: %w", err)
		}

		out = append(out, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgstore: iterate records: %w", err)
	}

	return out, nil
}

// Upsert inserts or replaces the record keyed by address.
func (s *Store) Upsert(ctx context.Context, record *models.DeviceMetadata) error {
	args, err := upsertArgs(record)
	if err != nil {
		return err
	}

	if _, err := s.pool.Exec(ctx, upsertQuery(), args...); err != nil {
		return fmt.Errorf("pgstore: upsert %s: %w", record.Address.Anonymized(), err)
	}

	return nil
}

// Delete removes the record for the address; deleting an absent address is
// not an error.
func (s *Store) Delete(ctx context.Context, addr models.Address) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM metadata WHERE address = $1`, string(addr)); err != nil {
		return fmt.Errorf("pgstore: delete %s: %w", addr.Anonymized(), err)
	}

	return nil
}

// DeleteAll clears every record including the sentinel.
func (s *Store) DeleteAll(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM metadata`); err != nil {
		return fmt.Errorf("pgstore: delete all: %w", err)
	}

	return nil
}

// Reset drops and recreates the store at the current schema version. All
// data is lost; used to recover from corruption.
func (s *Store) Reset(ctx context.Context) error {
	for _, stmt := range []string{
		`DROP TABLE IF EXISTS metadata`,
		`DROP TABLE IF EXISTS metadata_tmp`,
		`DROP TABLE IF EXISTS schema_version`,
		`CREATE TABLE schema_version (version INTEGER NOT NULL)`,
	} {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("pgstore: reset: %w", err)
		}
	}

	return s.createCurrent(ctx)
}

func (s *Store) createCurrent(ctx context.Context) error {
	for _, stmt := range currentSchemaStatements() {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("pgstore: create schema: %w", err)
		}
	}

	if _, err := s.pool.Exec(ctx,
		`INSERT INTO schema_version (version) VALUES ($1)`, currentSchemaVersion); err != nil {
		return fmt.Errorf("pgstore: record schema version: %w", err)
	}

	return nil
}

func allColumns() []string {
	out := []string{"address", "migrated"}

	for _, pc := range policyColumns {
		out = append(out, pc.column)
	}

	return append(out, scalarColumns...)
}

func loadQuery() string {
	cols := []string{"address", "migrated"}

	// COALESCE keeps rows written by older schema versions scannable.
	for _, pc := range policyColumns {
		cols = append(cols, fmt.Sprintf("COALESCE(%s, -1)", pc.column))
	}

	cols = append(cols, scalarColumns...)

	return "SELECT " + strings.Join(cols, ", ") + " FROM metadata ORDER BY last_active_time DESC"
}

func upsertQuery() string {
	cols := allColumns()

	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	updates := make([]string, 0, len(cols)-1)
	for _, col := range cols[1:] {
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
	}

	return fmt.Sprintf(`INSERT INTO metadata (%s) VALUES (%s)
		ON CONFLICT (address) DO UPDATE SET %s`,
		strings.Join(cols, ", "), strings.Join(placeholders, ", "), strings.Join(updates, ", "))
}

func upsertArgs(record *models.DeviceMetadata) ([]interface{}, error) {
	args := make([]interface{}, 0, len(policyColumns)+11)
	args = append(args, string(record.Address), record.Migrated)

	for _, pc := range policyColumns {
		args = append(args, int(record.ProfileConnectionPolicy(pc.profile)))
	}

	var customMeta []byte

	if len(record.CustomMeta) > 0 {
		data, err := json.Marshal(record.CustomMeta)
		if err != nil {
			return nil, fmt.Errorf("pgstore: encode custom meta for %s: %w",
				record.Address.Anonymized(), err)
		}

		customMeta = data
	}

	args = append(args,
		record.LastActiveTime,
		record.IsActiveA2DPDevice,
		record.IsActiveHFPDevice,
		int(record.PreferredOutputOnlyProfile),
		int(record.PreferredDuplexProfile),
		record.AudioPolicy.CallEstablish,
		record.AudioPolicy.ConnectingTime,
		record.AudioPolicy.InBandRingtone,
		customMeta,
	)

	return args, nil
}

func scanRecord(rows pgx.Rows) (*models.DeviceMetadata, error) {
	var (
		address    string
		migrated   bool
		policies   = make([]int, len(policyColumns))
		customMeta []byte
	)

	record := &models.DeviceMetadata{}

	dests := []interface{}{&address, &migrated}
	for i := range policies {
		dests = append(dests, &policies[i])
	}

	var outputOnly, duplex int

	dests = append(dests,
		&record.LastActiveTime,
		&record.IsActiveA2DPDevice,
		&record.IsActiveHFPDevice,
		&outputOnly,
		&duplex,
		&record.AudioPolicy.CallEstablish,
		&record.AudioPolicy.ConnectingTime,
		&record.AudioPolicy.InBandRingtone,
		&customMeta,
	)

	if err := rows.Scan(dests...); err != nil {
		return nil, err
	}

	record.Address = models.Address(address)
	record.Migrated = migrated
	record.PreferredOutputOnlyProfile = models.Profile(outputOnly)
	record.PreferredDuplexProfile = models.Profile(duplex)
	record.ConnectionPolicies = make(map[models.Profile]models.ConnectionPolicy)

	for i, pc := range policyColumns {
		policy := models.ConnectionPolicy(policies[i])
		if policy != models.PolicyUnknown && policy.Valid() {
			record.ConnectionPolicies[pc.profile] = policy
		}
	}

	record.CustomMeta = make(map[int][]byte)

	if len(customMeta) > 0 {
		if err := json.Unmarshal(customMeta, &record.CustomMeta); err != nil {
			return nil, fmt.Errorf("decode custom meta for %s: %w", record.Address.Anonymized(), err)
		}
	}

	return record, nil
}

type poolRunner struct {
	pool *pgxpool.Pool
}

func (r poolRunner) Exec(ctx context.Context, sql string) error {
	_, err := r.pool.Exec(ctx, sql)
	return err
}

func (r poolRunner) ColumnExists(ctx context.Context, table, column string) (bool, error) {
	const query = `SELECT EXISTS (
		SELECT 1 FROM information_schema.columns
		WHERE table_name = $1 AND column_name = $2
	)`

	var exists bool

	if err := r.pool.QueryRow(ctx, query, table, column).Scan(&exists); err != nil {
		return false, err
	}

	return exists, nil
}
