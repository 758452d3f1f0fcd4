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

// Package pgstore persists device metadata in PostgreSQL through pgx, with a
// schema-versioned migration chain.
package pgstore

import (
	"context"
	"fmt"
	"net/url"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carverauto/bthost/pkg/logger"
	"github.com/carverauto/bthost/pkg/models"
)

// NewPool dials the configured database and returns a pgx pool.
func NewPool(ctx context.Context, cfg *models.Database, log logger.Logger) (*pgxpool.Pool, error) {
	if cfg == nil {
		return nil, nil
	}

	db := *cfg
	if db.Port == 0 {
		db.Port = 5432
	}

	connURL := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   "/" + db.Database,
	}

	if db.Username != "" {
		if db.Password != "" {
			connURL.User = url.UserPassword(db.Username, db.Password)
		} else {
			connURL.User = url.User(db.Username)
		}
	}

	query := connURL.Query()

	sslMode := db.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	query.Set("sslmode", sslMode)

	if db.ApplicationName != "" {
		query.Set("application_name", db.ApplicationName)
	}

	for k, v := range db.ExtraRuntimeParams {
		if k == "" {
			continue
		}

		query.Set(k, v)
	}

	connURL.RawQuery = query.Encode()

	poolConfig, err := pgxpool.ParseConfig(connURL.String())
	if err != nil {
		return nil, fmt.Errorf("pgstore: failed to parse connection string: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("pgstore: failed to initialize pool: %w", err)
	}

	if log != nil {
		log.Info().
			Str("host", db.Host).
			Int("port", db.Port).
			Str("database", db.Database).
			Msg("connected to metadata database")
	}

	return pool, nil
}
