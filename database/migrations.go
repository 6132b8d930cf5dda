/*
 * Copyright 2025 tomoncle.
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

package database

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/uptrace/bun"
)

// MigrationManager creates the tables of registered models and optionally
// seeds data, recording every applied step in the migrations table.
type MigrationManager struct {
	db     *bun.DB
	logger Logger
	config *Config
}

// Migration is an applied migration record.
type Migration struct {
	bun.BaseModel `bun:"table:sqlrepo_migrations"`

	Version     string    `bun:"version,pk"`
	Name        string    `bun:"name"`
	AppliedAt   time.Time `bun:"applied_at"`
	Description string    `bun:"description"`
}

// MigrationFunc is a migration step executed within a transaction.
type MigrationFunc func(ctx context.Context, db bun.IDB) error

// MigrationItem describes a single migration version.
type MigrationItem struct {
	Version     string
	Name        string
	Description string
	Up          MigrationFunc
}

// NewMigrationManager uses the global configuration when one was installed
// by InitDB and DefaultConfig otherwise.
func NewMigrationManager(db *bun.DB, logger Logger) *MigrationManager {
	if logger == nil {
		logger = GetLogger()
	}
	globalMu.RLock()
	cfg := globalConfig
	globalMu.RUnlock()
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &MigrationManager{db: db, logger: logger, config: cfg}
}

// WithConfig replaces the configuration consulted by the manager.
func (mm *MigrationManager) WithConfig(cfg *Config) *MigrationManager {
	if cfg != nil {
		mm.config = cfg
	}
	return mm
}

// RunMigrations applies every pending migration in version order.
func (mm *MigrationManager) RunMigrations(ctx context.Context) error {
	if mm.db == nil {
		return fmt.Errorf("database not initialized")
	}
	if _, ok := os.LookupEnv("SQLREPO_QUERY_LOG_MIGRATION"); !ok {
		EnableQueryLogSilent(true)
		defer EnableQueryLogSilent(false)
	}

	if _, err := mm.db.NewCreateTable().Model((*Migration)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	migrations := mm.migrations()
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	for _, migration := range migrations {
		if err := mm.runMigration(ctx, migration); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", migration.Version, err)
		}
	}
	mm.logger.Info("Database migrations completed")
	return nil
}

func (mm *MigrationManager) migrations() []MigrationItem {
	items := []MigrationItem{{
		Version:     "001",
		Name:        "create_registered_tables",
		Description: "Create tables of the registered models",
		Up:          CreateRegisteredTables,
	}}
	if mm.config.DataInitConfig.AutoInitOnMigration {
		items = append(items, MigrationItem{
			Version:     "002",
			Name:        "seed_initial_data",
			Description: "Seed initial data",
			Up:          mm.seed,
		})
	}
	return items
}

func (mm *MigrationManager) runMigration(ctx context.Context, migration MigrationItem) error {
	exists, err := mm.db.NewSelect().
		Model((*Migration)(nil)).
		Where("version = ?", migration.Version).
		Exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	err = mm.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := migration.Up(ctx, tx); err != nil {
			return err
		}
		_, err := tx.NewInsert().Model(&Migration{
			Version:     migration.Version,
			Name:        migration.Name,
			AppliedAt:   time.Now(),
			Description: migration.Description,
		}).Exec(ctx)
		return err
	})
	if err != nil {
		return err
	}
	mm.logger.Info("Migration executed successfully", "version", migration.Version, "name", migration.Name)
	return nil
}

// CreateRegisteredTables creates the table of every registered model.
func CreateRegisteredTables(ctx context.Context, db bun.IDB) error {
	for _, model := range RegisteredModelInstances() {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to create table %T: %w", model, err)
		}
	}
	return nil
}

// InitData seeds data outside of the migration bookkeeping.
func (mm *MigrationManager) InitData(ctx context.Context) error {
	if mm.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return mm.seed(ctx, mm.db)
}

func (mm *MigrationManager) seed(ctx context.Context, db bun.IDB) error {
	seeder := NewSQLInitManager(db, mm.config.DataInitConfig.Environment)
	seeder.SetLogger(mm.logger)
	if mm.config.DataInitConfig.Filepath != "" {
		seeder.SetSQLRootPath(mm.config.DataInitConfig.Filepath)
	}
	if _, err := seeder.ExecuteInitialization(ctx); err != nil {
		return fmt.Errorf("SQL file initialization failed: %w", err)
	}
	return nil
}

// GetAppliedMigrations returns migration records ordered by version.
func (mm *MigrationManager) GetAppliedMigrations(ctx context.Context) ([]Migration, error) {
	var migrations []Migration
	err := mm.db.NewSelect().
		Model(&migrations).
		Order("version ASC").
		Scan(ctx)
	return migrations, err
}
