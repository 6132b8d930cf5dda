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
	"sync"
	"time"

	"github.com/uptrace/bun"
)

var (
	globalMu      sync.RWMutex
	globalManager AbstractDatabaseManager
	globalConfig  *Config
)

// SupportedTypes lists the accepted ConnectionConfig.Type values.
func SupportedTypes() []string {
	return []string{TypeMySQL, TypePostgres, TypePgx, TypeSQLite}
}

// NewManagerFromConfig applies the DB_* environment overrides to cfg,
// normalizes its type and builds an unconnected manager.
func NewManagerFromConfig(cfg *ConnectionConfig, logger Logger) (AbstractDatabaseManager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration cannot be empty")
	}
	ApplyEnvOverrides(cfg)
	cfg.Type = NormalizeType(cfg.Type)
	if _, ok := backends[cfg.Type]; !ok {
		return nil, fmt.Errorf("unsupported database type %q, supported types: %v", cfg.Type, SupportedTypes())
	}
	manager := NewDatabaseManager(cfg)
	if logger != nil {
		manager.SetLogger(logger)
	}
	return manager, nil
}

// GetDB returns the global database, or nil before InitDB.
func GetDB() *bun.DB {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalManager == nil {
		return nil
	}
	return globalManager.GetDB()
}

func GetDatabaseManager() AbstractDatabaseManager {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalManager
}

// InitDB connects the global database. Tables of registered models are
// created when EnableMigrateOnStartup is set and seed files run when
// AutoInitOnStartup is set.
func InitDB(ctx context.Context, cfg *Config) (*bun.DB, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration cannot be empty")
	}
	logger := GetLogger()
	manager, err := NewManagerFromConfig(&cfg.ConnectionConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create database manager: %w", err)
	}

	globalMu.Lock()
	globalConfig = cfg
	globalManager = manager
	globalMu.Unlock()

	if err := manager.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if cfg.DataMigrateConfig.EnableMigrateOnStartup {
		if err := manager.RunMigrations(ctx); err != nil {
			return nil, fmt.Errorf("failed to run database migrations: %w", err)
		}
	}
	if cfg.DataInitConfig.AutoInitOnStartup {
		if err := manager.InitData(ctx); err != nil {
			return nil, fmt.Errorf("failed to initialize data: %w", err)
		}
	}
	logger.Info("Database initialization completed", "type", cfg.ConnectionConfig.Type)

	db := manager.GetDB()
	db.RegisterModel(RegisteredModelInstances()...)
	return db, nil
}

// CloseDB closes the global database.
func CloseDB() error {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalManager == nil {
		return nil
	}
	err := globalManager.Disconnect()
	globalManager = nil
	globalConfig = nil
	return err
}

func GetHealthStatus(ctx context.Context) *HealthStatus {
	globalMu.RLock()
	manager := globalManager
	globalMu.RUnlock()
	if manager == nil {
		return &HealthStatus{LastError: "Database not initialized", LastCheckTime: time.Now()}
	}
	return manager.HealthCheck(ctx)
}

func GetDatabaseStats() *DBStats {
	globalMu.RLock()
	manager := globalManager
	globalMu.RUnlock()
	if manager == nil {
		return &DBStats{}
	}
	return manager.GetStats()
}
