// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

// Package migrateutil runs embedded sqlite migrations with golang-migrate.
package migrateutil

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	sqlite3migrate "github.com/golang-migrate/migrate/v4/database/sqlite3"
)

// SchemaVersion is a store's migration state. Version 0 means no migration
// has run yet.
type SchemaVersion struct {
	Version uint
	Dirty   bool
}

func getVersion(m *migrate.Migrate) (SchemaVersion, error) {
	curVersion, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return SchemaVersion{}, nil
	}
	if err != nil {
		return SchemaVersion{}, err
	}
	return SchemaVersion{Version: curVersion, Dirty: dirty}, nil
}

// the sqlite driver is created WithInstance, so closing m would close db;
// callers own db and never close m
func makeMigrate(storeName string, db *sql.DB, migrationFS fs.FS, migrationsName string) (*migrate.Migrate, error) {
	fsVar, err := iofs.New(migrationFS, migrationsName)
	if err != nil {
		return nil, fmt.Errorf("opening %s migrations: %w", storeName, err)
	}
	mdriver, err := sqlite3migrate.WithInstance(db, &sqlite3migrate.Config{})
	if err != nil {
		return nil, fmt.Errorf("making %s migration driver: %w", storeName, err)
	}
	m, err := migrate.NewWithInstance("iofs", fsVar, "sqlite3", mdriver)
	if err != nil {
		return nil, fmt.Errorf("making %s migration: %w", storeName, err)
	}
	return m, nil
}

func GetSchemaVersion(storeName string, db *sql.DB, migrationFS fs.FS, migrationsName string) (SchemaVersion, error) {
	m, err := makeMigrate(storeName, db, migrationFS, migrationsName)
	if err != nil {
		return SchemaVersion{}, err
	}
	return getVersion(m)
}

// Migrate brings the store up to the newest embedded migration. A dirty
// database is refused.
func Migrate(storeName string, db *sql.DB, migrationFS fs.FS, migrationsName string) error {
	m, err := makeMigrate(storeName, db, migrationFS, migrationsName)
	if err != nil {
		return err
	}
	before, err := getVersion(m)
	if err != nil {
		return fmt.Errorf("%s, cannot get current migration version: %w", storeName, err)
	}
	if before.Dirty {
		return fmt.Errorf("%s, migrate up, database is dirty (version %d)", storeName, before.Version)
	}
	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrating %s: %w", storeName, err)
	}
	after, err := getVersion(m)
	if err != nil {
		return fmt.Errorf("%s, cannot get new migration version: %w", storeName, err)
	}
	if after.Version != before.Version {
		log.Printf("[db] %s migration done, version %d -> %d\n", storeName, before.Version, after.Version)
	}
	return nil
}
