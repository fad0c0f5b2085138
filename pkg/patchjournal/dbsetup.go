// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package patchjournal

// setup for the patch journal db
// includes migration support and txwrap setup

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sawka/txwrap"
	"github.com/wavetermdev/wavedom/pkg/util/migrateutil"
	"github.com/wavetermdev/wavedom/pkg/wavebase"

	dbfs "github.com/wavetermdev/wavedom/db"
)

const PatchJournalDBName = "patchjournal.db"

type TxWrap = txwrap.TxWrap

var globalDB *sqlx.DB
var useTestingDb bool // just for testing (forces MakeDB() to return an in-memory db)

func InitJournal() error {
	ctx, cancelFn := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancelFn()
	if !useTestingDb {
		err := wavebase.EnsureWavedomDBDir()
		if err != nil {
			return err
		}
	}
	db, err := MakeDB(ctx)
	if err != nil {
		return err
	}
	err = migrateutil.Migrate("patchjournal", db.DB, dbfs.PatchJournalMigrationFS, "migrations-patchjournal")
	if err != nil {
		db.Close()
		return err
	}
	if globalDB != nil {
		globalDB.Close()
	}
	globalDB = db
	log.Printf("[journal] patch journal initialized\n")
	return nil
}

func CloseJournal() error {
	if globalDB == nil {
		return nil
	}
	err := globalDB.Close()
	globalDB = nil
	return err
}

func GetDBName() string {
	return filepath.Join(wavebase.GetWavedomDataDir(), wavebase.WavedomDBDir, PatchJournalDBName)
}

func MakeDB(ctx context.Context) (*sqlx.DB, error) {
	var rtn *sqlx.DB
	var err error
	if useTestingDb {
		dbName := ":memory:"
		log.Printf("[db] using in-memory db\n")
		rtn, err = sqlx.Open("sqlite3", dbName)
	} else {
		dbName := GetDBName()
		log.Printf("[db] opening db %s\n", dbName)
		rtn, err = sqlx.Open("sqlite3", fmt.Sprintf("file:%s?mode=rwc&_journal_mode=WAL&_busy_timeout=5000", dbName))
	}
	if err != nil {
		return nil, fmt.Errorf("opening db: %w", err)
	}
	rtn.DB.SetMaxOpenConns(1)
	return rtn, nil
}

func WithTx(ctx context.Context, fn func(tx *TxWrap) error) error {
	if globalDB == nil {
		return fmt.Errorf("patch journal is not initialized")
	}
	return txwrap.WithTx(ctx, globalDB, fn)
}

func WithTxRtn[RT any](ctx context.Context, fn func(tx *TxWrap) (RT, error)) (RT, error) {
	if globalDB == nil {
		var zero RT
		return zero, fmt.Errorf("patch journal is not initialized")
	}
	return txwrap.WithTxRtn(ctx, globalDB, fn)
}

func GetSchemaVersion() (migrateutil.SchemaVersion, error) {
	if globalDB == nil {
		return migrateutil.SchemaVersion{}, fmt.Errorf("patch journal is not initialized")
	}
	return migrateutil.GetSchemaVersion("patchjournal", globalDB.DB, dbfs.PatchJournalMigrationFS, "migrations-patchjournal")
}
