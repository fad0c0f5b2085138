// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

// Package patchjournal keeps every batch a session received, together with the
// attachroot / detach / reset operations interleaved with them, in arrival
// order, so a live tree can be rebuilt offline by replaying them.
package patchjournal

import (
	"context"
	"time"
)

const (
	Op_Batch      = "batch"
	Op_AttachRoot = "attachroot"
	Op_Detach     = "detach"
	Op_Reset      = "reset"
)

// BatchEntry is one journaled step. Data is only set for Op_Batch.
type BatchEntry struct {
	SessionId   string `db:"sessionid" json:"sessionid"`
	Seq         int64  `db:"seq" json:"seq"`
	Op          string `db:"op" json:"op"`
	ComponentId int    `db:"componentid" json:"componentid"`
	Ts          int64  `db:"ts" json:"ts"`
	Data        []byte `db:"data" json:"-"`
	Error       string `db:"error" json:"error,omitempty"`
}

type SessionInfo struct {
	SessionId  string `db:"sessionid" json:"sessionid"`
	NumBatches int    `db:"numbatches" json:"numbatches"`
	FirstTs    int64  `db:"firstts" json:"firstts"`
	LastTs     int64  `db:"lastts" json:"lastts"`
}

const maxErrorLen = 1000

func RecordBatch(ctx context.Context, entry BatchEntry) error {
	if entry.Ts == 0 {
		entry.Ts = time.Now().UnixMilli()
	}
	if entry.Op == "" {
		entry.Op = Op_Batch
	}
	if entry.Data == nil {
		entry.Data = []byte{}
	}
	if len(entry.Error) > maxErrorLen {
		entry.Error = entry.Error[:maxErrorLen]
	}
	return WithTx(ctx, func(tx *TxWrap) error {
		query := `INSERT OR REPLACE INTO db_batch (sessionid, seq, op, componentid, ts, data, error) VALUES (?, ?, ?, ?, ?, ?, ?)`
		tx.Exec(query, entry.SessionId, entry.Seq, entry.Op, entry.ComponentId, entry.Ts, entry.Data, entry.Error)
		return nil
	})
}

// GetBatches returns a session's entries (batches and control operations)
// ordered by seq.
func GetBatches(ctx context.Context, sessionId string) ([]BatchEntry, error) {
	return WithTxRtn(ctx, func(tx *TxWrap) ([]BatchEntry, error) {
		var rtn []BatchEntry
		query := `SELECT * FROM db_batch WHERE sessionid = ? ORDER BY seq`
		tx.Select(&rtn, query, sessionId)
		return rtn, nil
	})
}

func ListSessions(ctx context.Context) ([]SessionInfo, error) {
	return WithTxRtn(ctx, func(tx *TxWrap) ([]SessionInfo, error) {
		var rtn []SessionInfo
		query := `SELECT sessionid, count(*) AS numbatches, min(ts) AS firstts, max(ts) AS lastts
		          FROM db_batch GROUP BY sessionid ORDER BY lastts DESC`
		tx.Select(&rtn, query)
		return rtn, nil
	})
}

func DeleteSession(ctx context.Context, sessionId string) error {
	return WithTx(ctx, func(tx *TxWrap) error {
		query := `DELETE FROM db_batch WHERE sessionid = ?`
		tx.Exec(query, sessionId)
		return nil
	})
}

// PruneBefore drops batches older than ts (unix millis) and returns how many
// were removed.
func PruneBefore(ctx context.Context, ts int64) (int, error) {
	return WithTxRtn(ctx, func(tx *TxWrap) (int, error) {
		query := `SELECT count(*) FROM db_batch WHERE ts < ?`
		count := tx.GetInt(query, ts)
		query = `DELETE FROM db_batch WHERE ts < ?`
		tx.Exec(query, ts)
		return count, nil
	})
}

// Recorder journals batches for a tree consumer.
type Recorder struct{}

func (Recorder) RecordBatch(ctx context.Context, sessionId string, seq int64, componentId int, data []byte, errStr string) error {
	return RecordBatch(ctx, BatchEntry{
		SessionId:   sessionId,
		Seq:         seq,
		Op:          Op_Batch,
		ComponentId: componentId,
		Data:        data,
		Error:       errStr,
	})
}

func (Recorder) RecordOp(ctx context.Context, sessionId string, seq int64, op string, componentId int) error {
	return RecordBatch(ctx, BatchEntry{
		SessionId:   sessionId,
		Seq:         seq,
		Op:          op,
		ComponentId: componentId,
	})
}
