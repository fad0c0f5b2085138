// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package patchjournal

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"
)

func initTestDb(t *testing.T) {
	t.Helper()
	useTestingDb = true
	err := InitJournal()
	if err != nil {
		if strings.Contains(err.Error(), "CGO_ENABLED") {
			t.Skipf("sqlite needs cgo: %v", err)
		}
		t.Fatalf("error initializing journal: %v", err)
	}
}

func cleanupTestDb() {
	CloseJournal()
	useTestingDb = false
}

func TestRecordAndReplayOrder(t *testing.T) {
	initTestDb(t)
	defer cleanupTestDb()
	ctx, cancelFn := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelFn()
	rec := Recorder{}
	// recorded out of order, read back by seq
	for _, seq := range []int64{2, 1, 3} {
		err := rec.RecordBatch(ctx, "sess-a", seq, 1, []byte{byte(seq)}, "")
		if err != nil {
			t.Fatalf("record %d: %v", seq, err)
		}
	}
	err := rec.RecordBatch(ctx, "sess-b", 1, 5, []byte("x"), "component 5, edit 0 removenode: bad")
	if err != nil {
		t.Fatalf("record sess-b: %v", err)
	}
	batches, err := GetBatches(ctx, "sess-a")
	if err != nil {
		t.Fatalf("GetBatches: %v", err)
	}
	if len(batches) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(batches))
	}
	for idx, b := range batches {
		if b.Seq != int64(idx+1) || !bytes.Equal(b.Data, []byte{byte(idx + 1)}) {
			t.Errorf("batch %d out of order: %+v", idx, b)
		}
	}
	other, _ := GetBatches(ctx, "sess-b")
	if len(other) != 1 || other[0].Error == "" || other[0].ComponentId != 5 {
		t.Errorf("unexpected sess-b batches %+v", other)
	}
	sessions, err := ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %+v", sessions)
	}
	counts := map[string]int{}
	for _, s := range sessions {
		counts[s.SessionId] = s.NumBatches
	}
	if counts["sess-a"] != 3 || counts["sess-b"] != 1 {
		t.Errorf("unexpected counts %v", counts)
	}
	err = DeleteSession(ctx, "sess-a")
	if err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	batches, _ = GetBatches(ctx, "sess-a")
	if len(batches) != 0 {
		t.Errorf("session not deleted: %d batches left", len(batches))
	}
}

func TestControlOpsInterleave(t *testing.T) {
	initTestDb(t)
	defer cleanupTestDb()
	ctx := context.Background()
	rec := Recorder{}
	rec.RecordOp(ctx, "sess-c", 1, Op_AttachRoot, 1)
	rec.RecordBatch(ctx, "sess-c", 2, 1, []byte("a"), "")
	rec.RecordOp(ctx, "sess-c", 3, Op_Reset, 1)
	entries, err := GetBatches(ctx, "sess-c")
	if err != nil {
		t.Fatalf("GetBatches: %v", err)
	}
	ops := []string{}
	for _, e := range entries {
		ops = append(ops, e.Op)
	}
	if strings.Join(ops, ",") != "attachroot,batch,reset" {
		t.Fatalf("unexpected ops %v", ops)
	}
	if len(entries[0].Data) != 0 || string(entries[1].Data) != "a" {
		t.Errorf("unexpected entry data %+v", entries)
	}
	RecordBatch(ctx, BatchEntry{SessionId: "sess-d", Seq: 1, ComponentId: 1, Data: []byte("x")})
	entries, _ = GetBatches(ctx, "sess-d")
	if len(entries) != 1 || entries[0].Op != Op_Batch {
		t.Errorf("entries default to batch: %+v", entries)
	}
}

func TestSchemaVersion(t *testing.T) {
	initTestDb(t)
	defer cleanupTestDb()
	ver, err := GetSchemaVersion()
	if err != nil {
		t.Fatalf("GetSchemaVersion: %v", err)
	}
	if ver.Version != 2 || ver.Dirty {
		t.Errorf("unexpected schema version %+v", ver)
	}
}

func TestPruneBefore(t *testing.T) {
	initTestDb(t)
	defer cleanupTestDb()
	ctx := context.Background()
	RecordBatch(ctx, BatchEntry{SessionId: "s", Seq: 1, ComponentId: 1, Ts: 1000, Data: []byte("a")})
	RecordBatch(ctx, BatchEntry{SessionId: "s", Seq: 2, ComponentId: 1, Ts: 3000, Data: []byte("b")})
	count, err := PruneBefore(ctx, 2000)
	if err != nil {
		t.Fatalf("PruneBefore: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 pruned, got %d", count)
	}
	batches, _ := GetBatches(ctx, "s")
	if len(batches) != 1 || batches[0].Seq != 2 {
		t.Errorf("unexpected remaining batches %+v", batches)
	}
}

func TestNotInitialized(t *testing.T) {
	CloseJournal()
	if err := RecordBatch(context.Background(), BatchEntry{SessionId: "s", Seq: 1}); err == nil {
		t.Errorf("expected error from an uninitialized journal")
	}
}
