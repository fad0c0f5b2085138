// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package ds

import (
	"testing"
	"time"
)

func TestExpMapSweep(t *testing.T) {
	em := MakeExpMap[int]()
	base := time.Unix(1000, 0)
	now := base
	em.nowFn = func() time.Time { return now }
	em.Set("a", 1, base.Add(1*time.Second))
	em.Set("b", 2, base.Add(5*time.Second))
	em.Set("c", 3, base.Add(2*time.Second))

	now = base.Add(3 * time.Second)
	expired := em.Sweep()
	if len(expired) != 2 {
		t.Fatalf("expected 2 expired, got %d", len(expired))
	}
	if expired[0].Key != "a" || expired[1].Key != "c" {
		t.Errorf("expected [a c] in expiry order, got %v", expired)
	}
	if _, ok := em.Get("b"); !ok {
		t.Errorf("b should still be present")
	}
	if em.Len() != 1 {
		t.Errorf("expected len 1, got %d", em.Len())
	}
}

func TestExpMapTakeAndReset(t *testing.T) {
	em := MakeExpMap[string]()
	base := time.Unix(1000, 0)
	now := base
	em.nowFn = func() time.Time { return now }
	em.Set("k", "v1", base.Add(time.Second))
	// re-set with a later expiry leaves a stale heap entry behind
	em.Set("k", "v2", base.Add(10*time.Second))
	now = base.Add(2 * time.Second)
	if expired := em.Sweep(); len(expired) != 0 {
		t.Fatalf("stale heap entry should not expire the key: %v", expired)
	}
	v, ok := em.Take("k")
	if !ok || v != "v2" {
		t.Fatalf("expected v2, got %q %v", v, ok)
	}
	if _, ok := em.Get("k"); ok {
		t.Errorf("take should remove the key")
	}
}
