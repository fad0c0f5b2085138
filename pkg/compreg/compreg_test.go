// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package compreg

import (
	"strings"
	"testing"

	"github.com/wavetermdev/wavedom/pkg/livedom"
	"github.com/wavetermdev/wavedom/pkg/rendertree"
)

func TestAttachResolveDetach(t *testing.T) {
	doc := livedom.MakeMemDocument()
	elemA, _ := doc.CreateElement("wavedom-component")
	elemB, _ := doc.CreateElement("wavedom-component")
	reg := MakeRegistry()

	if err := reg.Attach(1, elemA); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if err := reg.Attach(1, elemA); err != nil {
		t.Errorf("re-attaching the same pair should be a no-op: %v", err)
	}
	if err := reg.Attach(1, elemB); !rendertree.IsAddressingError(err) {
		t.Errorf("expected addressing error moving an entry, got %v", err)
	}
	if err := reg.Attach(2, elemA); err == nil {
		t.Errorf("expected error attaching a second component to the same element")
	}
	got, err := reg.Resolve(1)
	if err != nil || got != elemA {
		t.Fatalf("resolve 1: %v %v", got, err)
	}
	if id, ok := reg.ComponentFor(elemA); !ok || id != 1 {
		t.Errorf("reverse lookup failed: %d %v", id, ok)
	}
	if !reg.Detach(1) {
		t.Fatalf("detach should report true")
	}
	if reg.Detach(1) {
		t.Errorf("second detach should report false")
	}
	_, err = reg.Resolve(1)
	if !rendertree.IsAddressingError(err) {
		t.Fatalf("expected addressing error, got %v", err)
	}
	if !strings.Contains(err.Error(), "no element is currently associated with component 1") {
		t.Errorf("unexpected message %q", err.Error())
	}
	if err := reg.Attach(2, elemA); err != nil {
		t.Errorf("element should be free after detach: %v", err)
	}
}

func TestAttachRejectsText(t *testing.T) {
	doc := livedom.MakeMemDocument()
	txt, _ := doc.CreateText("x")
	reg := MakeRegistry()
	if err := reg.Attach(5, txt); err == nil {
		t.Errorf("expected error attaching to a text node")
	}
	if reg.Len() != 0 {
		t.Errorf("registry should be empty")
	}
}

func TestIdsSorted(t *testing.T) {
	doc := livedom.MakeMemDocument()
	reg := MakeRegistry()
	for _, id := range []int{9, 3, 5} {
		elem, _ := doc.CreateElement("div")
		reg.Attach(id, elem)
	}
	ids := reg.Ids()
	if len(ids) != 3 || ids[0] != 3 || ids[1] != 5 || ids[2] != 9 {
		t.Errorf("unexpected ids %v", ids)
	}
}
