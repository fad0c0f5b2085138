// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package eventdispatch

import (
	"testing"

	"github.com/wavetermdev/wavedom/pkg/livedom"
	"github.com/wavetermdev/wavedom/pkg/rendertree"
)

type forwardedEvent struct {
	Descriptor string
	Payload    string
}

type recordingForwarder struct {
	events []forwardedEvent
}

func (f *recordingForwarder) ForwardEvent(descriptor []byte, payload []byte) {
	f.events = append(f.events, forwardedEvent{Descriptor: string(descriptor), Payload: string(payload)})
}

func setup(t *testing.T) (*livedom.MemDocument, *livedom.MemNode, *recordingForwarder, *Dispatcher) {
	doc := livedom.MakeMemDocument()
	elem, _ := doc.CreateElement("button")
	if err := doc.InsertChild(doc.Body(), 0, elem); err != nil {
		t.Fatalf("insert: %v", err)
	}
	fwd := &recordingForwarder{}
	return doc, elem.(*livedom.MemNode), fwd, MakeDispatcher(doc, fwd)
}

func TestClickForwardsDescriptor(t *testing.T) {
	doc, elem, fwd, d := setup(t)
	err := d.ApplyAttribute(7, elem, 3, rendertree.HandlerAttributeNode("onclick", 1))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if _, ok := elem.GetAttribute("onclick"); ok {
		t.Errorf("handler attribute should not be written as a string attribute")
	}
	doc.FireEvent(elem, "click", livedom.NativeEvent{Type: "click"})
	if len(fwd.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(fwd.events))
	}
	ev := fwd.events[0]
	if ev.Descriptor != `{"componentId":7,"nodeReference":3,"eventKind":"mouse"}` {
		t.Errorf("unexpected descriptor %s", ev.Descriptor)
	}
	if ev.Payload != `{"type":"click"}` {
		t.Errorf("unexpected payload %s", ev.Payload)
	}
}

func TestKeyboardPayload(t *testing.T) {
	doc, elem, fwd, d := setup(t)
	d.ApplyAttribute(2, elem, 5, rendertree.HandlerAttributeNode("onkeydown", 1))
	doc.FireEvent(elem, "keydown", livedom.NativeEvent{Type: "keydown", Key: "Enter"})
	if len(fwd.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(fwd.events))
	}
	if fwd.events[0].Descriptor != `{"componentId":2,"nodeReference":5,"eventKind":"keyboard"}` {
		t.Errorf("unexpected descriptor %s", fwd.events[0].Descriptor)
	}
	if fwd.events[0].Payload != `{"type":"keydown","key":"Enter"}` {
		t.Errorf("unexpected payload %s", fwd.events[0].Payload)
	}
}

func TestReapplyReplacesListener(t *testing.T) {
	doc, elem, fwd, d := setup(t)
	d.ApplyAttribute(1, elem, 1, rendertree.HandlerAttributeNode("onclick", 1))
	d.ApplyAttribute(1, elem, 4, rendertree.HandlerAttributeNode("onclick", 2))
	if elem.ListenerCount("click") != 1 {
		t.Fatalf("expected exactly one click listener, got %d", elem.ListenerCount("click"))
	}
	doc.FireEvent(elem, "click", livedom.NativeEvent{Type: "click"})
	if len(fwd.events) != 1 {
		t.Fatalf("expected one forwarded event, got %d", len(fwd.events))
	}
	// the latest application wins
	if fwd.events[0].Descriptor != `{"componentId":1,"nodeReference":4,"eventKind":"mouse"}` {
		t.Errorf("unexpected descriptor %s", fwd.events[0].Descriptor)
	}
}

func TestPlainAttributeAndRemove(t *testing.T) {
	doc, elem, fwd, d := setup(t)
	d.ApplyAttribute(1, elem, 1, rendertree.AttributeNode("title", "hello"))
	d.ApplyAttribute(1, elem, 2, rendertree.AttributeNode("onmouseover", "x"))
	if v, _ := elem.GetAttribute("title"); v != "hello" {
		t.Errorf("expected title=hello, got %q", v)
	}
	if v, _ := elem.GetAttribute("onmouseover"); v != "x" {
		t.Errorf("names outside the handler set are plain attributes, got %q", v)
	}
	d.ApplyAttribute(1, elem, 3, rendertree.HandlerAttributeNode("onclick", 1))
	if err := d.RemoveAttribute(elem, "onclick"); err != nil {
		t.Fatalf("remove handler: %v", err)
	}
	if err := d.RemoveAttribute(elem, "title"); err != nil {
		t.Fatalf("remove title: %v", err)
	}
	if _, ok := elem.GetAttribute("title"); ok {
		t.Errorf("title should be gone")
	}
	doc.FireEvent(elem, "click", livedom.NativeEvent{Type: "click"})
	if len(fwd.events) != 0 {
		t.Errorf("expected no events after removing the handler, got %d", len(fwd.events))
	}
	if d.ListenerCount() != 0 {
		t.Errorf("listener table should be empty")
	}
}

func TestReleaseSubtree(t *testing.T) {
	doc, elem, _, d := setup(t)
	inner, _ := doc.CreateElement("span")
	doc.InsertChild(elem, 0, inner)
	d.ApplyAttribute(1, elem, 1, rendertree.HandlerAttributeNode("onclick", 1))
	d.ApplyAttribute(1, inner, 2, rendertree.HandlerAttributeNode("onkeyup", 2))
	if d.ListenerCount() != 2 {
		t.Fatalf("expected 2 listeners, got %d", d.ListenerCount())
	}
	d.ReleaseSubtree(elem)
	if d.ListenerCount() != 0 {
		t.Errorf("expected no listeners after release, got %d", d.ListenerCount())
	}
	if elem.ListenerCount("click") != 0 || inner.(*livedom.MemNode).ListenerCount("keyup") != 0 {
		t.Errorf("native listeners should be removed")
	}
}

func TestUnknownOnAttributeIsPlain(t *testing.T) {
	_, elem, _, d := setup(t)
	err := d.ApplyAttribute(1, elem, 2, rendertree.AttributeNode("onmouseover", "x"))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if val, ok := elem.GetAttribute("onmouseover"); !ok || val != "x" {
		t.Errorf("onmouseover should be written through, got %q %v", val, ok)
	}
	if d.ListenerCount() != 0 {
		t.Errorf("expected no listeners, got %d", d.ListenerCount())
	}
	for _, name := range rendertree.HandlerAttrNames() {
		if _, ok := lookupHandler(name); !ok {
			t.Errorf("%s should resolve to a handler", name)
		}
	}
}
