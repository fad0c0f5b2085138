// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

// Package eventdispatch installs native listeners for handler attributes and
// forwards fired events to the producer as (descriptor, payload) JSON pairs.
package eventdispatch

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/wavetermdev/wavedom/pkg/livedom"
	"github.com/wavetermdev/wavedom/pkg/rendertree"
)

type EventKind string

const (
	EventKind_Mouse    EventKind = "mouse"
	EventKind_Keyboard EventKind = "keyboard"
)

type handlerDef struct {
	EventName string
	Kind      EventKind
}

var eventKinds = map[string]EventKind{
	"click":    EventKind_Mouse,
	"dblclick": EventKind_Mouse,
	"keydown":  EventKind_Keyboard,
	"keyup":    EventKind_Keyboard,
	"keypress": EventKind_Keyboard,
}

// lookupHandler resolves a handler attribute from the fixed set in rendertree.
func lookupHandler(attrName string) (handlerDef, bool) {
	eventName, ok := rendertree.HandlerEventName(attrName)
	if !ok {
		return handlerDef{}, false
	}
	kind, ok := eventKinds[eventName]
	if !ok {
		kind = EventKind_Mouse
	}
	return handlerDef{EventName: eventName, Kind: kind}, true
}

type EventDescriptor struct {
	ComponentId   int       `json:"componentId"`
	NodeReference int       `json:"nodeReference"`
	EventKind     EventKind `json:"eventKind"`
}

type MouseEventPayload struct {
	Type string `json:"type"`
}

type KeyboardEventPayload struct {
	Type string `json:"type"`
	Key  string `json:"key"`
}

// Forwarder carries events across the boundary. ForwardEvent must not block
// and gets no reply; the producer answers, if at all, with a new batch.
type Forwarder interface {
	ForwardEvent(descriptor []byte, payload []byte)
}

type listenerKey struct {
	Elem      livedom.Node
	EventName string
}

// Dispatcher keeps at most one native listener per (element, event name).
// Owned by one tree consumer; no locking.
type Dispatcher struct {
	doc       livedom.Document
	fwd       Forwarder
	listeners map[listenerKey]livedom.ListenerId
}

func MakeDispatcher(doc livedom.Document, fwd Forwarder) *Dispatcher {
	return &Dispatcher{
		doc:       doc,
		fwd:       fwd,
		listeners: make(map[listenerKey]livedom.ListenerId),
	}
}

// ApplyAttribute writes attr onto elem. Handler attributes replace any
// listener already installed for the same event; nodeIndex is the attribute's
// Node Store index and is what the producer gets back as nodeReference.
func (d *Dispatcher) ApplyAttribute(componentId int, elem livedom.Node, nodeIndex int, attr rendertree.TreeNode) error {
	hdef, isHandler := lookupHandler(attr.AttrName)
	if !isHandler {
		return d.doc.SetAttribute(elem, attr.AttrName, attr.AttrValue)
	}
	key := listenerKey{Elem: elem, EventName: hdef.EventName}
	err := d.removeListener(key)
	if err != nil {
		return err
	}
	listenerId, err := d.doc.AddEventListener(elem, hdef.EventName, func(ev livedom.NativeEvent) {
		d.forward(componentId, nodeIndex, hdef, ev)
	})
	if err != nil {
		return fmt.Errorf("adding %s listener: %w", hdef.EventName, err)
	}
	d.listeners[key] = listenerId
	return nil
}

func (d *Dispatcher) RemoveAttribute(elem livedom.Node, name string) error {
	hdef, isHandler := lookupHandler(name)
	if !isHandler {
		return d.doc.RemoveAttribute(elem, name)
	}
	return d.removeListener(listenerKey{Elem: elem, EventName: hdef.EventName})
}

func (d *Dispatcher) removeListener(key listenerKey) error {
	listenerId, ok := d.listeners[key]
	if !ok {
		return nil
	}
	delete(d.listeners, key)
	err := d.doc.RemoveEventListener(key.Elem, key.EventName, listenerId)
	if err != nil {
		return fmt.Errorf("removing %s listener: %w", key.EventName, err)
	}
	return nil
}

// ReleaseSubtree drops the listeners of node and its descendants. Called when
// the subtree leaves the live tree so the table does not keep dead elements.
func (d *Dispatcher) ReleaseSubtree(node livedom.Node) {
	if len(d.listeners) == 0 {
		return
	}
	livedom.Walk(d.doc, node, func(n livedom.Node) bool {
		if n.Kind() != livedom.NodeKind_Element {
			return false
		}
		for _, attrName := range rendertree.HandlerAttrNames() {
			hdef, _ := lookupHandler(attrName)
			key := listenerKey{Elem: n, EventName: hdef.EventName}
			if err := d.removeListener(key); err != nil {
				log.Printf("[dispatch] %v\n", err)
			}
		}
		return true
	})
}

func (d *Dispatcher) ListenerCount() int {
	return len(d.listeners)
}

func (d *Dispatcher) forward(componentId int, nodeIndex int, hdef handlerDef, ev livedom.NativeEvent) {
	if d.fwd == nil {
		return
	}
	descriptor := EventDescriptor{
		ComponentId:   componentId,
		NodeReference: nodeIndex,
		EventKind:     hdef.Kind,
	}
	evType := ev.Type
	if evType == "" {
		evType = hdef.EventName
	}
	var payload any
	switch hdef.Kind {
	case EventKind_Keyboard:
		payload = KeyboardEventPayload{Type: evType, Key: ev.Key}
	default:
		payload = MouseEventPayload{Type: evType}
	}
	descBytes, err := json.Marshal(descriptor)
	if err != nil {
		log.Printf("[dispatch] cannot marshal event descriptor: %v\n", err)
		return
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[dispatch] cannot marshal event payload: %v\n", err)
		return
	}
	d.fwd.ForwardEvent(descBytes, payloadBytes)
}
