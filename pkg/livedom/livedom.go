// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

// Package livedom is the live document tree the patcher mutates. Document is
// the platform contract; MemDocument is the in-process implementation used by
// headless consumers and tests, JSDocument (js/wasm) drives a browser DOM.
package livedom

import "fmt"

type NodeKind int

const (
	NodeKind_Element NodeKind = 1
	NodeKind_Text    NodeKind = 2
)

func (k NodeKind) String() string {
	switch k {
	case NodeKind_Element:
		return "element"
	case NodeKind_Text:
		return "text"
	}
	return fmt.Sprintf("nodekind(%d)", int(k))
}

// Node handles must be comparable: the same live node always yields an equal
// handle, so they can key maps.
type Node interface {
	Kind() NodeKind
}

type ListenerId int64

// NativeEvent is the subset of a platform event the dispatcher forwards.
type NativeEvent struct {
	Type string
	Key  string
}

type EventListener func(ev NativeEvent)

type Document interface {
	Body() Node
	CreateElement(tagName string) (Node, error)
	CreateText(content string) (Node, error)
	InsertChild(parent Node, index int, child Node) error
	RemoveChild(parent Node, index int) (Node, error)
	ChildAt(parent Node, index int) (Node, error)
	ChildCount(parent Node) int
	SetText(node Node, content string) error
	SetAttribute(elem Node, name string, value string) error
	RemoveAttribute(elem Node, name string) error
	AddEventListener(elem Node, eventName string, fn EventListener) (ListenerId, error)
	RemoveEventListener(elem Node, eventName string, id ListenerId) error
}

// EventFirer is implemented by documents that can synthesize events (headless
// consumers). Returns the number of listeners invoked.
type EventFirer interface {
	FireEvent(node Node, eventName string, ev NativeEvent) int
}

type HTMLRenderer interface {
	OuterHTML(node Node) string
}

// Walk visits node and then its descendants in document order. Returning
// false from fn skips the node's children.
func Walk(doc Document, node Node, fn func(n Node) bool) {
	if !fn(node) {
		return
	}
	if node.Kind() != NodeKind_Element {
		return
	}
	count := doc.ChildCount(node)
	for i := 0; i < count; i++ {
		child, err := doc.ChildAt(node, i)
		if err != nil {
			return
		}
		Walk(doc, child, fn)
	}
}
