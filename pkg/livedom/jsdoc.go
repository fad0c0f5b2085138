// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

//go:build js && wasm

package livedom

import (
	"fmt"
	"syscall/js"
)

const jsNodeIdProp = "__wavedomId"

type jsNode struct {
	id   int
	kind NodeKind
	v    js.Value
}

func (n *jsNode) Kind() NodeKind {
	return n.kind
}

type jsListener struct {
	event string
	fn    js.Func
}

// JSDocument drives the browser DOM through syscall/js. js.Value is not
// comparable, so each DOM node gets one *jsNode wrapper, found again through
// an id stored on the JS object.
type JSDocument struct {
	doc       js.Value
	body      *jsNode
	nodes     map[int]*jsNode
	nextId    int
	listeners map[ListenerId]jsListener
	nextLid   ListenerId
}

func MakeJSDocument() *JSDocument {
	d := &JSDocument{
		doc:       js.Global().Get("document"),
		nodes:     make(map[int]*jsNode),
		listeners: make(map[ListenerId]jsListener),
	}
	d.body = d.wrap(d.doc.Get("body"))
	return d
}

func (d *JSDocument) wrap(v js.Value) *jsNode {
	idVal := v.Get(jsNodeIdProp)
	if idVal.Type() == js.TypeNumber {
		if n, ok := d.nodes[idVal.Int()]; ok {
			return n
		}
	}
	d.nextId++
	kind := NodeKind_Element
	if v.Get("nodeType").Int() == 3 {
		kind = NodeKind_Text
	}
	n := &jsNode{id: d.nextId, kind: kind, v: v}
	v.Set(jsNodeIdProp, d.nextId)
	d.nodes[d.nextId] = n
	return n
}

func (d *JSDocument) unwrap(node Node) (*jsNode, error) {
	n, ok := node.(*jsNode)
	if !ok || n == nil {
		return nil, fmt.Errorf("node %v does not belong to this document", node)
	}
	return n, nil
}

func (d *JSDocument) unwrapElem(node Node) (*jsNode, error) {
	n, err := d.unwrap(node)
	if err != nil {
		return nil, err
	}
	if n.kind != NodeKind_Element {
		return nil, fmt.Errorf("node is a %s, not an element", n.kind)
	}
	return n, nil
}

func (d *JSDocument) Body() Node {
	return d.body
}

func (d *JSDocument) CreateElement(tagName string) (Node, error) {
	return d.wrap(d.doc.Call("createElement", tagName)), nil
}

func (d *JSDocument) CreateText(content string) (Node, error) {
	return d.wrap(d.doc.Call("createTextNode", content)), nil
}

func (d *JSDocument) InsertChild(parent Node, index int, child Node) error {
	p, err := d.unwrapElem(parent)
	if err != nil {
		return err
	}
	c, err := d.unwrap(child)
	if err != nil {
		return err
	}
	childNodes := p.v.Get("childNodes")
	count := childNodes.Length()
	if index < 0 || index > count {
		return fmt.Errorf("insert index %d out of range [0, %d]", index, count)
	}
	if index == count {
		p.v.Call("appendChild", c.v)
		return nil
	}
	p.v.Call("insertBefore", c.v, childNodes.Index(index))
	return nil
}

func (d *JSDocument) RemoveChild(parent Node, index int) (Node, error) {
	child, err := d.ChildAt(parent, index)
	if err != nil {
		return nil, err
	}
	p, _ := d.unwrapElem(parent)
	c := child.(*jsNode)
	p.v.Call("removeChild", c.v)
	Walk(d, c, func(n Node) bool {
		delete(d.nodes, n.(*jsNode).id)
		return true
	})
	return c, nil
}

func (d *JSDocument) ChildAt(parent Node, index int) (Node, error) {
	p, err := d.unwrapElem(parent)
	if err != nil {
		return nil, err
	}
	childNodes := p.v.Get("childNodes")
	if index < 0 || index >= childNodes.Length() {
		return nil, fmt.Errorf("child index %d out of range (%d children)", index, childNodes.Length())
	}
	return d.wrap(childNodes.Index(index)), nil
}

func (d *JSDocument) ChildCount(parent Node) int {
	p, err := d.unwrapElem(parent)
	if err != nil {
		return 0
	}
	return p.v.Get("childNodes").Length()
}

func (d *JSDocument) SetText(node Node, content string) error {
	n, err := d.unwrap(node)
	if err != nil {
		return err
	}
	if n.kind != NodeKind_Text {
		return fmt.Errorf("node is a %s, not text", n.kind)
	}
	n.v.Set("textContent", content)
	return nil
}

func (d *JSDocument) SetAttribute(elem Node, name string, value string) error {
	e, err := d.unwrapElem(elem)
	if err != nil {
		return err
	}
	e.v.Call("setAttribute", name, value)
	return nil
}

func (d *JSDocument) RemoveAttribute(elem Node, name string) error {
	e, err := d.unwrapElem(elem)
	if err != nil {
		return err
	}
	e.v.Call("removeAttribute", name)
	return nil
}

func (d *JSDocument) AddEventListener(elem Node, eventName string, fn EventListener) (ListenerId, error) {
	e, err := d.unwrapElem(elem)
	if err != nil {
		return 0, err
	}
	jsFn := js.FuncOf(func(this js.Value, args []js.Value) any {
		ev := NativeEvent{Type: eventName}
		if len(args) > 0 {
			ev.Type = args[0].Get("type").String()
			if key := args[0].Get("key"); key.Type() == js.TypeString {
				ev.Key = key.String()
			}
		}
		fn(ev)
		return nil
	})
	e.v.Call("addEventListener", eventName, jsFn)
	d.nextLid++
	d.listeners[d.nextLid] = jsListener{event: eventName, fn: jsFn}
	return d.nextLid, nil
}

func (d *JSDocument) RemoveEventListener(elem Node, eventName string, id ListenerId) error {
	e, err := d.unwrapElem(elem)
	if err != nil {
		return err
	}
	l, ok := d.listeners[id]
	if !ok || l.event != eventName {
		return fmt.Errorf("no %s listener %d", eventName, id)
	}
	e.v.Call("removeEventListener", eventName, l.fn)
	l.fn.Release()
	delete(d.listeners, id)
	return nil
}

func (d *JSDocument) OuterHTML(node Node) string {
	n, err := d.unwrap(node)
	if err != nil {
		return ""
	}
	if n.kind == NodeKind_Text {
		return n.v.Get("textContent").String()
	}
	return n.v.Get("outerHTML").String()
}
