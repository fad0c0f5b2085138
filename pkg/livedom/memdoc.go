// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package livedom

import (
	"fmt"
	"html"
	"strings"
)

type memAttr struct {
	Name  string
	Value string
}

type memListener struct {
	Id    ListenerId
	Event string
	Fn    EventListener
}

type MemNode struct {
	kind      NodeKind
	tag       string
	text      string
	attrs     []memAttr
	children  []*MemNode
	parent    *MemNode
	listeners []memListener
}

func (n *MemNode) Kind() NodeKind {
	return n.kind
}

func (n *MemNode) TagName() string {
	return n.tag
}

func (n *MemNode) Text() string {
	return n.text
}

func (n *MemNode) Parent() *MemNode {
	return n.parent
}

func (n *MemNode) GetAttribute(name string) (string, bool) {
	for _, attr := range n.attrs {
		if attr.Name == name {
			return attr.Value, true
		}
	}
	return "", false
}

func (n *MemNode) ListenerCount(eventName string) int {
	count := 0
	for _, l := range n.listeners {
		if l.Event == eventName {
			count++
		}
	}
	return count
}

// DocStats counts mutations, for checking that a patch did no more work than
// its edits call for.
type DocStats struct {
	Creates         int
	Inserts         int
	Removes         int
	AttrSets        int
	AttrRemoves     int
	TextSets        int
	ListenerAdds    int
	ListenerRemoves int
}

// MemDocument is not safe for concurrent use; its owner serializes access.
type MemDocument struct {
	body           *MemNode
	nextListenerId ListenerId
	Stats          DocStats
}

func MakeMemDocument() *MemDocument {
	return &MemDocument{body: &MemNode{kind: NodeKind_Element, tag: "body"}}
}

func asMemNode(node Node) (*MemNode, error) {
	mn, ok := node.(*MemNode)
	if !ok || mn == nil {
		return nil, fmt.Errorf("node %v does not belong to this document", node)
	}
	return mn, nil
}

func asMemElem(node Node) (*MemNode, error) {
	mn, err := asMemNode(node)
	if err != nil {
		return nil, err
	}
	if mn.kind != NodeKind_Element {
		return nil, fmt.Errorf("node is a %s, not an element", mn.kind)
	}
	return mn, nil
}

func (d *MemDocument) Body() Node {
	return d.body
}

func (d *MemDocument) MemBody() *MemNode {
	return d.body
}

func (d *MemDocument) CreateElement(tagName string) (Node, error) {
	if tagName == "" {
		return nil, fmt.Errorf("empty tag name")
	}
	d.Stats.Creates++
	return &MemNode{kind: NodeKind_Element, tag: tagName}, nil
}

func (d *MemDocument) CreateText(content string) (Node, error) {
	d.Stats.Creates++
	return &MemNode{kind: NodeKind_Text, text: content}, nil
}

func (d *MemDocument) InsertChild(parent Node, index int, child Node) error {
	p, err := asMemElem(parent)
	if err != nil {
		return err
	}
	c, err := asMemNode(child)
	if err != nil {
		return err
	}
	if c.parent != nil {
		return fmt.Errorf("node is already attached")
	}
	if index < 0 || index > len(p.children) {
		return fmt.Errorf("insert index %d out of range [0, %d] in <%s>", index, len(p.children), p.tag)
	}
	p.children = append(p.children, nil)
	copy(p.children[index+1:], p.children[index:])
	p.children[index] = c
	c.parent = p
	d.Stats.Inserts++
	return nil
}

func (d *MemDocument) RemoveChild(parent Node, index int) (Node, error) {
	p, err := asMemElem(parent)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(p.children) {
		return nil, fmt.Errorf("child index %d out of range (<%s> has %d children)", index, p.tag, len(p.children))
	}
	c := p.children[index]
	p.children = append(p.children[:index], p.children[index+1:]...)
	c.parent = nil
	d.Stats.Removes++
	return c, nil
}

func (d *MemDocument) ChildAt(parent Node, index int) (Node, error) {
	p, err := asMemElem(parent)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(p.children) {
		return nil, fmt.Errorf("child index %d out of range (<%s> has %d children)", index, p.tag, len(p.children))
	}
	return p.children[index], nil
}

func (d *MemDocument) ChildCount(parent Node) int {
	p, err := asMemElem(parent)
	if err != nil {
		return 0
	}
	return len(p.children)
}

func (d *MemDocument) SetText(node Node, content string) error {
	n, err := asMemNode(node)
	if err != nil {
		return err
	}
	if n.kind != NodeKind_Text {
		return fmt.Errorf("node is a %s, not text", n.kind)
	}
	n.text = content
	d.Stats.TextSets++
	return nil
}

func (d *MemDocument) SetAttribute(elem Node, name string, value string) error {
	e, err := asMemElem(elem)
	if err != nil {
		return err
	}
	d.Stats.AttrSets++
	for i := range e.attrs {
		if e.attrs[i].Name == name {
			e.attrs[i].Value = value
			return nil
		}
	}
	e.attrs = append(e.attrs, memAttr{Name: name, Value: value})
	return nil
}

// removing an attribute that is not present is not an error (same as the DOM)
func (d *MemDocument) RemoveAttribute(elem Node, name string) error {
	e, err := asMemElem(elem)
	if err != nil {
		return err
	}
	d.Stats.AttrRemoves++
	for i := range e.attrs {
		if e.attrs[i].Name == name {
			e.attrs = append(e.attrs[:i], e.attrs[i+1:]...)
			return nil
		}
	}
	return nil
}

func (d *MemDocument) AddEventListener(elem Node, eventName string, fn EventListener) (ListenerId, error) {
	e, err := asMemElem(elem)
	if err != nil {
		return 0, err
	}
	d.nextListenerId++
	e.listeners = append(e.listeners, memListener{Id: d.nextListenerId, Event: eventName, Fn: fn})
	d.Stats.ListenerAdds++
	return d.nextListenerId, nil
}

func (d *MemDocument) RemoveEventListener(elem Node, eventName string, id ListenerId) error {
	e, err := asMemElem(elem)
	if err != nil {
		return err
	}
	for i, l := range e.listeners {
		if l.Id == id && l.Event == eventName {
			e.listeners = append(e.listeners[:i], e.listeners[i+1:]...)
			d.Stats.ListenerRemoves++
			return nil
		}
	}
	return fmt.Errorf("no %s listener %d on <%s>", eventName, id, e.tag)
}

// FireEvent calls the node's listeners for eventName. Events do not bubble.
func (d *MemDocument) FireEvent(node Node, eventName string, ev NativeEvent) int {
	n, err := asMemNode(node)
	if err != nil {
		return 0
	}
	// listeners may add/remove listeners while running
	var toCall []EventListener
	for _, l := range n.listeners {
		if l.Event == eventName {
			toCall = append(toCall, l.Fn)
		}
	}
	for _, fn := range toCall {
		fn(ev)
	}
	return len(toCall)
}

func (d *MemDocument) OuterHTML(node Node) string {
	n, err := asMemNode(node)
	if err != nil {
		return ""
	}
	var buf strings.Builder
	writeHTML(&buf, n)
	return buf.String()
}

// InnerHTML renders the children of node only.
func (d *MemDocument) InnerHTML(node Node) string {
	n, err := asMemNode(node)
	if err != nil {
		return ""
	}
	var buf strings.Builder
	for _, c := range n.children {
		writeHTML(&buf, c)
	}
	return buf.String()
}

// listeners render as bare on<event> attributes after the real attributes
func writeHTML(buf *strings.Builder, n *MemNode) {
	if n.kind == NodeKind_Text {
		buf.WriteString(html.EscapeString(n.text))
		return
	}
	buf.WriteString("<")
	buf.WriteString(n.tag)
	for _, attr := range n.attrs {
		buf.WriteString(fmt.Sprintf(" %s=\"%s\"", attr.Name, html.EscapeString(attr.Value)))
	}
	for _, l := range n.listeners {
		buf.WriteString(" on")
		buf.WriteString(l.Event)
	}
	buf.WriteString(">")
	for _, c := range n.children {
		writeHTML(buf, c)
	}
	buf.WriteString("</")
	buf.WriteString(n.tag)
	buf.WriteString(">")
}
