// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package rendertree

import "fmt"

type openElem struct {
	idx      int
	hasChild bool
}

// Builder appends Node Store records in document order and fills in
// DescendantsEndIndex when an element is closed. The first misuse is kept
// and reported by Build.
type Builder struct {
	nodes      []TreeNode
	open       []openElem
	handlerSeq int
	err        error
}

func MakeBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) markChild() {
	if len(b.open) > 0 {
		b.open[len(b.open)-1].hasChild = true
	}
}

// OpenElement returns the new element's node index.
func (b *Builder) OpenElement(tagName string) int {
	b.markChild()
	idx := len(b.nodes)
	b.nodes = append(b.nodes, ElementNode(tagName, idx))
	b.open = append(b.open, openElem{idx: idx})
	return idx
}

func (b *Builder) addAttr(node TreeNode) int {
	if b.err != nil {
		return -1
	}
	if len(b.open) == 0 {
		b.err = fmt.Errorf("attribute %q outside of an element", node.AttrName)
		return -1
	}
	if b.open[len(b.open)-1].hasChild {
		b.err = fmt.Errorf("attribute %q added after a child of <%s>", node.AttrName, b.nodes[b.open[len(b.open)-1].idx].TagName)
		return -1
	}
	b.nodes = append(b.nodes, node)
	return len(b.nodes) - 1
}

func (b *Builder) AddAttribute(name string, value string) int {
	return b.addAttr(AttributeNode(name, value))
}

// AddEventHandler adds a handler attribute with a fresh non-zero handler ref.
func (b *Builder) AddEventHandler(name string) int {
	b.handlerSeq++
	return b.addAttr(HandlerAttributeNode(name, b.handlerSeq))
}

func (b *Builder) AddText(content string) int {
	b.markChild()
	b.nodes = append(b.nodes, TextNode(content))
	return len(b.nodes) - 1
}

func (b *Builder) AddComponent(componentId int) int {
	b.markChild()
	b.nodes = append(b.nodes, ComponentNode(componentId))
	return len(b.nodes) - 1
}

func (b *Builder) CloseElement() {
	if b.err != nil {
		return
	}
	if len(b.open) == 0 {
		b.err = fmt.Errorf("close without open element")
		return
	}
	top := b.open[len(b.open)-1]
	b.open = b.open[:len(b.open)-1]
	b.nodes[top.idx].DescendantsEndIndex = len(b.nodes) - 1
}

// CurrentTag is the tag of the innermost open element, "" at top level.
func (b *Builder) CurrentTag() string {
	if len(b.open) == 0 {
		return ""
	}
	return b.nodes[b.open[len(b.open)-1].idx].TagName
}

func (b *Builder) Depth() int {
	return len(b.open)
}

func (b *Builder) Build() (*NodeStore, error) {
	if b.err != nil {
		return nil, b.err
	}
	if len(b.open) > 0 {
		return nil, fmt.Errorf("element <%s> not closed", b.CurrentTag())
	}
	return MakeNodeStore(b.nodes...), nil
}

// TopLevel returns the indexes of the nodes that have no parent element.
func TopLevel(nodes *NodeStore) []int {
	var rtn []int
	for idx := 0; idx < nodes.Len(); {
		rtn = append(rtn, idx)
		idx = max(nodes.SubtreeEnd(idx), idx) + 1
	}
	return rtn
}

// FullRenderScript inserts every top-level node in order into an empty parent.
func FullRenderScript(nodes *NodeStore) *EditScript {
	var edits []Edit
	for sibIdx, nodeIdx := range TopLevel(nodes) {
		edits = append(edits, PrependNodeEdit(nodeIdx, sibIdx))
	}
	return MakeEditScript(edits...)
}
