// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

// Package treepatch applies an Edit Script to a live document tree in one
// linear pass, materializing new nodes from the Node Store.
package treepatch

import (
	"fmt"
	"strconv"

	"github.com/wavetermdev/wavedom/pkg/compreg"
	"github.com/wavetermdev/wavedom/pkg/eventdispatch"
	"github.com/wavetermdev/wavedom/pkg/livedom"
	"github.com/wavetermdev/wavedom/pkg/rendertree"
)

// mount point for a child component; it carries no meaning beyond that
const ComponentWrapperTag = "wavedom-component"
const ComponentIdAttr = "data-component-id"

// RenderRequester asks the producer for a component's first render. Must not
// block; the render arrives later as an ordinary batch.
type RenderRequester interface {
	RequestRender(componentId int)
}

type Options struct {
	// RemoveNode detaches the registry entries of component wrappers in the
	// removed subtree. Off by default: callers detach explicitly.
	AutoDetach bool
}

type Cursor struct {
	Parent     livedom.Node
	ChildIndex int
}

type Patcher struct {
	doc     livedom.Document
	reg     *compreg.Registry
	disp    *eventdispatch.Dispatcher
	renders RenderRequester
	opts    Options

	componentId int
	nodes       *rendertree.NodeStore
	cur         Cursor
	stack       []Cursor
	attached    []int
}

func MakePatcher(doc livedom.Document, reg *compreg.Registry, disp *eventdispatch.Dispatcher, renders RenderRequester, opts Options) *Patcher {
	return &Patcher{
		doc:     doc,
		reg:     reg,
		disp:    disp,
		renders: renders,
		opts:    opts,
	}
}

func (p *Patcher) SetOptions(opts Options) {
	p.opts = opts
}

// Cursor is the position after the last ApplyEdits call.
func (p *Patcher) Cursor() Cursor {
	return p.cur
}

func (p *Patcher) Depth() int {
	return len(p.stack)
}

// ApplyEdits mutates the live subtree under parent, starting at childIndex.
// Protocol violations found by validation leave the tree untouched; an error
// part way through stops at the failing edit and earlier edits stay applied.
func (p *Patcher) ApplyEdits(componentId int, parent livedom.Node, childIndex int, nodes *rendertree.NodeStore, edits *rendertree.EditScript) error {
	err := rendertree.Validate(nodes, edits)
	if err != nil {
		return err
	}
	if parent == nil || parent.Kind() != livedom.NodeKind_Element {
		return rendertree.AddressingErrorf("component %d: patch root is not an element", componentId)
	}
	p.componentId = componentId
	p.nodes = nodes
	p.cur = Cursor{Parent: parent, ChildIndex: childIndex}
	p.stack = p.stack[:0]
	defer func() {
		p.nodes = nil
	}()
	for idx := 0; idx < edits.Len(); idx++ {
		edit, _ := edits.At(idx)
		err := p.applyEdit(edit)
		if err != nil {
			return fmt.Errorf("component %d, edit %d %s: %w", componentId, idx, edit, err)
		}
	}
	return nil
}

func (p *Patcher) applyEdit(edit rendertree.Edit) error {
	pos := p.cur.ChildIndex + edit.SiblingIndex
	switch edit.Type {
	case rendertree.EditType_Continue:
		return nil

	case rendertree.EditType_PrependNode:
		return p.materialize(p.cur.Parent, pos, edit.SourceNodeIndex)

	case rendertree.EditType_RemoveNode:
		return p.removeNode(pos)

	case rendertree.EditType_SetAttribute:
		elem, err := p.childElem(pos)
		if err != nil {
			return err
		}
		attr, _ := p.nodes.At(edit.SourceNodeIndex)
		return p.disp.ApplyAttribute(p.componentId, elem, edit.SourceNodeIndex, attr)

	case rendertree.EditType_RemoveAttribute:
		elem, err := p.childElem(pos)
		if err != nil {
			return err
		}
		return p.disp.RemoveAttribute(elem, edit.AttributeName)

	case rendertree.EditType_UpdateText:
		node, err := p.child(pos)
		if err != nil {
			return err
		}
		if node.Kind() != livedom.NodeKind_Text {
			return rendertree.AddressingErrorf("child %d is a %s, expected text", pos, node.Kind())
		}
		textNode, _ := p.nodes.At(edit.SourceNodeIndex)
		return p.doc.SetText(node, textNode.Content)

	case rendertree.EditType_StepIn:
		elem, err := p.childElem(pos)
		if err != nil {
			return err
		}
		p.stack = append(p.stack, p.cur)
		p.cur = Cursor{Parent: elem, ChildIndex: 0}
		return nil

	case rendertree.EditType_StepOut:
		if len(p.stack) == 0 {
			return rendertree.ProtocolErrorf("stepout at top level")
		}
		p.cur = p.stack[len(p.stack)-1]
		p.stack = p.stack[:len(p.stack)-1]
		return nil
	}
	return rendertree.ProtocolErrorf("unknown edit type %d", int32(edit.Type))
}

func (p *Patcher) child(pos int) (livedom.Node, error) {
	node, err := p.doc.ChildAt(p.cur.Parent, pos)
	if err != nil {
		return nil, rendertree.AddressingErrorf("%v", err)
	}
	return node, nil
}

func (p *Patcher) childElem(pos int) (livedom.Node, error) {
	node, err := p.child(pos)
	if err != nil {
		return nil, err
	}
	if node.Kind() != livedom.NodeKind_Element {
		return nil, rendertree.AddressingErrorf("child %d is a %s, expected element", pos, node.Kind())
	}
	return node, nil
}

func (p *Patcher) removeNode(pos int) error {
	node, err := p.child(pos)
	if err != nil {
		return err
	}
	if p.opts.AutoDetach {
		p.detachComponents(node)
	}
	p.disp.ReleaseSubtree(node)
	_, err = p.doc.RemoveChild(p.cur.Parent, pos)
	if err != nil {
		return rendertree.AddressingErrorf("%v", err)
	}
	return nil
}

func (p *Patcher) detachComponents(node livedom.Node) {
	DetachComponents(p.doc, p.reg, node)
}

// DetachComponents drops the registry entries of every component wrapper in
// node's subtree (node included) and returns their ids in document order.
func DetachComponents(doc livedom.Document, reg *compreg.Registry, node livedom.Node) []int {
	var ids []int
	livedom.Walk(doc, node, func(n livedom.Node) bool {
		if n.Kind() != livedom.NodeKind_Element {
			return false
		}
		if componentId, ok := reg.ComponentFor(n); ok {
			reg.Detach(componentId)
			ids = append(ids, componentId)
		}
		return true
	})
	return ids
}

// materialize builds the node at nodeIdx (and its whole subtree) detached,
// then inserts it under parent at pos. On failure the component attachments
// made while building are undone; render requests go out only after the insert.
func (p *Patcher) materialize(parent livedom.Node, pos int, nodeIdx int) error {
	p.attached = p.attached[:0]
	liveNode, err := p.build(nodeIdx)
	if err == nil {
		err = p.insert(parent, pos, liveNode)
		if err != nil {
			p.disp.ReleaseSubtree(liveNode)
		}
	}
	if err != nil {
		for _, componentId := range p.attached {
			p.reg.Detach(componentId)
		}
		p.attached = p.attached[:0]
		return err
	}
	for _, componentId := range p.attached {
		p.renders.RequestRender(componentId)
	}
	p.attached = p.attached[:0]
	return nil
}

func (p *Patcher) insert(parent livedom.Node, pos int, liveNode livedom.Node) error {
	err := p.doc.InsertChild(parent, pos, liveNode)
	if err != nil {
		return rendertree.AddressingErrorf("%v", err)
	}
	return nil
}

// build creates the live node for nodeIdx without inserting it anywhere.
func (p *Patcher) build(nodeIdx int) (livedom.Node, error) {
	node, err := p.nodes.At(nodeIdx)
	if err != nil {
		return nil, err
	}
	switch node.Type {
	case rendertree.NodeType_Element:
		return p.buildElement(nodeIdx, node)

	case rendertree.NodeType_Text:
		return p.doc.CreateText(node.Content)

	case rendertree.NodeType_Component:
		wrapper, err := p.doc.CreateElement(ComponentWrapperTag)
		if err != nil {
			return nil, err
		}
		err = p.doc.SetAttribute(wrapper, ComponentIdAttr, strconv.Itoa(node.ComponentId))
		if err != nil {
			return nil, err
		}
		err = p.reg.Attach(node.ComponentId, wrapper)
		if err != nil {
			return nil, err
		}
		p.attached = append(p.attached, node.ComponentId)
		return wrapper, nil

	case rendertree.NodeType_Attribute:
		return nil, rendertree.ProtocolErrorf("node %d: attribute %q cannot be materialized outside an element", nodeIdx, node.AttrName)
	}
	return nil, rendertree.ProtocolErrorf("node %d: unknown node type %d", nodeIdx, int32(node.Type))
}

// on error the listeners already installed on elem and its built children
// are released
func (p *Patcher) buildElement(nodeIdx int, node rendertree.TreeNode) (livedom.Node, error) {
	elem, err := p.doc.CreateElement(node.TagName)
	if err != nil {
		return nil, err
	}
	end := node.DescendantsEndIndex
	childIdx := nodeIdx + 1
	for ; childIdx <= end; childIdx++ {
		attr, _ := p.nodes.At(childIdx)
		if attr.Type != rendertree.NodeType_Attribute {
			break
		}
		err = p.disp.ApplyAttribute(p.componentId, elem, childIdx, attr)
		if err != nil {
			p.disp.ReleaseSubtree(elem)
			return nil, err
		}
	}
	livePos := 0
	for childIdx <= end {
		child, err := p.build(childIdx)
		if err == nil {
			err = p.insert(elem, livePos, child)
			if err != nil {
				p.disp.ReleaseSubtree(child)
			}
		}
		if err != nil {
			p.disp.ReleaseSubtree(elem)
			return nil, err
		}
		livePos++
		childIdx = p.nodes.SubtreeEnd(childIdx) + 1
	}
	return elem, nil
}
