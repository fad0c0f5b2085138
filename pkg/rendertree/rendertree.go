// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

// Package rendertree defines the records exchanged between a tree producer and
// a tree consumer: the flat Node Store describing the target tree, and the
// Edit Script that turns the consumer's live tree into it.
package rendertree

import "fmt"

type NodeType int32

const (
	NodeType_Element   NodeType = 1
	NodeType_Text      NodeType = 2
	NodeType_Attribute NodeType = 3
	NodeType_Component NodeType = 4
)

func (t NodeType) String() string {
	switch t {
	case NodeType_Element:
		return "element"
	case NodeType_Text:
		return "text"
	case NodeType_Attribute:
		return "attribute"
	case NodeType_Component:
		return "component"
	}
	return fmt.Sprintf("nodetype(%d)", int32(t))
}

func (t NodeType) Valid() bool {
	return t >= NodeType_Element && t <= NodeType_Component
}

type EditType int32

const (
	EditType_Continue        EditType = 1
	EditType_PrependNode     EditType = 2
	EditType_RemoveNode      EditType = 3
	EditType_SetAttribute    EditType = 4
	EditType_RemoveAttribute EditType = 5
	EditType_UpdateText      EditType = 6
	EditType_StepIn          EditType = 7
	EditType_StepOut         EditType = 8
)

func (t EditType) String() string {
	switch t {
	case EditType_Continue:
		return "continue"
	case EditType_PrependNode:
		return "prependnode"
	case EditType_RemoveNode:
		return "removenode"
	case EditType_SetAttribute:
		return "setattribute"
	case EditType_RemoveAttribute:
		return "removeattribute"
	case EditType_UpdateText:
		return "updatetext"
	case EditType_StepIn:
		return "stepin"
	case EditType_StepOut:
		return "stepout"
	}
	return fmt.Sprintf("edittype(%d)", int32(t))
}

func (t EditType) Valid() bool {
	return t >= EditType_Continue && t <= EditType_StepOut
}

// TreeNode is one record of the Node Store. Which fields are meaningful
// depends on Type:
//
//	element:   TagName, DescendantsEndIndex
//	text:      Content
//	attribute: AttrName, AttrValue or EventHandlerRef (non-zero wins)
//	component: ComponentId
type TreeNode struct {
	Type                NodeType `json:"type"`
	TagName             string   `json:"tagname,omitempty"`
	DescendantsEndIndex int      `json:"descendantsendindex,omitempty"`
	Content             string   `json:"content,omitempty"`
	AttrName            string   `json:"attrname,omitempty"`
	AttrValue           string   `json:"attrvalue,omitempty"`
	EventHandlerRef     int      `json:"eventhandlerref,omitempty"`
	ComponentId         int      `json:"componentid,omitempty"`
}

func ElementNode(tagName string, descendantsEndIndex int) TreeNode {
	return TreeNode{Type: NodeType_Element, TagName: tagName, DescendantsEndIndex: descendantsEndIndex}
}

func TextNode(content string) TreeNode {
	return TreeNode{Type: NodeType_Text, Content: content}
}

func AttributeNode(name string, value string) TreeNode {
	return TreeNode{Type: NodeType_Attribute, AttrName: name, AttrValue: value}
}

func HandlerAttributeNode(name string, handlerRef int) TreeNode {
	return TreeNode{Type: NodeType_Attribute, AttrName: name, EventHandlerRef: handlerRef}
}

func ComponentNode(componentId int) TreeNode {
	return TreeNode{Type: NodeType_Component, ComponentId: componentId}
}

func (n TreeNode) HasEventHandler() bool {
	return n.Type == NodeType_Attribute && n.EventHandlerRef != 0
}

func (n TreeNode) String() string {
	switch n.Type {
	case NodeType_Element:
		return fmt.Sprintf("element<%s end=%d>", n.TagName, n.DescendantsEndIndex)
	case NodeType_Text:
		return fmt.Sprintf("text(%q)", n.Content)
	case NodeType_Attribute:
		if n.HasEventHandler() {
			return fmt.Sprintf("attr(%s=handler:%d)", n.AttrName, n.EventHandlerRef)
		}
		return fmt.Sprintf("attr(%s=%q)", n.AttrName, n.AttrValue)
	case NodeType_Component:
		return fmt.Sprintf("component(%d)", n.ComponentId)
	}
	return n.Type.String()
}

// Edit is one record of the Edit Script. SiblingIndex is relative to the
// patch cursor's current parent and child offset.
type Edit struct {
	Type            EditType `json:"type"`
	SiblingIndex    int      `json:"siblingindex,omitempty"`
	SourceNodeIndex int      `json:"sourcenodeindex,omitempty"`
	AttributeName   string   `json:"attributename,omitempty"`
}

func PrependNodeEdit(sourceNodeIndex int, siblingIndex int) Edit {
	return Edit{Type: EditType_PrependNode, SourceNodeIndex: sourceNodeIndex, SiblingIndex: siblingIndex}
}

func RemoveNodeEdit(siblingIndex int) Edit {
	return Edit{Type: EditType_RemoveNode, SiblingIndex: siblingIndex}
}

func SetAttributeEdit(sourceNodeIndex int, siblingIndex int) Edit {
	return Edit{Type: EditType_SetAttribute, SourceNodeIndex: sourceNodeIndex, SiblingIndex: siblingIndex}
}

func RemoveAttributeEdit(siblingIndex int, attributeName string) Edit {
	return Edit{Type: EditType_RemoveAttribute, SiblingIndex: siblingIndex, AttributeName: attributeName}
}

func UpdateTextEdit(sourceNodeIndex int, siblingIndex int) Edit {
	return Edit{Type: EditType_UpdateText, SourceNodeIndex: sourceNodeIndex, SiblingIndex: siblingIndex}
}

func StepInEdit(siblingIndex int) Edit {
	return Edit{Type: EditType_StepIn, SiblingIndex: siblingIndex}
}

func StepOutEdit() Edit {
	return Edit{Type: EditType_StepOut}
}

func ContinueEdit() Edit {
	return Edit{Type: EditType_Continue}
}

// UsesSourceNode is true for the edit types that read SourceNodeIndex.
func (e Edit) UsesSourceNode() bool {
	return e.Type == EditType_PrependNode || e.Type == EditType_SetAttribute || e.Type == EditType_UpdateText
}

func (e Edit) String() string {
	switch e.Type {
	case EditType_PrependNode, EditType_SetAttribute, EditType_UpdateText:
		return fmt.Sprintf("%s(src=%d sib=%d)", e.Type, e.SourceNodeIndex, e.SiblingIndex)
	case EditType_RemoveNode, EditType_StepIn:
		return fmt.Sprintf("%s(sib=%d)", e.Type, e.SiblingIndex)
	case EditType_RemoveAttribute:
		return fmt.Sprintf("%s(sib=%d name=%s)", e.Type, e.SiblingIndex, e.AttributeName)
	}
	return e.Type.String()
}

// NodeStore is read-only for the duration of a patch pass.
type NodeStore struct {
	nodes []TreeNode
}

func MakeNodeStore(nodes ...TreeNode) *NodeStore {
	return &NodeStore{nodes: nodes}
}

func (s *NodeStore) Len() int {
	if s == nil {
		return 0
	}
	return len(s.nodes)
}

func (s *NodeStore) At(idx int) (TreeNode, error) {
	if idx < 0 || idx >= s.Len() {
		return TreeNode{}, ProtocolErrorf("node index %d out of range (store has %d nodes)", idx, s.Len())
	}
	return s.nodes[idx], nil
}

// Nodes returns a copy of the records.
func (s *NodeStore) Nodes() []TreeNode {
	if s == nil {
		return nil
	}
	rtn := make([]TreeNode, len(s.nodes))
	copy(rtn, s.nodes)
	return rtn
}

// SubtreeEnd is the last index covered by the node at idx: DescendantsEndIndex
// for elements, idx itself for everything else.
func (s *NodeStore) SubtreeEnd(idx int) int {
	n := s.nodes[idx]
	if n.Type == NodeType_Element {
		return n.DescendantsEndIndex
	}
	return idx
}

type EditScript struct {
	edits []Edit
}

func MakeEditScript(edits ...Edit) *EditScript {
	return &EditScript{edits: edits}
}

func (s *EditScript) Len() int {
	if s == nil {
		return 0
	}
	return len(s.edits)
}

func (s *EditScript) At(idx int) (Edit, error) {
	if idx < 0 || idx >= s.Len() {
		return Edit{}, ProtocolErrorf("edit index %d out of range (script has %d edits)", idx, s.Len())
	}
	return s.edits[idx], nil
}

func (s *EditScript) Edits() []Edit {
	if s == nil {
		return nil
	}
	rtn := make([]Edit, len(s.edits))
	copy(rtn, s.edits)
	return rtn
}

// Batch is what a producer sends for one component render.
type Batch struct {
	ComponentId int
	Nodes       *NodeStore
	Edits       *EditScript
}
