// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package rendertree

import (
	"bytes"
	"fmt"
	"math"

	"github.com/wavetermdev/wavedom/pkg/binpack"
)

// batch wire format (little endian):
//
//	"WDB1" componentId:int32
//	strings:  count:varint, (len:uvarint bytes)*
//	nodes:    count:int32, {nodeType, nameRef, endOrValueRef, handlerRef, componentId, componentRef}:int32*
//	edits:    count:int32, {editType, sourceNodeIndex, removedAttrNameRef}:int32*
//	siblings: count:int32, siblingIndex:int32*  (one per edit)
//
// string refs index the string table, -1 is null. componentRef is reserved and
// always written as 0.

const BatchMagic = "WDB1"

const (
	NullStringRef    = -1
	nodeRecordSize   = 6 * 4
	editRecordSize   = 3 * 4
	maxStringSize    = 1 << 20
	maxBatchStrings  = 1 << 20
	minEncodedString = 1
)

type stringTable struct {
	strs []string
	refs map[string]int32
}

func (st *stringTable) ref(s string) int32 {
	if ref, ok := st.refs[s]; ok {
		return ref
	}
	ref := int32(len(st.strs))
	st.strs = append(st.strs, s)
	st.refs[s] = ref
	return ref
}

// int32Conv narrows ints for the wire; the first out of range value sticks.
type int32Conv struct {
	err error
}

func (c *int32Conv) conv(name string, v int) int32 {
	if c.err != nil {
		return 0
	}
	if v < math.MinInt32 || v > math.MaxInt32 {
		c.err = fmt.Errorf("cannot encode %s: %d is out of int32 range", name, v)
		return 0
	}
	return int32(v)
}

func EncodeBatch(batch Batch) ([]byte, error) {
	st := &stringTable{refs: make(map[string]int32)}
	cv := &int32Conv{}
	var recBuf bytes.Buffer
	nodes := batch.Nodes.Nodes()
	edits := batch.Edits.Edits()
	componentId := cv.conv("component id", batch.ComponentId)
	binpack.PackInt32(&recBuf, cv.conv("node count", len(nodes)))
	for idx, node := range nodes {
		rec := [6]int32{int32(node.Type), NullStringRef, NullStringRef, 0, 0, 0}
		switch node.Type {
		case NodeType_Element:
			rec[1] = st.ref(node.TagName)
			rec[2] = cv.conv(fmt.Sprintf("node %d descendants end", idx), node.DescendantsEndIndex)
		case NodeType_Text:
			rec[1] = st.ref(node.Content)
		case NodeType_Attribute:
			rec[1] = st.ref(node.AttrName)
			if node.EventHandlerRef != 0 {
				rec[3] = cv.conv(fmt.Sprintf("node %d handler ref", idx), node.EventHandlerRef)
			} else {
				rec[2] = st.ref(node.AttrValue)
			}
		case NodeType_Component:
			rec[4] = cv.conv(fmt.Sprintf("node %d component id", idx), node.ComponentId)
		default:
			return nil, fmt.Errorf("cannot encode node %d: unknown node type %d", idx, int32(node.Type))
		}
		if cv.err != nil {
			return nil, cv.err
		}
		for _, v := range rec {
			binpack.PackInt32(&recBuf, v)
		}
	}
	binpack.PackInt32(&recBuf, cv.conv("edit count", len(edits)))
	for idx, edit := range edits {
		nameRef := int32(NullStringRef)
		if edit.Type == EditType_RemoveAttribute {
			nameRef = st.ref(edit.AttributeName)
		}
		binpack.PackInt32(&recBuf, int32(edit.Type))
		binpack.PackInt32(&recBuf, cv.conv(fmt.Sprintf("edit %d source node index", idx), edit.SourceNodeIndex))
		binpack.PackInt32(&recBuf, nameRef)
	}
	binpack.PackInt32(&recBuf, cv.conv("edit count", len(edits)))
	for idx, edit := range edits {
		binpack.PackInt32(&recBuf, cv.conv(fmt.Sprintf("edit %d sibling index", idx), edit.SiblingIndex))
	}
	if cv.err != nil {
		return nil, cv.err
	}

	var buf bytes.Buffer
	buf.WriteString(BatchMagic)
	binpack.PackInt32(&buf, componentId)
	err := binpack.PackInt(&buf, len(st.strs))
	if err != nil {
		return nil, err
	}
	for _, s := range st.strs {
		err = binpack.PackValue(&buf, []byte(s))
		if err != nil {
			return nil, err
		}
	}
	buf.Write(recBuf.Bytes())
	return buf.Bytes(), nil
}

func lookupString(strs []string, ref int32) (string, bool) {
	if ref == NullStringRef {
		return "", true
	}
	if ref < 0 || int(ref) >= len(strs) {
		return "", false
	}
	return strs[ref], true
}

// DecodeBatch parses the wire format. Malformed input is reported as a
// protocol error; structural checks are left to Validate.
func DecodeBatch(data []byte) (Batch, error) {
	if len(data) < len(BatchMagic)+4 || string(data[:len(BatchMagic)]) != BatchMagic {
		return Batch{}, decodeErrorf("decoding batch: bad header")
	}
	r := bytes.NewReader(data[len(BatchMagic):])
	u := binpack.MakeUnpacker(r)
	componentId := u.UnpackInt32("componentid")
	numStrs := u.UnpackInt("stringcount")
	if u.Err == nil && (numStrs < 0 || numStrs > maxBatchStrings || numStrs*minEncodedString > r.Len()) {
		u.Fail(fmt.Errorf("bad string count %d", numStrs))
	}
	var strs []string
	for i := 0; i < numStrs && u.Err == nil; i++ {
		strs = append(strs, string(u.UnpackValue("string", maxStringSize)))
	}

	numNodes := int(u.UnpackInt32("nodecount"))
	if u.Err == nil && (numNodes < 0 || numNodes*nodeRecordSize > r.Len()) {
		u.Fail(fmt.Errorf("bad node count %d", numNodes))
	}
	var nodes []TreeNode
	for i := 0; i < numNodes && u.Err == nil; i++ {
		var rec [6]int32
		for f := range rec {
			rec[f] = u.UnpackInt32("node")
		}
		node, err := nodeFromRecord(rec, strs)
		if err != nil {
			u.Fail(fmt.Errorf("node %d: %w", i, err))
			break
		}
		nodes = append(nodes, node)
	}

	numEdits := int(u.UnpackInt32("editcount"))
	if u.Err == nil && (numEdits < 0 || numEdits*editRecordSize > r.Len()) {
		u.Fail(fmt.Errorf("bad edit count %d", numEdits))
	}
	var edits []Edit
	for i := 0; i < numEdits && u.Err == nil; i++ {
		editType := EditType(u.UnpackInt32("edittype"))
		srcIdx := int(u.UnpackInt32("sourcenodeindex"))
		nameRef := u.UnpackInt32("attrname")
		name, ok := lookupString(strs, nameRef)
		if !ok {
			u.Fail(fmt.Errorf("edit %d: bad string ref %d", i, nameRef))
			break
		}
		edits = append(edits, Edit{Type: editType, SourceNodeIndex: srcIdx, AttributeName: name})
	}
	numSiblings := int(u.UnpackInt32("siblingcount"))
	if u.Err == nil && numSiblings != len(edits) {
		u.Fail(fmt.Errorf("sibling count %d does not match edit count %d", numSiblings, len(edits)))
	}
	for i := 0; i < len(edits) && u.Err == nil; i++ {
		edits[i].SiblingIndex = int(u.UnpackInt32("siblingindex"))
	}
	if u.Err == nil && r.Len() != 0 {
		u.Fail(fmt.Errorf("%d trailing bytes", r.Len()))
	}
	if u.Err != nil {
		return Batch{}, decodeErrorf("decoding batch: %v", u.Err)
	}
	return Batch{
		ComponentId: int(componentId),
		Nodes:       MakeNodeStore(nodes...),
		Edits:       MakeEditScript(edits...),
	}, nil
}

func nodeFromRecord(rec [6]int32, strs []string) (TreeNode, error) {
	node := TreeNode{Type: NodeType(rec[0])}
	name, ok := lookupString(strs, rec[1])
	if !ok {
		return node, fmt.Errorf("bad string ref %d", rec[1])
	}
	switch node.Type {
	case NodeType_Element:
		node.TagName = name
		node.DescendantsEndIndex = int(rec[2])
	case NodeType_Text:
		node.Content = name
	case NodeType_Attribute:
		node.AttrName = name
		node.EventHandlerRef = int(rec[3])
		if node.EventHandlerRef == 0 {
			value, ok := lookupString(strs, rec[2])
			if !ok {
				return node, fmt.Errorf("bad string ref %d", rec[2])
			}
			node.AttrValue = value
		}
	case NodeType_Component:
		node.ComponentId = int(rec[4])
	}
	return node, nil
}
