// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package rendertree

// ValidateNodes checks every record of the store: known variants, element
// ranges inside the store, attributes only in the leading run of an element,
// and child subtrees nested inside their parent's range.
func ValidateNodes(nodes *NodeStore) error {
	numNodes := nodes.Len()
	for idx := 0; idx < numNodes; idx++ {
		node := nodes.nodes[idx]
		if !node.Type.Valid() {
			return validateErrorf("node %d: unknown node type %d", idx, int32(node.Type))
		}
		if node.Type != NodeType_Element {
			continue
		}
		end := node.DescendantsEndIndex
		if end < idx || end >= numNodes {
			return validateErrorf("node %d: descendants end index %d outside [%d, %d]", idx, end, idx, numNodes-1)
		}
		childIdx := idx + 1
		for childIdx <= end && nodes.nodes[childIdx].Type == NodeType_Attribute {
			childIdx++
		}
		for childIdx <= end {
			child := nodes.nodes[childIdx]
			if child.Type == NodeType_Attribute {
				return validateErrorf("node %d: attribute %q follows a non-attribute child of element %d", childIdx, child.AttrName, idx)
			}
			if child.Type == NodeType_Element && child.DescendantsEndIndex > end {
				return validateErrorf("node %d: subtree ends at %d, past parent element %d (end %d)", childIdx, child.DescendantsEndIndex, idx, end)
			}
			if child.Type == NodeType_Element && child.DescendantsEndIndex < childIdx {
				// caught when the loop reaches it, but stop here so we cannot spin
				return validateErrorf("node %d: descendants end index %d before the node", childIdx, child.DescendantsEndIndex)
			}
			childIdx = nodes.SubtreeEnd(childIdx) + 1
		}
	}
	return nil
}

// Validate checks a batch before anything is mutated, so that a protocol
// violation aborts with the live tree untouched. Addressing against the live
// tree cannot be checked here and is left to the patcher.
func Validate(nodes *NodeStore, edits *EditScript) error {
	err := ValidateNodes(nodes)
	if err != nil {
		return err
	}
	depth := 0
	for idx, edit := range edits.edits {
		if !edit.Type.Valid() {
			return validateErrorf("edit %d: unknown edit type %d", idx, int32(edit.Type))
		}
		if edit.SiblingIndex < 0 {
			return validateErrorf("edit %d (%s): negative sibling index %d", idx, edit.Type, edit.SiblingIndex)
		}
		if edit.UsesSourceNode() {
			if edit.SourceNodeIndex < 0 || edit.SourceNodeIndex >= nodes.Len() {
				return validateErrorf("edit %d (%s): source node index %d out of range", idx, edit.Type, edit.SourceNodeIndex)
			}
		}
		switch edit.Type {
		case EditType_PrependNode:
			if nodes.nodes[edit.SourceNodeIndex].Type == NodeType_Attribute {
				return validateErrorf("edit %d (%s): node %d is an attribute and cannot be inserted on its own", idx, edit.Type, edit.SourceNodeIndex)
			}
		case EditType_SetAttribute:
			if nodes.nodes[edit.SourceNodeIndex].Type != NodeType_Attribute {
				return validateErrorf("edit %d (%s): node %d is a %s, expected attribute", idx, edit.Type, edit.SourceNodeIndex, nodes.nodes[edit.SourceNodeIndex].Type)
			}
		case EditType_UpdateText:
			if nodes.nodes[edit.SourceNodeIndex].Type != NodeType_Text {
				return validateErrorf("edit %d (%s): node %d is a %s, expected text", idx, edit.Type, edit.SourceNodeIndex, nodes.nodes[edit.SourceNodeIndex].Type)
			}
		case EditType_RemoveAttribute:
			if edit.AttributeName == "" {
				return validateErrorf("edit %d (%s): missing attribute name", idx, edit.Type)
			}
		case EditType_StepIn:
			depth++
		case EditType_StepOut:
			if depth == 0 {
				return validateErrorf("edit %d (%s): no matching stepin", idx, edit.Type)
			}
			depth--
		}
	}
	if depth != 0 {
		return validateErrorf("edit script ends %d level(s) deep, missing stepout", depth)
	}
	return nil
}
