// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package rendertree

import (
	"math"
	"reflect"
	"strconv"
	"strings"
	"testing"
)

func makeDivStore() *NodeStore {
	return MakeNodeStore(
		ElementNode("div", 2),
		HandlerAttributeNode("onclick", 1),
		TextNode("hi"),
	)
}

func checkProtocolErr(t *testing.T, err error, substr string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected protocol error containing %q, got nil", substr)
	}
	if !IsProtocolError(err) {
		t.Fatalf("expected protocol error, got %v", err)
	}
	if !strings.Contains(err.Error(), substr) {
		t.Errorf("expected error containing %q, got %q", substr, err.Error())
	}
}

func TestValidateWellFormed(t *testing.T) {
	nodes := makeDivStore()
	edits := MakeEditScript(
		PrependNodeEdit(0, 0),
		StepInEdit(0),
		ContinueEdit(),
		StepOutEdit(),
	)
	if err := Validate(nodes, edits); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := Validate(nodes, MakeEditScript()); err != nil {
		t.Fatalf("empty script should validate: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	nodes := makeDivStore()
	checkProtocolErr(t, Validate(nodes, MakeEditScript(StepOutEdit())), "no matching stepin")
	checkProtocolErr(t, Validate(nodes, MakeEditScript(StepInEdit(0))), "missing stepout")
	checkProtocolErr(t, Validate(nodes, MakeEditScript(PrependNodeEdit(1, 0))), "attribute and cannot be inserted")
	checkProtocolErr(t, Validate(nodes, MakeEditScript(PrependNodeEdit(9, 0))), "out of range")
	checkProtocolErr(t, Validate(nodes, MakeEditScript(UpdateTextEdit(0, 0))), "expected text")
	checkProtocolErr(t, Validate(nodes, MakeEditScript(SetAttributeEdit(2, 0))), "expected attribute")
	checkProtocolErr(t, Validate(nodes, MakeEditScript(Edit{Type: 42})), "unknown edit type")
	checkProtocolErr(t, Validate(nodes, MakeEditScript(RemoveNodeEdit(-1))), "negative sibling")

	badNodes := MakeNodeStore(TreeNode{Type: 9})
	checkProtocolErr(t, Validate(badNodes, MakeEditScript()), "unknown node type")

	attrAfterChild := MakeNodeStore(
		ElementNode("div", 2),
		TextNode("x"),
		AttributeNode("class", "late"),
	)
	checkProtocolErr(t, ValidateNodes(attrAfterChild), "follows a non-attribute child")

	overrun := MakeNodeStore(
		ElementNode("div", 1),
		ElementNode("span", 2),
		TextNode("x"),
	)
	checkProtocolErr(t, ValidateNodes(overrun), "past parent element")
	checkProtocolErr(t, ValidateNodes(MakeNodeStore(ElementNode("div", 5))), "outside")
}

func TestBuilder(t *testing.T) {
	b := MakeBuilder()
	b.OpenElement("ul")
	b.AddAttribute("class", "list")
	b.OpenElement("li")
	b.AddEventHandler("onclick")
	b.AddText("one")
	b.CloseElement()
	b.AddComponent(12)
	b.CloseElement()
	b.AddText("tail")
	nodes, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	expected := []TreeNode{
		ElementNode("ul", 5),
		AttributeNode("class", "list"),
		ElementNode("li", 4),
		HandlerAttributeNode("onclick", 1),
		TextNode("one"),
		ComponentNode(12),
		TextNode("tail"),
	}
	if !reflect.DeepEqual(nodes.Nodes(), expected) {
		t.Fatalf("unexpected nodes:\n%v\nexpected:\n%v", nodes.Nodes(), expected)
	}
	if err := ValidateNodes(nodes); err != nil {
		t.Fatalf("built store should validate: %v", err)
	}
	if top := TopLevel(nodes); !reflect.DeepEqual(top, []int{0, 6}) {
		t.Errorf("expected top level [0 6], got %v", top)
	}
	script := FullRenderScript(nodes)
	if !reflect.DeepEqual(script.Edits(), []Edit{PrependNodeEdit(0, 0), PrependNodeEdit(6, 1)}) {
		t.Errorf("unexpected full render script %v", script.Edits())
	}
}

func TestBuilderMisuse(t *testing.T) {
	b := MakeBuilder()
	b.OpenElement("div")
	b.AddText("x")
	b.AddAttribute("id", "late")
	b.CloseElement()
	if _, err := b.Build(); err == nil {
		t.Errorf("expected error for attribute after child")
	}
	b = MakeBuilder()
	b.OpenElement("div")
	if _, err := b.Build(); err == nil {
		t.Errorf("expected error for unclosed element")
	}
}

func TestCodecBatch(t *testing.T) {
	nodes := MakeNodeStore(
		ElementNode("div", 4),
		AttributeNode("class", ""),
		HandlerAttributeNode("onclick", 7),
		TextNode("hi"),
		ComponentNode(3),
		TextNode("hi"),
	)
	edits := MakeEditScript(
		PrependNodeEdit(0, 0),
		StepInEdit(0),
		UpdateTextEdit(5, 1),
		RemoveAttributeEdit(0, "class"),
		StepOutEdit(),
		ContinueEdit(),
	)
	data, err := EncodeBatch(Batch{ComponentId: 9, Nodes: nodes, Edits: edits})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(data[:4]) != BatchMagic {
		t.Fatalf("missing magic")
	}
	batch, err := DecodeBatch(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if batch.ComponentId != 9 {
		t.Errorf("expected component 9, got %d", batch.ComponentId)
	}
	if !reflect.DeepEqual(batch.Nodes.Nodes(), nodes.Nodes()) {
		t.Errorf("nodes differ:\n%v\n%v", batch.Nodes.Nodes(), nodes.Nodes())
	}
	if !reflect.DeepEqual(batch.Edits.Edits(), edits.Edits()) {
		t.Errorf("edits differ:\n%v\n%v", batch.Edits.Edits(), edits.Edits())
	}
}

func TestCodecMalformed(t *testing.T) {
	data, err := EncodeBatch(Batch{ComponentId: 1, Nodes: makeDivStore(), Edits: MakeEditScript(PrependNodeEdit(0, 0))})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	_, err = DecodeBatch(data[:len(data)-2])
	checkProtocolErr(t, err, "decoding batch")
	_, err = DecodeBatch(append(append([]byte{}, data...), 0))
	checkProtocolErr(t, err, "trailing bytes")
	_, err = DecodeBatch([]byte("nope"))
	checkProtocolErr(t, err, "bad header")
}

func TestEncodeRejectsOutOfRange(t *testing.T) {
	if strconv.IntSize == 32 {
		t.Skip("int is 32 bits")
	}
	tooBig := int(int64(math.MaxInt32) + 1)
	nodes := MakeNodeStore(TextNode("x"))
	cases := []struct {
		name  string
		batch Batch
		want  string
	}{
		{"component id", Batch{ComponentId: tooBig, Nodes: nodes, Edits: MakeEditScript(PrependNodeEdit(0, 0))}, "component id"},
		{"sibling index", Batch{ComponentId: 1, Nodes: nodes, Edits: MakeEditScript(PrependNodeEdit(0, tooBig))}, "edit 0 sibling index"},
		{"source index", Batch{ComponentId: 1, Nodes: nodes, Edits: MakeEditScript(PrependNodeEdit(-tooBig-1, 0))}, "edit 0 source node index"},
		{"child component", Batch{ComponentId: 1, Nodes: MakeNodeStore(ComponentNode(tooBig)), Edits: MakeEditScript()}, "node 0 component id"},
	}
	for _, tc := range cases {
		_, err := EncodeBatch(tc.batch)
		if err == nil || !strings.Contains(err.Error(), tc.want) || !strings.Contains(err.Error(), "out of int32 range") {
			t.Errorf("%s: expected range error, got %v", tc.name, err)
		}
	}
	if _, err := EncodeBatch(Batch{ComponentId: math.MaxInt32, Nodes: nodes, Edits: MakeEditScript(PrependNodeEdit(0, 0))}); err != nil {
		t.Errorf("max int32 should encode: %v", err)
	}
}

func TestFromHTML(t *testing.T) {
	html := `
	<div class="box" onclick="x">
	  <span>hello</span>
	  <br>
	  <component id="4"/>
	</div>
	`
	nodes, err := FromHTML(html)
	if err != nil {
		t.Fatalf("fromhtml: %v", err)
	}
	expected := []TreeNode{
		ElementNode("div", 6),
		AttributeNode("class", "box"),
		HandlerAttributeNode("onclick", 1),
		ElementNode("span", 4),
		TextNode("hello"),
		ElementNode("br", 5),
		ComponentNode(4),
	}
	if !reflect.DeepEqual(nodes.Nodes(), expected) {
		t.Fatalf("unexpected nodes:\n%v\nexpected:\n%v", nodes.Nodes(), expected)
	}
	nodes, err = FromHTML(`<p onmouseover="hover()" onkeyup="k">x</p>`)
	if err != nil {
		t.Fatalf("fromhtml: %v", err)
	}
	expected = []TreeNode{
		ElementNode("p", 3),
		AttributeNode("onmouseover", "hover()"),
		HandlerAttributeNode("onkeyup", 1),
		TextNode("x"),
	}
	if !reflect.DeepEqual(nodes.Nodes(), expected) {
		t.Errorf("only the fixed handler set becomes handlers:\n%v", nodes.Nodes())
	}
	if IsHandlerAttrName("onmouseover") || !IsHandlerAttrName("ondblclick") {
		t.Errorf("unexpected handler set")
	}
	if _, err := FromHTML("<div><span></div>"); err == nil {
		t.Errorf("expected mismatched tag error")
	}
	if _, err := FromHTML(`<component/>`); err == nil {
		t.Errorf("expected missing id error")
	}
}
