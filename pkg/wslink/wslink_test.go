// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package wslink

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wavetermdev/wavedom/pkg/rendertree"
	"github.com/wavetermdev/wavedom/pkg/treeconsumer"
)

func dialTestServer(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?session=test"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

// readMsg returns the next non-ping message.
func readMsg(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	for {
		conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		_, barr, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		msg := map[string]any{}
		if err := json.Unmarshal(barr, &msg); err != nil {
			t.Fatalf("bad message %q: %v", barr, err)
		}
		if msg["type"] == WSCommand_Ping {
			continue
		}
		return msg
	}
}

func sendJSON(t *testing.T, conn *websocket.Conn, msg map[string]any) {
	t.Helper()
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func expectType(t *testing.T, msg map[string]any, msgType string) {
	t.Helper()
	if msg["type"] != msgType {
		t.Fatalf("expected %s message, got %v", msgType, msg)
	}
}

func TestWebSocketSession(t *testing.T) {
	s := MakeServer(Options{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	conn := dialTestServer(t, srv)
	defer conn.Close()

	hello := readMsg(t, conn)
	expectType(t, hello, WSMessage_Hello)
	connId, _ := hello["connid"].(string)
	if connId == "" || hello["sessionid"] != "test" {
		t.Fatalf("bad hello %v", hello)
	}

	sendJSON(t, conn, map[string]any{"type": WSCommand_AttachRoot, "reqid": "r1", "componentid": 1})
	resp := readMsg(t, conn)
	expectType(t, resp, WSMessage_CmdResp)
	if resp["reqid"] != "r1" || resp["error"] != nil {
		t.Fatalf("attachroot failed: %v", resp)
	}

	nodes := rendertree.MakeNodeStore(
		rendertree.ElementNode("button", 2),
		rendertree.HandlerAttributeNode("onclick", 1),
		rendertree.TextNode("go"),
	)
	data, err := rendertree.EncodeBatch(rendertree.Batch{ComponentId: 1, Nodes: nodes, Edits: rendertree.FullRenderScript(nodes)})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		t.Fatalf("write batch: %v", err)
	}
	ack := readMsg(t, conn)
	expectType(t, ack, WSMessage_BatchAck)
	if ack["seq"] != float64(2) || ack["componentid"] != float64(1) {
		t.Fatalf("bad ack %v", ack)
	}

	httpResp, err := http.Get(srv.URL + "/api/snapshot/" + connId)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	body, _ := io.ReadAll(httpResp.Body)
	httpResp.Body.Close()
	if !strings.Contains(string(body), "<button onclick>go</button>") {
		t.Errorf("unexpected snapshot %q", body)
	}

	sendJSON(t, conn, map[string]any{"type": WSCommand_Dispatch, "reqid": "r2", "componentid": 1, "path": []int{0}, "event": "click"})
	ev := readMsg(t, conn)
	expectType(t, ev, WSMessage_Event)
	desc, _ := ev["descriptor"].(map[string]any)
	if desc["nodeReference"] != float64(1) || desc["eventKind"] != "mouse" {
		t.Errorf("bad event descriptor %v", desc)
	}
	resp = readMsg(t, conn)
	expectType(t, resp, WSMessage_CmdResp)
	if resp["reqid"] != "r2" {
		t.Errorf("bad dispatch response %v", resp)
	}

	if err := conn.WriteMessage(websocket.BinaryMessage, []byte("nope")); err != nil {
		t.Fatalf("write bad batch: %v", err)
	}
	batchErr := readMsg(t, conn)
	expectType(t, batchErr, WSMessage_BatchError)
	if batchErr["fatal"] != true || batchErr["code"] != rendertree.ErrCode_Protocol {
		t.Errorf("bad batch error %v", batchErr)
	}
}

func TestUnknownCommand(t *testing.T) {
	s := MakeServer(Options{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	conn := dialTestServer(t, srv)
	defer conn.Close()
	expectType(t, readMsg(t, conn), WSMessage_Hello)
	sendJSON(t, conn, map[string]any{"type": "frobnicate", "reqid": "x"})
	resp := readMsg(t, conn)
	expectType(t, resp, WSMessage_CmdResp)
	errStr, _ := resp["error"].(string)
	if resp["reqid"] != "x" || !strings.Contains(errStr, "unknown command") {
		t.Errorf("unexpected response %v", resp)
	}
}

func TestSnapshotNotFound(t *testing.T) {
	s := MakeServer(Options{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/api/snapshot/missing")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestStats(t *testing.T) {
	s := MakeServer(Options{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	conn := dialTestServer(t, srv)
	defer conn.Close()
	expectType(t, readMsg(t, conn), WSMessage_Hello)
	resp, err := http.Get(srv.URL + "/api/stats")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var stats ServerStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.NumConns != 1 || stats.NumGoroutines == 0 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestParseWSCommandMap(t *testing.T) {
	cmd, err := ParseWSCommandMap(map[string]any{"type": "dispatch", "componentid": float64(3), "path": []any{float64(0), float64(2)}, "event": "keydown", "key": "Enter"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	dcmd, ok := cmd.(*DispatchWSCommand)
	if !ok {
		t.Fatalf("expected dispatch command, got %T", cmd)
	}
	if dcmd.ComponentId != 3 || len(dcmd.Path) != 2 || dcmd.Path[1] != 2 || dcmd.Key != "Enter" {
		t.Errorf("unexpected command %+v", dcmd)
	}
	if _, err := ParseWSCommandMap(map[string]any{"type": "dispatch", "componentid": 1}); err == nil {
		t.Errorf("dispatch without event should fail")
	}
	if _, err := ParseWSCommandMap(map[string]any{"componentid": 1}); err == nil {
		t.Errorf("missing type should fail")
	}
}

func isClosed(ch chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func TestSinkOverflow(t *testing.T) {
	c := makeWsConn("overflow")
	for i := 0; i < wsOutputChSize; i++ {
		c.outputCh <- i
	}
	sink := wsSink{c: c}
	sink.ForwardEvent([]byte(`{}`), []byte(`{}`))
	if isClosed(c.overflowCh) {
		t.Fatalf("a dropped event should not close the connection")
	}
	sink.RequestRender(4)
	if !isClosed(c.overflowCh) {
		t.Fatalf("a dropped render request should close the connection")
	}
	// repeated overflow is safe
	sink.BatchDone(treeconsumer.BatchResult{Seq: 1, ComponentId: 4})
	if len(c.outputCh) != wsOutputChSize {
		t.Errorf("nothing should have been queued, got %d", len(c.outputCh))
	}
}

func TestSinkBatchResultOverflow(t *testing.T) {
	c := makeWsConn("overflow2")
	for i := 0; i < wsOutputChSize; i++ {
		c.outputCh <- i
	}
	wsSink{c: c}.BatchDone(treeconsumer.BatchResult{Seq: 1, ComponentId: 1})
	if !isClosed(c.overflowCh) {
		t.Fatalf("a dropped batch result should close the connection")
	}
}
