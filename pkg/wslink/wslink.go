// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

// Package wslink carries batches and events between a remote producer and a
// tree consumer over a websocket. Binary frames are encoded batches, text
// frames are JSON control messages.
package wslink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/wavetermdev/wavedom/pkg/livedom"
	"github.com/wavetermdev/wavedom/pkg/panichandler"
	"github.com/wavetermdev/wavedom/pkg/treeconsumer"
	"github.com/wavetermdev/wavedom/pkg/treepatch"
	"github.com/wavetermdev/wavedom/pkg/util/utilfn"
)

const wsReadWaitTimeout = 15 * time.Second
const wsWriteWaitTimeout = 10 * time.Second
const wsPingPeriodTickTime = 10 * time.Second
const wsInitialPingTime = 1 * time.Second
const wsOutputChSize = 256

const DefaultReadLimit = 1024 * 1024

const HttpReadTimeout = 5 * time.Second
const HttpWriteTimeout = 21 * time.Second
const HttpMaxHeaderBytes = 60000

const (
	ContentTypeHeaderKey = "Content-Type"
	ContentTypeJson      = "application/json"
	ContentTypeHtml      = "text/html; charset=utf-8"
)

var WebSocketUpgrader = websocket.Upgrader{
	ReadBufferSize:   4 * 1024,
	WriteBufferSize:  32 * 1024,
	HandshakeTimeout: 1 * time.Second,
	CheckOrigin:      func(r *http.Request) bool { return true },
}

type Options struct {
	ReadLimit            int64
	Recorder             treeconsumer.BatchRecorder
	Patch                treepatch.Options
	PendingRenderTimeout time.Duration
}

type Server struct {
	lock   sync.Mutex
	opts   Options
	conns  map[string]*wsConn
	router *mux.Router
}

type wsConn struct {
	connId       string
	consumer     *treeconsumer.Consumer
	outputCh     chan any
	closeCh      chan any
	overflowCh   chan struct{}
	overflowOnce sync.Once
}

func makeWsConn(connId string) *wsConn {
	return &wsConn{
		connId:     connId,
		outputCh:   make(chan any, wsOutputChSize),
		closeCh:    make(chan any),
		overflowCh: make(chan struct{}),
	}
}

// overflow makes the write loop close the connection; the producer
// reconnects and resyncs with a full render.
func (c *wsConn) overflow() {
	c.overflowOnce.Do(func() {
		close(c.overflowCh)
	})
}

func MakeServer(opts Options) *Server {
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = DefaultReadLimit
	}
	s := &Server{
		opts:  opts,
		conns: make(map[string]*wsConn),
	}
	gr := mux.NewRouter()
	gr.HandleFunc("/ws", s.handleWs)
	gr.HandleFunc("/api/conns", s.handleConns).Methods(http.MethodGet)
	gr.HandleFunc("/api/snapshot/{connid}", s.handleSnapshot).Methods(http.MethodGet)
	gr.HandleFunc("/api/stats", s.handleStats).Methods(http.MethodGet)
	s.router = gr
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// SetOptions applies new patch options to live consumers and to future
// connections. The read limit only affects new connections.
func (s *Server) SetOptions(opts Options) {
	s.lock.Lock()
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = DefaultReadLimit
	}
	opts.Recorder = s.opts.Recorder
	s.opts = opts
	var consumers []*treeconsumer.Consumer
	for _, c := range s.conns {
		consumers = append(consumers, c.consumer)
	}
	s.lock.Unlock()
	for _, c := range consumers {
		c.SetPatchOptions(opts.Patch)
	}
}

func (s *Server) getOpts() Options {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.opts
}

func (s *Server) ConnIds() []string {
	s.lock.Lock()
	defer s.lock.Unlock()
	var rtn []string
	for connId := range s.conns {
		rtn = append(rtn, connId)
	}
	sort.Strings(rtn)
	return rtn
}

func (s *Server) getConn(connId string) *wsConn {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.conns[connId]
}

func (s *Server) registerConn(c *wsConn) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.conns[c.connId] = c
}

func (s *Server) unregisterConn(connId string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.conns, connId)
}

// RunServer serves until ctx is done.
func (s *Server) RunServer(ctx context.Context, listener net.Listener) error {
	server := &http.Server{
		ReadTimeout:    HttpReadTimeout,
		WriteTimeout:   HttpWriteTimeout,
		MaxHeaderBytes: HttpMaxHeaderBytes,
		Handler:        s.router,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancelFn := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancelFn()
		server.Shutdown(shutdownCtx)
	}()
	log.Printf("[ws] running websocket server on %s\n", listener.Addr())
	err := server.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) handleConns(w http.ResponseWriter, r *http.Request) {
	barr, err := json.Marshal(s.ConnIds())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set(ContentTypeHeaderKey, ContentTypeJson)
	w.Write(barr)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	connId := mux.Vars(r)["connid"]
	c := s.getConn(connId)
	if c == nil {
		http.Error(w, fmt.Sprintf("connection %q not found", connId), http.StatusNotFound)
		return
	}
	w.Header().Set(ContentTypeHeaderKey, ContentTypeHtml)
	w.Write([]byte(c.consumer.Snapshot()))
}

func (s *Server) handleWs(w http.ResponseWriter, r *http.Request) {
	err := s.handleWsInternal(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// wsSink is called from the consumer loop, so sends never block. When the
// output channel is full an event is dropped; losing a render request or a
// batch result would leave the producer out of sync, so those close the
// connection instead.
type wsSink struct {
	c *wsConn
}

func (sink wsSink) send(msg any, mustDeliver bool) {
	select {
	case sink.c.outputCh <- msg:
	case <-sink.c.closeCh:
	default:
		if !mustDeliver {
			log.Printf("[ws] %s output channel full, dropping event\n", sink.c.connId)
			return
		}
		log.Printf("[ws] %s output channel full, closing connection\n", sink.c.connId)
		sink.c.overflow()
	}
}

func (sink wsSink) ForwardEvent(descriptor []byte, payload []byte) {
	sink.send(EventMessage{Type: WSMessage_Event, Descriptor: descriptor, Payload: payload}, false)
}

func (sink wsSink) RequestRender(componentId int) {
	sink.send(RenderRequestMessage{Type: WSMessage_RenderRequest, ComponentId: componentId}, true)
}

func (sink wsSink) BatchDone(result treeconsumer.BatchResult) {
	sink.send(makeBatchMessage(result), true)
}

func (s *Server) handleWsInternal(w http.ResponseWriter, r *http.Request) error {
	conn, err := WebSocketUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("WebSocket Upgrade Failed: %v", err)
	}
	defer conn.Close()
	wsConnId := uuid.New().String()
	sessionId := r.URL.Query().Get("session")
	if sessionId == "" {
		sessionId = wsConnId
	}
	opts := s.getOpts()
	c := makeWsConn(wsConnId)
	c.consumer = treeconsumer.MakeConsumer(treeconsumer.Options{
		SessionId:            sessionId,
		Doc:                  livedom.MakeMemDocument(),
		Sink:                 wsSink{c: c},
		Recorder:             opts.Recorder,
		Patch:                opts.Patch,
		PendingRenderTimeout: opts.PendingRenderTimeout,
	})
	log.Printf("[ws] new connection connid:%s session:%s\n", wsConnId, sessionId)
	s.registerConn(c)
	defer func() {
		s.unregisterConn(wsConnId)
		c.consumer.Close()
		log.Printf("[ws] closed connection connid:%s\n", wsConnId)
	}()
	c.outputCh <- HelloMessage{Type: WSMessage_Hello, ConnId: wsConnId, SessionId: sessionId}
	wg := &sync.WaitGroup{}
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.readLoop(conn, opts.ReadLimit)
	}()
	go func() {
		defer wg.Done()
		c.writeLoop(conn)
	}()
	wg.Wait()
	return nil
}

// send is used from the read side, which may wait for the writer but not
// forever.
func (c *wsConn) send(msg any) {
	select {
	case c.outputCh <- msg:
	case <-time.After(wsWriteWaitTimeout):
		log.Printf("[ws] %s timed out queueing message\n", c.connId)
	}
}

func (c *wsConn) readLoop(conn *websocket.Conn, readLimit int64) {
	readWait := wsReadWaitTimeout
	conn.SetReadLimit(readLimit)
	conn.SetReadDeadline(time.Now().Add(readWait))
	defer close(c.closeCh)
	for {
		frameType, message, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[ws] %s read error: %v\n", c.connId, err)
			}
			break
		}
		conn.SetReadDeadline(time.Now().Add(readWait))
		if frameType == websocket.BinaryMessage {
			c.consumer.SubmitBatch(message)
			continue
		}
		jmsg := map[string]any{}
		err = json.Unmarshal(message, &jmsg)
		if err != nil {
			log.Printf("[ws] %s error unmarshalling json: %v\n", c.connId, err)
			break
		}
		msgType := utilfn.GetStrFromMap(jmsg, "type")
		if msgType == WSCommand_Pong {
			continue
		}
		if msgType == WSCommand_Ping {
			c.send(map[string]any{"type": WSCommand_Pong, "stime": time.Now().UnixMilli()})
			continue
		}
		// handled inline so that control messages stay ordered with batches
		c.processMessage(jmsg)
	}
}

func (c *wsConn) processMessage(jmsg map[string]any) {
	var reqId string
	var rtnErr error
	var data any
	defer func() {
		panicErr := panichandler.PanicHandler("wslink:processMessage", recover())
		if panicErr != nil {
			rtnErr = panicErr
		}
		if rtnErr == nil && reqId == "" {
			return
		}
		resp := CmdRespMessage{Type: WSMessage_CmdResp, ReqId: reqId, Data: data}
		if rtnErr != nil {
			resp.Error = rtnErr.Error()
		}
		c.send(resp)
	}()
	wsCommand, err := ParseWSCommandMap(jmsg)
	if err != nil {
		reqId = utilfn.GetStrFromMap(jmsg, "reqid")
		rtnErr = fmt.Errorf("cannot parse command: %v", err)
		return
	}
	reqId = wsCommand.GetReqId()
	switch cmd := wsCommand.(type) {
	case *ComponentWSCommand:
		switch cmd.Type {
		case WSCommand_AttachRoot:
			rtnErr = c.consumer.AttachRoot(cmd.ComponentId)
		case WSCommand_Detach:
			if !c.consumer.Detach(cmd.ComponentId) {
				rtnErr = fmt.Errorf("component %d is not attached", cmd.ComponentId)
			}
		case WSCommand_Reset:
			rtnErr = c.consumer.ResetComponent(cmd.ComponentId)
		}
	case *DispatchWSCommand:
		ev := livedom.NativeEvent{Type: cmd.Event, Key: cmd.Key}
		count, err := c.consumer.DispatchEvent(cmd.ComponentId, cmd.Path, cmd.Event, ev)
		rtnErr = err
		data = map[string]any{"listeners": count}
	}
}

func writePing(conn *websocket.Conn) error {
	now := time.Now()
	pingMessage := map[string]any{"type": WSCommand_Ping, "stime": now.UnixMilli()}
	jsonVal, _ := json.Marshal(pingMessage)
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWaitTimeout))
	return conn.WriteMessage(websocket.TextMessage, jsonVal)
}

func (c *wsConn) writeLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(wsInitialPingTime)
	defer ticker.Stop()
	initialPing := true
	for {
		select {
		case msg := <-c.outputCh:
			barr, err := json.Marshal(msg)
			if err != nil {
				log.Printf("[ws] cannot marshal websocket message: %v\n", err)
				break
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWaitTimeout))
			err = conn.WriteMessage(websocket.TextMessage, barr)
			if err != nil {
				conn.Close()
				log.Printf("[ws] %s write error: %v\n", c.connId, err)
				return
			}

		case <-ticker.C:
			err := writePing(conn)
			if err != nil {
				log.Printf("[ws] %s write error: %v\n", c.connId, err)
				return
			}
			if initialPing {
				initialPing = false
				ticker.Reset(wsPingPeriodTickTime)
			}

		case <-c.overflowCh:
			closeMsg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "output overflow")
			_ = conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(wsWriteWaitTimeout))
			conn.Close()
			return

		case <-c.closeCh:
			return
		}
	}
}
