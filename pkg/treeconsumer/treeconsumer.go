// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

// Package treeconsumer owns one live tree (document, registry, dispatcher and
// patcher) and runs everything that touches it on a single loop goroutine.
package treeconsumer

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/outrigdev/goid"
	"github.com/wavetermdev/wavedom/pkg/compreg"
	"github.com/wavetermdev/wavedom/pkg/eventdispatch"
	"github.com/wavetermdev/wavedom/pkg/livedom"
	"github.com/wavetermdev/wavedom/pkg/rendertree"
	"github.com/wavetermdev/wavedom/pkg/treepatch"
	"github.com/wavetermdev/wavedom/pkg/util/ds"
	"github.com/wavetermdev/wavedom/pkg/utilds"
)

const DefaultPendingRenderTimeout = 10 * time.Second
const RootTag = "wavedom-root"
const recordTimeout = 2 * time.Second

// Sink is the outbound half of the boundary transport. Implementations must
// not block: they are called from the consumer loop.
type Sink interface {
	ForwardEvent(descriptor []byte, payload []byte)
	RequestRender(componentId int)
	BatchDone(result BatchResult)
}

// BatchRecorder journals applied batches and the successful control
// operations (attachroot, detach, reset) in one seq order. Optional.
type BatchRecorder interface {
	RecordBatch(ctx context.Context, sessionId string, seq int64, componentId int, data []byte, errStr string) error
	RecordOp(ctx context.Context, sessionId string, seq int64, op string, componentId int) error
}

// journaled control operations
const (
	Op_AttachRoot = "attachroot"
	Op_Detach     = "detach"
	Op_Reset      = "reset"
)

type BatchResult struct {
	Seq         int64  `json:"seq"`
	ComponentId int    `json:"componentid"`
	Err         error  `json:"-"`
	Code        string `json:"code,omitempty"`
	SubCode     string `json:"subcode,omitempty"`
	// protocol violation: producer and consumer disagree, the producer should
	// not retry the same script
	Fatal bool `json:"fatal,omitempty"`
}

type Options struct {
	SessionId            string
	Doc                  livedom.Document
	Sink                 Sink
	Recorder             BatchRecorder
	Patch                treepatch.Options
	PendingRenderTimeout time.Duration
}

type Consumer struct {
	sessionId  string
	doc        livedom.Document
	reg        *compreg.Registry
	disp       *eventdispatch.Dispatcher
	patcher    *treepatch.Patcher
	sink       Sink
	recorder   BatchRecorder
	queue      *utilds.WorkQueue[func()]
	loopGoId   atomic.Uint64
	seq        atomic.Int64
	pending    *ds.ExpMap[time.Time]
	pendingTTL time.Duration
}

// renderHook routes the patcher's render requests through the consumer so
// they are tracked as pending.
type renderHook struct {
	c *Consumer
}

func (h renderHook) RequestRender(componentId int) {
	h.c.requestRender(componentId)
}

func MakeConsumer(opts Options) *Consumer {
	if opts.Doc == nil {
		opts.Doc = livedom.MakeMemDocument()
	}
	if opts.PendingRenderTimeout <= 0 {
		opts.PendingRenderTimeout = DefaultPendingRenderTimeout
	}
	c := &Consumer{
		sessionId:  opts.SessionId,
		doc:        opts.Doc,
		reg:        compreg.MakeRegistry(),
		sink:       opts.Sink,
		recorder:   opts.Recorder,
		pending:    ds.MakeExpMap[time.Time](),
		pendingTTL: opts.PendingRenderTimeout,
	}
	c.disp = eventdispatch.MakeDispatcher(c.doc, opts.Sink)
	c.patcher = treepatch.MakePatcher(c.doc, c.reg, c.disp, renderHook{c: c}, opts.Patch)
	c.queue = utilds.NewWorkQueue("consumer:"+opts.SessionId, c.runTask)
	return c
}

func (c *Consumer) SessionId() string {
	return c.sessionId
}

func (c *Consumer) runTask(fn func()) {
	c.loopGoId.CompareAndSwap(0, goid.Get())
	fn()
}

func (c *Consumer) assertLoop() error {
	if goid.Get() != c.loopGoId.Load() {
		return fmt.Errorf("live tree accessed off the consumer loop")
	}
	return nil
}

// run queues fn on the loop and waits for it.
func (c *Consumer) run(fn func()) error {
	doneCh := make(chan struct{})
	ok := c.queue.Enqueue(func() {
		defer close(doneCh)
		fn()
	})
	if !ok {
		return fmt.Errorf("consumer %s is closed", c.sessionId)
	}
	<-doneCh
	return nil
}

// SubmitBatch queues an encoded batch. Batches run one at a time in arrival
// order; the outcome goes to Sink.BatchDone. Returns the batch seq, or -1 if
// the consumer is closed.
func (c *Consumer) SubmitBatch(data []byte) int64 {
	seq := c.seq.Add(1)
	ok := c.queue.Enqueue(func() {
		batch, err := rendertree.DecodeBatch(data)
		if err != nil {
			c.finishBatch(seq, -1, data, err)
			return
		}
		err = c.applyBatch(batch)
		c.finishBatch(seq, batch.ComponentId, data, err)
	})
	if !ok {
		return -1
	}
	return seq
}

// Submit queues an already decoded batch.
func (c *Consumer) Submit(batch rendertree.Batch) int64 {
	seq := c.seq.Add(1)
	ok := c.queue.Enqueue(func() {
		var data []byte
		if c.recorder != nil {
			data, _ = rendertree.EncodeBatch(batch)
		}
		err := c.applyBatch(batch)
		c.finishBatch(seq, batch.ComponentId, data, err)
	})
	if !ok {
		return -1
	}
	return seq
}

// ApplyBatch runs a batch and waits for its result.
func (c *Consumer) ApplyBatch(batch rendertree.Batch) error {
	var rtnErr error
	err := c.run(func() {
		rtnErr = c.applyBatch(batch)
	})
	if err != nil {
		return err
	}
	return rtnErr
}

func (c *Consumer) applyBatch(batch rendertree.Batch) error {
	if err := c.assertLoop(); err != nil {
		return err
	}
	c.sweepPending()
	root, err := c.reg.Resolve(batch.ComponentId)
	if err != nil {
		return err
	}
	if requestTs, ok := c.pending.Take(pendingKey(batch.ComponentId)); ok {
		log.Printf("[consumer] %s component %d first render after %v\n", c.sessionId, batch.ComponentId, time.Since(requestTs).Round(time.Millisecond))
	}
	return c.patcher.ApplyEdits(batch.ComponentId, root, 0, batch.Nodes, batch.Edits)
}

func (c *Consumer) recordOp(seq int64, op string, componentId int) {
	if c.recorder == nil {
		return
	}
	ctx, cancelFn := context.WithTimeout(context.Background(), recordTimeout)
	defer cancelFn()
	err := c.recorder.RecordOp(ctx, c.sessionId, seq, op, componentId)
	if err != nil {
		log.Printf("[consumer] %s cannot record %s %d: %v\n", c.sessionId, op, seq, err)
	}
}

func (c *Consumer) finishBatch(seq int64, componentId int, data []byte, err error) {
	result := BatchResult{Seq: seq, ComponentId: componentId, Err: err}
	errStr := ""
	if err != nil {
		errStr = err.Error()
		result.Code = utilds.GetErrorCode(err)
		result.SubCode = rendertree.ErrorSubCode(err)
		result.Fatal = rendertree.IsProtocolError(err)
		if result.Fatal {
			log.Printf("[consumer] %s protocol failure in batch %d (component %d): %v\n", c.sessionId, seq, componentId, err)
		} else {
			log.Printf("[consumer] %s batch %d (component %d) rejected: %v\n", c.sessionId, seq, componentId, err)
		}
	}
	if c.recorder != nil && data != nil {
		ctx, cancelFn := context.WithTimeout(context.Background(), recordTimeout)
		recErr := c.recorder.RecordBatch(ctx, c.sessionId, seq, componentId, data, errStr)
		cancelFn()
		if recErr != nil {
			log.Printf("[consumer] %s cannot record batch %d: %v\n", c.sessionId, seq, recErr)
		}
	}
	if c.sink != nil {
		c.sink.BatchDone(result)
	}
}

func pendingKey(componentId int) string {
	return strconv.Itoa(componentId)
}

func (c *Consumer) requestRender(componentId int) {
	c.pending.Set(pendingKey(componentId), time.Now(), time.Now().Add(c.pendingTTL))
	if c.sink != nil {
		c.sink.RequestRender(componentId)
	}
}

// a pending render that never arrives only gets logged; the wrapper stays
// attached and will accept the render whenever it shows up
func (c *Consumer) sweepPending() {
	for _, entry := range c.pending.Sweep() {
		log.Printf("[consumer] %s no render for component %s after %v\n", c.sessionId, entry.Key, time.Since(entry.Val).Round(time.Millisecond))
	}
}

func (c *Consumer) PendingRenders() int {
	return c.pending.Len()
}

// AttachRoot creates a mount element at the end of the document body and
// attaches componentId to it.
func (c *Consumer) AttachRoot(componentId int) error {
	var rtnErr error
	seq := c.seq.Add(1)
	err := c.run(func() {
		rtnErr = c.attachRoot(componentId)
		if rtnErr == nil {
			c.recordOp(seq, Op_AttachRoot, componentId)
		}
	})
	if err != nil {
		return err
	}
	return rtnErr
}

func (c *Consumer) attachRoot(componentId int) error {
	if _, err := c.reg.Resolve(componentId); err == nil {
		return rendertree.AddressingErrorf("component %d is already attached", componentId)
	}
	elem, err := c.doc.CreateElement(RootTag)
	if err != nil {
		return err
	}
	err = c.doc.SetAttribute(elem, treepatch.ComponentIdAttr, strconv.Itoa(componentId))
	if err != nil {
		return err
	}
	body := c.doc.Body()
	err = c.doc.InsertChild(body, c.doc.ChildCount(body), elem)
	if err != nil {
		return err
	}
	return c.reg.Attach(componentId, elem)
}

// Detach ends the registry entry for a disposed component. Returns false if
// the id was not attached.
func (c *Consumer) Detach(componentId int) bool {
	var rtn bool
	seq := c.seq.Add(1)
	c.run(func() {
		rtn = c.reg.Detach(componentId)
		c.pending.Delete(pendingKey(componentId))
		if rtn {
			c.recordOp(seq, Op_Detach, componentId)
		}
	})
	return rtn
}

// ResetComponent empties a component's root so the producer can resend a full
// render after a failed batch. Child components under the root are detached
// whatever the AutoDetach setting; the full render attaches them again.
func (c *Consumer) ResetComponent(componentId int) error {
	var rtnErr error
	seq := c.seq.Add(1)
	err := c.run(func() {
		rtnErr = c.resetComponent(componentId)
		if rtnErr == nil {
			c.recordOp(seq, Op_Reset, componentId)
		}
	})
	if err != nil {
		return err
	}
	return rtnErr
}

func (c *Consumer) resetComponent(componentId int) error {
	root, err := c.reg.Resolve(componentId)
	if err != nil {
		return err
	}
	for c.doc.ChildCount(root) > 0 {
		child, err := c.doc.ChildAt(root, 0)
		if err != nil {
			return err
		}
		for _, childId := range treepatch.DetachComponents(c.doc, c.reg, child) {
			c.pending.Delete(pendingKey(childId))
		}
		c.disp.ReleaseSubtree(child)
		if _, err := c.doc.RemoveChild(root, 0); err != nil {
			return err
		}
	}
	return nil
}

// DispatchEvent fires a synthetic event at the node reached from the
// component's root by following path (child indexes). Only documents that
// implement livedom.EventFirer support this. Returns the listeners invoked.
func (c *Consumer) DispatchEvent(componentId int, path []int, eventName string, ev livedom.NativeEvent) (int, error) {
	firer, ok := c.doc.(livedom.EventFirer)
	if !ok {
		return 0, fmt.Errorf("document does not support synthetic events")
	}
	var count int
	var rtnErr error
	err := c.run(func() {
		node, err := c.reg.Resolve(componentId)
		if err != nil {
			rtnErr = err
			return
		}
		for _, idx := range path {
			node, err = c.doc.ChildAt(node, idx)
			if err != nil {
				rtnErr = rendertree.AddressingErrorf("event path %v: %v", path, err)
				return
			}
		}
		if ev.Type == "" {
			ev.Type = eventName
		}
		count = firer.FireEvent(node, eventName, ev)
	})
	if err != nil {
		return 0, err
	}
	return count, rtnErr
}

// Snapshot renders the whole document body, or "" if the document cannot
// render HTML.
func (c *Consumer) Snapshot() string {
	renderer, ok := c.doc.(livedom.HTMLRenderer)
	if !ok {
		return ""
	}
	var rtn string
	c.run(func() {
		rtn = renderer.OuterHTML(c.doc.Body())
	})
	return rtn
}

func (c *Consumer) AttachedComponents() []int {
	var rtn []int
	c.run(func() {
		rtn = c.reg.Ids()
	})
	return rtn
}

func (c *Consumer) SetPatchOptions(opts treepatch.Options) {
	c.run(func() {
		c.patcher.SetOptions(opts)
	})
}

// Close lets queued batches finish, then stops the loop.
func (c *Consumer) Close() {
	c.queue.Close(false)
	c.queue.Wait()
}
