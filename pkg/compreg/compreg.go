// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

// Package compreg maps component ids to the live element each component
// renders into. One registry belongs to one tree consumer and is only touched
// from that consumer's loop, so it takes no locks.
package compreg

import (
	"sort"

	"github.com/wavetermdev/wavedom/pkg/livedom"
	"github.com/wavetermdev/wavedom/pkg/rendertree"
)

type Registry struct {
	byId   map[int]livedom.Node
	byElem map[livedom.Node]int
}

func MakeRegistry() *Registry {
	return &Registry{
		byId:   make(map[int]livedom.Node),
		byElem: make(map[livedom.Node]int),
	}
}

// Attach records that componentId renders into elem. Entries are never moved:
// attaching an id that already points at another element fails, attaching the
// same pair again is a no-op.
func (r *Registry) Attach(componentId int, elem livedom.Node) error {
	if elem == nil {
		return rendertree.AddressingErrorf("cannot attach component %d to a nil element", componentId)
	}
	if elem.Kind() != livedom.NodeKind_Element {
		return rendertree.AddressingErrorf("cannot attach component %d to a %s node", componentId, elem.Kind())
	}
	if cur, ok := r.byId[componentId]; ok {
		if cur == elem {
			return nil
		}
		return rendertree.AddressingErrorf("component %d is already attached to another element", componentId)
	}
	if other, ok := r.byElem[elem]; ok {
		return rendertree.AddressingErrorf("element is already the root of component %d", other)
	}
	r.byId[componentId] = elem
	r.byElem[elem] = componentId
	return nil
}

func (r *Registry) Resolve(componentId int) (livedom.Node, error) {
	elem, ok := r.byId[componentId]
	if !ok {
		return nil, rendertree.AddressingErrorf("no element is currently associated with component %d", componentId)
	}
	return elem, nil
}

// Detach returns false if the id was not attached.
func (r *Registry) Detach(componentId int) bool {
	elem, ok := r.byId[componentId]
	if !ok {
		return false
	}
	delete(r.byId, componentId)
	delete(r.byElem, elem)
	return true
}

func (r *Registry) ComponentFor(elem livedom.Node) (int, bool) {
	componentId, ok := r.byElem[elem]
	return componentId, ok
}

func (r *Registry) Len() int {
	return len(r.byId)
}

func (r *Registry) Ids() []int {
	ids := make([]int, 0, len(r.byId))
	for id := range r.byId {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
