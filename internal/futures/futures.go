// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package futures models deferred results: handles for journal entries whose
// results may not yet be known, and the all/any combinators over them.
//
// The graph is a small DAG over entry indices. Parents own children and
// children never know their parents; the engine drives resolution by feeding
// leaf resolutions into the awaited root in observation order. That order is
// journalled on a combinator entry, so replay elects the same winner
// regardless of actual inbound ordering.
package futures

import (
	"durable-sdk/pkg/protocol"
)

// Deferred is a handle on a result that may not be known yet.
type Deferred interface {
	// Completed reports whether the result is known.
	Completed() bool
	// Result returns the resolved result; only valid once Completed.
	Result() protocol.Result
	// UnresolvedLeaves appends the entry indices this deferred is still
	// waiting on, in child order. Used to build suspension sets.
	UnresolvedLeaves(dst []uint32) []uint32
	// onLeafResolved consumes one leaf resolution and reports whether any
	// leaf in the subtree progressed because of it.
	onLeafResolved(index uint32, r protocol.Result) bool
}

// Single is the deferred result of one journal entry.
type Single struct {
	EntryIndex uint32
	res        protocol.Result
}

// NewSingle creates the handle for the entry at index.
func NewSingle(index uint32) *Single {
	return &Single{EntryIndex: index}
}

// NewResolvedSingle creates an already-resolved handle, used when a replayed
// entry carried its result inline.
func NewResolvedSingle(index uint32, r protocol.Result) *Single {
	return &Single{EntryIndex: index, res: r}
}

func (s *Single) Completed() bool {
	return s.res.Kind != protocol.ResultNone
}

func (s *Single) Result() protocol.Result {
	return s.res
}

func (s *Single) UnresolvedLeaves(dst []uint32) []uint32 {
	if s.Completed() {
		return dst
	}
	return append(dst, s.EntryIndex)
}

func (s *Single) onLeafResolved(index uint32, r protocol.Result) bool {
	if index != s.EntryIndex || s.Completed() {
		return false
	}
	s.res = r
	return true
}

// Resolve marks the single as resolved. Resolution of an already-resolved
// single is ignored; the journal enforces duplicate-completion policy.
func (s *Single) Resolve(r protocol.Result) {
	if !s.Completed() {
		s.res = r
	}
}

type combKind uint8

const (
	combAll combKind = iota
	combAny
)

// Node is an all/any combinator over child deferreds.
type Node struct {
	kind     combKind
	children []Deferred
	order    []uint32
	res      protocol.Result
	winner   int
}

// All resolves once every child resolved; it fails with the first child
// failure instead.
func All(children ...Deferred) *Node {
	n := &Node{kind: combAll, children: children, winner: -1}
	n.settle()
	return n
}

// Any resolves to the first child that resolves, recording the winning child
// index.
func Any(children ...Deferred) *Node {
	n := &Node{kind: combAny, children: children, winner: -1}
	n.settle()
	return n
}

func (n *Node) Completed() bool {
	return n.res.Kind != protocol.ResultNone
}

func (n *Node) Result() protocol.Result {
	return n.res
}

// Winner returns the index (in child order) of the child that resolved an
// any combinator; -1 until resolution and for all combinators.
func (n *Node) Winner() int {
	return n.winner
}

// Order returns the leaf entry indices in the order their resolutions were
// observed, the payload of the combinator journal entry.
func (n *Node) Order() []uint32 {
	return n.order
}

func (n *Node) UnresolvedLeaves(dst []uint32) []uint32 {
	if n.Completed() {
		return dst
	}
	for _, c := range n.children {
		dst = c.UnresolvedLeaves(dst)
	}
	return dst
}

// OnLeafResolved feeds one observed leaf resolution into the subtree. The
// engine calls it in arrival order during processing and in journalled order
// during replay. It reports whether the node completed as a consequence.
func (n *Node) OnLeafResolved(index uint32, r protocol.Result) bool {
	if n.Completed() {
		return false
	}
	n.onLeafResolved(index, r)
	return n.Completed()
}

func (n *Node) onLeafResolved(index uint32, r protocol.Result) bool {
	if n.Completed() {
		return false
	}
	progressed := false
	for _, c := range n.children {
		if c.onLeafResolved(index, r) {
			progressed = true
		}
	}
	if !progressed {
		return false
	}
	n.order = append(n.order, index)
	n.settle()
	return true
}

// settle recomputes the node's completion state from its children. Children
// already resolved at construction time count immediately, in child order,
// which is what makes any(h, h) with h resolved elect child 0 on both first
// run and replay.
func (n *Node) settle() {
	switch n.kind {
	case combAny:
		for i, c := range n.children {
			if c.Completed() {
				n.winner = i
				n.res = c.Result()
				return
			}
		}
	case combAll:
		done := true
		for _, c := range n.children {
			if !c.Completed() {
				done = false
				continue
			}
			if r := c.Result(); r.Kind == protocol.ResultFailure {
				n.res = r
				return
			}
		}
		if done {
			n.res = protocol.EmptyResult()
		}
	}
}
