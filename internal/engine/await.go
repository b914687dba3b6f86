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

package engine

import (
	"durable-sdk/internal/futures"
	"durable-sdk/internal/journal"
	"durable-sdk/pkg/errs"
	"durable-sdk/pkg/protocol"
)

// Await blocks the handler's logical thread until the deferred result is
// resolved and returns it. Awaiting a combinator journals a combinator
// entry recording the observed resolution order, so replay elects the same
// winner. When the engine is blocked with no input left, Await suspends the
// invocation and unwinds with ErrClosed.
func (e *Engine) Await(d futures.Deferred) (protocol.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch v := d.(type) {
	case *futures.Single:
		entry, ok := e.journal.Get(v.EntryIndex)
		if !ok {
			return protocol.Result{}, errs.NewProtocolViolation(errs.CodeInternal, "await of unknown entry index %d", v.EntryIndex)
		}
		r, err := e.awaitEntry(entry)
		if err != nil {
			return protocol.Result{}, err
		}
		v.Resolve(r)
		return r, nil
	case *futures.Node:
		return e.awaitNode(v)
	}
	return protocol.Result{}, errs.NewProtocolViolation(errs.CodeInternal, "await of unknown deferred kind")
}

// awaitEntry blocks until the entry has a result. Mu held.
func (e *Engine) awaitEntry(entry *journal.Entry) (protocol.Result, error) {
	for {
		if r, ok := entry.Result(); ok && r.Kind != protocol.ResultNone {
			return r, nil
		}
		if err := e.blockOn([]uint32{entry.Index}); err != nil {
			return protocol.Result{}, err
		}
	}
}

// awaitNode drives a combinator to resolution. During replay the journalled
// combinator entry dictates the leaf feeding order; during processing leaves
// are fed as their completions land and the observed order is journalled.
// Mu held.
func (e *Engine) awaitNode(n *futures.Node) (protocol.Result, error) {
	if e.insideSideEffect {
		err := errs.NewProtocolViolation(errs.CodeInternal, "journalled operation CombinatorEntry inside a side effect")
		e.fail(err)
		return protocol.Result{}, err
	}

	if e.journal.Replaying() {
		entry, err := e.matchNext(&protocol.CombinatorEntryMessage{})
		if err != nil {
			if _, ok := errs.AsProtocolViolation(err); ok {
				e.fail(err)
			}
			return protocol.Result{}, err
		}
		if !e.journal.Replaying() {
			e.state = StateProcessing
		}
		recorded := entry.Message.(*protocol.CombinatorEntryMessage).EntryIndexes
		for _, idx := range recorded {
			if n.Completed() {
				break
			}
			leaf, ok := e.journal.Get(idx)
			if !ok {
				return protocol.Result{}, errs.NewProtocolViolation(errs.CodeInternal, "combinator entry references unknown index %d", idx)
			}
			r, err := e.awaitEntry(leaf)
			if err != nil {
				return protocol.Result{}, err
			}
			n.OnLeafResolved(idx, r)
		}
		if !n.Completed() {
			err := errs.NewProtocolViolation(errs.CodeJournalMismatch, "journalled combinator order did not resolve the combinator")
			e.fail(err)
			return protocol.Result{}, err
		}
		return n.Result(), nil
	}

	for !n.Completed() {
		progressed := false
		for _, idx := range n.UnresolvedLeaves(nil) {
			leaf, ok := e.journal.Get(idx)
			if !ok {
				return protocol.Result{}, errs.NewProtocolViolation(errs.CodeInternal, "combinator references unknown entry index %d", idx)
			}
			if r, ok := leaf.Result(); ok && r.Kind != protocol.ResultNone {
				n.OnLeafResolved(idx, r)
				progressed = true
			}
		}
		if n.Completed() || progressed {
			continue
		}
		if err := e.blockOn(n.UnresolvedLeaves(nil)); err != nil {
			return protocol.Result{}, err
		}
	}

	msg := &protocol.CombinatorEntryMessage{EntryIndexes: n.Order()}
	if _, err := e.journal.Append(msg); err != nil {
		e.fail(err)
		return protocol.Result{}, err
	}
	e.send(msg)
	return n.Result(), nil
}

// blockOn parks the handler thread until new input arrives. If the inbound
// stream is drained the invocation suspends on the given indices instead.
// Mu held.
func (e *Engine) blockOn(indices []uint32) error {
	if e.closed {
		return errs.ErrClosed
	}
	if e.inputClosed {
		e.suspend(indices)
		return errs.ErrClosed
	}
	e.cond.Wait()
	return nil
}
