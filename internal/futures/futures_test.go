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

package futures

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"durable-sdk/pkg/errs"
	"durable-sdk/pkg/protocol"
)

func TestSingle_Lifecycle(t *testing.T) {
	s := NewSingle(3)
	assert.False(t, s.Completed())
	assert.Equal(t, []uint32{3}, s.UnresolvedLeaves(nil))

	s.Resolve(protocol.ValueResult([]byte("v")))
	assert.True(t, s.Completed())
	assert.Empty(t, s.UnresolvedLeaves(nil))
	assert.Equal(t, protocol.ValueResult([]byte("v")), s.Result())

	// Late resolutions do not overwrite.
	s.Resolve(protocol.ValueResult([]byte("other")))
	assert.Equal(t, protocol.ValueResult([]byte("v")), s.Result())
}

func TestAny_FirstResolutionWins(t *testing.T) {
	a, b := NewSingle(1), NewSingle(2)
	n := Any(a, b)
	assert.False(t, n.Completed())
	assert.Equal(t, []uint32{1, 2}, n.UnresolvedLeaves(nil))

	require.True(t, n.OnLeafResolved(2, protocol.ValueResult([]byte("b"))))
	assert.True(t, n.Completed())
	assert.Equal(t, 1, n.Winner())
	assert.Equal(t, protocol.ValueResult([]byte("b")), n.Result())
	assert.Equal(t, []uint32{2}, n.Order())

	// Further resolutions are no-ops.
	assert.False(t, n.OnLeafResolved(1, protocol.ValueResult([]byte("a"))))
	assert.Equal(t, 1, n.Winner())
}

func TestAny_DuplicateResolvedChildElectsChildZero(t *testing.T) {
	h := NewResolvedSingle(4, protocol.ValueResult([]byte("v")))
	n := Any(h, h)
	assert.True(t, n.Completed())
	assert.Equal(t, 0, n.Winner())
}

func TestAll_ResolvesWhenAllChildrenDo(t *testing.T) {
	a, b := NewSingle(1), NewSingle(2)
	n := All(a, b)

	assert.False(t, n.OnLeafResolved(1, protocol.EmptyResult()))
	assert.False(t, n.Completed())
	assert.Equal(t, []uint32{2}, n.UnresolvedLeaves(nil))

	require.True(t, n.OnLeafResolved(2, protocol.ValueResult([]byte("b"))))
	assert.Equal(t, protocol.EmptyResult(), n.Result())
	assert.Equal(t, []uint32{1, 2}, n.Order())
}

func TestAll_FailsOnFirstChildFailure(t *testing.T) {
	a, b := NewSingle(1), NewSingle(2)
	n := All(a, b)

	failure := protocol.FailureResult(errs.CodeInternal, "boom")
	require.True(t, n.OnLeafResolved(2, failure))
	assert.Equal(t, failure, n.Result())
	// Child 1 is still pending, yet the node already settled.
	assert.Empty(t, n.UnresolvedLeaves(nil))
}

func TestNested_AnyOverAll(t *testing.T) {
	a, b, c := NewSingle(1), NewSingle(2), NewSingle(3)
	n := Any(All(a, b), c)

	assert.Equal(t, []uint32{1, 2, 3}, n.UnresolvedLeaves(nil))

	assert.False(t, n.OnLeafResolved(1, protocol.EmptyResult()))
	require.True(t, n.OnLeafResolved(3, protocol.ValueResult([]byte("c"))))
	assert.Equal(t, 1, n.Winner())
	assert.Equal(t, []uint32{1, 3}, n.Order())
}

func TestReplay_SameOrderSameWinner(t *testing.T) {
	// First run: observed order 2, 1.
	first := Any(NewSingle(1), NewSingle(2))
	first.OnLeafResolved(2, protocol.ValueResult([]byte("b")))
	recorded := first.Order()

	// Replay feeds the journalled order, not arrival order.
	replayed := Any(NewSingle(1), NewSingle(2))
	for _, idx := range recorded {
		replayed.OnLeafResolved(idx, protocol.ValueResult([]byte("b")))
	}
	assert.Equal(t, first.Winner(), replayed.Winner())
}
