package refcount

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type countingObj struct{ destroyed int }

func (c *countingObj) Destroy() { c.destroyed++ }

func TestRetainRelease(t *testing.T) {
	obj := &countingObj{}
	h := New(obj)
	require.EqualValues(t, 1, h.Count())

	h.Retain()
	require.EqualValues(t, 2, h.Count())

	h.Release()
	require.Equal(t, 0, obj.destroyed)

	h.Release()
	require.Equal(t, 1, obj.destroyed)
}

func TestReleasePastZeroPanics(t *testing.T) {
	obj := &countingObj{}
	h := New(obj)
	h.Release()
	require.Equal(t, 1, obj.destroyed)
	require.Panics(t, func() { h.Release() })
}

func TestNullRef(t *testing.T) {
	var r Ref
	require.True(t, r.IsNil())
	r.Retain() // no-op, must not panic
	r.Release()
	_, ok := r.As("anything")
	require.False(t, ok)
}

func TestTypedNarrowing(t *testing.T) {
	obj := &countingObj{}
	h := New(obj)
	r := NewRef("hal.buffer", 42, h)
	require.False(t, r.IsNil())

	v, ok := r.As("hal.buffer")
	require.True(t, ok)
	require.Equal(t, 42, v)

	_, ok = r.As("vm.module")
	require.False(t, ok)

	r.Release()
	require.Equal(t, 1, obj.destroyed)
}
