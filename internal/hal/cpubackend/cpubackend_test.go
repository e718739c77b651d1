package cpubackend

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tensorcore/tcvm/internal/hal"
)

func TestBuildProducesCallableEntryPoint(t *testing.T) {
	entry, err := Build("double", 1, func(_ [3]uint32, ins, out []byte) {
		if len(ins) == 0 {
			return
		}
		out[0] = ins[0] * 2
	})
	require.NoError(t, err)
	require.Equal(t, "double", entry.Name)
	require.NotNil(t, entry.Invoke)
}

func TestKernelRunsThroughCommandBuffer(t *testing.T) {
	entry, err := Build("increment", 2, func(globalID [3]uint32, ins, out []byte) {
		out[0] = ins[0] + 1
	})
	require.NoError(t, err)

	d := hal.NewDevice("cpu0")
	in, _ := d.AllocateBuffer(4, hal.UsageDispatch, hal.MemoryHostVisible)
	out, _ := d.AllocateBuffer(4, hal.UsageDispatch, hal.MemoryHostVisible)
	copy(in.Bytes(), []byte{1, 2, 3, 4})

	exec, st := hal.MaterializeExecutable(hal.BackendCPU, []hal.ExecutableCandidate{{Backend: hal.BackendCPU, Entries: []hal.EntryPoint{entry}}}, nil)
	require.True(t, st.OK())

	cb := hal.NewCommandBuffer(d, true)
	require.True(t, cb.RecordDispatch(exec, 0, []hal.BufferBinding{
		{Ordinal: 0, Buffer: in},
		{Ordinal: 1, Buffer: out},
	}, nil, 2, 1, 1).OK())
	require.True(t, cb.Finalize().OK())
	require.True(t, d.Queue().Submit(cb, nil, nil, 0).OK())

	require.Equal(t, []byte{2, 3, 4, 5}, out.Bytes())
}
