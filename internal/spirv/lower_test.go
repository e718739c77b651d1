package spirv

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLowerLoadConstantAssignsAndReusesFields(t *testing.T) {
	layout := &PushConstantLayout{}
	f0 := LowerLoadConstant(layout, 0)
	f1 := LowerLoadConstant(layout, 1)
	f0Again := LowerLoadConstant(layout, 0)

	require.Equal(t, f0, f0Again)
	require.NotEqual(t, f0.Ordinal, f1.Ordinal)
	require.Len(t, layout.Fields, 2)
}

func TestLowerWorkgroupOpSelectsBuiltin(t *testing.T) {
	id := LowerWorkgroupOp(false, 1)
	require.Equal(t, BuiltinWorkgroupID, id.Builtin)
	require.Equal(t, 1, id.Component)

	count := LowerWorkgroupOp(true, 2)
	require.Equal(t, BuiltinNumWorkgroups, count.Builtin)
}

func TestLowerInterfaceBindingsMarksAliasingOnSharedSlot(t *testing.T) {
	sites := []BindingSite{
		{Set: 0, Binding: 0},
		{Set: 0, Binding: 1},
		{Set: 0, Binding: 0},
	}
	vars := LowerInterfaceBindings(sites)

	require.Len(t, vars, 2)
	require.True(t, vars[0].Aliased)
	require.False(t, vars[1].Aliased)
}

func TestLowerInterfaceBindingsNoAliasingWhenAllDistinct(t *testing.T) {
	sites := []BindingSite{{Set: 0, Binding: 0}, {Set: 0, Binding: 1}}
	vars := LowerInterfaceBindings(sites)

	for _, v := range vars {
		require.False(t, v.Aliased)
	}
}

func TestPromoteCooperativeMatrixRequiresAllConditions(t *testing.T) {
	full := CooperativeMatrixCandidate{
		RowMajor: true, IdentityPermutation: true, StaticStrides: true, ParticipatesInMatmul: true,
	}
	require.Equal(t, []CooperativeMatrixOp{CoopMatrixLoad, CoopMatrixMulAdd, CoopMatrixStore}, PromoteCooperativeMatrix(full))

	missingStrides := full
	missingStrides.StaticStrides = false
	require.Nil(t, PromoteCooperativeMatrix(missingStrides))

	notMatmul := full
	notMatmul.ParticipatesInMatmul = false
	require.Nil(t, PromoteCooperativeMatrix(notMatmul))
}
