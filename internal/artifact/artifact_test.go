package artifact

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDedupeRodataMergesIdenticalMimeAndValueKeepingMaxAlignment(t *testing.T) {
	entries := []RodataEntry{
		{MimeType: "application/octet-stream", Value: []byte{1, 2, 3}, Alignment: 4},
		{MimeType: "application/octet-stream", Value: []byte{1, 2, 3}, Alignment: 16},
		{MimeType: "application/octet-stream", Value: []byte{9}, Alignment: 8},
	}

	out := DedupeRodata(entries)

	require.Len(t, out, 2)
	require.Equal(t, uint32(16), out[0].Alignment)
	require.Equal(t, uint32(8), out[1].Alignment)
}

func TestDedupeRodataDistinguishesMimeType(t *testing.T) {
	entries := []RodataEntry{
		{MimeType: "text/plain", Value: []byte("x"), Alignment: 1},
		{MimeType: "application/octet-stream", Value: []byte("x"), Alignment: 1},
	}
	require.Len(t, DedupeRodata(entries), 2)
}

func TestEncodeDecodeRoundTrips(t *testing.T) {
	a := &Artifact{
		Header:     Header{Version: Version, FeatureBits: FeatureDebugInfo},
		ModuleName: "kernels",
		Imports:    []ImportEntry{{Module: "host", Name: "log", Conv: "i_"}},
		Exports:    []ExportEntry{{QualifiedName: "kernels.add", Ordinal: 0, Conv: "ii_i"}},
		Rodata: []RodataEntry{
			{MimeType: "application/octet-stream", Value: []byte{1, 2, 3, 4}, Alignment: 16},
		},
		Code:      []FunctionCode{{Ordinal: 0, Blob: []byte{0xde, 0xad, 0xbe, 0xef}}},
		DebugInfo: []FunctionDebugInfo{{Ordinal: 0, Info: []byte("add.tcir:12")}},
		Targets:   []TargetPayload{{FilterPattern: "vulkan-spirv-fb", Blob: []byte{1, 2}}},
	}

	encoded, err := Encode(a)
	require.NoError(t, err)

	decoded, err := Decode(encoded)
	require.NoError(t, err)
	require.Equal(t, a, decoded)
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	_, err := Decode([]byte{0, 0, 0, 0})
	require.Error(t, err)
}

func TestDecodeRejectsUnsupportedVersion(t *testing.T) {
	a := &Artifact{Header: Header{Version: Version}, ModuleName: "m"}
	encoded, err := Encode(a)
	require.NoError(t, err)

	// Corrupt the version field (byte directly after the 4-byte magic).
	encoded[4] = 0xff
	_, err = Decode(encoded)
	require.Error(t, err)
}
