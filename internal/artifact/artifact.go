// Package artifact implements the persisted compiled-module format
// (spec.md §6 "Persisted artifact"): a flat record of header, import and
// export tables, deduplicated rodata, per-function code and debug info,
// and per-target executable payloads.
package artifact

import (
	"bytes"
	"fmt"
	"io"

	"github.com/tetratelabs/wabin/leb128"
)

// Magic identifies the artifact format; Version allows non-backward-
// compatible format changes to be rejected at load time.
var Magic = [4]byte{'T', 'C', 'V', 'M'}

const Version uint32 = 1

// FeatureBits flags optional format extensions a decoder must understand
// to load an artifact correctly.
type FeatureBits uint32

const (
	FeatureNone        FeatureBits = 0
	FeatureDebugInfo   FeatureBits = 1 << 0
	FeatureMultiTarget FeatureBits = 1 << 1
)

// Header is the artifact's leading record, written after Magic as LEB128
// varints.
type Header struct {
	Version     uint32
	FeatureBits FeatureBits
}

// ImportEntry is one unresolved import slot (spec.md §6 "import table").
type ImportEntry struct {
	Module string
	Name   string
	Conv   string
}

// ExportEntry is one export table row (spec.md §6 "export table with
// fully-qualified names, ordinals, and conv strings").
type ExportEntry struct {
	QualifiedName string
	Ordinal       uint32
	Conv          string
}

// RodataEntry is one read-only data blob (spec.md §6 "rodata table with
// alignment and optional MIME type").
type RodataEntry struct {
	MimeType  string
	Value     []byte
	Alignment uint32
}

type rodataKey struct {
	mime  string
	value string
}

// DedupeRodata implements spec.md §6 "Rodata entries with identical
// (mime-type, value) are deduplicated; the max alignment across merged
// entries is retained." Order of first occurrence is preserved.
func DedupeRodata(entries []RodataEntry) []RodataEntry {
	byKey := map[rodataKey]*RodataEntry{}
	var order []rodataKey
	for _, e := range entries {
		k := rodataKey{mime: e.MimeType, value: string(e.Value)}
		if existing, ok := byKey[k]; ok {
			if e.Alignment > existing.Alignment {
				existing.Alignment = e.Alignment
			}
			continue
		}
		clone := e
		byKey[k] = &clone
		order = append(order, k)
	}
	out := make([]RodataEntry, len(order))
	for i, k := range order {
		out[i] = *byKey[k]
	}
	return out
}

// FunctionCode is one function's compiled bytecode blob, addressed by its
// ordinal in the owning module's internal function table.
type FunctionCode struct {
	Ordinal uint32
	Blob    []byte
}

// FunctionDebugInfo is one function's optional debug record (line tables,
// symbol names) - present only when FeatureDebugInfo is set.
type FunctionDebugInfo struct {
	Ordinal uint32
	Info    []byte
}

// TargetPayload is one per-target-backend compiled executable payload,
// keyed by a filter pattern (spec.md §6 `"vulkan-spirv-fb"`).
type TargetPayload struct {
	FilterPattern string
	Blob          []byte
}

// Artifact is a fully decoded persisted module (spec.md §6).
type Artifact struct {
	Header     Header
	ModuleName string
	Imports    []ImportEntry
	Exports    []ExportEntry
	Rodata     []RodataEntry
	Code       []FunctionCode
	DebugInfo  []FunctionDebugInfo
	Targets    []TargetPayload
}

// Encode serializes a into the persisted artifact format.
func Encode(a *Artifact) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(Magic[:])
	buf.Write(leb128.EncodeUint32(a.Header.Version))
	buf.Write(leb128.EncodeUint32(uint32(a.Header.FeatureBits)))
	writeString(&buf, a.ModuleName)

	buf.Write(leb128.EncodeUint32(uint32(len(a.Imports))))
	for _, imp := range a.Imports {
		writeString(&buf, imp.Module)
		writeString(&buf, imp.Name)
		writeString(&buf, imp.Conv)
	}

	buf.Write(leb128.EncodeUint32(uint32(len(a.Exports))))
	for _, exp := range a.Exports {
		writeString(&buf, exp.QualifiedName)
		buf.Write(leb128.EncodeUint32(exp.Ordinal))
		writeString(&buf, exp.Conv)
	}

	rodata := DedupeRodata(a.Rodata)
	buf.Write(leb128.EncodeUint32(uint32(len(rodata))))
	for _, r := range rodata {
		writeString(&buf, r.MimeType)
		buf.Write(leb128.EncodeUint32(r.Alignment))
		writeBytes(&buf, r.Value)
	}

	buf.Write(leb128.EncodeUint32(uint32(len(a.Code))))
	for _, c := range a.Code {
		buf.Write(leb128.EncodeUint32(c.Ordinal))
		writeBytes(&buf, c.Blob)
	}

	if a.Header.FeatureBits&FeatureDebugInfo != 0 {
		buf.Write(leb128.EncodeUint32(uint32(len(a.DebugInfo))))
		for _, d := range a.DebugInfo {
			buf.Write(leb128.EncodeUint32(d.Ordinal))
			writeBytes(&buf, d.Info)
		}
	}

	buf.Write(leb128.EncodeUint32(uint32(len(a.Targets))))
	for _, t := range a.Targets {
		writeString(&buf, t.FilterPattern)
		writeBytes(&buf, t.Blob)
	}

	return buf.Bytes(), nil
}

// Decode parses the persisted artifact format produced by Encode,
// rejecting a mismatched magic or an unsupported version.
func Decode(data []byte) (*Artifact, error) {
	r := bytes.NewReader(data)

	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("artifact: reading magic: %w", err)
	}
	if magic != Magic {
		return nil, fmt.Errorf("artifact: bad magic %x, want %x", magic, Magic)
	}

	version, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("artifact: reading version: %w", err)
	}
	if version != Version {
		return nil, fmt.Errorf("artifact: unsupported version %d, want %d", version, Version)
	}
	featureBits, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("artifact: reading feature bits: %w", err)
	}
	a := &Artifact{Header: Header{Version: version, FeatureBits: FeatureBits(featureBits)}}

	if a.ModuleName, err = readString(r); err != nil {
		return nil, fmt.Errorf("artifact: reading module name: %w", err)
	}

	numImports, err := readCount(r)
	if err != nil {
		return nil, fmt.Errorf("artifact: reading import count: %w", err)
	}
	if numImports > 0 {
		a.Imports = make([]ImportEntry, numImports)
	}
	for i := range a.Imports {
		imp := &a.Imports[i]
		if imp.Module, err = readString(r); err != nil {
			return nil, fmt.Errorf("artifact: import %d module: %w", i, err)
		}
		if imp.Name, err = readString(r); err != nil {
			return nil, fmt.Errorf("artifact: import %d name: %w", i, err)
		}
		if imp.Conv, err = readString(r); err != nil {
			return nil, fmt.Errorf("artifact: import %d conv: %w", i, err)
		}
	}

	numExports, err := readCount(r)
	if err != nil {
		return nil, fmt.Errorf("artifact: reading export count: %w", err)
	}
	if numExports > 0 {
		a.Exports = make([]ExportEntry, numExports)
	}
	for i := range a.Exports {
		exp := &a.Exports[i]
		if exp.QualifiedName, err = readString(r); err != nil {
			return nil, fmt.Errorf("artifact: export %d name: %w", i, err)
		}
		if exp.Ordinal, err = readCount(r); err != nil {
			return nil, fmt.Errorf("artifact: export %d ordinal: %w", i, err)
		}
		if exp.Conv, err = readString(r); err != nil {
			return nil, fmt.Errorf("artifact: export %d conv: %w", i, err)
		}
	}

	numRodata, err := readCount(r)
	if err != nil {
		return nil, fmt.Errorf("artifact: reading rodata count: %w", err)
	}
	if numRodata > 0 {
		a.Rodata = make([]RodataEntry, numRodata)
	}
	for i := range a.Rodata {
		ro := &a.Rodata[i]
		if ro.MimeType, err = readString(r); err != nil {
			return nil, fmt.Errorf("artifact: rodata %d mime: %w", i, err)
		}
		if ro.Alignment, err = readCount(r); err != nil {
			return nil, fmt.Errorf("artifact: rodata %d alignment: %w", i, err)
		}
		if ro.Value, err = readBytes(r); err != nil {
			return nil, fmt.Errorf("artifact: rodata %d value: %w", i, err)
		}
	}

	numCode, err := readCount(r)
	if err != nil {
		return nil, fmt.Errorf("artifact: reading code count: %w", err)
	}
	if numCode > 0 {
		a.Code = make([]FunctionCode, numCode)
	}
	for i := range a.Code {
		c := &a.Code[i]
		if c.Ordinal, err = readCount(r); err != nil {
			return nil, fmt.Errorf("artifact: code %d ordinal: %w", i, err)
		}
		if c.Blob, err = readBytes(r); err != nil {
			return nil, fmt.Errorf("artifact: code %d blob: %w", i, err)
		}
	}

	if a.Header.FeatureBits&FeatureDebugInfo != 0 {
		numDebug, err := readCount(r)
		if err != nil {
			return nil, fmt.Errorf("artifact: reading debug-info count: %w", err)
		}
		a.DebugInfo = make([]FunctionDebugInfo, numDebug)
		for i := range a.DebugInfo {
			d := &a.DebugInfo[i]
			if d.Ordinal, err = readCount(r); err != nil {
				return nil, fmt.Errorf("artifact: debug-info %d ordinal: %w", i, err)
			}
			if d.Info, err = readBytes(r); err != nil {
				return nil, fmt.Errorf("artifact: debug-info %d info: %w", i, err)
			}
		}
	}

	numTargets, err := readCount(r)
	if err != nil {
		return nil, fmt.Errorf("artifact: reading target count: %w", err)
	}
	if numTargets > 0 {
		a.Targets = make([]TargetPayload, numTargets)
	}
	for i := range a.Targets {
		t := &a.Targets[i]
		if t.FilterPattern, err = readString(r); err != nil {
			return nil, fmt.Errorf("artifact: target %d filter: %w", i, err)
		}
		if t.Blob, err = readBytes(r); err != nil {
			return nil, fmt.Errorf("artifact: target %d blob: %w", i, err)
		}
	}

	return a, nil
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	buf.Write(leb128.EncodeUint32(uint32(len(b))))
	buf.Write(b)
}

func writeString(buf *bytes.Buffer, s string) {
	writeBytes(buf, []byte(s))
}

func readCount(r *bytes.Reader) (uint32, error) {
	v, _, err := leb128.DecodeUint32(r)
	return v, err
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	n, err := readCount(r)
	if err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func readString(r *bytes.Reader) (string, error) {
	b, err := readBytes(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
