package tcvm

import "github.com/tensorcore/tcvm/internal/hal"

// RuntimeConfig configures a Runtime before it is created (spec.md §6
// "Invocation" surface options plus the stack-arena and backtrace knobs
// spec.md §4.3 and §4.3.4 describe). Every With* method returns a clone,
// mirroring ModuleBuilder's immutable pipeline.
type RuntimeConfig struct {
	stackMinBytes     int
	stackHardCapBytes int
	backtracesEnabled bool
	deviceBackends    []hal.Backend
}

// NewRuntimeConfig returns the default configuration: a 64KiB initial
// stack arena growing to a 16MiB hard cap, backtraces enabled, and the
// CPU device backend registered.
func NewRuntimeConfig() *RuntimeConfig {
	return &RuntimeConfig{
		stackMinBytes:     64 * 1024,
		stackHardCapBytes: 16 * 1024 * 1024,
		backtracesEnabled: true,
		deviceBackends:    []hal.Backend{hal.BackendCPU},
	}
}

func (c *RuntimeConfig) clone() *RuntimeConfig {
	clone := *c
	clone.deviceBackends = append([]hal.Backend(nil), c.deviceBackends...)
	return &clone
}

// WithStackSize sets the execution stack's initial arena size and hard
// cap (spec.md §4.3.1).
func (c *RuntimeConfig) WithStackSize(minBytes, hardCapBytes int) *RuntimeConfig {
	clone := c.clone()
	clone.stackMinBytes = minBytes
	clone.stackHardCapBytes = hardCapBytes
	return clone
}

// WithBacktracesDisabled skips backtrace string formatting on failure
// (spec.md §4.3.4).
func (c *RuntimeConfig) WithBacktracesDisabled() *RuntimeConfig {
	clone := c.clone()
	clone.backtracesEnabled = false
	return clone
}

// WithDeviceBackends replaces the set of HAL device backends a Runtime
// materializes executables against (spec.md §4.5.1).
func (c *RuntimeConfig) WithDeviceBackends(backends ...hal.Backend) *RuntimeConfig {
	clone := c.clone()
	clone.deviceBackends = append([]hal.Backend(nil), backends...)
	return clone
}
