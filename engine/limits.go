package engine

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"
)

// memoryFields names the counters written by qjs_compute_memory_usage,
// in the exact order the glue emits them.
var memoryFields = [...]string{
	"malloc_size",
	"malloc_limit",
	"memory_used_size",
	"malloc_count",
	"memory_used_count",
	"atom_count",
	"atom_size",
	"str_count",
	"str_size",
	"obj_count",
	"obj_size",
	"prop_count",
	"prop_size",
	"shape_count",
	"shape_size",
	"js_func_count",
	"js_func_size",
	"js_func_code_size",
	"js_func_pc2line_count",
	"js_func_pc2line_size",
	"c_func_count",
	"array_count",
	"fast_array_count",
	"fast_array_elements",
	"binary_object_count",
	"binary_object_size",
}

// SetMemoryLimit caps the engine heap in bytes; 0 removes the cap.
// Exceeding it surfaces as an engine exception at the next allocation.
func (b *Bridge) SetMemoryLimit(ctx context.Context, rt uint32, bytes uint64) error {
	_, err := b.fnSetMemoryLimit.Call(ctx, uint64(rt), bytes)
	return err
}

// SetMaxStackSize bounds native stack use during engine execution.
func (b *Bridge) SetMaxStackSize(ctx context.Context, rt uint32, bytes uint64) error {
	_, err := b.fnSetMaxStackSize.Call(ctx, uint64(rt), bytes)
	return err
}

// SetTimeLimit arms the cooperative deadline in seconds; values <= 0
// disable it. The deadline restarts at each eval/call entry and is
// polled by the engine's interrupt handler between instructions, so the
// worst-case overrun is the polling interval, not zero.
func (b *Bridge) SetTimeLimit(ctx context.Context, rt uint32, seconds float64) error {
	_, err := b.fnSetTimeLimit.Call(ctx, uint64(rt), api.EncodeF64(seconds))
	return err
}

// RunGC triggers a synchronous collector pass.
func (b *Bridge) RunGC(ctx context.Context, rt uint32) error {
	_, err := b.fnRunGC.Call(ctx, uint64(rt))
	return err
}

// ComputeMemoryUsage queries the engine allocator counters.
func (b *Bridge) ComputeMemoryUsage(ctx context.Context, rt uint32) (map[string]int64, error) {
	out, err := b.alloc(ctx, uint32(len(memoryFields))*8)
	if err != nil {
		return nil, err
	}
	defer b.free(ctx, out)

	if _, err := b.fnComputeMemoryUsage.Call(ctx, uint64(rt), uint64(out)); err != nil {
		return nil, err
	}

	stats := make(map[string]int64, len(memoryFields))
	for i, name := range memoryFields {
		v, ok := b.memory.ReadUint64Le(out + uint32(i)*8)
		if !ok {
			return nil, fmt.Errorf("read memory usage field %s", name)
		}
		stats[name] = int64(v)
	}
	return stats, nil
}
