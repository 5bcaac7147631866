package engine

import (
	"context"
	"encoding/binary"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
)

// hostCall backs the env.host_call import: the glue's trampoline
// forwards JS calls on registered host functions here. Returning 0
// makes the glue throw "host call failed" inside the engine.
func (b *Bridge) hostCall(ctx context.Context, m api.Module, jsCtx, slot uint32, argc int32, argvPtr uint32) uint32 {
	b.mu.Lock()
	dispatch := b.dispatch
	b.mu.Unlock()
	if dispatch == nil {
		Logger().Warn("host_call without a dispatcher", zap.Uint32("slot", slot))
		return 0
	}

	args := make([]uint32, argc)
	if argc > 0 && argvPtr != 0 {
		buf, ok := m.Memory().Read(argvPtr, uint32(argc)*4)
		if !ok {
			return 0
		}
		for i := range args {
			args[i] = binary.LittleEndian.Uint32(buf[i*4:])
		}
	}

	result, ok := dispatch(ctx, jsCtx, slot, args)
	if !ok {
		return 0
	}
	return result
}

// hostWrite backs env.host_write, the print/console.log sink.
func (b *Bridge) hostWrite(ctx context.Context, m api.Module, ptr, length uint32) {
	buf, ok := m.Memory().Read(ptr, length)
	if !ok {
		return
	}
	b.mu.Lock()
	w := b.stdout
	b.mu.Unlock()
	if w != nil {
		_, _ = w.Write(buf)
	}
}
