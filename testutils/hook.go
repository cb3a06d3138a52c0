package testutils

import (
	"context"
	"sync"
	"time"
)

// HookCall is one recorded mute hook invocation.
type HookCall struct {
	SenderID string
	Reason   string
	Duration time.Duration
}

// RecordingHook records every call and signals it on Called.
type RecordingHook struct {
	mu     sync.Mutex
	calls  []HookCall
	Called chan HookCall
}

func NewRecordingHook(bufferSize int) *RecordingHook {
	return &RecordingHook{Called: make(chan HookCall, bufferSize)}
}

func (h *RecordingHook) Run(ctx context.Context, senderID, reason string, duration time.Duration) error {
	call := HookCall{SenderID: senderID, Reason: reason, Duration: duration}
	h.mu.Lock()
	h.calls = append(h.calls, call)
	h.mu.Unlock()
	h.Called <- call
	return nil
}

func (h *RecordingHook) Calls() []HookCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]HookCall, len(h.calls))
	copy(out, h.calls)
	return out
}
