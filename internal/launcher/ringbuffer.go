// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package launcher

import "sync"

// ringBuffer is a bounded byte buffer: once full, further writes are
// discarded rather than growing or evicting, so the earliest stderr (the
// part that usually names the failure) survives.
type ringBuffer struct {
	mu   sync.Mutex
	cap  int
	data []byte
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{cap: capacity}
}

func (b *ringBuffer) Write(p []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	remaining := b.cap - len(b.data)
	if remaining <= 0 {
		return
	}
	if len(p) > remaining {
		p = p[:remaining]
	}
	b.data = append(b.data, p...)
}

func (b *ringBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.data)
}
