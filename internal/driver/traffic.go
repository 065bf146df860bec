package driver

import "sync"

// trafficBuffer accumulates captured exchanges from every tab.
type trafficBuffer struct {
	mu        sync.Mutex
	exchanges []Exchange
	limit     int
}

func newTrafficBuffer(limit int) *trafficBuffer {
	return &trafficBuffer{limit: limit}
}

func (b *trafficBuffer) append(ex Exchange) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.exchanges = append(b.exchanges, ex)
	// Drop the oldest entries when nobody drains the buffer.
	if b.limit > 0 && len(b.exchanges) > b.limit {
		b.exchanges = append([]Exchange(nil), b.exchanges[len(b.exchanges)-b.limit:]...)
	}
}

func (b *trafficBuffer) snapshot() []Exchange {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Exchange(nil), b.exchanges...)
}

func (b *trafficBuffer) clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.exchanges = nil
}
