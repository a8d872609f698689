package content

import "sync"

// ProgressEvent describes one step of an in-flight download run.
type ProgressEvent struct {
	ItemID     string `json:"item_id"`
	Stage      string `json:"stage"`
	URL        string `json:"url,omitempty"`
	Downloaded int64  `json:"downloaded,omitempty"`
	Total      int64  `json:"total,omitempty"`
	Message    string `json:"message,omitempty"`
}

// ProgressHub fans progress events out to subscribers. Slow subscribers
// drop events rather than blocking the pipeline.
type ProgressHub struct {
	mu   sync.Mutex
	subs map[chan ProgressEvent]struct{}
}

func NewProgressHub() *ProgressHub {
	return &ProgressHub{subs: make(map[chan ProgressEvent]struct{})}
}

// Subscribe registers a new subscriber. Call the returned cancel func to
// unsubscribe and close the channel.
func (h *ProgressHub) Subscribe() (<-chan ProgressEvent, func()) {
	ch := make(chan ProgressEvent, 64)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber that has buffer space.
func (h *ProgressHub) Publish(event ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- event:
		default:
		}
	}
}
