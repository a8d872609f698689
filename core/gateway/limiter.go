package gateway

import (
	"errors"
	"sync"
	"time"
)

const (
	slotWindow         = 5 * time.Second
	maxInFlightPerUser = 3
)

var errRateLimited = errors.New("rate limited")

// downloadLimiter caps concurrent download starts per caller. Each start
// occupies a slot until released; slots older than the window expire on
// their own so a crashed stream can never wedge a caller permanently.
// Releases are keyed by the start stamp handed out at acquire time so a
// slow run cannot release a slot it does not own.
type downloadLimiter struct {
	window      time.Duration
	maxInFlight int

	mu    sync.Mutex
	users map[string]map[int64]struct{}
	now   func() time.Time
}

func newDownloadLimiter() *downloadLimiter {
	return &downloadLimiter{
		window:      slotWindow,
		maxInFlight: maxInFlightPerUser,
		users:       make(map[string]map[int64]struct{}),
		now:         time.Now,
	}
}

// Acquire reserves a download slot for user, returning the stamp to pass
// to Release. Returns errRateLimited when the caller already holds the
// maximum number of live slots.
func (l *downloadLimiter) Acquire(user string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	slots, ok := l.users[user]
	if !ok {
		slots = make(map[int64]struct{})
		l.users[user] = slots
	}

	now := l.now()
	cutoff := now.Add(-l.window).UnixNano()
	for stamp := range slots {
		if stamp < cutoff {
			delete(slots, stamp)
		}
	}

	if len(slots) >= l.maxInFlight {
		return 0, errRateLimited
	}

	stamp := now.UnixNano()
	for {
		if _, taken := slots[stamp]; !taken {
			break
		}
		stamp++
	}
	slots[stamp] = struct{}{}
	return stamp, nil
}

func (l *downloadLimiter) Release(user string, stamp int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if slots, ok := l.users[user]; ok {
		delete(slots, stamp)
	}
}
