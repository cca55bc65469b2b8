package guard

import (
	"sync"
	"time"
)

// Throttle allows one post per key in each window.
type Throttle struct {
	window time.Duration
	posts  map[string]time.Time
	mutex  sync.Mutex
	now    func() time.Time
}

func NewThrottle(window time.Duration) *Throttle {
	return &Throttle{
		window: window,
		posts:  make(map[string]time.Time),
		now:    time.Now,
	}
}

// Allow reports whether key may post now, and if so starts its window.
func (t *Throttle) Allow(key string) bool {
	if t == nil || t.window <= 0 {
		return true
	}
	now := t.now()
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.clean(now)
	if expires, found := t.posts[key]; found && expires.After(now) {
		return false
	}
	t.posts[key] = now.Add(t.window)
	return true
}

func (t *Throttle) clean(now time.Time) {
	for key, expires := range t.posts {
		if !expires.After(now) {
			delete(t.posts, key)
		}
	}
}
