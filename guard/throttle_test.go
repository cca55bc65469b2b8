package guard

import (
	"testing"
	"time"
)

func TestThrottle(t *testing.T) {
	t.Run("throttle blocks too frequent posts", func(t *testing.T) {
		now := time.Unix(1700000000, 0)
		th := NewThrottle(time.Second)
		th.now = func() time.Time { return now }
		if !th.Allow("1.2.3.4") {
			t.Errorf("Expected to be allowed to make first post")
		}
		if th.Allow("1.2.3.4") {
			t.Errorf("Expected to be disallowed to make second post")
		}
		if !th.Allow("5.6.7.8") {
			t.Errorf("Expected another address to be allowed")
		}
		now = now.Add(time.Hour)
		if !th.Allow("1.2.3.4") {
			t.Errorf("Expected to be allowed to post after time has passed")
		}
		if len(th.posts) != 1 {
			t.Errorf("expired entries were not cleaned, %d left", len(th.posts))
		}
	})
	t.Run("zero window never blocks", func(t *testing.T) {
		th := NewThrottle(0)
		for i := 0; i < 3; i++ {
			if !th.Allow("1.2.3.4") {
				t.Fatalf("post %d was blocked", i)
			}
		}
	})
	t.Run("nil throttle never blocks", func(t *testing.T) {
		var th *Throttle
		if !th.Allow("1.2.3.4") {
			t.Error("nil throttle blocked a post")
		}
	})
}
