package presence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/akinalp/paraf/bus"
	"github.com/akinalp/paraf/models"
	"github.com/akinalp/paraf/pkg"
)

// fakeProfileRepo, UpdateStatus çağrılarını kaydeder.
type fakeProfileRepo struct {
	mu      sync.Mutex
	updates []string // "userID:status" kayıtları
}

func (r *fakeProfileRepo) GetByID(context.Context, string) (*models.Profile, error) {
	return nil, pkg.ErrNotFound
}

func (r *fakeProfileRepo) Upsert(context.Context, *models.Profile) error { return nil }

func (r *fakeProfileRepo) UpdateStatus(_ context.Context, id string, status models.PresenceStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, id+":"+string(status))
	return nil
}

func (r *fakeProfileRepo) count(record string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, u := range r.updates {
		if u == record {
			n++
		}
	}
	return n
}

type fakeChannel struct {
	events chan bus.Event
	errs   chan error
	once   sync.Once
}

func (c *fakeChannel) Events() <-chan bus.Event { return c.events }
func (c *fakeChannel) Errs() <-chan error       { return c.errs }
func (c *fakeChannel) Close() error {
	c.once.Do(func() {
		close(c.events)
		close(c.errs)
	})
	return nil
}

type fakeOpener struct {
	ch *fakeChannel
}

func (o *fakeOpener) Open(context.Context, string) (bus.Channel, error) {
	return o.ch, nil
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting: %s", msg)
}

func presenceEvent(userID, status string, lastActive time.Time) bus.Event {
	return bus.Event{
		Op: bus.OpPresence,
		Data: map[string]any{
			"user_id":        userID,
			"status":         status,
			"last_active_at": lastActive.Format(time.RFC3339Nano),
		},
	}
}

func newTestTracker(t *testing.T, repo *fakeProfileRepo, heartbeat, offlineAfter time.Duration) (*Tracker, *fakeChannel) {
	t.Helper()
	ch := &fakeChannel{events: make(chan bus.Event, 16), errs: make(chan error, 1)}
	registry := bus.NewRegistry(&fakeOpener{ch: ch})
	t.Cleanup(registry.Close)

	tracker := New(context.Background(), registry, repo, "alice", heartbeat, offlineAfter, nil)
	t.Cleanup(tracker.Close)
	return tracker, ch
}

func TestTrackerObservation(t *testing.T) {
	repo := &fakeProfileRepo{}
	tracker, ch := newTestTracker(t, repo, time.Minute, 100*time.Millisecond)

	t.Run("görülmemiş kullanıcı offline", func(t *testing.T) {
		if tracker.IsOnline("bob") {
			t.Fatal("unknown user should not be online")
		}
		if _, ok := tracker.LastSeen("bob"); ok {
			t.Fatal("unknown user should have no last-seen")
		}
	})

	t.Run("taze online sinyali", func(t *testing.T) {
		ch.events <- presenceEvent("bob", "online", time.Now())
		waitFor(t, func() bool { return tracker.IsOnline("bob") }, "bob should be online")

		if _, ok := tracker.LastSeen("bob"); !ok {
			t.Fatal("last-seen should be recorded")
		}
	})

	t.Run("explicit offline sinyali", func(t *testing.T) {
		ch.events <- presenceEvent("bob", "offline", time.Now())
		waitFor(t, func() bool { return !tracker.IsOnline("bob") }, "bob should be offline")
	})

	t.Run("bayat online iddiasına güvenilmez", func(t *testing.T) {
		// "online" diyor ama damga zaman aşımından eski — çökmüş istemci
		// offline sinyali gönderemez, zaman aşımı devreye girer.
		ch.events <- presenceEvent("carol", "online", time.Now().Add(-time.Second))
		waitFor(t, func() bool {
			_, seen := tracker.LastSeen("carol")
			return seen
		}, "carol event should be applied")

		if tracker.IsOnline("carol") {
			t.Fatal("stale online claim should count as offline")
		}
	})
}

func TestTrackerHeartbeat(t *testing.T) {
	repo := &fakeProfileRepo{}
	tracker, _ := newTestTracker(t, repo, 30*time.Millisecond, time.Minute)

	t.Run("ilan öncesi heartbeat atmaz", func(t *testing.T) {
		time.Sleep(100 * time.Millisecond)
		if n := repo.count("alice:online"); n != 0 {
			t.Fatalf("heartbeat fired %d times before any announcement", n)
		}
	})

	t.Run("online ilanı periyodik tazelenir", func(t *testing.T) {
		if err := tracker.GoOnline(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		// İlan + en az iki heartbeat tazelemesi görülmeli.
		waitFor(t, func() bool {
			return repo.count("alice:online") >= 3
		}, "heartbeat should re-assert online status")
	})

	t.Run("offline ilanı heartbeat'e rağmen kalıcıdır", func(t *testing.T) {
		if err := tracker.GoOffline(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		// İlandan hemen önce tetiklenmiş bir tick bitene kadar bekle,
		// sonra sayacı sabitle.
		time.Sleep(60 * time.Millisecond)
		baseline := repo.count("alice:online")

		time.Sleep(120 * time.Millisecond)
		if n := repo.count("alice:online"); n != baseline {
			t.Fatalf("heartbeat reverted an explicit offline: online count %d → %d", baseline, n)
		}
		if repo.count("alice:offline") != 1 {
			t.Fatal("offline announcement should be recorded once")
		}
	})

	t.Run("yeniden online heartbeat'i canlandırır", func(t *testing.T) {
		baseline := repo.count("alice:online")
		if err := tracker.GoOnline(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		waitFor(t, func() bool {
			return repo.count("alice:online") > baseline+1
		}, "heartbeat should resume after going online again")
	})
}
