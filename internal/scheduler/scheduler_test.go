package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"splpulse/internal/cache"
	"splpulse/internal/errs"
	"splpulse/internal/models"
	"splpulse/internal/validator"
)

type fakeUpdater struct {
	mu      sync.Mutex
	calls   int32
	fail    map[string]error
}

func (f *fakeUpdater) UpdateMint(ctx context.Context, mint string) (models.PriceSnapshot, error) {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	err := f.fail[mint]
	f.mu.Unlock()
	if err != nil {
		return models.PriceSnapshot{}, err
	}
	return models.PriceSnapshot{Mint: mint}, nil
}

type fakeValidator struct{ valid bool }

func (v *fakeValidator) Validate(ctx context.Context, mint string) (validator.Result, error) {
	return validator.Result{Valid: v.valid}, nil
}

type fakeLister struct {
	mu     sync.Mutex
	mints  []string
	purged []string
}

func (l *fakeLister) ListAllMints(ctx context.Context) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.mints...), nil
}
func (l *fakeLister) PurgeMint(ctx context.Context, mint string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.purged = append(l.purged, mint)
	return nil
}

func TestEnrol_IsIdempotent(t *testing.T) {
	store := cache.NewMemStore()
	defer store.Close()
	eng := &fakeUpdater{}
	s := New(store, &fakeLister{}, &fakeValidator{valid: true}, eng, 50*time.Millisecond, 2, time.Hour)
	s.Start(context.Background())
	defer s.Stop()

	if err := s.Enrol(context.Background(), "mintA"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Enrol(context.Background(), "mintA"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	jobs := s.ListRepeating()
	count := 0
	for _, j := range jobs {
		if j == jobID("mintA") {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one job for mintA, found %d among %v", count, jobs)
	}
}

func TestEnrol_RejectsInvalidMint(t *testing.T) {
	store := cache.NewMemStore()
	defer store.Close()
	s := New(store, &fakeLister{}, &fakeValidator{valid: false}, &fakeUpdater{}, time.Second, 2, time.Hour)

	err := s.Enrol(context.Background(), "badMint")
	if err == nil {
		t.Fatal("expected an error for an invalid mint")
	}
	if _, ok := errs.AsInvalidMint(err); !ok {
		t.Fatalf("expected InvalidMint, got %v", err)
	}
}

func TestBanAndRemove_PurgesAndStopsJob(t *testing.T) {
	store := cache.NewMemStore()
	defer store.Close()
	lister := &fakeLister{}
	eng := &fakeUpdater{}
	s := New(store, lister, &fakeValidator{valid: true}, eng, 50*time.Millisecond, 2, time.Hour)
	s.Start(context.Background())
	defer s.Stop()

	if err := s.Enrol(context.Background(), "mintA"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s.BanAndRemove(context.Background(), "mintA")

	if len(s.ListRepeating()) != 0 {
		t.Fatal("expected no repeating jobs after ban")
	}
	if _, banned := store.Get(bannedKey("mintA")); !banned {
		t.Fatal("expected ban key to be set")
	}
	lister.mu.Lock()
	purged := len(lister.purged) > 0
	lister.mu.Unlock()
	if !purged {
		t.Fatal("expected mint to be purged")
	}
}

func TestBootstrap_SkipsBannedMints(t *testing.T) {
	store := cache.NewMemStore()
	defer store.Close()
	store.SetWithTTL(bannedKey("bannedMint"), []byte("1"), time.Hour)
	lister := &fakeLister{mints: []string{"bannedMint", "okMint"}}
	s := New(store, lister, &fakeValidator{valid: true}, &fakeUpdater{}, time.Second, 2, time.Hour)
	defer s.Stop()

	if err := s.Bootstrap(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	jobs := s.ListRepeating()
	for _, j := range jobs {
		if j == jobID("bannedMint") {
			t.Fatal("expected banned mint to not be re-enrolled")
		}
	}
}
