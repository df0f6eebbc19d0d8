// Package scheduler implements the Scheduler (§4.H): a durable,
// per-mint repeating job keyed "price-<mint>", drained by a fixed
// worker pool. Grounded on the teacher's internal/ingester/service.go
// worker-pool-with-semaphore pattern (here: N workers over a shared job
// channel) and internal/ingester/network_poller.go's ticker-driven poll
// loop (immediate fire, then `for { select { <-ctx.Done(), <-ticker.C } }`).
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"splpulse/internal/cache"
	"splpulse/internal/errs"
	"splpulse/internal/models"
	"splpulse/internal/validator"
)

const sweepInterval = 10 * time.Minute

// updater is the subset of the Pricing Engine the scheduler drives.
type updater interface {
	UpdateMint(ctx context.Context, mint string) (models.PriceSnapshot, error)
}

// mintValidator is the subset of the Token Validator used for
// enrol-time validation and bootstrap reconciliation.
type mintValidator interface {
	Validate(ctx context.Context, mint string) (validator.Result, error)
}

// mintLister is the subset of the Persistent Store used by bootstrap.
type mintLister interface {
	ListAllMints(ctx context.Context) ([]string, error)
	PurgeMint(ctx context.Context, mint string) error
}

type repeatingJob struct {
	mint string
	stop chan struct{}
}

// Scheduler is the Scheduler (§4.H).
type Scheduler struct {
	mu   sync.Mutex
	jobs map[string]*repeatingJob // keyed "price-<mint>"

	jobCh chan string
	store cache.Store
	repo  mintLister
	valid mintValidator
	eng   updater

	period      time.Duration
	workerCount int
	banTTL      time.Duration

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New constructs a Scheduler. period is the repeating-job cadence
// (§6.5 POLL_MS); workerCount is the fixed pool size (§6.5 WORKER_COUNT,
// default 10); banTTL bounds how long a banned mint is refused (§6.5
// BAN_TTL_HOURS, default 24h).
func New(store cache.Store, repo mintLister, v mintValidator, eng updater, period time.Duration, workerCount int, banTTL time.Duration) *Scheduler {
	if workerCount <= 0 {
		workerCount = 10
	}
	if period <= 0 {
		period = time.Second
	}
	return &Scheduler{
		jobs:        make(map[string]*repeatingJob),
		jobCh:       make(chan string, workerCount*4),
		store:       store,
		repo:        repo,
		valid:       v,
		eng:         eng,
		period:      period,
		workerCount: workerCount,
		banTTL:      banTTL,
	}
}

func jobID(mint string) string    { return "price-" + mint }
func bannedKey(mint string) string { return "invalid_token:" + mint }

// Start launches the worker pool and the periodic ban sweep. It returns
// once both are running; callers should call Bootstrap separately.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}

	s.wg.Add(1)
	go s.sweepLoop(ctx)
}

// Stop cancels the worker pool and every repeating job's ticker
// goroutine, then waits for them to exit.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Lock()
	for id, j := range s.jobs {
		close(j.stop)
		delete(s.jobs, id)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Scheduler) worker(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case mint := <-s.jobCh:
			s.runTick(ctx, mint)
		}
	}
}

func (s *Scheduler) runTick(ctx context.Context, mint string) {
	if _, banned := s.store.Get(bannedKey(mint)); banned {
		s.Obliterate(mint)
		return
	}

	tickCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	_, err := s.eng.UpdateMint(tickCtx, mint)
	if err == nil {
		return
	}

	var invalid *errs.InvalidMint
	if errors.As(err, &invalid) {
		s.BanAndRemove(ctx, mint)
		return
	}
	log.Printf("[scheduler] tick failed for %s: %v", mint, err)
}

// Enrol validates the mint, removes any previous traces of its job
// (making enrolment idempotent), then adds one repeating job (§4.H).
func (s *Scheduler) Enrol(ctx context.Context, mint string) error {
	result, err := s.valid.Validate(ctx, mint)
	if err != nil {
		return err
	}
	if !result.Valid {
		return &errs.InvalidMint{Mint: mint, Reason: result.Reason}
	}

	s.Obliterate(mint)
	s.addRepeating(mint)
	return nil
}

func (s *Scheduler) addRepeating(mint string) {
	id := jobID(mint)
	job := &repeatingJob{mint: mint, stop: make(chan struct{})}

	s.mu.Lock()
	s.jobs[id] = job
	s.mu.Unlock()

	s.wg.Add(1)
	go s.runRepeating(job)
}

func (s *Scheduler) runRepeating(job *repeatingJob) {
	defer s.wg.Done()

	s.enqueue(job.mint)

	ticker := time.NewTicker(s.period)
	defer ticker.Stop()
	for {
		select {
		case <-job.stop:
			return
		case <-ticker.C:
			s.enqueue(job.mint)
		}
	}
}

func (s *Scheduler) enqueue(mint string) {
	select {
	case s.jobCh <- mint:
	default:
		log.Printf("[scheduler] job queue full, dropping tick for %s", mint)
	}
}

// Obliterate removes the repeatable entry and any queue-internal keys
// for mint. It completes even if some internal lookups fail (§4.H).
func (s *Scheduler) Obliterate(mint string) {
	id := jobID(mint)

	s.mu.Lock()
	job, ok := s.jobs[id]
	if ok {
		delete(s.jobs, id)
	}
	s.mu.Unlock()

	if ok {
		close(job.stop)
	}

	keys := s.store.ScanByPrefix(fmt.Sprintf("job:%s:", id))
	if len(keys) > 0 {
		s.store.Delete(keys...)
	}
}

// BanAndRemove sets the ban key with a bounded TTL, obliterates the
// job, and purges the mint from the persistent store (§4.H).
func (s *Scheduler) BanAndRemove(ctx context.Context, mint string) {
	s.store.SetWithTTL(bannedKey(mint), []byte("1"), s.banTTL)
	s.Obliterate(mint)
	if err := s.repo.PurgeMint(ctx, mint); err != nil {
		log.Printf("[scheduler] purge failed for banned mint %s: %v", mint, err)
	}
}

// ListRepeating returns the job IDs currently scheduled.
func (s *Scheduler) ListRepeating() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.jobs))
	for id := range s.jobs {
		out = append(out, id)
	}
	return out
}

// Bootstrap reconciles process-start state: mints with a LatestState
// row are re-enrolled unless banned (§4.H).
func (s *Scheduler) Bootstrap(ctx context.Context) error {
	mints, err := s.repo.ListAllMints(ctx)
	if err != nil {
		return err
	}
	for _, mint := range mints {
		if _, banned := s.store.Get(bannedKey(mint)); banned {
			continue
		}
		if err := s.Enrol(ctx, mint); err != nil {
			log.Printf("[scheduler] bootstrap enrol failed for %s: %v", mint, err)
		}
	}
	return nil
}

// sweepLoop periodically re-runs ban-driven purges so a mint banned
// mid-flight (e.g. by an admin action) does not keep a stale row.
func (s *Scheduler) sweepLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Scheduler) sweep(ctx context.Context) {
	mints, err := s.repo.ListAllMints(ctx)
	if err != nil {
		log.Printf("[scheduler] sweep: list mints failed: %v", err)
		return
	}
	for _, mint := range mints {
		if _, banned := s.store.Get(bannedKey(mint)); banned {
			s.BanAndRemove(ctx, mint)
		}
	}
}
