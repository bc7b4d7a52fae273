package browser

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/use-agent/listingd/models"
	"github.com/use-agent/listingd/page"
)

var errSessionClose = errors.New("session teardown failed")

type (
	launchFunc  func(Options) (*rod.Browser, func(), error)
	sessionFunc func(*instance, Options) (*Session, error)
)

// Pool hands out sessions on a bounded set of browser processes.
//
// With PoolSize > 0 up to PoolSize browsers stay warm between requests and each
// is checked out by exactly one session at a time. With PoolSize == 0 every
// session gets a freshly launched browser that is closed on release, and at
// most MaxSessions run at once. Pool is safe for concurrent use.
type Pool struct {
	opts    Options
	launch  launchFunc
	session sessionFunc

	slots  chan struct{} // one token per concurrent session
	idle   chan *instance
	mu     sync.Mutex
	all    map[int64]*instance
	nextID atomic.Int64
	active atomic.Int32

	stopOnce sync.Once
	stopped  chan struct{}
}

// NewPool creates a pool and pre-launches PoolSize browsers. Failed pre-launches
// are logged; they are retried on demand.
func NewPool(opts Options) *Pool {
	p := newPool(opts, launch)
	for i := 0; i < opts.PoolSize; i++ {
		in, err := p.create()
		if err != nil {
			slog.Warn("browser pool: failed to pre-launch browser", "error", err)
			continue
		}
		p.idle <- in
	}
	slog.Info("browser pool created", "poolSize", opts.PoolSize, "maxSessions", cap(p.slots))
	go p.maintain(30 * time.Second)
	return p
}

func newPool(opts Options, fn launchFunc) *Pool {
	limit := opts.PoolSize
	if limit <= 0 {
		limit = opts.MaxSessions
	}
	if limit <= 0 {
		limit = 4
	}
	return &Pool{
		opts:    opts,
		launch:  fn,
		session: newSession,
		slots:   make(chan struct{}, limit),
		idle:    make(chan *instance, limit),
		all:     make(map[int64]*instance),
		stopped: make(chan struct{}),
	}
}

// Acquire blocks until a session slot is free or ctx is done, then opens a
// session. Errors are *models.ExtractError (TIMEOUT or BROWSER_CRASH).
func (p *Pool) Acquire(ctx context.Context) (*Session, error) {
	in, err := p.checkout(ctx)
	if err != nil {
		return nil, err
	}
	s, err := p.session(in, p.opts)
	if err != nil {
		p.discard(in, err)
		return nil, models.NewExtractError(models.ErrCodeBrowserCrash, "failed to open browser session", err)
	}
	return s, nil
}

// Release tears down s and returns its browser to the pool. ok reports
// whether the request using it succeeded; repeated failures retire the browser.
// A browser whose session cannot be torn down is closed at once.
// Release is safe to call from a deferred function during a panic.
func (p *Pool) Release(s *Session, ok bool) {
	if s == nil {
		return
	}
	if !s.close() {
		p.discard(s.inst, errSessionClose)
		return
	}
	p.checkin(s.inst, ok)
}

func (p *Pool) checkout(ctx context.Context) (*instance, error) {
	select {
	case <-p.stopped:
		return nil, models.NewExtractError(models.ErrCodeBrowserCrash, "browser pool is shut down", nil)
	default:
	}

	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, models.NewExtractError(models.ErrCodeTimeout, "no browser session available", ctx.Err())
	case <-p.stopped:
		return nil, models.NewExtractError(models.ErrCodeBrowserCrash, "browser pool is shut down", nil)
	}

	var in *instance
	select {
	case in = <-p.idle:
	default:
		var err error
		in, err = p.create()
		if err != nil {
			<-p.slots
			return nil, models.NewExtractError(models.ErrCodeBrowserCrash, "failed to launch browser", err)
		}
	}
	p.active.Add(1)
	return in, nil
}

func (p *Pool) checkin(in *instance, ok bool) {
	defer func() { <-p.slots }()
	p.active.Add(-1)

	if ok {
		in.recordSuccess()
	} else {
		in.recordFailure()
	}

	select {
	case <-p.stopped:
		p.destroy(in)
		return
	default:
	}

	if p.opts.PoolSize <= 0 {
		p.destroy(in)
		return
	}
	if in.shouldRetire() {
		slog.Debug("browser pool: retiring browser", "id", in.id)
		p.destroy(in)
		return
	}
	p.park(in)
}

// discard closes a browser that can no longer open or tear down sessions
// and frees its slot. The next checkout launches a replacement.
func (p *Pool) discard(in *instance, cause error) {
	defer func() { <-p.slots }()
	p.active.Add(-1)
	slog.Warn("browser pool: discarding broken browser", "id", in.id, "error", cause)
	p.destroy(in)
}

// park returns in to the idle set, closing it when the set is already full
// or the pool is shut down.
func (p *Pool) park(in *instance) {
	select {
	case <-p.stopped:
		p.destroy(in)
		return
	default:
	}

	select {
	case p.idle <- in:
	default:
		p.destroy(in)
		return
	}

	// Close may have drained idle between the check and the send.
	select {
	case <-p.stopped:
		p.drainIdle()
	default:
	}
}

func (p *Pool) drainIdle() {
	for {
		select {
		case in := <-p.idle:
			p.destroy(in)
		default:
			return
		}
	}
}

func (p *Pool) create() (*instance, error) {
	b, kill, err := p.launch(p.opts)
	if err != nil {
		return nil, err
	}
	in := &instance{
		id:      p.nextID.Add(1),
		browser: b,
		kill:    kill,
		created: time.Now(),
	}
	p.mu.Lock()
	p.all[in.id] = in
	p.mu.Unlock()
	return in, nil
}

func (p *Pool) destroy(in *instance) {
	p.mu.Lock()
	delete(p.all, in.id)
	p.mu.Unlock()
	in.close()
}

// maintain retires idle browsers that aged out, so a quiet pool does not
// keep serving from a stale process.
func (p *Pool) maintain(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopped:
			return
		case <-ticker.C:
			p.retireIdle()
		}
	}
}

func (p *Pool) retireIdle() {
	n := len(p.idle)
	for i := 0; i < n; i++ {
		select {
		case in := <-p.idle:
			if in.shouldRetire() {
				slog.Debug("browser pool: retiring idle browser", "id", in.id)
				p.destroy(in)
				continue
			}
			p.park(in)
		default:
			return
		}
	}
}

// Stats returns a snapshot of the pool state.
func (p *Pool) Stats() models.PoolStats {
	p.mu.Lock()
	live := len(p.all)
	p.mu.Unlock()
	return models.PoolStats{
		MaxSessions:    cap(p.slots),
		ActiveSessions: int(p.active.Load()),
		IdleBrowsers:   len(p.idle),
		LiveBrowsers:   live,
	}
}

// Close stops maintenance and terminates every browser process. Sessions still
// checked out are closed when they are released.
func (p *Pool) Close() {
	p.stopOnce.Do(func() {
		slog.Info("browser pool shutting down")
		close(p.stopped)
		p.drainIdle()
		slog.Info("browser pool shutdown complete")
	})
}

// Open acquires a session and returns it as a page.Page together with its
// release func. The release func must be called exactly once.
func (p *Pool) Open(ctx context.Context) (page.Page, func(ok bool), error) {
	s, err := p.Acquire(ctx)
	if err != nil {
		return nil, nil, err
	}
	return s, func(ok bool) { p.Release(s, ok) }, nil
}
