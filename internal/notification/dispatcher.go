package notification

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/tphakala/emotion-go/internal/errors"
	"github.com/tphakala/emotion-go/internal/logger"
)

const (
	defaultQueueSize  = 32
	defaultMaxRetries = 2
	defaultRetryDelay = 500 * time.Millisecond
)

// DispatcherConfig tunes a Dispatcher.
type DispatcherConfig struct {
	// Cooldown suppresses repeats of the same notification type. Zero
	// disables debouncing.
	Cooldown  time.Duration
	QueueSize int
	// MaxRetries is the number of extra attempts per provider. Zero means
	// the default; negative disables retries.
	MaxRetries int
	RetryDelay time.Duration
	Timeout    time.Duration
}

// DispatcherStats counts dispatcher outcomes.
type DispatcherStats struct {
	Sent       uint64 `json:"sent"`
	Failed     uint64 `json:"failed"`
	Suppressed uint64 `json:"suppressed"`
	Dropped    uint64 `json:"dropped"`
}

// Dispatcher fans notifications out to push providers from a single worker
// goroutine so slow backends never block the caller.
type Dispatcher struct {
	providers []PushProvider
	cfg       DispatcherConfig
	log       logger.Logger
	cooldown  *cache.Cache
	queue     chan *Notification

	sent       atomic.Uint64
	failed     atomic.Uint64
	suppressed atomic.Uint64
	dropped    atomic.Uint64

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewDispatcher validates providers and drops the ones that fail.
func NewDispatcher(cfg DispatcherConfig, log logger.Logger, providers ...PushProvider) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	} else if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	d := &Dispatcher{
		cfg:   cfg,
		log:   log.Module("notification"),
		queue: make(chan *Notification, cfg.QueueSize),
		done:  make(chan struct{}),
	}
	if cfg.Cooldown > 0 {
		d.cooldown = cache.New(cfg.Cooldown, 2*cfg.Cooldown)
	}
	for _, p := range providers {
		if err := p.ValidateConfig(); err != nil {
			d.log.Error("push provider config invalid",
				logger.String("provider", p.GetName()),
				logger.Error(err))
			continue
		}
		d.providers = append(d.providers, p)
	}
	return d
}

// Start launches the delivery worker. Calls after the first, or after
// Stop, are no-ops.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.stopped {
		return
	}
	d.started = true
	ctx, d.cancel = context.WithCancel(ctx)
	go d.run(ctx)
}

// Stop halts the worker and waits for it to exit. Queued notifications are
// discarded.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	started := d.started
	if started {
		d.cancel()
	}
	d.mu.Unlock()
	if started {
		<-d.done
	}
}

// Submit enqueues n unless its type is cooling down or the queue is full.
// It reports whether n was accepted.
func (d *Dispatcher) Submit(n *Notification) bool {
	if n == nil || len(d.providers) == 0 {
		return false
	}
	if d.cooldown != nil {
		// Add fails while the key is still live
		if err := d.cooldown.Add(n.CooldownKey(), n.Timestamp, cache.DefaultExpiration); err != nil {
			d.suppressed.Add(1)
			d.log.Debug("notification suppressed by cooldown",
				logger.String("type", string(n.Type)))
			return false
		}
	}
	select {
	case d.queue <- n.Clone():
		return true
	default:
		d.dropped.Add(1)
		d.log.Warn("notification queue full, dropping",
			logger.String("type", string(n.Type)))
		return false
	}
}

// Stats returns a snapshot of the counters.
func (d *Dispatcher) Stats() DispatcherStats {
	return DispatcherStats{
		Sent:       d.sent.Load(),
		Failed:     d.failed.Load(),
		Suppressed: d.suppressed.Load(),
		Dropped:    d.dropped.Load(),
	}
}

func (d *Dispatcher) run(ctx context.Context) {
	defer close(d.done)
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-d.queue:
			d.deliver(ctx, n)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, n *Notification) {
	for _, p := range d.providers {
		if !p.SupportsType(n.Type) {
			continue
		}
		if err := d.sendWithRetry(ctx, p, n); err != nil {
			d.failed.Add(1)
			d.log.Error("push delivery failed",
				logger.String("provider", p.GetName()),
				logger.String("type", string(n.Type)),
				logger.Error(err))
			continue
		}
		d.sent.Add(1)
		d.log.Debug("push delivered",
			logger.String("provider", p.GetName()),
			logger.String("type", string(n.Type)))
	}
}

func (d *Dispatcher) sendWithRetry(ctx context.Context, p PushProvider, n *Notification) error {
	var lastErr error
	for attempt := 0; attempt <= d.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return errors.Join(lastErr, ctx.Err())
			case <-time.After(d.cfg.RetryDelay):
			}
		}
		sendCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
		lastErr = p.Send(sendCtx, n)
		cancel()
		if lastErr == nil {
			return nil
		}
	}
	return lastErr
}
