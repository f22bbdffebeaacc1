package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/truthstake/internal/metrics"
)

const (
	// DefaultQueueSize: число пачек событий, ожидающих доставки одному получателю.
	DefaultQueueSize = 256
	deliveryTimeout  = 30 * time.Second
)

var (
	// ErrQueueFull возвращается, когда очередь получателя заполнена и пачка отброшена.
	ErrQueueFull    = errors.New("event queue full")
	errAsyncStopped = errors.New("event dispatcher not running")
)

// Async принимает события без ожидания и доставляет их получателю в фоновой
// горутине. При заполненной очереди пачка отбрасывается и учитывается в метриках,
// поэтому Publish никогда не ждёт сети.
type Async struct {
	name    string
	next    Publisher
	queue   chan []Event
	logger  *zap.Logger
	timeout time.Duration

	cancel   context.CancelFunc
	drainCtx context.Context
	done     chan struct{}
	start    sync.Once
	stop     sync.Once
	running  atomic.Bool
}

// NewAsync оборачивает получателя next очередью на size пачек.
func NewAsync(name string, next Publisher, size int, logger *zap.Logger) *Async {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Async{
		name:    name,
		next:    next,
		queue:   make(chan []Event, size),
		logger:  logger.With(zap.String("sink", name)),
		timeout: deliveryTimeout,
		done:    make(chan struct{}),
	}
}

// Start запускает фоновую доставку.
func (a *Async) Start(ctx context.Context) {
	a.start.Do(func() {
		runCtx, cancel := context.WithCancel(ctx)
		a.cancel = cancel
		a.running.Store(true)
		go a.run(runCtx)
	})
}

// Stop прекращает приём событий и ждёт доставки уже принятых, но не дольше ctx.
func (a *Async) Stop(ctx context.Context) error {
	var err error
	a.stop.Do(func() {
		a.running.Store(false)
		if a.cancel == nil {
			return
		}
		a.drainCtx = ctx
		a.cancel()
		select {
		case <-a.done:
		case <-ctx.Done():
			err = ctx.Err()
		}
	})
	return err
}

// Publish ставит пачку в очередь и сразу возвращается.
func (a *Async) Publish(_ context.Context, evs ...Event) error {
	if len(evs) == 0 {
		return nil
	}
	if !a.running.Load() {
		return errAsyncStopped
	}

	batch := append([]Event(nil), evs...)
	select {
	case a.queue <- batch:
		return nil
	default:
		metrics.EventDeliveries.WithLabelValues(a.name, "dropped").Add(float64(len(evs)))
		return ErrQueueFull
	}
}

func (a *Async) run(ctx context.Context) {
	defer close(a.done)
	for {
		select {
		case <-ctx.Done():
			a.drain(a.drainCtx)
			return
		case batch := <-a.queue:
			a.deliver(ctx, batch)
		}
	}
}

func (a *Async) drain(ctx context.Context) {
	// Остаток очереди доставляется в пределах контекста Stop.
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case batch := <-a.queue:
			a.deliver(ctx, batch)
		default:
			return
		}
	}
}

func (a *Async) deliver(ctx context.Context, batch []Event) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	if err := a.next.Publish(ctx, batch...); err != nil {
		metrics.EventDeliveries.WithLabelValues(a.name, "failed").Add(float64(len(batch)))
		a.logger.Warn("event delivery failed", zap.Int("count", len(batch)), zap.Error(err))
		return
	}
	metrics.EventDeliveries.WithLabelValues(a.name, "delivered").Add(float64(len(batch)))
}
