package authcore

import (
	"context"
	"sync"
	"sync/atomic"
)

// notifyDispatcher decouples notification delivery from the security
// paths that produce them: producers never block on a slow subscriber.
type notifyDispatcher struct {
	cfg       NotifyConfig
	sink      NotificationSink
	ch        chan Notification
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once

	subMu     sync.Mutex
	subs      map[uint64]*Subscription
	nextSubID uint64
}

func newNotifyDispatcher(cfg NotifyConfig, sink NotificationSink) *notifyDispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &notifyDispatcher{
		cfg:  cfg,
		sink: sink,
		ch:   make(chan Notification, cfg.BufferSize),
		done: make(chan struct{}),
		subs: map[uint64]*Subscription{},
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *notifyDispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case n := <-d.ch:
			d.deliver(n)
		case <-d.done:
			for {
				select {
				case n := <-d.ch:
					d.deliver(n)
				default:
					return
				}
			}
		}
	}
}

func (d *notifyDispatcher) deliver(n Notification) {
	d.sink.Emit(context.Background(), n)

	d.subMu.Lock()
	defer d.subMu.Unlock()
	for _, sub := range d.subs {
		select {
		case sub.ch <- n:
		default:
			d.dropped.Add(1)
		}
	}
}

func (d *notifyDispatcher) emit(ctx context.Context, n Notification) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.cfg.DropIfFull {
		select {
		case d.ch <- n:
		case <-d.done:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.ch <- n:
	case <-ctx.Done():
	case <-d.done:
	}
}

func (d *notifyDispatcher) subscribe(buffer int) *Subscription {
	if d == nil {
		return nil
	}
	if buffer <= 0 {
		buffer = 1
	}

	d.subMu.Lock()
	defer d.subMu.Unlock()

	d.nextSubID++
	id := d.nextSubID
	sub := &Subscription{
		ch: make(chan Notification, buffer),
	}
	sub.cancel = func() {
		d.subMu.Lock()
		defer d.subMu.Unlock()
		if _, ok := d.subs[id]; ok {
			delete(d.subs, id)
			close(sub.ch)
		}
	}
	d.subs[id] = sub
	return sub
}

func (d *notifyDispatcher) close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()

		d.subMu.Lock()
		defer d.subMu.Unlock()
		for id, sub := range d.subs {
			delete(d.subs, id)
			close(sub.ch)
		}
	})
}

func (d *notifyDispatcher) droppedCount() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Subscription is a revocable handle on the notification stream.
type Subscription struct {
	ch         chan Notification
	cancel     func()
	cancelOnce sync.Once
}

// Notifications returns the subscriber's channel. It is closed when
// the subscription is canceled or the core shuts down.
func (s *Subscription) Notifications() <-chan Notification {
	if s == nil {
		return nil
	}
	return s.ch
}

// Cancel revokes the subscription. Safe to call more than once.
func (s *Subscription) Cancel() {
	if s == nil || s.cancel == nil {
		return
	}
	s.cancelOnce.Do(s.cancel)
}
