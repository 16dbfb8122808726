package pushchannel

import (
	"sync"

	"TradeSync/internal/domain/models"
)

// bus fans events out to any number of listeners. Each listener owns an
// unbounded queue so a slow consumer never blocks the read loop.
type bus struct {
	mu   sync.Mutex
	next int
	subs map[int]*listener
}

func newBus() *bus {
	return &bus{subs: make(map[int]*listener)}
}

func (b *bus) subscribe() (<-chan models.Event, func()) {
	l := newListener()

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = l
	b.mu.Unlock()

	go l.pump()

	var once sync.Once
	return l.out, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			l.close()
		})
	}
}

func (b *bus) publish(ev models.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, l := range b.subs {
		l.push(ev)
	}
}

func (b *bus) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

type listener struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []models.Event
	closed bool
	done   chan struct{}
	out    chan models.Event
}

func newListener() *listener {
	l := &listener{
		done: make(chan struct{}),
		out:  make(chan models.Event),
	}
	l.cond = sync.NewCond(&l.mu)
	return l
}

func (l *listener) push(ev models.Event) {
	l.mu.Lock()
	if !l.closed {
		l.queue = append(l.queue, ev)
		l.cond.Signal()
	}
	l.mu.Unlock()
}

func (l *listener) close() {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		l.queue = nil
		close(l.done)
		l.cond.Broadcast()
	}
	l.mu.Unlock()
}

func (l *listener) pump() {
	defer close(l.out)
	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.closed {
			l.cond.Wait()
		}
		if l.closed {
			l.mu.Unlock()
			return
		}
		ev := l.queue[0]
		l.queue[0] = models.Event{}
		l.queue = l.queue[1:]
		l.mu.Unlock()

		select {
		case l.out <- ev:
		case <-l.done:
			return
		}
	}
}
