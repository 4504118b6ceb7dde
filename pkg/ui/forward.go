package ui

import (
	"sync"

	"github.com/go-go-golems/streamchat/pkg/session"
)

// forwarder hands snapshots to send on its own goroutine, in the order they were pushed.
// push never blocks, so a subscriber running inside Update cannot wait on the event loop.
type forwarder struct {
	send func(session.State)

	mu    sync.Mutex
	queue []session.State

	wake chan struct{}
	done chan struct{}
	once sync.Once
}

func newForwarder(send func(session.State)) *forwarder {
	return &forwarder{
		send: send,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

func (f *forwarder) push(s session.State) {
	f.mu.Lock()
	f.queue = append(f.queue, s)
	f.mu.Unlock()

	select {
	case f.wake <- struct{}{}:
	default:
	}
}

func (f *forwarder) run() {
	for {
		select {
		case <-f.done:
			return
		case <-f.wake:
		}

		f.mu.Lock()
		batch := f.queue
		f.queue = nil
		f.mu.Unlock()

		for _, s := range batch {
			select {
			case <-f.done:
				return
			default:
			}
			f.send(s)
		}
	}
}

func (f *forwarder) stop() {
	f.once.Do(func() { close(f.done) })
}
