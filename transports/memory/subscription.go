package memory

import (
	"sync"

	"github.com/glimte/mmate-rpc/rpc"
)

type subscription struct {
	broker *Broker
	queue  *queue

	mu      sync.Mutex
	pending []rpc.Envelope
	signal  chan struct{}

	done     chan struct{}
	lost     chan error
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func newSubscription(b *Broker, q *queue) *subscription {
	return &subscription{
		broker: b,
		queue:  q,
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
		lost:   make(chan error, 1),
	}
}

func (s *subscription) start(handler func(rpc.Envelope), backlog []rpc.Envelope) {
	s.mu.Lock()
	s.pending = append(s.pending, backlog...)
	s.mu.Unlock()
	s.notify()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-s.done:
				return
			case <-s.signal:
			}

			for {
				s.mu.Lock()
				if len(s.pending) == 0 {
					s.mu.Unlock()
					break
				}
				msg := s.pending[0]
				s.pending = s.pending[1:]
				s.mu.Unlock()

				select {
				case <-s.done:
					return
				default:
				}
				handler(msg)
			}
		}
	}()
}

func (s *subscription) deliver(msg rpc.Envelope) {
	s.mu.Lock()
	s.pending = append(s.pending, msg)
	s.mu.Unlock()
	s.notify()
}

func (s *subscription) notify() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// stop ends the consumer. A non-nil err is reported through Lost.
func (s *subscription) stop(err error) {
	s.stopOnce.Do(func() {
		if err != nil {
			s.lost <- err
		}
		close(s.done)
		s.broker.detach(s.queue, s)
	})
}

// Cancel implements rpc.Subscription
func (s *subscription) Cancel() error {
	s.stop(nil)
	s.wg.Wait()
	return nil
}

// Lost implements rpc.Subscription
func (s *subscription) Lost() <-chan error {
	return s.lost
}
