package services

import "sync"

// Broadcaster fans live events out to the SSE streams a user has open.
type Broadcaster struct {
	mu      sync.Mutex
	clients map[uint]map[chan string]struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		clients: make(map[uint]map[chan string]struct{}),
	}
}

// Register opens a stream for userID. The caller must Unregister it.
func (b *Broadcaster) Register(userID uint) chan string {
	ch := make(chan string, 8)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.clients[userID] == nil {
		b.clients[userID] = make(map[chan string]struct{})
	}
	b.clients[userID][ch] = struct{}{}
	return ch
}

// Unregister removes and closes ch if it is still registered.
func (b *Broadcaster) Unregister(userID uint, ch chan string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.drop(userID, ch)
}

func (b *Broadcaster) drop(userID uint, ch chan string) {
	set := b.clients[userID]
	if _, ok := set[ch]; !ok {
		return
	}
	delete(set, ch)
	close(ch)
	if len(set) == 0 {
		delete(b.clients, userID)
	}
}

// Publish sends message to every stream of userID without waiting. A
// stream whose buffer is full is dropped; its client reconnects and
// reloads from the REST endpoint.
func (b *Broadcaster) Publish(userID uint, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.clients[userID] {
		select {
		case ch <- message:
		default:
			b.drop(userID, ch)
		}
	}
}

// Connected reports how many streams userID has open.
func (b *Broadcaster) Connected(userID uint) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients[userID])
}
