package call

import (
	"sync"

	"github.com/opd-ai/toxcall/signaling"
)

// IceCandidateQueue holds remote candidates that arrived before the remote
// description was applied, in arrival order.
type IceCandidateQueue struct {
	candidates []signaling.IceCandidate
	mu         sync.Mutex
}

// NewIceCandidateQueue creates an empty queue.
func NewIceCandidateQueue() *IceCandidateQueue {
	return &IceCandidateQueue{}
}

// Push appends a candidate.
func (q *IceCandidateQueue) Push(c signaling.IceCandidate) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.candidates = append(q.candidates, c)
}

// Drain returns all queued candidates in arrival order and empties the queue.
func (q *IceCandidateQueue) Drain() []signaling.IceCandidate {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.candidates
	q.candidates = nil
	return out
}

// Len returns the number of queued candidates.
func (q *IceCandidateQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.candidates)
}
