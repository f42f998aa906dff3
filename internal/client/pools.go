package client

import (
	"hash/fnv"
	"sync"
)

// lanePool is the processing plane: a fixed set of single-goroutine
// lanes. Work for one key always lands on the same lane, so records of a
// topic are processed in push order while distinct topics proceed in
// parallel.
type lanePool struct {
	lanes []chan func()
	wg    sync.WaitGroup

	// mu is held for reading across every lane send, so close cannot
	// close a channel while a submit is mid-send.
	mu     sync.RWMutex
	closed bool
}

const laneQueueDepth = 256

func newLanePool(lanes int) *lanePool {
	if lanes < 1 {
		lanes = 1
	}
	p := &lanePool{lanes: make([]chan func(), lanes)}
	for i := range p.lanes {
		ch := make(chan func(), laneQueueDepth)
		p.lanes[i] = ch
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for task := range ch {
				task()
			}
		}()
	}
	return p
}

// submit enqueues a task on the lane owning the key, blocking when the
// lane is saturated. Submitting after close reports false.
func (p *lanePool) submit(key string, task func()) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	p.lanes[laneIndex(key, len(p.lanes))] <- task
	return true
}

// barrier blocks until every task submitted to the key's lane before the
// call has run.
func (p *lanePool) barrier(key string) {
	done := make(chan struct{})
	if !p.submit(key, func() { close(done) }) {
		return
	}
	<-done
}

// close drains all lanes and stops their goroutines.
func (p *lanePool) close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for _, ch := range p.lanes {
		close(ch)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func laneIndex(key string, lanes int) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(lanes))
}
