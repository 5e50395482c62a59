// Package dispatch – per-key serialization lanes.
//
// A laneGroup runs submitted jobs with two guarantees: jobs sharing a key
// execute in submission order and never concurrently, and total concurrency
// across all keys is bounded by the worker limit. Each active key owns a
// mutex-guarded FIFO drained by one goroutine; the goroutine exits when its
// queue empties, so idle keys cost nothing.
package dispatch

import "sync"

// laneGroup executes jobs with per-key ordering and bounded global
// concurrency. Safe for concurrent use.
type laneGroup struct {
	sem chan struct{} // bounds jobs executing across all lanes

	mu    sync.Mutex
	lanes map[int64][]func()
	wg    sync.WaitGroup
}

// newLaneGroup creates a group running at most workers jobs concurrently.
func newLaneGroup(workers int) *laneGroup {
	if workers < 1 {
		workers = 1
	}
	return &laneGroup{
		sem:   make(chan struct{}, workers),
		lanes: make(map[int64][]func()),
	}
}

// Submit enqueues job on key's lane. Jobs for one key run strictly in
// Submit order; jobs for distinct keys carry no ordering relative to one
// another.
func (g *laneGroup) Submit(key int64, job func()) {
	g.mu.Lock()
	queue, active := g.lanes[key]
	g.lanes[key] = append(queue, job)
	if !active {
		// Empty-but-present slice means a drainer is already running for
		// this key; a missing entry means we must start one.
		g.wg.Add(1)
		go g.drain(key)
	}
	g.mu.Unlock()
}

// drain runs key's queue to exhaustion, then removes the lane.
func (g *laneGroup) drain(key int64) {
	defer g.wg.Done()
	for {
		g.mu.Lock()
		queue := g.lanes[key]
		if len(queue) == 0 {
			delete(g.lanes, key)
			g.mu.Unlock()
			return
		}
		job := queue[0]
		g.lanes[key] = queue[1:]
		g.mu.Unlock()

		g.sem <- struct{}{}
		job()
		<-g.sem
	}
}

// Wait blocks until every submitted job has finished and all lanes are
// drained. Submit must not be called concurrently with or after Wait.
func (g *laneGroup) Wait() {
	g.wg.Wait()
}
