// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

// Package sim provides a deterministic simulated worker cluster for tests.
// Workers resolve submissions in virtual time ordered by an event heap, so a
// test can make completion order differ from submission order without real
// concurrency or sleeps. Like the remote workers this library targets, a
// simulated worker queues fresh job submissions but refuses a parameter
// update while the prior result on that channel is unread, which lets tests
// verify drain-before-update behavior.
package sim

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"

	"github.com/addrummond/heap"
	"github.com/gammazero/deque"

	vpu "github.com/petenewcomb/vpu-go"
)

// A LatencyFunc assigns a virtual execution duration to the n-th payload
// received by the given worker.
type LatencyFunc func(worker, seq int) int64

// A RespondFunc produces the raw result payload for a request payload
// received by the given worker.
type RespondFunc func(worker int, request []byte) []byte

// Cluster is a virtual-time simulation of a pool of single-slot workers.
type Cluster struct {
	now     int64
	seq     int
	events  heap.Heap[event, heap.Min]
	latency LatencyFunc
	respond RespondFunc
	workers []*Worker

	// CompletionOrder records job identifiers in virtual completion order,
	// one entry per resolved future.
	CompletionOrder []string
	// Accepts records the worker index of every accepted payload, in
	// arrival order across the whole cluster.
	Accepts []int
	// Log records every transition, in order, for debugging failed runs.
	Log []string
}

type event struct {
	Time int64
	Seq  int
	Fut  *Future
}

func (a *event) Cmp(b *event) int {
	if c := cmp.Compare(a.Time, b.Time); c != 0 {
		return c
	}
	return cmp.Compare(a.Seq, b.Seq)
}

// NewCluster creates a simulated cluster of n workers. A nil latency makes
// every request take one virtual time unit; a nil respond echoes a canonical
// counts payload built by [CannedCounts].
func NewCluster(n int, latency LatencyFunc, respond RespondFunc) *Cluster {
	if latency == nil {
		latency = func(int, int) int64 { return 1 }
	}
	if respond == nil {
		respond = func(int, []byte) []byte { return CannedCounts(map[string]int{"00": 1}, 0.001) }
	}
	c := &Cluster{latency: latency, respond: respond}
	for i := 0; i < n; i++ {
		c.workers = append(c.workers, &Worker{cluster: c, index: i})
	}
	return c
}

// Workers returns the cluster's workers in index order.
func (c *Cluster) Workers() []*Worker {
	return c.workers
}

// Pool wraps the cluster's workers into a fixed [vpu.Directory], with
// devices named vpu-0, vpu-1, and so on.
func (c *Cluster) Pool() vpu.StaticDirectory {
	pool := make(vpu.StaticDirectory, len(c.workers))
	for i, w := range c.workers {
		pool[i] = &vpu.Worker{
			Device:    vpu.Device{Name: fmt.Sprintf("vpu-%d", i), Target: "simulator"},
			Transport: w,
		}
	}
	return pool
}

// A Worker is a simulated single-slot remote worker implementing
// [vpu.Transport]: SendJob and SendUpdate return futures resolved in virtual
// time.
type Worker struct {
	cluster *Cluster
	index   int
	seq     int
	unread  *Future
	jobID   string
	inbox   deque.Deque[*Future] // accepted payloads, oldest first
}

var _ vpu.Transport = (*Worker)(nil)

// AcceptedJobs returns the job identifier of every payload this worker has
// accepted, in arrival order.
func (w *Worker) AcceptedJobs() []string {
	ids := make([]string, w.inbox.Len())
	for i := range ids {
		ids[i] = w.inbox.At(i).jobID
	}
	return ids
}

// SendJob accepts a full job description payload. Fresh submissions always
// queue; only parameter updates are subject to the unread-result refusal.
func (w *Worker) SendJob(ctx context.Context, payload []byte) (vpu.Future, error) {
	var msg struct {
		JobID string `json:"job_id"`
	}
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("sim worker %d: bad job payload: %w", w.index, err)
	}
	w.jobID = msg.JobID
	return w.accept(payload)
}

// SendUpdate accepts a parameters-only update for the worker's current job.
// It refuses the update if the prior result on this channel is unread.
func (w *Worker) SendUpdate(ctx context.Context, payload []byte) (vpu.Future, error) {
	if w.jobID == "" {
		return nil, fmt.Errorf("sim worker %d: update before any job submission", w.index)
	}
	if w.unread != nil && !w.unread.read {
		return nil, fmt.Errorf("sim worker %d: refused update while a prior result is unread", w.index)
	}
	return w.accept(payload)
}

func (w *Worker) accept(payload []byte) (*Future, error) {
	c := w.cluster
	fut := &Future{worker: w, jobID: w.jobID, request: payload}
	w.unread = fut
	w.inbox.PushBack(fut)
	c.seq++
	heap.PushOrderable(&c.events, event{
		Time: c.now + c.latency(w.index, w.seq),
		Seq:  c.seq,
		Fut:  fut,
	})
	w.seq++
	c.Accepts = append(c.Accepts, w.index)
	c.Log = append(c.Log, fmt.Sprintf("worker %d accepted payload for job %s", w.index, w.jobID))
	return fut, nil
}

// A Future resolves to a raw result payload in virtual time.
type Future struct {
	worker   *Worker
	jobID    string
	request  []byte
	resolved bool
	read     bool
	result   []byte
	getCalls int
}

// GetCalls reports how many times Get has been invoked, for memoization
// assertions.
func (f *Future) GetCalls() int {
	return f.getCalls
}

// Get advances virtual time until this future's completion event has fired,
// resolving every earlier event along the way, and returns the result
// payload.
func (f *Future) Get(ctx context.Context) ([]byte, error) {
	f.getCalls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := f.worker.cluster
	for !f.resolved {
		ev, ok := heap.PopOrderable(&c.events)
		if !ok {
			return nil, fmt.Errorf("sim: future for job %s has no pending completion event", f.jobID)
		}
		c.now = ev.Time
		ev.Fut.resolved = true
		ev.Fut.result = c.respond(ev.Fut.worker.index, ev.Fut.request)
		c.CompletionOrder = append(c.CompletionOrder, ev.Fut.jobID)
		c.Log = append(c.Log, fmt.Sprintf("t=%d job %s completed on worker %d", c.now, ev.Fut.jobID, ev.Fut.worker.index))
	}
	f.read = true
	return f.result, nil
}

// CannedCounts builds a canonical nested-family result payload.
func CannedCounts(counts map[string]int, timeTaken float64) []byte {
	payload, err := json.Marshal(map[string]any{
		"results": []any{
			map[string]any{
				"data":       map[string]any{"counts": counts},
				"time_taken": timeTaken,
			},
		},
	})
	if err != nil {
		panic(err)
	}
	return payload
}
