// Package transfer drains chunk uploads, downloads and deletions against
// the remote object store through a fixed worker pool over a bounded
// queue. Backpressure is explicit: a full queue blocks enqueue.
package transfer

import (
	"context"
	"sync"
	"time"

	"github.com/mwantia/chunkfs/data"
	"github.com/mwantia/chunkfs/log"
	"github.com/mwantia/chunkfs/store"
)

type jobKind int

const (
	jobUpload jobKind = iota
	jobDownload
	jobDelete
)

type job struct {
	kind    jobKind
	chunk   data.VirtualChunkID
	payload []byte // upload
	handle  string // download, delete
	ctx     context.Context
	done    chan jobResult
}

type jobResult struct {
	handle  string
	payload []byte
	err     error
}

// Pending tracks one in-flight upload. The chunk manager collects one per
// queued chunk and waits for all of them at flush time. Wait is safe for
// multiple concurrent waiters.
type Pending struct {
	Chunk   data.VirtualChunkID
	settled chan struct{}
	res     jobResult
}

func newPending(chunk data.VirtualChunkID, done chan jobResult) *Pending {
	p := &Pending{
		Chunk:   chunk,
		settled: make(chan struct{}),
	}

	go func() {
		p.res = <-done
		close(p.settled)
	}()

	return p
}

// Wait blocks until the upload settles and returns the assigned handle
// alongside the upload error. A context expiring before settlement returns
// the context error; callers distinguish the two cases via Settled.
func (p *Pending) Wait(ctx context.Context) (string, error) {
	select {
	case <-p.settled:
	case <-ctx.Done():
		// A settlement racing the deadline still wins.
		select {
		case <-p.settled:
		default:
			return "", ctx.Err()
		}
	}

	return p.res.handle, p.res.err
}

// Settled reports whether the upload has completed, successfully or not.
func (p *Pending) Settled() bool {
	select {
	case <-p.settled:
		return true
	default:
		return false
	}
}

// Orchestrator owns the worker pool. Workers run from Start until Drain;
// each unit of work retries transient failures with exponential backoff up
// to the policy's attempt limit.
type Orchestrator struct {
	mu       sync.Mutex
	log      *log.Logger
	store    store.VirtualObjectStore
	queue    chan *job
	quit     chan struct{}
	workers  int
	retry    RetryPolicy
	wg       sync.WaitGroup
	started  bool
	draining bool

	orphanMu sync.Mutex
	orphans  map[string]struct{}
}

func NewOrchestrator(st store.VirtualObjectStore, logger *log.Logger, workers, queueDepth int, retry RetryPolicy) *Orchestrator {
	if logger == nil {
		logger = log.Discard()
	}
	if workers <= 0 {
		workers = 4
	}
	if queueDepth <= 0 {
		queueDepth = workers * 4
	}
	if retry.Attempts <= 0 {
		retry = DefaultRetryPolicy()
	}

	return &Orchestrator{
		log:     logger,
		store:   st,
		queue:   make(chan *job, queueDepth),
		quit:    make(chan struct{}),
		workers: workers,
		retry:   retry,
		orphans: make(map[string]struct{}),
	}
}

// Start launches the worker pool. Calling Start twice is a no-op.
func (o *Orchestrator) Start() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.started {
		return
	}
	o.started = true

	for i := 0; i < o.workers; i++ {
		o.wg.Add(1)
		go o.worker(i)
	}

	o.log.Debug("started %d workers (queue depth %d)", o.workers, cap(o.queue))
}

// EnqueueUpload queues a chunk payload for upload and returns a Pending
// tracker. Blocks while the queue is full.
func (o *Orchestrator) EnqueueUpload(ctx context.Context, chunk data.VirtualChunkID, payload []byte) (*Pending, error) {
	j := &job{
		kind:    jobUpload,
		chunk:   chunk,
		payload: payload,
		// The upload itself is decoupled from the write operation that
		// produced it; only the enqueue blocks on the caller's context.
		ctx:  context.Background(),
		done: make(chan jobResult, 1),
	}

	if err := o.enqueue(ctx, j); err != nil {
		return nil, err
	}

	return newPending(chunk, j.done), nil
}

// Download fetches a chunk payload through the worker pool, blocking until
// it settles.
func (o *Orchestrator) Download(ctx context.Context, chunk data.VirtualChunkID, handle string) ([]byte, error) {
	j := &job{
		kind:   jobDownload,
		chunk:  chunk,
		handle: handle,
		ctx:    ctx,
		done:   make(chan jobResult, 1),
	}

	if err := o.enqueue(ctx, j); err != nil {
		return nil, err
	}

	select {
	case res := <-j.done:
		return res.payload, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ScheduleDelete queues a remote handle for deletion, decoupled from the
// caller. A delete that exhausts its retries lands in the orphan list and
// is retried by the reaper.
func (o *Orchestrator) ScheduleDelete(handle string) {
	if handle == "" {
		return
	}

	j := &job{
		kind:   jobDelete,
		handle: handle,
		ctx:    context.Background(),
		done:   make(chan jobResult, 1),
	}

	// Deletion is a background follow-up; never block the caller on a
	// full queue.
	go func() {
		if err := o.enqueue(context.Background(), j); err != nil {
			o.addOrphan(handle)
		}
	}()
}

func (o *Orchestrator) enqueue(ctx context.Context, j *job) error {
	o.mu.Lock()
	if o.draining {
		o.mu.Unlock()
		return data.ErrNotMounted
	}
	o.mu.Unlock()

	select {
	case o.queue <- j:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) worker(id int) {
	defer o.wg.Done()

	for {
		select {
		case j := <-o.queue:
			o.process(j)
		case <-o.quit:
			// Drain phase: settle whatever is still queued, then exit.
			for {
				select {
				case j := <-o.queue:
					o.process(j)
				default:
					return
				}
			}
		}
	}
}

func (o *Orchestrator) process(j *job) {
	switch j.kind {
	case jobUpload:
		handle, err := o.upload(j)
		j.done <- jobResult{handle: handle, err: err}
	case jobDownload:
		payload, err := o.download(j)
		j.done <- jobResult{payload: payload, err: err}
	case jobDelete:
		o.delete(j)
	}
}

func (o *Orchestrator) upload(j *job) (string, error) {
	var handle string
	attempts, err := o.attempt(j.ctx, func() error {
		var putErr error
		handle, putErr = o.store.Put(j.ctx, j.payload)
		return putErr
	})
	if err != nil {
		o.log.Error("upload failed for chunk %s after %d attempts: %v", j.chunk, attempts, err)
		return "", data.UploadFailed(err, j.chunk, store.IsTransient(err), attempts)
	}

	o.log.Debug("uploaded chunk %s (%d bytes) as %s", j.chunk, len(j.payload), handle)
	return handle, nil
}

func (o *Orchestrator) download(j *job) ([]byte, error) {
	var payload []byte
	attempts, err := o.attempt(j.ctx, func() error {
		var getErr error
		payload, getErr = o.store.Get(j.ctx, j.handle)
		return getErr
	})
	if err != nil {
		o.log.Error("download failed for chunk %s after %d attempts: %v", j.chunk, attempts, err)
		return nil, data.DownloadFailed(err, j.chunk, store.IsTransient(err), attempts)
	}

	o.log.Debug("downloaded chunk %s (%d bytes) from %s", j.chunk, len(payload), j.handle)
	return payload, nil
}

func (o *Orchestrator) delete(j *job) {
	_, err := o.attempt(j.ctx, func() error {
		err := o.store.Delete(j.ctx, j.handle)
		if err == data.ErrNotExist {
			// Already gone, nothing to clean up.
			return nil
		}
		return err
	})
	if err != nil {
		o.log.Warn("delete failed for handle %s, keeping as orphan: %v", j.handle, err)
		o.addOrphan(j.handle)
		return
	}

	o.log.Debug("deleted handle %s", j.handle)
}

// attempt runs fn under the retry policy and returns the number of tries
// made alongside the final error.
func (o *Orchestrator) attempt(ctx context.Context, fn func() error) (int, error) {
	var err error
	for attempt := 1; attempt <= o.retry.Attempts; attempt++ {
		err = fn()
		if err == nil {
			return attempt, nil
		}

		if !store.IsTransient(err) {
			return attempt, err
		}

		if attempt < o.retry.Attempts {
			delay := o.retry.Backoff(attempt)
			o.log.Debug("transient failure (attempt %d/%d), retrying in %s: %v",
				attempt, o.retry.Attempts, delay, err)

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return attempt, ctx.Err()
			}
		}
	}

	return o.retry.Attempts, err
}

// Drain stops intake and waits for queued work to settle, bounded by ctx.
// Returns the number of jobs abandoned past the deadline.
func (o *Orchestrator) Drain(ctx context.Context) int {
	o.mu.Lock()
	if !o.started || o.draining {
		o.mu.Unlock()
		return 0
	}
	o.draining = true
	o.mu.Unlock()

	close(o.quit)

	finished := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return 0
	case <-ctx.Done():
		abandoned := len(o.queue)
		o.log.Warn("drain deadline exceeded, abandoning %d queued jobs", abandoned)
		return abandoned
	}
}

func (o *Orchestrator) addOrphan(handle string) {
	o.orphanMu.Lock()
	defer o.orphanMu.Unlock()

	o.orphans[handle] = struct{}{}
}

// Orphans returns the handles whose deletion has not succeeded yet.
func (o *Orchestrator) Orphans() []string {
	o.orphanMu.Lock()
	defer o.orphanMu.Unlock()

	handles := make([]string, 0, len(o.orphans))
	for handle := range o.orphans {
		handles = append(handles, handle)
	}

	return handles
}

// RestoreOrphans seeds the orphan list, used when recovering a metadata
// snapshot after a restart.
func (o *Orchestrator) RestoreOrphans(handles []string) {
	o.orphanMu.Lock()
	defer o.orphanMu.Unlock()

	for _, handle := range handles {
		if handle != "" {
			o.orphans[handle] = struct{}{}
		}
	}
}

// RetryOrphans re-attempts deletion of every orphaned handle directly
// against the store, outside the worker pool. Called by the background
// reaper and safe to call at any time.
func (o *Orchestrator) RetryOrphans(ctx context.Context) {
	for _, handle := range o.Orphans() {
		err := o.store.Delete(ctx, handle)
		if err != nil && err != data.ErrNotExist {
			o.log.Debug("orphan %s still failing: %v", handle, err)
			continue
		}

		o.orphanMu.Lock()
		delete(o.orphans, handle)
		o.orphanMu.Unlock()

		o.log.Debug("reaped orphan handle %s", handle)
	}
}
