package transfer_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mwantia/chunkfs/data"
	"github.com/mwantia/chunkfs/store"
	"github.com/mwantia/chunkfs/store/memory"
	"github.com/mwantia/chunkfs/transfer"
)

func testPolicy() transfer.RetryPolicy {
	return transfer.RetryPolicy{
		Attempts:  3,
		BaseDelay: time.Millisecond,
		MaxDelay:  5 * time.Millisecond,
	}
}

func newTestOrchestrator(t *testing.T, ms *memory.MemoryStore) *transfer.Orchestrator {
	t.Helper()

	orch := transfer.NewOrchestrator(ms, nil, 2, 8, testPolicy())
	orch.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		orch.Drain(ctx)
	})

	return orch
}

func TestOrchestrator_Upload(t *testing.T) {
	ctx := t.Context()
	ms := memory.NewMemoryStore()
	orch := newTestOrchestrator(t, ms)

	chunk := data.VirtualChunkID{Inode: "ino", Index: 0}
	payload := []byte("chunk payload")

	pending, err := orch.EnqueueUpload(ctx, chunk, payload)
	if err != nil {
		t.Fatalf("EnqueueUpload failed: %v", err)
	}

	handle, err := pending.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if handle == "" {
		t.Fatal("Expected a non-empty handle")
	}

	got, err := ms.Get(ctx, handle)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("Expected %q, got %q", payload, got)
	}
}

func TestOrchestrator_UploadRetriesTransient(t *testing.T) {
	ctx := t.Context()
	ms := memory.NewMemoryStore()
	ms.FailPut = func(attempt int) error {
		if attempt <= 2 {
			return store.Transient("put", errors.New("throttled"))
		}
		return nil
	}
	orch := newTestOrchestrator(t, ms)

	chunk := data.VirtualChunkID{Inode: "ino", Index: 0}
	pending, err := orch.EnqueueUpload(ctx, chunk, []byte("payload"))
	if err != nil {
		t.Fatalf("EnqueueUpload failed: %v", err)
	}

	if _, err := pending.Wait(ctx); err != nil {
		t.Fatalf("Expected success after retries, got %v", err)
	}

	puts, _, _ := ms.Counters()
	if puts != 3 {
		t.Errorf("Expected 3 put attempts, got %d", puts)
	}
}

func TestOrchestrator_UploadPermanentFailure(t *testing.T) {
	ctx := t.Context()
	ms := memory.NewMemoryStore()
	ms.FailPut = func(attempt int) error {
		return store.Permanent("put", errors.New("rejected"))
	}
	orch := newTestOrchestrator(t, ms)

	chunk := data.VirtualChunkID{Inode: "ino", Index: 0}
	pending, err := orch.EnqueueUpload(ctx, chunk, []byte("payload"))
	if err != nil {
		t.Fatalf("EnqueueUpload failed: %v", err)
	}

	_, err = pending.Wait(ctx)
	if err == nil {
		t.Fatal("Expected upload to fail")
	}

	var terr *data.TransferError
	if !errors.As(err, &terr) {
		t.Fatalf("Expected TransferError, got %T", err)
	}
	if terr.Transient {
		t.Error("Permanent failure flagged as transient")
	}
	if terr.Attempts != 1 {
		t.Errorf("Expected 1 attempt for permanent failure, got %d", terr.Attempts)
	}

	puts, _, _ := ms.Counters()
	if puts != 1 {
		t.Errorf("Expected no retry on permanent failure, got %d puts", puts)
	}
}

func TestOrchestrator_UploadExhaustsRetries(t *testing.T) {
	ctx := t.Context()
	ms := memory.NewMemoryStore()
	ms.FailPut = func(attempt int) error {
		return store.Transient("put", errors.New("still throttled"))
	}
	orch := newTestOrchestrator(t, ms)

	chunk := data.VirtualChunkID{Inode: "ino", Index: 0}
	pending, err := orch.EnqueueUpload(ctx, chunk, []byte("payload"))
	if err != nil {
		t.Fatalf("EnqueueUpload failed: %v", err)
	}

	_, err = pending.Wait(ctx)
	var terr *data.TransferError
	if !errors.As(err, &terr) {
		t.Fatalf("Expected TransferError, got %v", err)
	}
	if terr.Attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", terr.Attempts)
	}
	if !terr.Transient {
		t.Error("Exhausted transient failure should stay flagged transient")
	}
}

func TestOrchestrator_MultipleWaiters(t *testing.T) {
	ctx := t.Context()
	ms := memory.NewMemoryStore()
	orch := newTestOrchestrator(t, ms)

	chunk := data.VirtualChunkID{Inode: "ino", Index: 0}
	pending, err := orch.EnqueueUpload(ctx, chunk, []byte("payload"))
	if err != nil {
		t.Fatalf("EnqueueUpload failed: %v", err)
	}

	type result struct {
		handle string
		err    error
	}

	results := make(chan result, 2)
	for i := 0; i < 2; i++ {
		go func() {
			handle, err := pending.Wait(ctx)
			results <- result{handle, err}
		}()
	}

	first := <-results
	second := <-results
	if first.err != nil || second.err != nil {
		t.Fatalf("Wait failed: %v / %v", first.err, second.err)
	}
	if first.handle != second.handle {
		t.Errorf("Waiters observed different handles: %q vs %q", first.handle, second.handle)
	}
}

func TestOrchestrator_Download(t *testing.T) {
	ctx := t.Context()
	ms := memory.NewMemoryStore()
	orch := newTestOrchestrator(t, ms)

	payload := []byte("stored data")
	handle, err := ms.Put(ctx, payload)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	chunk := data.VirtualChunkID{Inode: "ino", Index: 0}
	got, err := orch.Download(ctx, chunk, handle)
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("Expected %q, got %q", payload, got)
	}
}

func TestOrchestrator_DeleteFailureBecomesOrphan(t *testing.T) {
	ctx := t.Context()
	ms := memory.NewMemoryStore()

	handle, err := ms.Put(ctx, []byte("doomed"))
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	fail := true
	ms.FailDelete = func(h string) error {
		if fail {
			return store.Permanent("delete", errors.New("outage"))
		}
		return nil
	}

	orch := newTestOrchestrator(t, ms)
	orch.ScheduleDelete(handle)

	deadline := time.Now().Add(2 * time.Second)
	for len(orch.Orphans()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Failed delete never landed in the orphan list")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Outage over: the reaper pass clears the orphan.
	fail = false
	orch.RetryOrphans(ctx)

	if len(orch.Orphans()) != 0 {
		t.Errorf("Expected empty orphan list, got %v", orch.Orphans())
	}
	if ms.Len() != 0 {
		t.Errorf("Expected object removed, %d remain", ms.Len())
	}
}

func TestOrchestrator_RestoreOrphans(t *testing.T) {
	ctx := t.Context()
	ms := memory.NewMemoryStore()

	handle, err := ms.Put(ctx, []byte("leftover"))
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	orch := newTestOrchestrator(t, ms)
	orch.RestoreOrphans([]string{handle, ""})

	if len(orch.Orphans()) != 1 {
		t.Fatalf("Expected 1 orphan, got %d", len(orch.Orphans()))
	}

	orch.RetryOrphans(ctx)
	if ms.Len() != 0 {
		t.Errorf("Expected restored orphan to be reaped, %d objects remain", ms.Len())
	}
}

func TestOrchestrator_DrainSettlesQueuedWork(t *testing.T) {
	ctx := t.Context()
	ms := memory.NewMemoryStore()
	ms.PutDelay = 10 * time.Millisecond
	orch := newTestOrchestrator(t, ms)

	var pendings []*transfer.Pending
	for i := 0; i < 6; i++ {
		pending, err := orch.EnqueueUpload(ctx, data.VirtualChunkID{Inode: "ino", Index: i}, []byte{byte(i)})
		if err != nil {
			t.Fatalf("EnqueueUpload %d failed: %v", i, err)
		}
		pendings = append(pendings, pending)
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if abandoned := orch.Drain(drainCtx); abandoned != 0 {
		t.Fatalf("Expected full drain, %d jobs abandoned", abandoned)
	}

	for i, pending := range pendings {
		if _, err := pending.Wait(ctx); err != nil {
			t.Errorf("Upload %d failed after drain: %v", i, err)
		}
	}

	if ms.Len() != 6 {
		t.Errorf("Expected 6 objects after drain, got %d", ms.Len())
	}
}

func TestOrchestrator_EnqueueAfterDrain(t *testing.T) {
	ctx := t.Context()
	ms := memory.NewMemoryStore()

	orch := transfer.NewOrchestrator(ms, nil, 1, 4, testPolicy())
	orch.Start()
	orch.Drain(ctx)

	if _, err := orch.EnqueueUpload(ctx, data.VirtualChunkID{Inode: "ino", Index: 0}, []byte("late")); err == nil {
		t.Fatal("Expected enqueue to fail after drain")
	}
}

func TestPending_SettlementWinsOverExpiredContext(t *testing.T) {
	ctx := t.Context()
	ms := memory.NewMemoryStore()
	orch := newTestOrchestrator(t, ms)

	chunk := data.VirtualChunkID{Inode: "ino", Index: 0}
	pending, err := orch.EnqueueUpload(ctx, chunk, []byte("payload"))
	if err != nil {
		t.Fatalf("EnqueueUpload failed: %v", err)
	}

	// Let the upload settle before waiting with a dead context.
	if _, err := pending.Wait(ctx); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if !pending.Settled() {
		t.Fatal("Expected pending to report settled")
	}

	expired, cancel := context.WithCancel(ctx)
	cancel()

	handle, err := pending.Wait(expired)
	if err != nil {
		t.Fatalf("Expected the settled result despite the dead context, got %v", err)
	}
	if handle == "" {
		t.Error("Expected a non-empty handle")
	}
}

func TestPending_UnsettledExpiredContext(t *testing.T) {
	ctx := t.Context()
	ms := memory.NewMemoryStore()
	ms.PutDelay = 100 * time.Millisecond
	orch := newTestOrchestrator(t, ms)

	pending, err := orch.EnqueueUpload(ctx, data.VirtualChunkID{Inode: "ino", Index: 0}, []byte("slow"))
	if err != nil {
		t.Fatalf("EnqueueUpload failed: %v", err)
	}

	short, cancel := context.WithTimeout(ctx, 5*time.Millisecond)
	defer cancel()

	if _, err := pending.Wait(short); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected DeadlineExceeded, got %v", err)
	}
	if pending.Settled() {
		t.Error("Expected pending to still be in flight")
	}

	// The upload itself is unaffected by the waiter's deadline.
	if _, err := pending.Wait(ctx); err != nil {
		t.Errorf("Upload failed: %v", err)
	}
}
