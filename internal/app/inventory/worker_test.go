package inventory

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YelzhanWeb/qristal-sync/internal/adapter/logger"
	"github.com/YelzhanWeb/qristal-sync/internal/config"
	"github.com/YelzhanWeb/qristal-sync/internal/domain"
	"github.com/YelzhanWeb/qristal-sync/internal/interfaces"
	"github.com/YelzhanWeb/qristal-sync/internal/testutil"
)

type workerFixture struct {
	clock  *testutil.Clock
	store  *testutil.MemStore
	pub    *testutil.RecordingPublisher
	worker *Worker
}

func newWorkerFixture(t *testing.T, maxAttempts int) *workerFixture {
	t.Helper()

	clock := testutil.NewClock(t0)
	store := testutil.NewMemStore(clock.Now)
	pub := &testutil.RecordingPublisher{}
	log := discardLogger()

	w := NewWorker(store, NewEffector(store, log), pub, log, config.OutboxConfig{
		PollInterval: time.Hour,
		BatchSize:    10,
		MaxAttempts:  maxAttempts,
		RetryBackoff: 30 * time.Second,
		Lease:        time.Minute,
	})
	w.now = clock.Now

	seedCafe(store)
	return &workerFixture{clock: clock, store: store, pub: pub, worker: w}
}

func taskByID(t *testing.T, store *testutil.MemStore, id string) domain.DeductionTask {
	t.Helper()
	for _, task := range store.Tasks() {
		if task.ID == id {
			return task
		}
	}
	t.Fatalf("task %s not found", id)
	return domain.DeductionTask{}
}

func TestRunOnce_CompletesTasksAndBroadcastsPerBranch(t *testing.T) {
	f := newWorkerFixture(t, 1)
	seedOrder(f.store, "order-1", domain.OrderItem{ID: "item-1", ProductID: "coffee", Quantity: 1})
	seedOrder(f.store, "order-2", domain.OrderItem{ID: "item-2", ProductID: "latte", Quantity: 1})

	f.store.AddOrder(domain.Order{ID: "order-b", BranchID: "branch-b", UserID: "user-9", Status: domain.OrderStatusOpen})
	f.store.AddTask(domain.NewDeductionTask("task-order-b", "branch-b", "order-b", t0))

	done, err := f.worker.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, done)

	for _, task := range f.store.Tasks() {
		assert.Equal(t, domain.DeductionStatusDone, task.Status, task.ID)
		assert.Equal(t, 1, task.Attempts, task.ID)
	}

	updates := f.pub.InventoryUpdates()
	require.Len(t, updates, 2, "one snapshot per branch")
	assert.Equal(t, branchID, updates[0].BranchID)
	assert.Len(t, updates[0].Message.Items, 3)
	assert.Equal(t, "branch-b", updates[1].BranchID)
	assert.Empty(t, updates[1].Message.Items)
	assert.NotNil(t, updates[1].Message.Items)

	again, err := f.worker.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, again)
	assert.Len(t, f.pub.InventoryUpdates(), 2, "nothing completed, nothing broadcast")
}

func TestRunOnce_SingleAttemptFailsImmediately(t *testing.T) {
	f := newWorkerFixture(t, 1)
	f.store.AddTask(domain.NewDeductionTask("task-ghost", branchID, "ghost", t0))

	done, err := f.worker.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, done)

	task := taskByID(t, f.store, "task-ghost")
	assert.Equal(t, domain.DeductionStatusFailed, task.Status)
	require.NotNil(t, task.LastError)
	assert.Contains(t, *task.LastError, "not found")
	assert.Empty(t, f.pub.InventoryUpdates())
}

func TestRunOnce_RetriesWithBackoffThenFails(t *testing.T) {
	f := newWorkerFixture(t, 3)
	ctx := context.Background()
	f.store.AddTask(domain.NewDeductionTask("task-late", branchID, "order-late", t0))

	_, err := f.worker.RunOnce(ctx)
	require.NoError(t, err)
	task := taskByID(t, f.store, "task-late")
	assert.Equal(t, domain.DeductionStatusPending, task.Status)
	assert.Equal(t, 1, task.Attempts)
	assert.Equal(t, t0.Add(30*time.Second), task.NextAttemptAt)

	// not due yet
	done, err := f.worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, done)
	assert.Equal(t, 1, taskByID(t, f.store, "task-late").Attempts)

	now := f.clock.Advance(30 * time.Second)
	_, err = f.worker.RunOnce(ctx)
	require.NoError(t, err)
	task = taskByID(t, f.store, "task-late")
	assert.Equal(t, domain.DeductionStatusPending, task.Status)
	assert.Equal(t, 2, task.Attempts)
	assert.Equal(t, now.Add(60*time.Second), task.NextAttemptAt, "backoff grows with attempts")

	f.clock.Advance(time.Minute)
	_, err = f.worker.RunOnce(ctx)
	require.NoError(t, err)
	task = taskByID(t, f.store, "task-late")
	assert.Equal(t, domain.DeductionStatusFailed, task.Status)
	assert.Equal(t, 3, task.Attempts)

	failed, err := f.worker.FailedDeductions(ctx, branchID, "")
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "task-late", failed[0].ID)

	// the order shows up late; an operator requeues the task
	f.store.AddOrder(domain.Order{ID: "order-late", BranchID: branchID, UserID: "user-1", Status: domain.OrderStatusOpen})
	f.store.AddOrderItem(domain.OrderItem{ID: "item-late", OrderID: "order-late", ProductID: "coffee", Quantity: 2})
	require.NoError(t, f.worker.RetryDeduction(ctx, branchID, "task-late"))

	requeued := taskByID(t, f.store, "task-late")
	assert.Equal(t, domain.DeductionStatusPending, requeued.Status)
	assert.Zero(t, requeued.Attempts)
	assert.Nil(t, requeued.LastError)

	done, err = f.worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, done)
	assert.True(t, f.store.Stock("beans").Equal(d("964")))

	failed, err = f.worker.FailedDeductions(ctx, branchID, "")
	require.NoError(t, err)
	assert.Empty(t, failed)
	assert.NotNil(t, failed)
}

func TestRunOnce_ReclaimsExpiredLease(t *testing.T) {
	f := newWorkerFixture(t, 3)
	task := seedOrder(f.store, "order-1", domain.OrderItem{ID: "item-1", ProductID: "coffee", Quantity: 1})
	task.Status = domain.DeductionStatusProcessing
	task.Attempts = 1
	task.NextAttemptAt = t0.Add(-time.Second)
	f.store.AddTask(task)

	done, err := f.worker.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, done)

	task = taskByID(t, f.store, task.ID)
	assert.Equal(t, domain.DeductionStatusDone, task.Status)
	assert.Equal(t, 2, task.Attempts)
}

func TestRunOnce_LeavesLiveClaimsAlone(t *testing.T) {
	f := newWorkerFixture(t, 3)
	task := seedOrder(f.store, "order-1", domain.OrderItem{ID: "item-1", ProductID: "coffee", Quantity: 1})
	task.Status = domain.DeductionStatusProcessing
	task.NextAttemptAt = t0.Add(time.Minute)
	f.store.AddTask(task)

	done, err := f.worker.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, done)
	assert.True(t, f.store.Stock("beans").Equal(d("1000")))
}

// stalledRepo lets another worker take the task over while recipes are still
// loading, then fails the deduction.
type stalledRepo struct {
	interfaces.InventoryRepository
	takeover func()
}

func (r stalledRepo) RecipeFor(context.Context, string) ([]domain.RecipeIngredient, error) {
	r.takeover()
	return nil, errors.New("recipe lookup timed out")
}

func TestRunOnce_LateFailureKeepsTakenOverTaskDone(t *testing.T) {
	f := newWorkerFixture(t, 3)
	ctx := context.Background()
	seedOrder(f.store, "order-1", domain.OrderItem{ID: "item-1", ProductID: "coffee", Quantity: 1})

	var logs bytes.Buffer
	log := logger.NewWithWriter("inventory-test", &logs)
	slow := NewWorker(f.store, NewEffector(stalledRepo{
		InventoryRepository: f.store,
		takeover: func() {
			f.clock.Advance(2 * time.Minute)
			done, err := f.worker.RunOnce(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, done)
		},
	}, log), f.pub, log, f.worker.cfg)
	slow.now = f.clock.Now

	done, err := slow.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, done)

	task := taskByID(t, f.store, "task-order-1")
	assert.Equal(t, domain.DeductionStatusDone, task.Status)
	assert.Equal(t, 2, task.Attempts)
	assert.Nil(t, task.LastError)
	assert.True(t, f.store.Stock("beans").Equal(d("982")))
	assert.Contains(t, logs.String(), `"action":"deduction_claim_lost"`)

	f.clock.Advance(time.Hour)
	done, err = f.worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, done)
	assert.True(t, f.store.Stock("beans").Equal(d("982")), "order deducted once")
}

type panickingRepo struct {
	interfaces.InventoryRepository
}

func (panickingRepo) RecipeFor(context.Context, string) ([]domain.RecipeIngredient, error) {
	panic("recipe table corrupted")
}

func TestRunOnce_RecoversFromPanics(t *testing.T) {
	f := newWorkerFixture(t, 1)
	seedOrder(f.store, "order-1", domain.OrderItem{ID: "item-1", ProductID: "coffee", Quantity: 1})

	log := discardLogger()
	f.worker.effector = NewEffector(panickingRepo{InventoryRepository: f.store}, log)

	done, err := f.worker.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, done)

	task := taskByID(t, f.store, "task-order-1")
	assert.Equal(t, domain.DeductionStatusFailed, task.Status)
	require.NotNil(t, task.LastError)
	assert.Contains(t, *task.LastError, "recipe table corrupted")
}

func TestRunOnce_PublishFailureDoesNotUndoDeduction(t *testing.T) {
	f := newWorkerFixture(t, 1)
	f.pub.Err = errors.New("channel closed")
	seedOrder(f.store, "order-1", domain.OrderItem{ID: "item-1", ProductID: "coffee", Quantity: 1})

	done, err := f.worker.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, done)
	assert.Equal(t, domain.DeductionStatusDone, taskByID(t, f.store, "task-order-1").Status)
}

func TestRetryDeduction_Errors(t *testing.T) {
	f := newWorkerFixture(t, 1)
	seedOrder(f.store, "order-1")

	err := f.worker.RetryDeduction(context.Background(), branchID, "missing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	err = f.worker.RetryDeduction(context.Background(), "branch-b", "task-order-1")
	assert.True(t, errors.Is(err, domain.ErrNotFound), "other branches cannot see the task")

	err = f.worker.RetryDeduction(context.Background(), branchID, "task-order-1")
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument), "only failed tasks can be retried")
}

func TestRun_WakesAndStops(t *testing.T) {
	f := newWorkerFixture(t, 1)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error, 1)
	go func() { stopped <- f.worker.Run(ctx) }()

	seedOrder(f.store, "order-1", domain.OrderItem{ID: "item-1", ProductID: "coffee", Quantity: 1})
	require.NoError(t, f.worker.RequestDeductions(ctx, branchID, []string{"order-1"}))
	f.worker.Wake()

	require.Eventually(t, func() bool {
		return taskByID(t, f.store, "task-order-1").Status == domain.DeductionStatusDone
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-stopped:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}
