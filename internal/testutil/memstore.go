package testutil

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/YelzhanWeb/qristal-sync/internal/domain"
	"github.com/YelzhanWeb/qristal-sync/internal/interfaces"
)

// MemStore is an in-memory stand-in for the PostgreSQL adapter. It keeps the
// same branch, foreign key and conflict rules so service tests exercise the
// real reconciliation paths.
type MemStore struct {
	mu    sync.Mutex
	st    *state
	clock func() time.Time

	failBegin  error
	failCommit error
	failLedger error
	failQuery  error
}

type state struct {
	categories *table[domain.Category]
	products   *table[domain.Product]
	users      *table[domain.User]
	seating    *table[domain.SeatingTable]
	orders     *table[domain.Order]
	shifts     *table[domain.Shift]

	items     map[string]domain.OrderItem
	payments  map[string]domain.Payment
	auditLogs map[string]domain.AuditLog
	inventory map[string]domain.InventoryItem
	recipes   map[string][]domain.RecipeIngredient

	tasks     map[string]domain.DeductionTask
	taskOrder []string
	syncLogs  []domain.SyncLogEntry
}

func (st *state) clone() *state {
	return &state{
		categories: st.categories.clone(),
		products:   st.products.clone(),
		users:      st.users.clone(),
		seating:    st.seating.clone(),
		orders:     st.orders.clone(),
		shifts:     st.shifts.clone(),
		items:      maps.Clone(st.items),
		payments:   maps.Clone(st.payments),
		auditLogs:  maps.Clone(st.auditLogs),
		inventory:  maps.Clone(st.inventory),
		recipes:    maps.Clone(st.recipes),
		tasks:      maps.Clone(st.tasks),
		taskOrder:  slices.Clone(st.taskOrder),
		syncLogs:   slices.Clone(st.syncLogs),
	}
}

// table holds one branch-scoped entity type.
type table[T any] struct {
	rows    map[string]T
	id      func(T) string
	branch  func(T) string
	updated func(T) time.Time
	// nil for tables without soft delete
	deleted    func(T) *time.Time
	softDelete func(*T, time.Time)
}

func (t *table[T]) clone() *table[T] {
	c := *t
	c.rows = maps.Clone(t.rows)
	return &c
}

func (t *table[T]) live(row T) bool {
	return t.deleted == nil || t.deleted(row) == nil
}

func (t *table[T]) match(row T, f interfaces.Filter) bool {
	if !t.live(row) {
		return false
	}
	if f.ID != "" && t.id(row) != f.ID {
		return false
	}
	if f.BranchID != "" && t.branch(row) != f.BranchID {
		return false
	}
	if !f.UpdatedAfter.IsZero() && !t.updated(row).After(f.UpdatedAfter) {
		return false
	}
	return true
}

func NewMemStore(clock func() time.Time) *MemStore {
	if clock == nil {
		clock = time.Now
	}
	return &MemStore{
		clock: clock,
		st: &state{
			categories: &table[domain.Category]{
				rows:       map[string]domain.Category{},
				id:         func(c domain.Category) string { return c.ID },
				branch:     func(c domain.Category) string { return c.BranchID },
				updated:    func(c domain.Category) time.Time { return c.UpdatedAt },
				deleted:    func(c domain.Category) *time.Time { return c.DeletedAt },
				softDelete: func(c *domain.Category, at time.Time) { c.DeletedAt, c.UpdatedAt = &at, at },
			},
			products: &table[domain.Product]{
				rows:       map[string]domain.Product{},
				id:         func(p domain.Product) string { return p.ID },
				branch:     func(p domain.Product) string { return p.BranchID },
				updated:    func(p domain.Product) time.Time { return p.UpdatedAt },
				deleted:    func(p domain.Product) *time.Time { return p.DeletedAt },
				softDelete: func(p *domain.Product, at time.Time) { p.DeletedAt, p.UpdatedAt = &at, at },
			},
			users: &table[domain.User]{
				rows:       map[string]domain.User{},
				id:         func(u domain.User) string { return u.ID },
				branch:     func(u domain.User) string { return u.BranchID },
				updated:    func(u domain.User) time.Time { return u.UpdatedAt },
				deleted:    func(u domain.User) *time.Time { return u.DeletedAt },
				softDelete: func(u *domain.User, at time.Time) { u.DeletedAt, u.UpdatedAt = &at, at },
			},
			seating: &table[domain.SeatingTable]{
				rows:    map[string]domain.SeatingTable{},
				id:      func(s domain.SeatingTable) string { return s.ID },
				branch:  func(s domain.SeatingTable) string { return s.BranchID },
				updated: func(s domain.SeatingTable) time.Time { return s.UpdatedAt },
			},
			orders: &table[domain.Order]{
				rows:    map[string]domain.Order{},
				id:      func(o domain.Order) string { return o.ID },
				branch:  func(o domain.Order) string { return o.BranchID },
				updated: func(o domain.Order) time.Time { return o.UpdatedAt },
			},
			shifts: &table[domain.Shift]{
				rows:    map[string]domain.Shift{},
				id:      func(s domain.Shift) string { return s.ID },
				branch:  func(s domain.Shift) string { return s.BranchID },
				updated: func(s domain.Shift) time.Time { return s.UpdatedAt },
			},
			items:     map[string]domain.OrderItem{},
			payments:  map[string]domain.Payment{},
			auditLogs: map[string]domain.AuditLog{},
			inventory: map[string]domain.InventoryItem{},
			recipes:   map[string][]domain.RecipeIngredient{},
			tasks:     map[string]domain.DeductionTask{},
		},
	}
}

// --- failure injection ---

func (s *MemStore) FailBegin(err error)  { s.set(func() { s.failBegin = err }) }
func (s *MemStore) FailCommit(err error) { s.set(func() { s.failCommit = err }) }
func (s *MemStore) FailLedger(err error) { s.set(func() { s.failLedger = err }) }
func (s *MemStore) FailQuery(err error)  { s.set(func() { s.failQuery = err }) }

func (s *MemStore) set(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

// --- seeding ---

func (s *MemStore) AddUser(u domain.User) {
	s.set(func() {
		defaultTime(&u.UpdatedAt, s.clock())
		s.st.users.rows[u.ID] = u
	})
}

func (s *MemStore) AddCategory(c domain.Category) {
	s.set(func() {
		defaultTime(&c.UpdatedAt, s.clock())
		s.st.categories.rows[c.ID] = c
	})
}

func (s *MemStore) AddProduct(p domain.Product) {
	s.set(func() {
		defaultTime(&p.UpdatedAt, s.clock())
		s.st.products.rows[p.ID] = p
	})
}

func (s *MemStore) AddSeatingTable(t domain.SeatingTable) {
	s.set(func() {
		defaultTime(&t.UpdatedAt, s.clock())
		s.st.seating.rows[t.ID] = t
	})
}

func (s *MemStore) AddInventoryItem(i domain.InventoryItem) {
	s.set(func() {
		defaultTime(&i.UpdatedAt, s.clock())
		s.st.inventory[i.ID] = i
	})
}

func (s *MemStore) AddRecipe(productID string, ingredients ...domain.RecipeIngredient) {
	s.set(func() {
		for _, ing := range ingredients {
			if ing.ID == "" {
				ing.ID = uuid.NewString()
			}
			ing.ProductID = productID
			s.st.recipes[productID] = append(s.st.recipes[productID], ing)
		}
	})
}

// AddOrder stores an order directly, without an outbox task.
func (s *MemStore) AddOrder(o domain.Order) {
	s.set(func() {
		defaultTime(&o.UpdatedAt, s.clock())
		s.st.orders.rows[o.ID] = o
	})
}

func (s *MemStore) AddOrderItem(i domain.OrderItem) {
	s.set(func() { s.st.items[i.ID] = i })
}

// AddTask stores an outbox task directly.
func (s *MemStore) AddTask(t domain.DeductionTask) {
	s.set(func() { s.putTask(t) })
}

func defaultTime(t *time.Time, now time.Time) {
	if t.IsZero() {
		*t = now
	}
}

// --- inspection ---

func (s *MemStore) Order(id string) (domain.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.st.orders.rows[id]
	return o, ok
}

func (s *MemStore) OrderItem(id string) (domain.OrderItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.st.items[id]
	return i, ok
}

func (s *MemStore) Payment(id string) (domain.Payment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.st.payments[id]
	return p, ok
}

func (s *MemStore) Shift(id string) (domain.Shift, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.st.shifts.rows[id]
	return sh, ok
}

func (s *MemStore) AuditLog(id string) (domain.AuditLog, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.st.auditLogs[id]
	return a, ok
}

func (s *MemStore) InventoryItem(id string) (domain.InventoryItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.st.inventory[id]
	return i, ok
}

func (s *MemStore) Product(id string) (domain.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.st.products.rows[id]
	return p, ok
}

// Tasks lists outbox tasks in enqueue order.
func (s *MemStore) Tasks() []domain.DeductionTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.DeductionTask, 0, len(s.st.taskOrder))
	for _, id := range s.st.taskOrder {
		out = append(out, s.st.tasks[id])
	}
	return out
}

func (s *MemStore) SyncLogs() []domain.SyncLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.st.syncLogs)
}

// --- change log ---

func (s *MemStore) ChangeLog() interfaces.ChangeLog {
	return interfaces.ChangeLog{
		Clock:         s,
		Categories:    &entityView[domain.Category]{s: s, pick: func(st *state) *table[domain.Category] { return st.categories }},
		Products:      &entityView[domain.Product]{s: s, pick: func(st *state) *table[domain.Product] { return st.products }},
		Users:         &entityView[domain.User]{s: s, pick: func(st *state) *table[domain.User] { return st.users }},
		SeatingTables: &entityView[domain.SeatingTable]{s: s, pick: func(st *state) *table[domain.SeatingTable] { return st.seating }},
		Orders:        &entityView[domain.Order]{s: s, pick: func(st *state) *table[domain.Order] { return st.orders }},
		Shifts:        &entityView[domain.Shift]{s: s, pick: func(st *state) *table[domain.Shift] { return st.shifts }},
	}
}

// Now is the store clock; rows written by the store are stamped with it.
func (s *MemStore) Now(context.Context) (time.Time, error) {
	return s.clock(), nil
}

type entityView[T any] struct {
	s    *MemStore
	pick func(*state) *table[T]
}

func (v *entityView[T]) FindMany(_ context.Context, f interfaces.Filter) ([]T, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if v.s.failQuery != nil {
		return nil, v.s.failQuery
	}

	t := v.pick(v.s.st)
	var out []T
	for _, row := range t.rows {
		if t.match(row, f) {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ui, uj := t.updated(out[i]), t.updated(out[j])
		if !ui.Equal(uj) {
			return ui.Before(uj)
		}
		return t.id(out[i]) < t.id(out[j])
	})
	return out, nil
}

func (v *entityView[T]) FindOne(ctx context.Context, f interfaces.Filter) (T, error) {
	rows, err := v.FindMany(ctx, f)
	if err != nil {
		var zero T
		return zero, err
	}
	if len(rows) == 0 {
		var zero T
		return zero, domain.ErrNotFound
	}
	return rows[0], nil
}

func (v *entityView[T]) Delete(_ context.Context, f interfaces.Filter) (int64, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	t := v.pick(v.s.st)
	now := v.s.clock()
	var n int64
	for id, row := range t.rows {
		if !t.match(row, f) {
			continue
		}
		if t.softDelete != nil {
			t.softDelete(&row, now)
			t.rows[id] = row
		} else {
			delete(t.rows, id)
		}
		n++
	}
	return n, nil
}

// --- change store ---

// WithinTx serializes transactions and restores the snapshot when fn fails.
func (s *MemStore) WithinTx(ctx context.Context, fn func(ctx context.Context, w interfaces.ChangeWriter) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failBegin != nil {
		return fmt.Errorf("failed to begin transaction: %w", s.failBegin)
	}

	snapshot := s.st.clone()
	if err := fn(ctx, &memWriter{s: s}); err != nil {
		s.st = snapshot
		return err
	}
	if s.failCommit != nil {
		s.st = snapshot
		return fmt.Errorf("failed to commit transaction: %w", s.failCommit)
	}
	return nil
}

// memWriter runs with the store lock held by WithinTx.
type memWriter struct {
	s *MemStore
}

func (w *memWriter) UpsertShift(_ context.Context, branchID string, sh domain.Shift) error {
	st, now := w.s.st, w.s.clock()

	if existing, ok := st.shifts.rows[sh.ID]; ok {
		if existing.BranchID != branchID {
			return domain.ErrBranchMismatch
		}
		existing.ClosingTime = sh.ClosingTime
		existing.ExpectedCash = sh.ExpectedCash
		existing.ActualCash = sh.ActualCash
		existing.Notes = sh.Notes
		existing.UpdatedAt = now
		st.shifts.rows[sh.ID] = existing
		return nil
	}

	if _, ok := st.users.rows[sh.UserID]; !ok {
		return fmt.Errorf("%w: user %s", domain.ErrMissingReference, sh.UserID)
	}
	sh.BranchID = branchID
	sh.UpdatedAt = now
	st.shifts.rows[sh.ID] = sh
	return nil
}

func (w *memWriter) FindOrder(_ context.Context, id string) (*domain.Order, error) {
	o, ok := w.s.st.orders.rows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &o, nil
}

func (w *memWriter) UpsertOrder(_ context.Context, branchID string, o domain.Order) (bool, error) {
	st, now := w.s.st, w.s.clock()

	if existing, ok := st.orders.rows[o.ID]; ok {
		if existing.BranchID != branchID {
			return false, domain.ErrBranchMismatch
		}
		existing.Status = o.Status
		existing.TotalAmount = o.TotalAmount
		existing.UpdatedAt = now
		st.orders.rows[o.ID] = existing
		return false, nil
	}

	if _, ok := st.users.rows[o.UserID]; !ok {
		return false, fmt.Errorf("%w: user %s", domain.ErrMissingReference, o.UserID)
	}
	if o.ShiftID != nil {
		if _, ok := st.shifts.rows[*o.ShiftID]; !ok {
			return false, fmt.Errorf("%w: shift %s", domain.ErrMissingReference, *o.ShiftID)
		}
	}
	if o.TableID != nil {
		if _, ok := st.seating.rows[*o.TableID]; !ok {
			return false, fmt.Errorf("%w: seating table %s", domain.ErrMissingReference, *o.TableID)
		}
	}

	o.BranchID = branchID
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now
	st.orders.rows[o.ID] = o
	w.s.putTask(domain.NewDeductionTask(uuid.NewString(), branchID, o.ID, now))
	return true, nil
}

func (w *memWriter) UpsertOrderItem(_ context.Context, branchID string, item domain.OrderItem) error {
	st := w.s.st

	if existing, ok := st.items[item.ID]; ok {
		if st.orders.rows[existing.OrderID].BranchID != branchID {
			return domain.ErrBranchMismatch
		}
		existing.Quantity = item.Quantity
		existing.Notes = item.Notes
		st.items[item.ID] = existing
		return nil
	}

	if _, ok := st.orders.rows[item.OrderID]; !ok {
		return fmt.Errorf("%w: order %s", domain.ErrMissingReference, item.OrderID)
	}
	if _, ok := st.products.rows[item.ProductID]; !ok {
		return fmt.Errorf("%w: product %s", domain.ErrMissingReference, item.ProductID)
	}
	st.items[item.ID] = item
	return nil
}

func (w *memWriter) InsertPayment(_ context.Context, _ string, p domain.Payment) (bool, error) {
	st := w.s.st

	if _, ok := st.payments[p.ID]; ok {
		return false, nil
	}
	if _, ok := st.orders.rows[p.OrderID]; !ok {
		return false, fmt.Errorf("%w: order %s", domain.ErrMissingReference, p.OrderID)
	}
	if p.ShiftID == nil {
		return false, fmt.Errorf("%w: payment shift is required", domain.ErrConstraint)
	}
	if _, ok := st.shifts.rows[*p.ShiftID]; !ok {
		return false, fmt.Errorf("%w: shift %s", domain.ErrMissingReference, *p.ShiftID)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = w.s.clock()
	}
	st.payments[p.ID] = p
	return true, nil
}

func (w *memWriter) InsertAuditLog(_ context.Context, branchID string, a domain.AuditLog) (bool, error) {
	st := w.s.st

	if _, ok := st.auditLogs[a.ID]; ok {
		return false, nil
	}
	if _, ok := st.users.rows[a.UserID]; !ok {
		return false, fmt.Errorf("%w: user %s", domain.ErrMissingReference, a.UserID)
	}
	if a.OrderID != nil {
		if _, ok := st.orders.rows[*a.OrderID]; !ok {
			return false, fmt.Errorf("%w: order %s", domain.ErrMissingReference, *a.OrderID)
		}
	}
	a.BranchID = branchID
	if a.CreatedAt.IsZero() {
		a.CreatedAt = w.s.clock()
	}
	st.auditLogs[a.ID] = a
	return true, nil
}

// --- sync ledger ---

func (s *MemStore) Create(_ context.Context, entry *domain.SyncLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failLedger != nil {
		return s.failLedger
	}
	s.st.syncLogs = append(s.st.syncLogs, *entry)
	return nil
}

func (s *MemStore) ListRecent(_ context.Context, branchID string, limit int) ([]domain.SyncLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.SyncLogEntry
	for _, e := range s.st.syncLogs {
		if e.BranchID == branchID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemStore) CountByOutcome(_ context.Context, branchID string) ([]domain.SyncOutcomeCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type key struct {
		dir    domain.SyncDirection
		status domain.SyncStatus
	}
	counts := map[key]int{}
	for _, e := range s.st.syncLogs {
		if e.BranchID == branchID {
			counts[key{e.Direction, e.Status}]++
		}
	}

	out := make([]domain.SyncOutcomeCount, 0, len(counts))
	for k, n := range counts {
		out = append(out, domain.SyncOutcomeCount{Direction: k.dir, Status: k.status, Count: n})
	}
	return out, nil
}

// --- inventory ---

func (s *MemStore) FindOrderWithItems(_ context.Context, orderID string) (*domain.Order, []domain.OrderItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.st.orders.rows[orderID]
	if !ok {
		return nil, nil, fmt.Errorf("order %s: %w", orderID, domain.ErrNotFound)
	}

	var items []domain.OrderItem
	for _, item := range s.st.items {
		if item.OrderID == orderID {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return &o, items, nil
}

func (s *MemStore) RecipeFor(_ context.Context, productID string) ([]domain.RecipeIngredient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failQuery != nil {
		return nil, s.failQuery
	}
	return slices.Clone(s.st.recipes[productID]), nil
}

func (s *MemStore) ApplyDeductions(_ context.Context, taskID string, deductions []domain.StockDeduction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.st.tasks[taskID]
	if !ok || task.Status != domain.DeductionStatusProcessing {
		return domain.ErrTaskNotClaimed
	}
	for _, d := range deductions {
		if _, ok := s.st.inventory[d.InventoryItemID]; !ok {
			return fmt.Errorf("%w: inventory item %s", domain.ErrMissingReference, d.InventoryItemID)
		}
	}

	now := s.clock()
	for _, d := range deductions {
		item := s.st.inventory[d.InventoryItemID]
		item.CurrentStock = item.CurrentStock.Sub(d.Amount)
		item.UpdatedAt = now
		s.st.inventory[d.InventoryItemID] = item
	}

	task.Status = domain.DeductionStatusDone
	task.CompletedAt = &now
	task.LastError = nil
	s.st.tasks[taskID] = task
	return nil
}

func (s *MemStore) Snapshot(_ context.Context, branchID string) ([]domain.InventoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.InventoryItem
	for _, item := range s.st.inventory {
		if item.BranchID == branchID {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].CurrentStock.Cmp(out[j].CurrentStock); c != 0 {
			return c < 0
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// Stock is a shortcut for the current stock of an inventory item.
func (s *MemStore) Stock(id string) decimal.Decimal {
	item, _ := s.InventoryItem(id)
	return item.CurrentStock
}

// --- outbox ---

func (s *MemStore) putTask(t domain.DeductionTask) {
	if _, ok := s.st.tasks[t.ID]; !ok {
		s.st.taskOrder = append(s.st.taskOrder, t.ID)
	}
	s.st.tasks[t.ID] = t
}

func (s *MemStore) ClaimDue(_ context.Context, limit int, lease time.Duration) ([]domain.DeductionTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	var due []domain.DeductionTask
	for _, id := range s.st.taskOrder {
		if t := s.st.tasks[id]; t.IsDue(now) {
			due = append(due, t)
		}
	}
	sort.SliceStable(due, func(i, j int) bool { return due[i].NextAttemptAt.Before(due[j].NextAttemptAt) })
	if len(due) > limit {
		due = due[:limit]
	}

	for i := range due {
		due[i].Status = domain.DeductionStatusProcessing
		due[i].Attempts++
		due[i].NextAttemptAt = now.Add(lease)
		s.st.tasks[due[i].ID] = due[i]
	}
	return due, nil
}

func (s *MemStore) MarkFailed(_ context.Context, claimed domain.DeductionTask, reason string, retryAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.st.tasks[claimed.ID]
	if !ok || task.Status != domain.DeductionStatusProcessing || task.Attempts != claimed.Attempts {
		return fmt.Errorf("task %s attempt %d: %w", claimed.ID, claimed.Attempts, domain.ErrTaskNotClaimed)
	}
	task.LastError = &reason
	if retryAt != nil {
		task.Status = domain.DeductionStatusPending
		task.NextAttemptAt = *retryAt
	} else {
		task.Status = domain.DeductionStatusFailed
	}
	s.st.tasks[claimed.ID] = task
	return nil
}

func (s *MemStore) ListFailed(_ context.Context, branchID string, limit int) ([]domain.DeductionTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.DeductionTask
	for _, id := range s.st.taskOrder {
		t := s.st.tasks[id]
		if t.BranchID == branchID && t.Status == domain.DeductionStatusFailed {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemStore) Requeue(_ context.Context, branchID, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.st.tasks[taskID]
	if !ok || task.BranchID != branchID {
		return fmt.Errorf("task %s: %w", taskID, domain.ErrNotFound)
	}
	if task.Status != domain.DeductionStatusFailed {
		return fmt.Errorf("%w: task %s is %s", domain.ErrInvalidArgument, taskID, task.Status)
	}
	task.Status = domain.DeductionStatusPending
	task.Attempts = 0
	task.LastError = nil
	task.NextAttemptAt = s.clock()
	s.st.tasks[taskID] = task
	return nil
}
