package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/agoradata/agora/internal/domain"
	"github.com/agoradata/agora/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// mockAgentStore implements domain.BuyerAgentStore for testing.
type mockAgentStore struct {
	mu     sync.Mutex
	agents map[uuid.UUID]*domain.BuyerAgent
}

func newMockAgentStore() *mockAgentStore {
	return &mockAgentStore{agents: make(map[uuid.UUID]*domain.BuyerAgent)}
}

func (m *mockAgentStore) add(a *domain.BuyerAgent) *domain.BuyerAgent {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	m.agents[a.ID] = a
	return a
}

func (m *mockAgentStore) Create(ctx context.Context, a *domain.BuyerAgent) error {
	m.add(a)
	return nil
}

func (m *mockAgentStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.BuyerAgent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *mockAgentStore) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]domain.BuyerAgent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.BuyerAgent
	for _, a := range m.agents {
		if a.OwnerID == ownerID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *mockAgentStore) ListByStatus(ctx context.Context, status domain.AgentStatus) ([]domain.BuyerAgent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.BuyerAgent
	for _, a := range m.agents {
		if a.Status == status {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *mockAgentStore) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.AgentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[id]
	if !ok {
		return store.ErrNotFound
	}
	a.Status = status
	return nil
}

func (m *mockAgentStore) SetWallet(ctx context.Context, id uuid.UUID, walletID uuid.UUID, address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[id]
	if !ok {
		return store.ErrNotFound
	}
	a.WalletID = walletID
	a.WalletAddress = address
	return nil
}

func (m *mockAgentStore) AddPurchase(ctx context.Context, id uuid.UUID, amount decimal.Decimal, records int) (*domain.BuyerAgent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	a.Spent = a.Spent.Add(amount)
	a.QuantityAcquired += records
	cp := *a
	return &cp, nil
}

func (m *mockAgentStore) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.agents[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.agents, id)
	return nil
}

// mockActionStore implements domain.ActionStore for testing.
type mockActionStore struct {
	mu      sync.Mutex
	actions []domain.AgentAction
}

func (m *mockActionStore) Append(ctx context.Context, a *domain.AgentAction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	m.actions = append(m.actions, *a)
	return nil
}

func (m *mockActionStore) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.ActionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.actions {
		if m.actions[i].ID == id && m.actions[i].Status == domain.ActionPending {
			m.actions[i].Status = status
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *mockActionStore) List(ctx context.Context, agentID uuid.UUID, limit int) ([]domain.AgentAction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.AgentAction
	for i := len(m.actions) - 1; i >= 0 && len(out) < limit; i-- {
		if m.actions[i].AgentID == agentID {
			out = append(out, m.actions[i])
		}
	}
	return out, nil
}

func (m *mockActionStore) ListSince(ctx context.Context, agentID uuid.UUID, after time.Time) ([]domain.AgentAction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.AgentAction
	for _, a := range m.actions {
		if a.AgentID == agentID && a.CreatedAt.After(after) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockActionStore) SellerStats(ctx context.Context, sellerID uuid.UUID) (*domain.SellerStats, error) {
	return &domain.SellerStats{}, nil
}

func (m *mockActionStore) DatasetHistory(ctx context.Context, agentID uuid.UUID, datasetID uuid.UUID, limit int) ([]domain.AgentAction, error) {
	return nil, nil
}

func (m *mockActionStore) has(t domain.ActionType) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.actions {
		if a.Type == t {
			return true
		}
	}
	return false
}

func (m *mockActionStore) details(t domain.ActionType) map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.actions {
		if a.Type == t {
			return a.Details
		}
	}
	return nil
}

// mockMarket implements domain.Market; Purchase charges price times quantity.
type mockMarket struct {
	mu        sync.Mutex
	datasets  []domain.Dataset
	sample    []domain.Record
	purchases int

	discoverErr error
	probeErr    error
	sampleErr   error
	purchaseErr error
}

func (m *mockMarket) Discover(ctx context.Context, filter domain.DiscoveryFilter) ([]domain.Dataset, error) {
	if m.discoverErr != nil {
		return nil, m.discoverErr
	}
	return m.datasets, nil
}

func (m *mockMarket) Probe(ctx context.Context, datasetID uuid.UUID) (*domain.Dataset, error) {
	if m.probeErr != nil {
		return nil, m.probeErr
	}
	for _, d := range m.datasets {
		if d.ID == datasetID {
			cp := d
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *mockMarket) Sample(ctx context.Context, datasetID uuid.UUID, n int) ([]domain.Record, error) {
	if m.sampleErr != nil {
		return nil, m.sampleErr
	}
	return m.sample, nil
}

func (m *mockMarket) Purchase(ctx context.Context, agent *domain.BuyerAgent, dataset *domain.Dataset, quantity int) (*domain.PurchaseResult, error) {
	if m.purchaseErr != nil {
		return nil, m.purchaseErr
	}
	m.mu.Lock()
	m.purchases++
	m.mu.Unlock()
	records := make([]domain.Record, quantity)
	for i := range records {
		records[i] = domain.Record{"email": "a@example.com"}
	}
	return &domain.PurchaseResult{
		Records:    records,
		AmountPaid: dataset.PricePerRecord.Mul(decimal.NewFromInt(int64(quantity))),
		TxHash:     "0xtest",
	}, nil
}

func goodSample() []domain.Record {
	sample := make([]domain.Record, 5)
	for i := range sample {
		sample[i] = domain.Record{"email": "a@example.com", "name": "Ada"}
	}
	return sample
}

type mockDebitor struct {
	mu      sync.Mutex
	debited decimal.Decimal
}

func (m *mockDebitor) Debit(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.debited = m.debited.Add(amount)
	return nil
}

func newCycleFixture(agent *domain.BuyerAgent, mkt domain.Market) (*CycleService, *mockAgentStore, *mockActionStore) {
	agents := newMockAgentStore()
	agents.add(agent)
	actions := &mockActionStore{}
	logger := zap.NewNop()
	svc := NewCycleService(agents, mkt, NewActionService(actions, logger), &mockDebitor{}, logger)
	return svc, agents, actions
}

func marketWithDataset(price string, quality float64) (*mockMarket, domain.Dataset) {
	d := domain.Dataset{
		ID:             uuid.New(),
		SellerID:       uuid.New(),
		Name:           "Contacts",
		Category:       "b2b",
		PricePerRecord: decimal.RequireFromString(price),
		QualityScore:   quality,
		Active:         true,
	}
	return &mockMarket{datasets: []domain.Dataset{d}, sample: goodSample()}, d
}

func TestRunCycle_PurchaseCompletesGoal(t *testing.T) {
	mkt, _ := marketWithDataset("0.01", 0.9)
	agent := testAgent("1.00", "0", intPtr(10), 0)
	svc, agents, actions := newCycleFixture(agent, mkt)

	done := svc.RunCycle(context.Background(), agent.ID)
	if !done {
		t.Fatal("expected cycle to end scheduling")
	}

	updated, _ := agents.GetByID(context.Background(), agent.ID)
	if updated.Status != domain.AgentStatusCompleted {
		t.Fatalf("expected completed, got %s", updated.Status)
	}
	if updated.Spent.StringFixed(6) != "0.100000" {
		t.Fatalf("expected spent 0.100000, got %s", updated.Spent.StringFixed(6))
	}
	if updated.QuantityAcquired != 10 {
		t.Fatalf("expected 10 acquired, got %d", updated.QuantityAcquired)
	}
	if !actions.has(domain.ActionPurchaseComplete) {
		t.Fatal("expected purchase_complete action")
	}
	if !actions.has(domain.ActionGoalCompleted) {
		t.Fatal("expected goal_completed action")
	}
}

func TestRunCycle_LowQualitySkips(t *testing.T) {
	mkt, _ := marketWithDataset("0.01", 0.9)
	// Inconsistent, sparse sample scores below the 0.7 threshold.
	mkt.sample = []domain.Record{
		{"a": "x", "b": ""},
		{"c": ""},
	}
	agent := testAgent("1.00", "0", intPtr(10), 0)
	svc, agents, actions := newCycleFixture(agent, mkt)

	done := svc.RunCycle(context.Background(), agent.ID)
	if done {
		t.Fatal("skip is not terminal")
	}

	updated, _ := agents.GetByID(context.Background(), agent.ID)
	if !updated.Spent.IsZero() {
		t.Fatalf("spent should be unchanged, got %s", updated.Spent)
	}
	if mkt.purchases != 0 {
		t.Fatal("no purchase should have happened")
	}
	if !actions.has(domain.ActionDecisionSkip) {
		t.Fatal("expected decision_skip action")
	}
}

func TestRunCycle_BudgetDrainedBeforeGoal(t *testing.T) {
	// The purchase satisfies only half the goal but lands spent exactly on
	// budget, so the post-purchase re-check marks the agent failed. This
	// ordering is intentional.
	mkt, _ := marketWithDataset("0.01", 0.9)
	agent := testAgent("1.00", "0.95", intPtr(10), 0)
	svc, agents, actions := newCycleFixture(agent, mkt)

	done := svc.RunCycle(context.Background(), agent.ID)
	if !done {
		t.Fatal("expected cycle to end scheduling")
	}

	updated, _ := agents.GetByID(context.Background(), agent.ID)
	if updated.Status != domain.AgentStatusFailed {
		t.Fatalf("expected failed, got %s", updated.Status)
	}
	if updated.QuantityAcquired != 5 {
		t.Fatalf("expected 5 acquired, got %d", updated.QuantityAcquired)
	}
	if updated.Spent.StringFixed(6) != "1.000000" {
		t.Fatalf("expected spent 1.000000, got %s", updated.Spent.StringFixed(6))
	}
	if !actions.has(domain.ActionBudgetExhausted) {
		t.Fatal("expected budget_exhausted action")
	}
}

func TestRunCycle_NoDatasets(t *testing.T) {
	mkt := &mockMarket{}
	agent := testAgent("1.00", "0", intPtr(10), 0)
	svc, _, actions := newCycleFixture(agent, mkt)

	if done := svc.RunCycle(context.Background(), agent.ID); done {
		t.Fatal("empty discovery is not terminal")
	}
	if !actions.has(domain.ActionSearching) {
		t.Fatal("expected searching action")
	}
	if !actions.has(domain.ActionNoDatasetsFound) {
		t.Fatal("expected no_datasets_found action")
	}
}

func TestRunCycle_NonActiveAgentStops(t *testing.T) {
	mkt, _ := marketWithDataset("0.01", 0.9)
	agent := testAgent("1.00", "0", intPtr(10), 0)
	agent.Status = domain.AgentStatusPaused
	svc, _, _ := newCycleFixture(agent, mkt)

	if done := svc.RunCycle(context.Background(), agent.ID); !done {
		t.Fatal("paused agent should leave the schedule")
	}
}

func TestRunCycle_DiscoveryFailureLogged(t *testing.T) {
	mkt := &mockMarket{discoverErr: context.DeadlineExceeded}
	agent := testAgent("1.00", "0", intPtr(10), 0)
	svc, agents, actions := newCycleFixture(agent, mkt)

	if done := svc.RunCycle(context.Background(), agent.ID); done {
		t.Fatal("transient failure is not terminal")
	}
	if !actions.has(domain.ActionError) {
		t.Fatal("expected error action")
	}
	updated, _ := agents.GetByID(context.Background(), agent.ID)
	if updated.Status != domain.AgentStatusActive {
		t.Fatalf("agent should stay active, got %s", updated.Status)
	}
}

func TestSelect_BestValueWithStableTieBreak(t *testing.T) {
	cheapGood := domain.Dataset{ID: uuid.New(), Name: "first", QualityScore: 0.8, PricePerRecord: decimal.RequireFromString("0.01")}
	sameValue := domain.Dataset{ID: uuid.New(), Name: "second", QualityScore: 0.8, PricePerRecord: decimal.RequireFromString("0.01")}
	worse := domain.Dataset{ID: uuid.New(), Name: "worse", QualityScore: 0.7, PricePerRecord: decimal.RequireFromString("0.05")}

	mkt := &mockMarket{datasets: []domain.Dataset{worse, cheapGood, sameValue}, sample: goodSample()}
	agent := testAgent("1.00", "0", intPtr(10), 0)
	agent.QualityThreshold = 0.5
	svc, _, _ := newCycleFixture(agent, mkt)

	for i := 0; i < 5; i++ {
		selected, ok := svc.discoverAndSelect(context.Background(), agent)
		if !ok {
			t.Fatal("expected a selection")
		}
		if selected.ID != cheapGood.ID {
			t.Fatalf("expected first best-value dataset, got %s", selected.Name)
		}
	}
}

// panicMarket blows up mid-cycle to exercise the cycle-boundary recover.
type panicMarket struct {
	*mockMarket
}

func (p *panicMarket) Probe(ctx context.Context, datasetID uuid.UUID) (*domain.Dataset, error) {
	panic("listing metadata corrupted")
}

func TestRunCycle_PanicIsContained(t *testing.T) {
	mkt, _ := marketWithDataset("0.01", 0.9)
	agent := testAgent("1.00", "0", intPtr(10), 0)
	svc, agents, actions := newCycleFixture(agent, &panicMarket{mockMarket: mkt})

	done := svc.RunCycle(context.Background(), agent.ID)
	if done {
		t.Fatal("a panicked cycle should retry next period, not end scheduling")
	}

	details := actions.details(domain.ActionError)
	if details == nil || details["step"] != "cycle" {
		t.Fatalf("expected a cycle-level error action, got %v", details)
	}
	updated, _ := agents.GetByID(context.Background(), agent.ID)
	if updated.Status != domain.AgentStatusActive {
		t.Fatalf("expected agent to stay active, got %s", updated.Status)
	}
}

func TestRunCycle_FreeDatasetCompletesGoal(t *testing.T) {
	mkt, _ := marketWithDataset("0", 0.9)
	agent := testAgent("1.00", "0", intPtr(10), 0)
	svc, agents, _ := newCycleFixture(agent, mkt)

	done := svc.RunCycle(context.Background(), agent.ID)
	if !done {
		t.Fatal("expected cycle to end scheduling")
	}

	updated, _ := agents.GetByID(context.Background(), agent.ID)
	if updated.Status != domain.AgentStatusCompleted {
		t.Fatalf("expected completed, got %s", updated.Status)
	}
	if updated.Spent.StringFixed(6) != "0.000000" {
		t.Fatalf("expected nothing spent, got %s", updated.Spent.StringFixed(6))
	}
	if updated.QuantityAcquired != 10 {
		t.Fatalf("expected 10 records, got %d", updated.QuantityAcquired)
	}
}

func TestRunCycle_GoalAndBudgetDrainTogether(t *testing.T) {
	mkt, _ := marketWithDataset("0.01", 0.9)
	agent := testAgent("0.10", "0", intPtr(10), 0)
	svc, agents, actions := newCycleFixture(agent, mkt)

	done := svc.RunCycle(context.Background(), agent.ID)
	if !done {
		t.Fatal("expected cycle to end scheduling")
	}

	// Goal completion wins over budget exhaustion when one purchase does both.
	updated, _ := agents.GetByID(context.Background(), agent.ID)
	if updated.Status != domain.AgentStatusCompleted {
		t.Fatalf("expected completed, got %s", updated.Status)
	}
	if updated.Spent.StringFixed(6) != "0.100000" {
		t.Fatalf("expected spent 0.100000, got %s", updated.Spent.StringFixed(6))
	}
	if !actions.has(domain.ActionGoalCompleted) {
		t.Fatal("expected goal_completed action")
	}
	if actions.has(domain.ActionBudgetExhausted) {
		t.Fatal("budget_exhausted should not fire when the goal is met")
	}
}
