package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/agoradata/agora/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type mockProvisioner struct {
	wallet *domain.Wallet
	err    error
	calls  int
}

func (m *mockProvisioner) Provision(ctx context.Context, ownerID uuid.UUID) (*domain.Wallet, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.wallet, nil
}

func newSchedulerFixture(mkt domain.Market) (*Scheduler, *mockAgentStore, *mockActionStore, *mockProvisioner) {
	agents := newMockAgentStore()
	actions := &mockActionStore{}
	logger := zap.NewNop()
	actionSvc := NewActionService(actions, logger)
	cycles := NewCycleService(agents, mkt, actionSvc, &mockDebitor{}, logger)
	prov := &mockProvisioner{wallet: &domain.Wallet{ID: uuid.New(), Address: "0xabc"}}
	sched := NewScheduler(cycles, agents, prov, actionSvc, logger)
	sched.SetInterval(5 * time.Millisecond)
	return sched, agents, actions, prov
}

func walletedAgent() *domain.BuyerAgent {
	a := testAgent("1.00", "0", intPtr(10), 0)
	a.WalletID = uuid.New()
	return a
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestScheduler_StartIsIdempotent(t *testing.T) {
	sched, agents, _, _ := newSchedulerFixture(&mockMarket{})
	defer sched.Shutdown()
	agent := agents.add(walletedAgent())

	if err := sched.Start(context.Background(), agent.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := sched.Start(context.Background(), agent.ID); err != nil {
		t.Fatalf("second start: %v", err)
	}
	if !sched.Running(agent.ID) {
		t.Fatal("agent should be running")
	}

	sched.Stop(agent.ID)
	if sched.Running(agent.ID) {
		t.Fatal("agent should be stopped")
	}
}

func TestScheduler_ProvisionsWalletOnFirstStart(t *testing.T) {
	sched, agents, actions, prov := newSchedulerFixture(&mockMarket{})
	defer sched.Shutdown()
	agent := agents.add(testAgent("1.00", "0", intPtr(10), 0))

	if err := sched.Start(context.Background(), agent.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	updated, _ := agents.GetByID(context.Background(), agent.ID)
	if updated.WalletID != prov.wallet.ID {
		t.Fatal("wallet not attached to agent")
	}
	if updated.WalletAddress != "0xabc" {
		t.Fatalf("unexpected wallet address %q", updated.WalletAddress)
	}
	if !actions.has(domain.ActionWalletProvisioned) {
		t.Fatal("expected wallet_provisioned action")
	}
	if prov.calls != 1 {
		t.Fatalf("expected 1 provision call, got %d", prov.calls)
	}
}

func TestScheduler_ProvisionFailureAbortsStart(t *testing.T) {
	sched, agents, actions, prov := newSchedulerFixture(&mockMarket{})
	prov.err = errors.New("faucet dry")
	agent := agents.add(testAgent("1.00", "0", intPtr(10), 0))

	if err := sched.Start(context.Background(), agent.ID); err == nil {
		t.Fatal("expected start to fail")
	}
	if sched.Running(agent.ID) {
		t.Fatal("agent must not be scheduled after provisioning failure")
	}
	d := actions.details(domain.ActionError)
	if d == nil || d["step"] != "wallet_provisioning" {
		t.Fatalf("expected wallet_provisioning error action, got %v", d)
	}
}

func TestScheduler_TerminalCycleEndsSchedule(t *testing.T) {
	// One dataset satisfies the whole goal, so the first cycle is terminal and
	// the loop must remove itself.
	mkt, _ := marketWithDataset("0.01", 0.9)
	sched, agents, _, _ := newSchedulerFixture(mkt)
	defer sched.Shutdown()
	agent := agents.add(walletedAgent())

	if err := sched.Start(context.Background(), agent.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	waitFor(t, func() bool { return !sched.Running(agent.ID) })

	updated, _ := agents.GetByID(context.Background(), agent.ID)
	if updated.Status != domain.AgentStatusCompleted {
		t.Fatalf("expected completed, got %s", updated.Status)
	}
}

func TestScheduler_RecoverActive(t *testing.T) {
	sched, agents, _, _ := newSchedulerFixture(&mockMarket{})
	defer sched.Shutdown()

	a1 := agents.add(walletedAgent())
	a2 := agents.add(walletedAgent())
	paused := walletedAgent()
	paused.Status = domain.AgentStatusPaused
	p := agents.add(paused)

	if err := sched.RecoverActive(context.Background()); err != nil {
		t.Fatalf("recover: %v", err)
	}
	if !sched.Running(a1.ID) || !sched.Running(a2.ID) {
		t.Fatal("active agents should be rescheduled")
	}
	if sched.Running(p.ID) {
		t.Fatal("paused agent must not be rescheduled")
	}
}

func TestScheduler_ShutdownStopsEverything(t *testing.T) {
	sched, agents, _, _ := newSchedulerFixture(&mockMarket{})
	a1 := agents.add(walletedAgent())
	a2 := agents.add(walletedAgent())

	if err := sched.Start(context.Background(), a1.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := sched.Start(context.Background(), a2.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	sched.Shutdown()
	if sched.Running(a1.ID) || sched.Running(a2.ID) {
		t.Fatal("no agent should survive shutdown")
	}
}

// blockingMarket parks Discover until released, then records the context
// error it resumed with.
type blockingMarket struct {
	*mockMarket
	entered  chan struct{}
	release  chan struct{}
	observed chan struct{}

	once      sync.Once
	resumeErr error
}

func (m *blockingMarket) Discover(ctx context.Context, filter domain.DiscoveryFilter) ([]domain.Dataset, error) {
	m.once.Do(func() {
		close(m.entered)
		<-m.release
		m.resumeErr = ctx.Err()
		close(m.observed)
	})
	return m.mockMarket.Discover(ctx, filter)
}

func TestScheduler_StopDoesNotInterruptInflightCycle(t *testing.T) {
	inner, _ := marketWithDataset("0.01", 0.9)
	mkt := &blockingMarket{
		mockMarket: inner,
		entered:    make(chan struct{}),
		release:    make(chan struct{}),
		observed:   make(chan struct{}),
	}
	sched, agents, _, _ := newSchedulerFixture(mkt)
	agent := agents.add(walletedAgent())

	if err := sched.Start(context.Background(), agent.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	<-mkt.entered

	// Stop while the cycle is parked inside Discover.
	sched.Stop(agent.ID)
	close(mkt.release)
	<-mkt.observed

	if mkt.resumeErr != nil {
		t.Fatalf("in-flight cycle saw a cancelled context after Stop: %v", mkt.resumeErr)
	}

	// The interrupted-by-nothing cycle runs to completion.
	sched.Shutdown()
	updated, _ := agents.GetByID(context.Background(), agent.ID)
	if updated.Status != domain.AgentStatusCompleted {
		t.Fatalf("expected the in-flight cycle to finish its purchase, got status %s", updated.Status)
	}
}
