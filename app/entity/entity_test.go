package entity

import (
	"testing"
	"time"
)

func TestOrderStatusTransitions(t *testing.T) {
	allowed := [][2]OrderStatus{
		{OrderStatusPending, OrderStatusProcessing},
		{OrderStatusPending, OrderStatusCancelled},
		{OrderStatusProcessing, OrderStatusCompleted},
		{OrderStatusProcessing, OrderStatusFailed},
		{OrderStatusCompleted, OrderStatusPartiallyRefunded},
		{OrderStatusCompleted, OrderStatusRefunded},
		{OrderStatusPartiallyRefunded, OrderStatusRefunded},
	}
	for _, pair := range allowed {
		if !pair[0].CanTransitionTo(pair[1]) {
			t.Fatalf("expected %s -> %s to be allowed", pair[0], pair[1])
		}
	}

	denied := [][2]OrderStatus{
		{OrderStatusCompleted, OrderStatusPending},
		{OrderStatusCancelled, OrderStatusProcessing},
		{OrderStatusFailed, OrderStatusCompleted},
		{OrderStatusRefunded, OrderStatusPartiallyRefunded},
		{OrderStatusPending, OrderStatusCompleted},
	}
	for _, pair := range denied {
		if pair[0].CanTransitionTo(pair[1]) {
			t.Fatalf("expected %s -> %s to be denied", pair[0], pair[1])
		}
	}
}

func TestOrderEffectiveStatus(t *testing.T) {
	created := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	order := &Order{Status: OrderStatusPending, CreatedAt: created, ExpiresAt: created.Add(30 * time.Minute)}

	if got := order.EffectiveStatus(created.Add(29 * time.Minute)); got != OrderStatusPending {
		t.Fatalf("expected pending before expiry, got %s", got)
	}
	if got := order.EffectiveStatus(created.Add(31 * time.Minute)); got != OrderStatusExpired {
		t.Fatalf("expected expired after expiry, got %s", got)
	}

	order.Status = OrderStatusCompleted
	if got := order.EffectiveStatus(created.Add(time.Hour)); got != OrderStatusCompleted {
		t.Fatalf("expected completed orders to never expire, got %s", got)
	}
}

func TestTransactionRefundWindowStart(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	processed := created.Add(time.Minute)
	settled := created.Add(time.Hour)

	txn := &Transaction{Status: TransactionStatusCaptured, CreatedAt: created, ProcessedAt: &processed}
	if !txn.RefundWindowStart().Equal(processed) {
		t.Fatalf("expected processed time, got %v", txn.RefundWindowStart())
	}
	txn.SettledAt = &settled
	if !txn.RefundWindowStart().Equal(settled) {
		t.Fatalf("expected settled time, got %v", txn.RefundWindowStart())
	}
	if !txn.Refundable() {
		t.Fatal("expected captured transaction to be refundable")
	}
	txn.Status = TransactionStatusAuthorized
	if txn.Refundable() {
		t.Fatal("expected authorized transaction to not be refundable")
	}
}

func TestPluginStateTransitions(t *testing.T) {
	if !PluginStateUninstalled.CanTransitionTo(PluginStateInstalled) {
		t.Fatal("expected install transition")
	}
	if !PluginStateRunning.CanTransitionTo(PluginStateFailed) {
		t.Fatal("expected running -> failed")
	}
	if !PluginStateFailed.CanTransitionTo(PluginStateUninstalled) {
		t.Fatal("expected any state -> uninstalled")
	}
	if PluginStateUninstalled.CanTransitionTo(PluginStateUninstalled) {
		t.Fatal("expected uninstalled -> uninstalled to be denied")
	}
	if PluginStateInstalled.CanTransitionTo(PluginStateRunning) {
		t.Fatal("expected installed -> running to be denied")
	}
}

func TestPluginMetrics(t *testing.T) {
	m := PluginMetrics{ExecutionCount: 4, SuccessCount: 3, TotalDurationMs: 200}
	if m.SuccessRate() != 75 {
		t.Fatalf("unexpected success rate: %v", m.SuccessRate())
	}
	if m.AverageDurationMs() != 50 {
		t.Fatalf("unexpected average duration: %v", m.AverageDurationMs())
	}
	if (PluginMetrics{}).SuccessRate() != 0 {
		t.Fatal("expected zero success rate with no executions")
	}
}
