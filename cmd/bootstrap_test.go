package cmd

import (
	"errors"
	"testing"

	"github.com/vibast-solutions/ms-go-integrations/app/gateway"
	"github.com/vibast-solutions/ms-go-integrations/config"
)

func TestGatewayRegistryWithoutSandboxLeavesMethodsUnserved(t *testing.T) {
	cfg := &config.Config{
		App:      config.AppConfig{Env: config.EnvProduction},
		Stripe:   config.StripeConfig{SecretKey: "sk_live_test"},
		Payments: config.PaymentsConfig{Methods: []config.MethodConfig{{ID: "credit_card"}, {ID: "paypal"}, {ID: "bank_transfer"}}},
	}

	registry := newGatewayRegistry(cfg)

	adapter, err := registry.ForMethod("credit_card")
	if err != nil {
		t.Fatalf("expected credit_card adapter, got %v", err)
	}
	if adapter.Name() != "stripe" {
		t.Fatalf("expected stripe for credit_card, got %s", adapter.Name())
	}
	for _, method := range []string{"paypal", "bank_transfer"} {
		if _, err := registry.ForMethod(method); !errors.Is(err, gateway.ErrMethodNotSupported) {
			t.Fatalf("%s: expected method not supported, got %v", method, err)
		}
	}
}

func TestGatewayRegistrySandboxServesRemainingMethods(t *testing.T) {
	cfg := &config.Config{
		App:      config.AppConfig{Env: config.EnvDevelopment},
		Stripe:   config.StripeConfig{SecretKey: "sk_test"},
		Sandbox:  config.SandboxConfig{Enabled: true},
		Payments: config.PaymentsConfig{Methods: []config.MethodConfig{{ID: "credit_card"}, {ID: "paypal"}}},
	}

	registry := newGatewayRegistry(cfg)

	adapter, err := registry.ForMethod("paypal")
	if err != nil {
		t.Fatalf("expected paypal adapter, got %v", err)
	}
	if adapter.Name() != "sandbox" {
		t.Fatalf("expected sandbox for paypal, got %s", adapter.Name())
	}
	card, _ := registry.ForMethod("credit_card")
	if card.Name() != "stripe" {
		t.Fatalf("expected stripe to win credit_card, got %s", card.Name())
	}
}
