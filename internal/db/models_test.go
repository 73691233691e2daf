package db

import (
	"encoding/json"
	"testing"
)

func TestValidChannel(t *testing.T) {
	for _, ch := range []string{ChannelInApp, ChannelEmail, ChannelWebhook} {
		if !ValidChannel(ch) {
			t.Errorf("ValidChannel(%q) = false", ch)
		}
	}
	for _, ch := range []string{"sms", "push", "", "INAPP"} {
		if ValidChannel(ch) {
			t.Errorf("ValidChannel(%q) = true", ch)
		}
	}
}

func TestValidPriority(t *testing.T) {
	for _, p := range []string{PriorityCritical, PriorityNormal, PriorityLow} {
		if !ValidPriority(p) {
			t.Errorf("ValidPriority(%q) = false", p)
		}
	}
	if ValidPriority("urgent") {
		t.Error("ValidPriority(\"urgent\") = true")
	}
}

func TestRuleConfig(t *testing.T) {
	rule := &NotificationRule{
		ChannelConfig: json.RawMessage(`{
			"email_to": "pm@example.com",
			"webhook_url": "https://hooks.example.com/zn",
			"webhook_headers": {"X-Signature": "abc"}
		}`),
	}

	cfg, err := rule.Config()
	if err != nil {
		t.Fatalf("Config() error: %v", err)
	}
	if cfg.EmailTo != "pm@example.com" {
		t.Errorf("email_to = %q", cfg.EmailTo)
	}
	if cfg.WebhookURL != "https://hooks.example.com/zn" {
		t.Errorf("webhook_url = %q", cfg.WebhookURL)
	}
	if cfg.WebhookHeaders["X-Signature"] != "abc" {
		t.Errorf("webhook_headers = %v", cfg.WebhookHeaders)
	}
}

func TestRuleConfigEmpty(t *testing.T) {
	rule := &NotificationRule{}

	cfg, err := rule.Config()
	if err != nil {
		t.Fatalf("empty config must not error, got %v", err)
	}
	if cfg.EmailTo != "" || cfg.WebhookURL != "" {
		t.Error("empty config bag produced values")
	}
}

func TestRuleConfigMalformed(t *testing.T) {
	rule := &NotificationRule{ChannelConfig: json.RawMessage(`{broken`)}

	if _, err := rule.Config(); err == nil {
		t.Fatal("expected error for malformed config")
	}
}
