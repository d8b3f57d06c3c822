package config_test

import (
	"strings"
	"testing"

	"budgetline/internal/config"
)

func TestDefaultValidates(t *testing.T) {
	cfg := config.Default("acme")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Company.ID != "acme" {
		t.Fatalf("company id = %q", cfg.Company.ID)
	}
	if _, ok := cfg.RBAC.Roles["owner"]; !ok {
		t.Fatal("default config missing owner role")
	}
}

func TestGenerateDefaultRoundTrip(t *testing.T) {
	raw := config.GenerateDefault("acme")
	cfg, err := config.FromYAML([]byte(raw))
	if err != nil {
		t.Fatalf("parse generated yaml: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("generated config invalid: %v", err)
	}
}

func TestValidateRejectsMissingFields(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "no company id",
			yaml: "company:\n  currency: EUR\n",
			want: "company.id",
		},
		{
			name: "no currency",
			yaml: "company:\n  id: acme\n",
			want: "currency",
		},
		{
			name: "roles without owner",
			yaml: "company:\n  id: acme\n  currency: EUR\nrbac:\n  roles:\n    viewer:\n      permissions: []\n",
			want: "owner",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := config.FromYAML([]byte(tc.yaml))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want mention of %s", err, tc.want)
			}
		})
	}
}

func TestWebhookConfigParsing(t *testing.T) {
	yaml := `
company:
  id: acme
  currency: EUR
webhooks:
  - url: https://example.com/hook
    secret: s3cret
    events: [budget_item.approved, process.approved]
    timeout_seconds: 3
`
	cfg, err := config.FromYAML([]byte(yaml))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(cfg.Webhooks) != 1 {
		t.Fatalf("webhooks = %d, want 1", len(cfg.Webhooks))
	}
	h := cfg.Webhooks[0]
	if h.URL != "https://example.com/hook" || h.TimeoutSeconds != 3 || len(h.Events) != 2 {
		t.Fatalf("webhook parsed wrong: %+v", h)
	}
}
