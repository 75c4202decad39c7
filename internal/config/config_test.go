package config

import "testing"

func TestTaxonomyRuleMatches(t *testing.T) {
	thirteen := 13
	one := 1
	rule := TaxonomyRule{Badge: "climate-action", SDG: &thirteen}
	if !rule.Matches(&thirteen, "", "local") {
		t.Fatalf("expected sdg match")
	}
	if rule.Matches(&one, "", "local") || rule.Matches(nil, "", "local") {
		t.Fatalf("expected sdg mismatch")
	}

	rule = TaxonomyRule{Badge: "event-goer", Type: "event"}
	if !rule.Matches(nil, "", "event") || rule.Matches(nil, "", "local") {
		t.Fatalf("type rule mismatched")
	}

	rule = TaxonomyRule{Badge: "globe-trotter", Continent: "Europe"}
	if !rule.Matches(nil, "europe", "online") {
		t.Fatalf("continent match should be case-insensitive")
	}

	// a rule with no criteria matches nothing
	rule = TaxonomyRule{Badge: "empty"}
	if rule.Matches(&thirteen, "Europe", "event") {
		t.Fatalf("empty rule must not match")
	}
}

func TestValidateCatchesBadConfig(t *testing.T) {
	cfg := Default("org-1")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	cfg = Default("org-1")
	cfg.Rewards.FirstApplicationBadge = "no-such-badge"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected unknown first_application_badge error")
	}

	cfg = Default("org-1")
	bad := 42
	cfg.Rewards.Taxonomy = append(cfg.Rewards.Taxonomy, TaxonomyRule{Badge: "climate-action", SDG: &bad})
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected sdg range error")
	}

	cfg = Default("org-1")
	cfg.Org.ID = ""
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected missing org id error")
	}
}

func TestDefaultTemplateRoundTrip(t *testing.T) {
	cfg, err := FromYAML([]byte(GenerateDefault("org-1")))
	if err != nil {
		t.Fatalf("default template does not parse: %v", err)
	}
	if cfg.Org.ID != "org-1" {
		t.Fatalf("org id lost: %q", cfg.Org.ID)
	}
	if len(cfg.Badges.Catalog) == 0 || cfg.Rewards.FirstApplicationBadge == "" {
		t.Fatalf("default catalog incomplete")
	}
}
