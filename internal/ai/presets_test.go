package ai

import "testing"

func TestPresetCatalogOpenRouter(t *testing.T) {
	m, ok := PresetCatalog("openrouter")
	if !ok || len(m) == 0 {
		t.Fatalf("expected openrouter preset to be available")
	}
	if _, exists := m["openai/gpt-4o-mini"]; !exists {
		t.Fatalf("expected gpt-4o-mini in openrouter preset")
	}
	if _, exists := m["gpt-3.5-turbo"]; exists {
		t.Fatalf("openai-direct model leaked into openrouter preset")
	}
}

func TestPresetCatalogUnknownProvider(t *testing.T) {
	if _, ok := PresetCatalog("anthropic"); ok {
		t.Fatalf("expected no preset for unregistered provider")
	}
}

func TestPresetSurvivesOverride(t *testing.T) {
	saved := Catalog()
	defer OverrideCatalog(saved)

	OverrideCatalog(map[string]ModelInfo{"x": {Name: "x"}})
	if _, ok := LookupModel("gpt-3.5-turbo"); ok {
		t.Fatalf("override should have replaced the catalog")
	}
	m, ok := PresetCatalog("openai")
	if !ok || m["gpt-3.5-turbo"].Name == "" {
		t.Fatalf("expected built-in openai preset after override")
	}
}

func TestEstimateCostUSD(t *testing.T) {
	cost, ok := EstimateCostUSD("gpt-3.5-turbo", 2000, 1000)
	if !ok {
		t.Fatalf("expected known model")
	}
	want := 2*0.0005 + 1*0.0015
	if cost < want-1e-9 || cost > want+1e-9 {
		t.Fatalf("cost=%f, want %f", cost, want)
	}
	if _, ok := EstimateCostUSD("no-such-model", 1, 1); ok {
		t.Fatalf("expected unknown model")
	}
}

func TestDefaultModel(t *testing.T) {
	if DefaultModel("") != "gpt-3.5-turbo" || DefaultModel("local") != "llama3:latest" {
		t.Fatalf("unexpected defaults")
	}
}
