package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("HISTORY_QUEUE_SIZE", "-1")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Port != "9090" {
		t.Errorf("Port = %q, want 9090", cfg.Port)
	}
	if cfg.History.QueueSize != 256 {
		t.Errorf("QueueSize = %d, want fallback 256", cfg.History.QueueSize)
	}
	if cfg.History.DefaultLimit != 50 {
		t.Errorf("DefaultLimit = %d, want 50", cfg.History.DefaultLimit)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, want debug", cfg.LogLevel)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
	}
	if cfg.RateLimit.Window != time.Minute {
		t.Errorf("RateLimit.Window = %v, want 1m", cfg.RateLimit.Window)
	}
}

func TestValidateRejectsUnknownFamily(t *testing.T) {
	t.Setenv("DEFAULT_MODEL_FAMILY", "mainframe")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown model family")
	}
}

func TestLoadCatalogEmbedded(t *testing.T) {
	cat, err := LoadCatalog("")
	if err != nil {
		t.Fatalf("LoadCatalog() error: %v", err)
	}
	if cat.DefaultAgent != "chat-assistant" {
		t.Errorf("DefaultAgent = %q", cat.DefaultAgent)
	}
	if len(cat.Agents) != 3 {
		t.Fatalf("len(Agents) = %d, want 3", len(cat.Agents))
	}

	var compliance bool
	for _, a := range cat.Agents {
		if a.ID == "compliance-expert" {
			compliance = a.RequiresAuth
		}
		if a.ID == "chat-assistant" {
			if a.MaxSteps != 5 {
				t.Errorf("chat-assistant MaxSteps = %d, want 5", a.MaxSteps)
			}
			if a.AuthenticatedSystemPrompt == "" {
				t.Error("chat-assistant should carry an authenticated prompt")
			}
		}
	}
	if !compliance {
		t.Error("compliance-expert should require auth")
	}

	if len(cat.Tools) != 2 {
		t.Fatalf("len(Tools) = %d, want 2", len(cat.Tools))
	}
	if got := cat.Tools[0].RequiredNames(); len(got) != 3 {
		t.Errorf("analyzeFile required = %v", got)
	}
}

func TestLoadCatalogYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents.yaml")
	data := `defaultAgent: solo
agents:
  - id: solo
    name: Solo
    model: claude-3-5-sonnet-latest
    temperature: 1.2
    maxSteps: 2
    systemPrompt: hi
    tools: []
tools: []
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cat, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("LoadCatalog() error: %v", err)
	}
	if cat.DefaultAgent != "solo" || len(cat.Agents) != 1 {
		t.Fatalf("unexpected catalog: %+v", cat)
	}
	if cat.Agents[0].Temperature != 1.2 || cat.Agents[0].MaxSteps != 2 {
		t.Errorf("agent = %+v", cat.Agents[0])
	}
}

func TestLoadCatalogMissingFile(t *testing.T) {
	if _, err := LoadCatalog(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected error for missing catalog file")
	}
}
