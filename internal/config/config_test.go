package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("GEMINI_MODEL", "")
	t.Setenv("CHAT_HISTORY_MESSAGES", "")
	t.Setenv("SESSION_STORE", "")
	t.Setenv("CHAT_TIMEOUT", "")

	cfg := Load()
	if cfg.LLMProvider != ProviderGemini {
		t.Fatalf("expected default provider gemini, got %q", cfg.LLMProvider)
	}
	if cfg.GeminiModel != "gemini-1.5-flash-latest" {
		t.Fatalf("expected default gemini model, got %q", cfg.GeminiModel)
	}
	if cfg.ChatHistoryMessages != 20 {
		t.Fatalf("expected default history window 20, got %d", cfg.ChatHistoryMessages)
	}
	if cfg.SessionStore != StoreMemory {
		t.Fatalf("expected memory session store, got %q", cfg.SessionStore)
	}
	if cfg.ChatTimeout != 60*time.Second {
		t.Fatalf("expected 60s chat timeout, got %s", cfg.ChatTimeout)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "HuggingFace")
	t.Setenv("HF_MODEL", "mistralai/Mistral-7B-Instruct-v0.2")
	t.Setenv("LLM_TEMPERATURE", "0.9")
	t.Setenv("CHAT_TIMEOUT", "15")
	t.Setenv("SESSION_TTL", "2h")
	t.Setenv("PROFILE_WATCH", "false")

	cfg := Load()
	if cfg.LLMProvider != ProviderHuggingFace {
		t.Fatalf("expected provider override, got %q", cfg.LLMProvider)
	}
	if cfg.ActiveModel() != "mistralai/Mistral-7B-Instruct-v0.2" {
		t.Fatalf("unexpected active model %q", cfg.ActiveModel())
	}
	if cfg.LLMTemperature != 0.9 {
		t.Fatalf("expected temperature 0.9, got %v", cfg.LLMTemperature)
	}
	if cfg.ChatTimeout != 15*time.Second {
		t.Fatalf("expected plain seconds to parse, got %s", cfg.ChatTimeout)
	}
	if cfg.SessionTTL != 2*time.Hour {
		t.Fatalf("expected 2h ttl, got %s", cfg.SessionTTL)
	}
	if cfg.ProfileWatch {
		t.Fatalf("expected profile watch disabled")
	}
}

func TestValidateRequiresProviderCredentials(t *testing.T) {
	cfg := Config{LLMProvider: ProviderGemini, SessionStore: StoreMemory, ProfilePath: "profile.json"}
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "GOOGLE_API_KEY") {
		t.Fatalf("expected missing GOOGLE_API_KEY error, got %v", err)
	}

	cfg.GoogleAPIKey = "key"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	cfg.LLMProvider = ProviderHuggingFace
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "HF_API_TOKEN") {
		t.Fatalf("expected missing HF_API_TOKEN error, got %v", err)
	}
}

func TestValidateRejectsUnknownEnums(t *testing.T) {
	cfg := Config{LLMProvider: "openai", SessionStore: "redis", ProfilePath: "p.json"}
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected error")
	}
	for _, want := range []string{"LLM_PROVIDER", "SESSION_STORE"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %s in error, got %v", want, err)
		}
	}
}
