package config

import (
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Cache.TTL != 60*time.Second {
		t.Errorf("cache ttl = %v", cfg.Cache.TTL)
	}
	if !cfg.Cache.Normalize {
		t.Error("normalization should default on")
	}
	if cfg.Semantic.Enable {
		t.Error("semantic cache should default off")
	}
	if cfg.Semantic.Threshold != 0.92 {
		t.Errorf("threshold = %v", cfg.Semantic.Threshold)
	}
	if cfg.Tenancy.Enable {
		t.Error("tenancy should default off")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ROUTER_SERVER_PORT", "9090")
	t.Setenv("ROUTER_CACHE_URL", "redis://cache.internal:6380/1")
	t.Setenv("ROUTER_SEMANTIC_ENABLE", "true")
	t.Setenv("ROUTER_SEMANTIC_PROVIDER", "pgvector")
	t.Setenv("ROUTER_SEMANTIC_PG_DSN", "postgres://router@db/router")
	t.Setenv("ROUTER_TENANCY_ENABLE", "true")
	t.Setenv("ROUTER_TENANCY_TENANTS_FILE", "/etc/router/tenants.yaml")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Cache.URL != "redis://cache.internal:6380/1" {
		t.Errorf("cache url = %q", cfg.Cache.URL)
	}
	if cfg.Semantic.Provider != "pgvector" {
		t.Errorf("provider = %q", cfg.Semantic.Provider)
	}
	if cfg.Tenancy.TenantsFile != "/etc/router/tenants.yaml" {
		t.Errorf("tenants file = %q", cfg.Tenancy.TenantsFile)
	}
}

func TestValidation(t *testing.T) {
	t.Run("bad port", func(t *testing.T) {
		t.Setenv("ROUTER_SERVER_PORT", "70000")
		if _, err := Load(); err == nil {
			t.Fatal("expected port validation error")
		}
	})

	t.Run("bad provider", func(t *testing.T) {
		t.Setenv("ROUTER_SEMANTIC_ENABLE", "true")
		t.Setenv("ROUTER_SEMANTIC_PROVIDER", "pinecone")
		if _, err := Load(); err == nil {
			t.Fatal("expected provider validation error")
		}
	})

	t.Run("bad threshold", func(t *testing.T) {
		t.Setenv("ROUTER_SEMANTIC_ENABLE", "true")
		t.Setenv("ROUTER_SEMANTIC_THRESHOLD", "1.5")
		if _, err := Load(); err == nil {
			t.Fatal("expected threshold validation error")
		}
	})

	t.Run("pgvector needs dsn", func(t *testing.T) {
		t.Setenv("ROUTER_SEMANTIC_ENABLE", "true")
		t.Setenv("ROUTER_SEMANTIC_PROVIDER", "pgvector")
		if _, err := Load(); err == nil {
			t.Fatal("expected pg_dsn validation error")
		}
	})
}

func TestAllowedOrigins(t *testing.T) {
	c := CORSConfig{AllowOrigins: "https://a.example, https://b.example ,"}
	got := c.AllowedOrigins()
	if len(got) != 2 || got[0] != "https://a.example" || got[1] != "https://b.example" {
		t.Errorf("AllowedOrigins = %v", got)
	}
}
