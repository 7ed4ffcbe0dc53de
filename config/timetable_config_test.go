package config

import "testing"

func TestLoad_MongoPoolDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MongoMaxPoolSize != 50 {
		t.Errorf("MongoMaxPoolSize = %d, want 50", cfg.MongoMaxPoolSize)
	}
	if cfg.MongoMinPoolSize != 5 {
		t.Errorf("MongoMinPoolSize = %d, want 5", cfg.MongoMinPoolSize)
	}
}

func TestLoad_MongoPoolOverrides(t *testing.T) {
	t.Setenv("MONGO_MAX_POOL_SIZE", "120")
	t.Setenv("MONGO_MIN_POOL_SIZE", "10")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MongoMaxPoolSize != 120 {
		t.Errorf("MongoMaxPoolSize = %d, want 120", cfg.MongoMaxPoolSize)
	}
	if cfg.MongoMinPoolSize != 10 {
		t.Errorf("MongoMinPoolSize = %d, want 10", cfg.MongoMinPoolSize)
	}
}
