package infra

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{
		"APP_ENV", "PORT", "PROJECTS_DIR", "GEMINI_API_KEY",
		"CACHE_DIR", "CACHE_SIZE", "JOB_RETENTION_HOURS",
	} {
		t.Setenv(key, "")
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() unexpected error: %v", err)
	}
	if cfg.AppEnv != "development" {
		t.Errorf("AppEnv = %q, want development", cfg.AppEnv)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.ProjectsDir != "./projects" {
		t.Errorf("ProjectsDir = %q, want ./projects", cfg.ProjectsDir)
	}
	if cfg.CacheSize != 100 {
		t.Errorf("CacheSize = %d, want 100", cfg.CacheSize)
	}
	if cfg.JobRetention != 24*time.Hour {
		t.Errorf("JobRetention = %v, want 24h", cfg.JobRetention)
	}
	if cfg.HTTPReadTimeout != 15*time.Second {
		t.Errorf("HTTPReadTimeout = %v, want 15s", cfg.HTTPReadTimeout)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("PORT", "9090")
	t.Setenv("PROJECTS_DIR", "/data/projects")
	t.Setenv("CACHE_SIZE", "7")
	t.Setenv("JOB_RETENTION_HOURS", "2")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() unexpected error: %v", err)
	}
	if cfg.AppEnv != "production" {
		t.Errorf("AppEnv = %q, want production", cfg.AppEnv)
	}
	if cfg.Port != "9090" {
		t.Errorf("Port = %q, want 9090", cfg.Port)
	}
	if cfg.ProjectsDir != "/data/projects" {
		t.Errorf("ProjectsDir = %q, want /data/projects", cfg.ProjectsDir)
	}
	if cfg.CacheSize != 7 {
		t.Errorf("CacheSize = %d, want 7", cfg.CacheSize)
	}
	if cfg.JobRetention != 2*time.Hour {
		t.Errorf("JobRetention = %v, want 2h", cfg.JobRetention)
	}
}

func TestLoadConfigRejectsBadCacheSize(t *testing.T) {
	t.Setenv("CACHE_SIZE", "-1")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("LoadConfig() expected error for negative CACHE_SIZE")
	}
}
