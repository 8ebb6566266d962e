package testutil

import (
	"os"
	"testing"
)

const (
	testDBDefaultUser     = "rowmill"
	testDBDefaultPassword = "rowmill"
	testDBDefaultName     = "rowmill"
)

func TestDefaultTestDBConfig(t *testing.T) {
	origHost := os.Getenv("TEST_DB_HOST")
	origPort := os.Getenv("TEST_DB_PORT")
	origUser := os.Getenv("TEST_DB_USER")
	origPassword := os.Getenv("TEST_DB_PASSWORD")
	origName := os.Getenv("TEST_DB_NAME")
	defer func() {
		setOrUnset("TEST_DB_HOST", origHost)
		setOrUnset("TEST_DB_PORT", origPort)
		setOrUnset("TEST_DB_USER", origUser)
		setOrUnset("TEST_DB_PASSWORD", origPassword)
		setOrUnset("TEST_DB_NAME", origName)
	}()

	t.Run("defaults to local test database port 55432", func(t *testing.T) {
		os.Unsetenv("TEST_DB_HOST")
		os.Unsetenv("TEST_DB_PORT")
		os.Unsetenv("TEST_DB_USER")
		os.Unsetenv("TEST_DB_PASSWORD")
		os.Unsetenv("TEST_DB_NAME")

		cfg := DefaultTestDBConfig()
		if cfg.Host != "localhost" {
			t.Errorf("expected Host=localhost, got %s", cfg.Host)
		}
		if cfg.Port != "55432" {
			t.Errorf("expected Port=55432 (test DB), got %s", cfg.Port)
		}
		if cfg.User != testDBDefaultUser || cfg.Password != testDBDefaultPassword || cfg.DBName != testDBDefaultName {
			t.Errorf("expected rowmill defaults, got %+v", cfg)
		}
	})

	t.Run("respects TEST_DB_PORT environment variable", func(t *testing.T) {
		os.Setenv("TEST_DB_HOST", "postgres")
		os.Setenv("TEST_DB_PORT", "5432")
		os.Setenv("TEST_DB_USER", testDBDefaultUser)
		os.Setenv("TEST_DB_PASSWORD", testDBDefaultPassword)
		os.Setenv("TEST_DB_NAME", testDBDefaultName)

		cfg := DefaultTestDBConfig()
		if cfg.Host != "postgres" {
			t.Errorf("expected Host=postgres, got %s", cfg.Host)
		}
		if cfg.Port != "5432" {
			t.Errorf("expected Port=5432 (CI DB), got %s", cfg.Port)
		}
	})
}

func TestJobRequestBuilderDefaultsAreValid(t *testing.T) {
	req := NewJobRequest().Build()
	if err := req.Validate(); err != nil {
		t.Fatalf("default job request should validate, got: %v", err)
	}

	req = SentimentJobRequest("acme")
	if err := req.Validate(); err != nil {
		t.Fatalf("sentiment preset should validate, got: %v", err)
	}
	if len(req.Prompts) != 2 {
		t.Fatalf("expected 2 prompts, got %d", len(req.Prompts))
	}
}

func setOrUnset(key, value string) {
	if value == "" {
		os.Unsetenv(key)
	} else {
		os.Setenv(key, value)
	}
}
