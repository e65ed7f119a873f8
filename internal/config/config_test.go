package config

import (
	"testing"
	"time"

	"github.com/dealroom/backend/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TOKEN_TTL_HOURS", "")
	t.Setenv("ROTATION_LIMIT", "")
	t.Setenv("ADMIN_EMAILS", "")
	t.Setenv("MIGRATIONS_DIR", "")
	t.Setenv("CORS_ORIGINS", "")

	cfg := Load()
	if cfg.TokenTTL != 7*24*time.Hour {
		t.Errorf("TokenTTL = %s, want 168h", cfg.TokenTTL)
	}
	if cfg.RotationLimit != 3 {
		t.Errorf("RotationLimit = %d, want 3", cfg.RotationLimit)
	}
	if cfg.RotationWindow != time.Hour {
		t.Errorf("RotationWindow = %s, want 1h", cfg.RotationWindow)
	}
	if cfg.MigrationsDir != "" {
		t.Errorf("MigrationsDir = %q, want empty so the embedded schema is used", cfg.MigrationsDir)
	}
	if cfg.CORSOrigins != "*" {
		t.Errorf("CORSOrigins = %q, want *", cfg.CORSOrigins)
	}
}

func TestLoadTrimsPublicBaseURL(t *testing.T) {
	t.Setenv("PUBLIC_BASE_URL", "https://deals.example.com/")
	t.Setenv("STORE_DRIVER", StoreDriverMemory)

	cfg := Load()
	if cfg.PublicBaseURL != "https://deals.example.com" {
		t.Errorf("PublicBaseURL = %q", cfg.PublicBaseURL)
	}
	if cfg.StoreDriver != StoreDriverMemory {
		t.Errorf("StoreDriver = %q, want memory", cfg.StoreDriver)
	}
}

func TestParseEmailList(t *testing.T) {
	tests := []struct {
		input    string
		expected []string
	}{
		{"", nil},
		{"a@x.com", []string{"a@x.com"}},
		{" A@X.com , ,b@y.org", []string{"a@x.com", "b@y.org"}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseEmailList(tt.input)
			if len(got) != len(tt.expected) {
				t.Fatalf("parseEmailList(%q) = %v, want %v", tt.input, got, tt.expected)
			}
			for i := range got {
				if got[i] != tt.expected[i] {
					t.Errorf("parseEmailList(%q)[%d] = %q, want %q", tt.input, i, got[i], tt.expected[i])
				}
			}
		})
	}
}

func TestIsAdmin(t *testing.T) {
	cfg := &Config{AdminEmails: []string{"admin@x.com"}}
	if !cfg.IsAdmin(" Admin@X.com") {
		t.Error("expected admin match to be case-insensitive")
	}
	if cfg.IsAdmin("b@x.com") {
		t.Error("unexpected admin match")
	}
}

func TestGetEnvIntFallsBackOnGarbage(t *testing.T) {
	t.Setenv("DEALROOM_TEST_INT", "seven")
	if v := getEnvInt("DEALROOM_TEST_INT", 7); v != 7 {
		t.Errorf("getEnvInt = %d, want fallback 7", v)
	}
}

func TestValidateWarnsOnNonBcryptAdminHash(t *testing.T) {
	hash, err := auth.HashPassword("s3cret")
	require.NoError(t, err)

	tests := []struct {
		name  string
		hash  string
		warns bool
	}{
		{"bcrypt", hash, false},
		{"plaintext", "s3cret", true},
		{"sha256 hex", "2bb80d537b1da3e38bd30361aa855686bde0eacd7162fef6a25fe97bf527a25b", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zap.WarnLevel)
			cfg := &Config{AdminPasswordHash: tt.hash}
			cfg.Validate(zap.New(core))

			found := logs.FilterMessage("ADMIN_PASSWORD_HASH is not a bcrypt hash, admin login disabled").Len()
			if tt.warns {
				assert.Equal(t, 1, found)
			} else {
				assert.Zero(t, found)
			}
		})
	}
}
