package config

import "testing"

func TestLoad_RequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected Load to fail without JWT_SECRET")
	}
}

func TestLoad_EncryptionKeyIsSeparateFromSigningKey(t *testing.T) {
	t.Setenv("JWT_SECRET", "signing-secret")
	t.Setenv("ENCRYPTION_KEY", "at-rest-secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected Load to succeed: %v", err)
	}

	if cfg.JWT.Secret != "signing-secret" {
		t.Fatalf("unexpected signing secret %q", cfg.JWT.Secret)
	}
	if cfg.Encryption.Key != "at-rest-secret" {
		t.Fatalf("unexpected encryption key %q", cfg.Encryption.Key)
	}
}
