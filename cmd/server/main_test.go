package main

import (
	"testing"

	"inventario/backend/internal/config"
)

func TestValidateSecurityConfig(t *testing.T) {
	cases := []struct {
		name    string
		cfg     config.Config
		wantErr bool
	}{
		{"missing credentials", config.Config{}, true},
		{"short password", config.Config{AdminPassword: "short"}, true},
		{"weak password", config.Config{AdminPassword: "password"}, true},
		{"weak password mixed case", config.Config{AdminPassword: "PassWord"}, true},
		{"good password", config.Config{AdminPassword: "a-long-enough-secret"}, false},
		{"bcrypt hash", config.Config{AdminPasswordHash: "$2a$10$abcdefghijklmnopqrstuv"}, false},
		{"non-bcrypt hash", config.Config{AdminPasswordHash: "sha256:deadbeef"}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateSecurityConfig(tc.cfg)
			if tc.wantErr && err == nil {
				t.Fatalf("expected error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
