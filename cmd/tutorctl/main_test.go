package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tjfontaine/classroom-llm-gateway/internal/auth"
	"github.com/tjfontaine/classroom-llm-gateway/internal/storage/sqlite"
)

func writeTestConfig(t *testing.T) (configPath, dbPath string) {
	t.Helper()
	dir := t.TempDir()
	dbPath = filepath.Join(dir, "tutor.db")
	configPath = filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf(`
storage:
  type: sqlite
  sqlite:
    path: %s
session:
  secret: cli-secret
  ttl: 1h
`, dbPath)
	if err := os.WriteFile(configPath, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return configPath, dbPath
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return strings.TrimSpace(out.String()), err
}

func TestHashPassword(t *testing.T) {
	out, err := run(t, "hash-password", "correct horse")
	if err != nil {
		t.Fatalf("hash-password error = %v", err)
	}
	if !auth.CheckPassword(out, "correct horse") {
		t.Errorf("hash-password output %q does not verify", out)
	}

	if _, err := run(t, "hash-password"); err == nil {
		t.Error("hash-password without argument error = nil")
	}
}

func TestAddUserAndGrantTokens(t *testing.T) {
	configPath, dbPath := writeTestConfig(t)

	out, err := run(t, "--config", configPath, "add-user",
		"--name", "Ada", "--username", "ada", "--password", "pw", "--admin", "--tokens", "2")
	if err != nil {
		t.Fatalf("add-user error = %v (%s)", err, out)
	}
	if out != "created identity 1 (ada)" {
		t.Errorf("add-user output = %q", out)
	}

	out, err = run(t, "--config", configPath, "grant-tokens", "--user", "1", "--count", "3")
	if err != nil {
		t.Fatalf("grant-tokens error = %v (%s)", err, out)
	}
	if out != "identity 1 now has 5 tokens" {
		t.Errorf("grant-tokens output = %q", out)
	}

	store, err := sqlite.New(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	tok, err := auth.LocalLogin(context.Background(), store, "ada", "pw")
	if err != nil {
		t.Fatalf("LocalLogin() error = %v", err)
	}
	if tok.IdentityID != 1 {
		t.Errorf("LocalLogin() identity = %d, want 1", tok.IdentityID)
	}
}

func TestGrantTokens_Rejects(t *testing.T) {
	configPath, _ := writeTestConfig(t)

	tests := []struct {
		name string
		args []string
	}{
		{name: "zero count", args: []string{"grant-tokens", "--user", "1", "--count", "0"}},
		{name: "missing user flag", args: []string{"grant-tokens", "--count", "1"}},
		{name: "unknown identity", args: []string{"grant-tokens", "--user", "42", "--count", "1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"--config", configPath}, tt.args...)
			if _, err := run(t, args...); err == nil {
				t.Errorf("%v error = nil, want error", tt.args)
			}
		})
	}
}

func TestIssueToken(t *testing.T) {
	configPath, _ := writeTestConfig(t)

	out, err := run(t, "--config", configPath, "issue-token", "--user", "7", "--tenant", "2")
	if err != nil {
		t.Fatalf("issue-token error = %v (%s)", err, out)
	}

	tok, err := auth.NewTokenCodec("cli-secret", time.Hour).Parse(out)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if tok.IdentityID != 7 || tok.TenantID != 2 {
		t.Errorf("Parse() = %+v, want identity 7 tenant 2", tok)
	}
}
