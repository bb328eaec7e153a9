package main

import (
	"bytes"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/xcalificator/grader/internal/model"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cmd := serveCmd()
	if err := cmd.ParseFlags([]string{"--unknown-type-policy", "PENDING", "--db-driver", "postgres",
		"--db", "postgres://grader@localhost/grader"}); err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}

	cfg, err := loadConfig(viperForCmd(cmd))
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Grading.UnknownTypePolicy != model.UnknownAsPending {
		t.Errorf("UnknownTypePolicy = %q", cfg.Grading.UnknownTypePolicy)
	}
	if cfg.DBDriver != "postgres" || cfg.Grading.PromptVariant != "standard" || cfg.BlobDriver != "fs" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	t.Chdir(t.TempDir())
	tests := [][]string{
		{"--unknown-type-policy", "skip"},
		{"--prompt-variant", "harsh"},
		{"--db-driver", "mysql"},
		{"--max-image-dim", "32"},
		{"--blob-driver", "ftp"},
	}
	for _, args := range tests {
		t.Run(strings.Join(args, "="), func(t *testing.T) {
			cmd := serveCmd()
			if err := cmd.ParseFlags(args); err != nil {
				t.Fatalf("ParseFlags: %v", err)
			}
			if _, err := loadConfig(viperForCmd(cmd)); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("GRADER_LLM_MODEL", "qwen2.5")
	t.Setenv("GRADER_DEFER_OPEN_ON_SUBMIT", "true")

	cfg, err := loadConfig(viperForCmd(serveCmd()))
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.LLMModel != "qwen2.5" || !cfg.Grading.DeferOpenOnSubmit {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestHashToken(t *testing.T) {
	cmd := hashTokenCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"s3cret"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	hash := strings.TrimSpace(out.String())
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret")); err != nil {
		t.Errorf("hash does not match token: %v", err)
	}
}
