package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"metaprop/internal/config"
	"metaprop/internal/testsupport"
)

const (
	personID      = "0b8f4c7e-5d7e-4f1a-9b35-2c1d0f6a7e11"
	publicationID = "7d1e2f3a-4b5c-4d6e-8f90-a1b2c3d4e5f6"
)

const seedYAML = `
records:
  - id: ` + personID + `
    entity_type: Person
    fields:
      title: ["Ada Lovelace"]
  - id: ` + publicationID + `
    entity_type: Publication
    fields:
      title: ["Notes on the Analytical Engine"]
    relations:
      - type: author
        target: ` + personID + `
`

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	seedPath   string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithEnhancers(
		config.Enhancer{Name: "person-label", Type: config.EnhancerTypeCompose, EntityTypes: []string{"Person"}, Fields: []string{"title"}, Separator: " ", TargetField: "label"},
		config.Enhancer{Name: "author-title", Type: config.EnhancerTypeRelated, EntityTypes: []string{"Publication"}, Relation: "author", SourceField: "title", TargetField: "author_title"},
	))
	base := testsupport.BaseDir(cfg)
	t.Setenv("HOME", filepath.Join(base, "home"))

	configPath := filepath.Join(base, "metaprop.toml")
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{
		cfg:        cfg,
		configPath: configPath,
		seedPath:   testsupport.WriteFile(t, filepath.Join(base, "seed.yaml"), seedYAML),
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func requireNotContains(t *testing.T, output, substr string) {
	t.Helper()
	if strings.Contains(output, substr) {
		t.Fatalf("expected %q not to contain %q", output, substr)
	}
}
