// refupload ingests one homework's instructor reference material: it
// compiles the instructor solution, runs it on every declared test to
// capture expected outputs and timings, and stores fixtures and test
// definitions for the grading pipeline.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"hwjudge/internal/common/db"
	"hwjudge/internal/common/storage"
	"hwjudge/internal/grader/fixture"
	"hwjudge/internal/grader/repository"
	"hwjudge/internal/grader/sandbox"
	"hwjudge/internal/grader/service"
	"hwjudge/pkg/utils/logger"
)

const defaultConfigPath = "configs/refupload.yaml"

// Manifest describes one homework's material on disk.
type Manifest struct {
	Homework    string         `yaml:"homework"`
	Type        string         `yaml:"type"`
	Solution    string         `yaml:"solution"`
	FixturesDir string         `yaml:"fixturesDir"`
	Tests       []ManifestTest `yaml:"tests"`
}

// ManifestTest declares one test. Stdin may be inline or a file path;
// the file wins when both are set.
type ManifestTest struct {
	TestNum      int    `yaml:"testNum"`
	Description  string `yaml:"description"`
	Stdin        string `yaml:"stdin"`
	StdinFile    string `yaml:"stdinFile"`
	Predecessors []int  `yaml:"predecessors"`
}

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	manifestPath := flag.String("manifest", "", "Path to homework manifest")
	flag.Parse()

	if *manifestPath == "" {
		fmt.Fprintln(os.Stderr, "usage: refupload -manifest <homework.yaml> [-config <config.yaml>]")
		os.Exit(2)
	}

	if err := run(*configPath, *manifestPath); err != nil {
		fmt.Fprintf(os.Stderr, "refupload: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, manifestPath string) error {
	appCfg, err := loadAppConfig(configPath)
	if err != nil {
		return err
	}
	if err := logger.Init(appCfg.Logger); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	req, err := loadManifest(manifestPath)
	if err != nil {
		return err
	}

	mysqlDB, err := db.NewMySQLWithConfig(&appCfg.Database)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer func() {
		_ = mysqlDB.Close()
	}()

	objStorage, err := storage.NewMinIOStorage(appCfg.MinIO)
	if err != nil {
		return fmt.Errorf("init minio: %w", err)
	}

	svc := service.NewReferenceService(
		repository.NewTestCaseRepository(mysqlDB),
		fixture.NewStore(objStorage, appCfg.Grader.FixturesBucket),
		sandbox.NewEngine(appCfg.Sandbox),
		appCfg.Grader.CompileTemplate,
	)
	if err := svc.Ingest(context.Background(), req); err != nil {
		return err
	}
	fmt.Printf("ingested %d tests for %s/%s\n", len(req.Tests), req.Homework, req.Type)
	return nil
}

// loadManifest resolves every file reference relative to the manifest.
func loadManifest(path string) (*service.IngestRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	base := filepath.Dir(path)

	solution, err := os.ReadFile(resolve(base, m.Solution))
	if err != nil {
		return nil, fmt.Errorf("read solution: %w", err)
	}

	fixtures := map[string][]byte{}
	if m.FixturesDir != "" {
		dir := resolve(base, m.FixturesDir)
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("read fixtures dir: %w", err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			content, err := os.ReadFile(filepath.Join(dir, entry.Name()))
			if err != nil {
				return nil, fmt.Errorf("read fixture %s: %w", entry.Name(), err)
			}
			fixtures[entry.Name()] = content
		}
	}

	tests := make([]service.TestDefinition, len(m.Tests))
	for i, t := range m.Tests {
		stdin := t.Stdin
		if t.StdinFile != "" {
			content, err := os.ReadFile(resolve(base, t.StdinFile))
			if err != nil {
				return nil, fmt.Errorf("read stdin of test %d: %w", t.TestNum, err)
			}
			stdin = string(content)
		}
		tests[i] = service.TestDefinition{
			TestNum:      t.TestNum,
			Description:  t.Description,
			Stdin:        stdin,
			Predecessors: t.Predecessors,
		}
	}

	return &service.IngestRequest{
		Homework:     m.Homework,
		Type:         m.Type,
		SolutionName: filepath.Base(m.Solution),
		Solution:     solution,
		Fixtures:     fixtures,
		Tests:        tests,
	}, nil
}

func resolve(base, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}
