package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/getmockd/interceptd/pkg/mocks"
	"github.com/getmockd/interceptd/pkg/rewrite"
	"github.com/getmockd/interceptd/pkg/watch"
)

// decodeFile parses a JSON or YAML config file into v. The format is chosen
// by extension; anything that is not .yaml/.yml is treated as JSON.
func decodeFile(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, v); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}
	return nil
}

// Load reads the root options file and its referenced mocks and rewrites
// files, and compiles everything into a Snapshot.
//
// A missing or invalid mocks/rewrites file degrades to an empty rule set
// for that concern with a warning; only an unreadable root file or an
// uncompilable pattern is an error (callers fall back to EmptySnapshot).
func Load(path string, log *slog.Logger) (*Snapshot, error) {
	var opts Options
	if err := decodeFile(path, &opts); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	baseDir := filepath.Dir(path)

	watchList, err := watch.NewList(opts.URLsToWatch)
	if err != nil {
		return nil, err
	}

	mockSet, err := loadMocks(baseDir, opts.MocksFile, log)
	if err != nil {
		return nil, err
	}

	rewriteEngine, err := loadRewrites(baseDir, opts.RewritesFile, log)
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		Path:     path,
		BaseDir:  baseDir,
		Options:  opts,
		Watch:    watchList,
		Mocks:    mockSet,
		Rewrites: rewriteEngine,
		Throttle: opts.Throttling.engineConfig(),
		LoadedAt: time.Now(),
	}, nil
}

// loadMocks reads the mocks file. Missing or unparseable files degrade to
// an empty set.
func loadMocks(baseDir, file string, log *slog.Logger) (*mocks.Set, error) {
	if file == "" {
		return mocks.NewSet(nil)
	}
	path := resolve(baseDir, file)
	var mf MocksFile
	if err := decodeFile(path, &mf); err != nil {
		log.Warn("failed to load mocks file, continuing without mocks",
			"file", path, "error", err)
		return mocks.NewSet(nil)
	}
	set, err := mocks.NewSet(mf.Responses)
	if err != nil {
		return nil, err
	}
	log.Info("loaded mock definitions", "file", path, "count", set.Len())
	return set, nil
}

// loadRewrites reads the rewrites file. Missing or unparseable files
// degrade to an empty engine.
func loadRewrites(baseDir, file string, log *slog.Logger) (*rewrite.Engine, error) {
	if file == "" {
		return rewrite.NewEngine(nil)
	}
	path := resolve(baseDir, file)
	var rf RewritesFile
	if err := decodeFile(path, &rf); err != nil {
		log.Warn("failed to load rewrites file, continuing without rewrites",
			"file", path, "error", err)
		return rewrite.NewEngine(nil)
	}
	rules := make([]rewrite.Rule, 0, len(rf.Rewrites))
	for _, rc := range rf.Rewrites {
		rules = append(rules, rewrite.Rule{In: rc.In.URL, Out: rc.Out.URL})
	}
	engine, err := rewrite.NewEngine(rules)
	if err != nil {
		return nil, err
	}
	log.Info("loaded rewrite rules", "file", path, "count", engine.Len())
	return engine, nil
}

// resolve joins a possibly relative config-referenced path with the root
// file's directory.
func resolve(baseDir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}
