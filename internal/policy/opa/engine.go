package opa

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"
)

// DecisionQuery is the rule every loaded policy set must define.
const DecisionQuery = "data.kfocus.limits.decision"

//go:embed policies/*.rego
var builtinPolicies embed.FS

// Config configures where policies come from.
type Config struct {
	// PolicyDir, when set and non-empty, replaces the built-in policies.
	PolicyDir string
}

// Engine wraps OPA rego engine for policy evaluation
type Engine struct {
	config Config
	logger zerolog.Logger

	mu            sync.RWMutex
	decisionQuery rego.PreparedEvalQuery
	modules       map[string]*ast.Module
}

// Decision is the limit decision returned by the policy.
type Decision struct {
	ShouldBlock bool  `json:"should_block"`
	Used        int64 `json:"used"`
	Limit       int64 `json:"limit"`
}

// NewEngine creates a new OPA engine
func NewEngine(config Config, logger zerolog.Logger) (*Engine, error) {
	e := &Engine{
		config: config,
		logger: logger.With().Str("component", "opa").Logger(),
	}

	if err := e.Reload(); err != nil {
		return nil, err
	}

	e.logger.Info().Str("policy_dir", config.PolicyDir).Int("modules", len(e.modules)).Msg("OPA engine initialized")

	return e, nil
}

// loadPolicies parses policy modules from disk, or the built-in set when no
// directory is configured.
func (e *Engine) loadPolicies() (map[string]*ast.Module, error) {
	if e.config.PolicyDir == "" {
		return loadFS(builtinPolicies, "policies")
	}

	info, err := os.Stat(e.config.PolicyDir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat policy dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("policy dir %s is not a directory", e.config.PolicyDir)
	}

	modules, err := loadFS(os.DirFS(e.config.PolicyDir), ".")
	if err != nil {
		return nil, err
	}
	if len(modules) == 0 {
		e.logger.Warn().Str("policy_dir", e.config.PolicyDir).Msg("No policy files found, using built-in policies")
		return loadFS(builtinPolicies, "policies")
	}
	return modules, nil
}

func loadFS(fsys fs.FS, dir string) (map[string]*ast.Module, error) {
	files, err := fs.Glob(fsys, filepath.ToSlash(filepath.Join(dir, "*.rego")))
	if err != nil {
		return nil, fmt.Errorf("failed to glob policy files: %w", err)
	}

	modules := make(map[string]*ast.Module, len(files))
	for _, file := range files {
		content, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("failed to read policy file %s: %w", file, err)
		}

		module, err := ast.ParseModule(file, string(content))
		if err != nil {
			return nil, fmt.Errorf("failed to parse policy file %s: %w", file, err)
		}
		modules[file] = module
	}
	return modules, nil
}

// prepareDecisionQuery prepares the limit decision query
func prepareDecisionQuery(modules map[string]*ast.Module) (rego.PreparedEvalQuery, error) {
	names := make([]string, 0, len(modules))
	for name := range modules {
		names = append(names, name)
	}
	sort.Strings(names)

	opts := []func(*rego.Rego){rego.Query(DecisionQuery)}
	for _, name := range names {
		opts = append(opts, rego.Module(name, modules[name].String()))
	}

	return rego.New(opts...).PrepareForEval(context.Background())
}

// Evaluate evaluates the limit decision for the given facts
func (e *Engine) Evaluate(ctx context.Context, input map[string]interface{}) (*Decision, error) {
	startTime := time.Now()

	e.mu.RLock()
	query := e.decisionQuery
	e.mu.RUnlock()

	results, err := query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("decision query evaluation failed: %w", err)
	}

	e.logger.Debug().Dur("duration_ms", time.Since(startTime)).Msg("Decision query evaluated")

	if len(results) == 0 {
		return nil, fmt.Errorf("no results from decision query")
	}
	if len(results[0].Expressions) == 0 {
		return nil, fmt.Errorf("no expressions in decision query result")
	}

	resultBytes, err := json.Marshal(results[0].Expressions[0].Value)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal decision: %w", err)
	}

	var decision Decision
	if err := json.Unmarshal(resultBytes, &decision); err != nil {
		return nil, fmt.Errorf("failed to unmarshal decision: %w", err)
	}

	return &decision, nil
}

// Reload reloads all policies and re-prepares the decision query. On
// failure the previously prepared query stays in effect.
func (e *Engine) Reload() error {
	modules, err := e.loadPolicies()
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}

	query, err := prepareDecisionQuery(modules)
	if err != nil {
		return fmt.Errorf("failed to prepare decision query: %w", err)
	}

	e.mu.Lock()
	e.modules = modules
	e.decisionQuery = query
	e.mu.Unlock()

	e.logger.Debug().Int("modules", len(modules)).Msg("OPA policies loaded")
	return nil
}
