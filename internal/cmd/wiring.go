package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dativo-io/nexus/internal/audit"
	"github.com/dativo-io/nexus/internal/budget"
	"github.com/dativo-io/nexus/internal/classifier"
	"github.com/dativo-io/nexus/internal/config"
	"github.com/dativo-io/nexus/internal/guardian"
	"github.com/dativo-io/nexus/internal/llm"
	"github.com/dativo-io/nexus/internal/memory"
	"github.com/dativo-io/nexus/internal/orchestration"
	"github.com/dativo-io/nexus/internal/pipeline"
	"github.com/dativo-io/nexus/internal/tenant"
)

// sessionTTL bounds how long an idle Redis session keeps its turns.
const sessionTTL = 24 * time.Hour

// wiring is the wired pipeline plus the resources it owns.
type wiring struct {
	cfg      *config.Config
	pipeline *pipeline.Pipeline
	audit    *audit.Store
	reloader *guardian.Reloader
	closers  []func() error
}

func (rt *wiring) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			log.Warn().Err(err).Msg("wiring_close_failed")
		}
	}
}

// buildRuntime wires every pipeline collaborator from operator config.
func buildRuntime(ctx context.Context, cfg *config.Config) (*wiring, error) {
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	cfg.WarnIfDefaultKeys()
	rt := &wiring{cfg: cfg}

	store, err := audit.NewStore(cfg.AuditDBPath(), cfg.SigningKey)
	if err != nil {
		return nil, fmt.Errorf("opening audit store: %w", err)
	}
	rt.audit = store
	rt.closers = append(rt.closers, store.Close)

	snippets, err := memory.NewSQLiteIndex(cfg.SnippetDBPath())
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("opening snippet index: %w", err)
	}
	rt.closers = append(rt.closers, snippets.Close)

	var turns memory.TurnStore = memory.NewWorkingMemory(cfg.MaxTurns)
	if cfg.RedisAddr != "" {
		rs := memory.NewRedisTurnStore(cfg.RedisAddr, cfg.MaxTurns, sessionTTL)
		if err := rs.Ping(ctx); err != nil {
			rt.Close()
			return nil, fmt.Errorf("connecting to redis %s: %w", cfg.RedisAddr, err)
		}
		rt.closers = append(rt.closers, rs.Close)
		turns = rs
	}

	var reviewer orchestration.Reviewer
	if cfg.GuardianPolicy != "" {
		r, err := guardian.NewReloader(ctx, cfg.GuardianPolicy)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("loading guardian policy: %w", err)
		}
		rt.reloader = r
		reviewer = r
	} else {
		eng, err := guardian.NewEngine(ctx, guardian.DefaultPolicy())
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("building guardian: %w", err)
		}
		reviewer = eng
	}

	budgetPolicy, err := budget.LoadPolicy(cfg.BudgetPolicy)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("loading budget policy: %w", err)
	}

	redactor, err := classifier.NewRedactorFromFile(cfg.PIIPatterns)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("loading pii patterns: %w", err)
	}

	p, err := pipeline.New(pipeline.Deps{
		Resolver:  tenant.NewResolver(cfg.ConfigRoot, cfg.DefaultTenant),
		Turns:     turns,
		Snippets:  snippets,
		Guardian:  reviewer,
		Budget:    budget.NewGovernor(budgetPolicy),
		Provider:  buildProvider(cfg),
		Decisions: store,
		Events:    store,
		Redactor:  redactor,
	}, pipeline.Options{
		MaxTurns:               cfg.MaxTurns,
		SummaryChars:           cfg.SummaryChars,
		ContextChars:           cfg.ContextChars,
		SnippetTopK:            cfg.SnippetTopK,
		GroundingRetries:       cfg.GroundingRetries,
		LowConfidenceThreshold: cfg.LowConfidenceThreshold,
		CompletionTimeout:      cfg.CompletionTimeout,
	})
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.pipeline = p
	return rt, nil
}

func buildProvider(cfg *config.Config) llm.Provider {
	if cfg.CompletionMode == config.ModeOpenAI {
		if cfg.CompletionBaseURL != "" {
			return llm.NewOpenAIProviderWithBaseURL(cfg.CompletionAPIKey, cfg.CompletionBaseURL)
		}
		return llm.NewOpenAIProvider(cfg.CompletionAPIKey)
	}
	return llm.NewSimulatedProvider()
}
