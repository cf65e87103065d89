// Command coursebot runs the conversational course-scheduling analyzer,
// either as an HTTP service or as a one-shot CLI analysis.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"coursebot/internal/config"
	"coursebot/internal/convctx"
	"coursebot/internal/llm"
	"coursebot/internal/logging"
	"coursebot/internal/nlu"
	"coursebot/internal/observability"
	"coursebot/internal/server"
	"coursebot/internal/store"
)

var configPath string

func main() {
	// A local .env is a developer convenience; absence is fine.
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "coursebot",
		Short: "Conversational course-scheduling analyzer",
		Long:  "coursebot turns free-form Chinese chat messages into structured course-management commands.",
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ./coursebot.yaml)")
	root.AddCommand(newServeCmd(), newAnalyzeCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// pipeline bundles everything the commands need.
type pipeline struct {
	orchestrator *nlu.DecisionOrchestrator
	catalog      *nlu.RuleCatalog
	registry     *prometheus.Registry
	logger       logging.Logger
	cleanup      func()
}

func buildPipeline(ctx context.Context, cfg *config.Config) (*pipeline, error) {
	logger := logging.NewComponentLogger("coursebot")

	catalog := nlu.NewRuleCatalog(cfg.Rules.File)
	classifier := nlu.NewClassifier(catalog.Rules())
	contexts := convctx.NewStore(cfg.Context.TTL(), cfg.Context.MaxUsers)

	var courseStore store.CourseStore
	cleanup := func() {}
	if cfg.Database.URL != "" {
		pg, err := store.NewPostgresStore(ctx, cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		courseStore = pg
		cleanup = pg.Close
	} else {
		courseStore = store.NewMemoryStore()
	}

	var llmService nlu.LLMService
	if cfg.LLM.APIKey != "" {
		client, err := llm.NewOpenAIClient(llm.Config{
			APIKey:     cfg.LLM.APIKey,
			BaseURL:    cfg.LLM.BaseURL,
			Model:      cfg.LLM.Model,
			Timeout:    cfg.LLM.TimeoutSeconds,
			MaxRetries: cfg.LLM.MaxRetries,
			Headers:    cfg.LLM.Headers,
		}, logger)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("build llm client: %w", err)
		}
		llmService = llm.NewService(client, logger)
	} else {
		logger.Warn("no llm api key configured, running rules-only")
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	extractor := nlu.NewEntityExtractor(llmService, courseStore, logger)
	orchestrator := nlu.NewDecisionOrchestrator(nlu.OrchestratorOptions{
		Classifier:     classifier,
		Guard:          nlu.NewAmbiguityGuard(),
		Extractor:      extractor,
		LLM:            llmService,
		Contexts:       contexts,
		Usage:          courseStore,
		Metrics:        metrics,
		Logger:         logger,
		LLMTimeout:     cfg.LLM.Timeout(),
		TrustThreshold: cfg.LLM.TrustThreshold,
	})

	return &pipeline{
		orchestrator: orchestrator,
		catalog:      catalog,
		registry:     registry,
		logger:       logger,
		cleanup:      cleanup,
	}, nil
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP analysis service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			p, err := buildPipeline(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer p.cleanup()

			srv := server.New(server.Options{
				Analyzer: p.orchestrator,
				Rules:    p.catalog,
				Logger:   p.logger,
				Registry: p.registry,
			})
			return srv.Run(cfg.Server.Addr())
		},
	}
}

func newAnalyzeCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "analyze <message>",
		Short: "Analyze one message and print the result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			p, err := buildPipeline(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer p.cleanup()

			result, err := p.orchestrator.AnalyzeMessage(cmd.Context(), args[0], userID)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "cli", "user id for conversational context")
	return cmd
}
