package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/tenderops/bid-reviewer/internal/judge"
	"github.com/tenderops/bid-reviewer/internal/judge/gemini"
	"github.com/tenderops/bid-reviewer/internal/logger"
	"github.com/tenderops/bid-reviewer/internal/pipeline"
	"github.com/tenderops/bid-reviewer/internal/results"
	"github.com/tenderops/bid-reviewer/internal/review"
	"github.com/tenderops/bid-reviewer/internal/secrets"
	"github.com/tenderops/bid-reviewer/internal/segment"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const defaultResultsDB = "reviews.db"

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Review one bidder's responses against the tender requirements",
	Run: func(cmd *cobra.Command, _ []string) {
		run(cmd)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Bool("dry-run", false, "evaluate without persisting the run")
}

// run is the main command for the cli.
func run(cmd *cobra.Command) {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting the bid-reviewer", zap.String("version", version))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(config, "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	if config == nil || config.Inputs == nil {
		logger.Fatal("inputs section is required (requirements-file, responses-file)")
	}

	requirements, err := review.LoadRequirements(config.Inputs.RequirementsFile)
	if err != nil {
		logger.Fatal("loading requirements", zap.Error(err))
	}
	logger.Info("loaded requirements", zap.Int("count", len(requirements)))

	responses, err := review.LoadResponses(config.Inputs.ResponsesFile)
	if err != nil {
		logger.Fatal("loading responses", zap.Error(err))
	}
	logger.Info("loaded responses", zap.Int("count", len(responses)))

	var segments segment.Store
	if config.Inputs.SegmentsDB != "" {
		store, err := segment.OpenSQLite(config.Inputs.SegmentsDB)
		if err != nil {
			logger.Fatal("opening segment store", zap.Error(err))
		}
		defer store.Close()
		segments = store
	} else {
		logger.Warn("segment store is not configured; evidence will resolve to fallback entries")
	}

	sink, err := prepareSink(cmd, config, logger)
	if err != nil {
		logger.Fatal("opening results sink", zap.Error(err))
	}

	reviewJudge, err := prepareJudge(ctx, config.AI, logger)
	if err != nil {
		logger.Warn("running without semantic judgement; semantic items stay pending", zap.Error(err))
	}

	p := pipeline.New(pipelineConfig(config.Review), pipeline.Deps{
		Logger:   logger,
		Segments: segments,
		Judge:    reviewJudge,
		Sink:     sink,
	})

	result, err := p.Execute(ctx, requirements, responses)
	if err != nil {
		logger.Fatal("review run failed", zap.Error(err))
	}

	report(logger, result)
}

func report(logger *zap.Logger, result *pipeline.Result) {
	logger.Info("review summary",
		zap.String("review_run_id", result.RunID),
		zap.Int("items", len(result.Items)),
		zap.Int("pass", result.Counts[review.StatusPass]),
		zap.Int("warn", result.Counts[review.StatusWarn]),
		zap.Int("fail", result.Counts[review.StatusFail]),
		zap.Int("pending", result.Counts[review.StatusPending]),
	)

	// PENDING is never a verdict: surface every such item explicitly.
	for _, item := range result.Items {
		if item.Status == review.StatusPending {
			logger.Warn("requires manual review",
				zap.String("requirement_id", item.RequirementID),
				zap.String("dimension", item.Dimension),
				zap.String("reason", item.RuleTrace),
			)
		}
	}
}

func pipelineConfig(cfg *ReviewConfig) pipeline.Config {
	if cfg == nil {
		return pipeline.Config{}
	}
	return pipeline.Config{
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		PriceTolerance:      cfg.PriceTolerance,
		DurationTolerance:   cfg.DurationTolerance,
		MaxEvidencePerItem:  cfg.MaxEvidencePerItem,
		QuoteMaxChars:       cfg.QuoteMaxChars,
		SemanticWorkers:     cfg.SemanticWorkers,
		JudgeTimeout:        time.Duration(cfg.JudgeTimeoutSeconds) * time.Second,
	}
}

func prepareSink(cmd *cobra.Command, config *Config, logger *zap.Logger) (results.Sink, error) {
	if cmd.Flag("dry-run").Value.String() == "true" {
		logger.Info("dry run: results will not be persisted")
		return &results.MemorySink{}, nil
	}

	path := strings.TrimSpace(config.ResultsDB)
	if path == "" {
		path = defaultResultsDB
	}
	return results.OpenSQLite(path)
}

func prepareJudge(ctx context.Context, config *AIConfig, logger *zap.Logger) (judge.Judge, error) {
	if config == nil || !config.Enabled {
		return nil, fmt.Errorf("ai judgement is disabled in configuration")
	}

	provider := strings.TrimSpace(strings.ToLower(config.Provider))
	if provider != "" && provider != "gemini" {
		return nil, fmt.Errorf("unsupported ai provider: %s", config.Provider)
	}
	if config.Gemini == nil {
		return nil, fmt.Errorf("gemini configuration is required when ai judgement is enabled")
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name: "gemini api key",
		File: config.Gemini.APIKeyFile,
		Env:  "GEMINI_API_KEY",
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set ai.gemini.api-key-file or GEMINI_API_KEY)", err)
	}

	genLogger := logger.With(
		zap.String("provider", "gemini"),
		zap.String("model", config.Gemini.Model),
		zap.Int("ai_retry_attempts", config.Gemini.MaxRetries),
	)

	generator, err := gemini.NewGenerator(ctx, apiKey, config.Gemini.Model, config.Gemini.MaxRetries, genLogger)
	if err != nil {
		return nil, err
	}

	return gemini.NewJudge(generator, genLogger, config.Gemini.MaxLogLength), nil
}
