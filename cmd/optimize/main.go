// Package main provides a one-shot CLI that optimizes a single template
// file against the configured optimizer backend and prints the result.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/cursor-prompt/prompt-optimizer/internal/cache"
	"github.com/cursor-prompt/prompt-optimizer/internal/config"
	"github.com/cursor-prompt/prompt-optimizer/internal/domain/optimization"
	"github.com/cursor-prompt/prompt-optimizer/internal/engine"
	"github.com/cursor-prompt/prompt-optimizer/internal/optimizerclient"
	"github.com/cursor-prompt/prompt-optimizer/internal/pipeline"
	"github.com/cursor-prompt/prompt-optimizer/internal/ratelimit"
	"github.com/cursor-prompt/prompt-optimizer/internal/templateio"
	"github.com/cursor-prompt/prompt-optimizer/pkg/logger"
)

// CLIConfig configures CLI behavior
type CLIConfig struct {
	TemplatePath string
	Task         string
	Model        string
	Iterations   int
	OutputFormat string
	ConfigFile   string
	OutputDir    string
	Verbose      bool
}

func main() {
	cliCfg := parseFlags()

	store, err := config.Load(cliCfg.ConfigFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	cfg := store.Config()

	logLevel := cfg.App.LogLevel
	if cliCfg.Verbose {
		logLevel = "debug"
	}
	zlog, err := logger.New(logger.Config{Level: logLevel, Format: "console", Development: true})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zlog.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nReceived shutdown signal, cancelling...")
		cancel()
	}()

	if err := run(ctx, cliCfg, cfg, zlog); err != nil {
		log.Fatalf("Optimization failed: %v", err)
	}
}

// parseFlags parses command line flags
func parseFlags() CLIConfig {
	var cliCfg CLIConfig

	flag.StringVar(&cliCfg.TemplatePath, "file", "", "Template file to optimize (json, yaml, or markdown)")
	flag.StringVar(&cliCfg.Task, "task", "", "Task description override")
	flag.StringVar(&cliCfg.Model, "model", "", "Target model override")
	flag.IntVar(&cliCfg.Iterations, "iterations", 0, "Refinement iteration override (1-10)")
	flag.StringVar(&cliCfg.OutputFormat, "format", "text", "Output format (text, json)")
	flag.StringVar(&cliCfg.ConfigFile, "config", "", "Configuration file path")
	flag.StringVar(&cliCfg.OutputDir, "output-dir", templateio.DefaultOptimizedDir, "Directory for the persisted optimized template")
	flag.BoolVar(&cliCfg.Verbose, "verbose", false, "Enable verbose output")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Optimize a single prompt template against the configured backend.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --file=prompts/greeting.yaml\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --file=prompts/review.md --model=claude-3-sonnet --format=json\n", os.Args[0])
	}

	flag.Parse()

	if cliCfg.TemplatePath == "" {
		flag.Usage()
		os.Exit(2)
	}
	return cliCfg
}

func run(ctx context.Context, cliCfg CLIConfig, cfg *config.Config, zlog *zap.Logger) error {
	tmpl, err := templateio.Load(cliCfg.TemplatePath)
	if err != nil {
		return err
	}

	pw := cfg.PromptWizard
	client := optimizerclient.New(optimizerclient.Config{
		ServiceURL: pw.ServiceURL,
		APIKey:     pw.APIKey,
		Timeout:    pw.Timeout(),
		Retries:    pw.Retries,
		VerifySSL:  pw.VerifySSL,
	}, zlog)

	local := cache.NewLocal(pw.Cache.MaxSize)
	store := cache.NewDistributed(local, nil, pw.Cache.Distributed.Namespace, zlog)
	limiter := ratelimit.New(pw.RateLimiting.MaxRequests, pw.RateLimiting.Window(), pw.RateLimiting.SkipCached)
	backend := optimizerclient.NewThrottledBackend(client, store, limiter, pw.Cache.CacheTTL(), pw.Cache.Enabled, zlog)

	saver := templateio.NewOptimizedStore(cliCfg.OutputDir, zlog)
	eng := engine.New(zlog)

	p := pipeline.New(zlog, eng, backend, saver, nil, pipeline.Config{
		DefaultModel:         optimization.TargetModel(pw.DefaultModel),
		EnablePreprocessing:  true,
		EnablePostprocessing: true,
		EnableValidation:     true,
		EnableCaching:        pw.Cache.Enabled,
		MaxPromptLength:      pw.MaxPromptLength,
		MinConfidence:        pw.MinConfidence,
		FewShotCount:         pw.FewShotCount,
		RefineIterations:     pw.MutateRefineIterations,
		GenerateReasoning:    pw.GenerateReasoning,
	})

	req := optimization.Request{Task: cliCfg.Task}
	if cliCfg.Model != "" {
		req.TargetModel = optimization.TargetModel(cliCfg.Model)
	}
	if cliCfg.Iterations > 0 {
		req.RefineIterations = cliCfg.Iterations
	}

	outcome := p.Run(ctx, tmpl.ID, tmpl, req)
	if !outcome.Success {
		printStages(outcome.Stages)
		return outcome.Err
	}

	switch cliCfg.OutputFormat {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(struct {
			Result optimization.Result    `json:"result"`
			Stages []pipeline.StageResult `json:"stages"`
		}{outcome.Result, outcome.Stages})
	default:
		printStages(outcome.Stages)
		fmt.Printf("\nOptimized prompt:\n%s\n", outcome.Result.OptimizedPrompt)
		m := outcome.Result.Metrics
		fmt.Printf("\nMetrics:\n")
		fmt.Printf("  accuracy improvement: %.2f\n", m.AccuracyImprovement)
		fmt.Printf("  token reduction:      %.2f\n", m.TokenReduction)
		fmt.Printf("  cost reduction:       %.2fx\n", m.CostReduction)
		fmt.Printf("  api calls used:       %d\n", m.APICallsUsed)
		fmt.Printf("\nSaved to %s/%s_optimized.optimized.json\n", cliCfg.OutputDir, tmpl.ID)
		return nil
	}
}

func printStages(stages []pipeline.StageResult) {
	for _, stage := range stages {
		mark := "ok"
		if !stage.Success {
			mark = "FAILED"
		}
		fmt.Printf("  %-22s %-6s %s\n", stage.Stage, mark, stage.Duration.Round(time.Millisecond))
	}
}
