package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/olekukonko/tablewriter"
	flag "github.com/spf13/pflag"

	"github.com/boettiger-lab/landvote/internal/server"
	"github.com/boettiger-lab/landvote/pkg/charts"
	"github.com/boettiger-lab/landvote/pkg/logstore"
	"github.com/boettiger-lab/landvote/pkg/pipeline"
	"github.com/boettiger-lab/landvote/pkg/synth"
	"github.com/boettiger-lab/landvote/pkg/votes"
)

const (
	defaultListenAddr = "0.0.0.0:8080"
	defaultDatasetURL = "https://huggingface.co/datasets/boettiger-lab/landvote/resolve/main/votes.parquet"
	defaultModel      = "claude"
	defaultClaude     = "claude-3-5-sonnet-latest"
	defaultOllamaURL  = "http://localhost:11434"
	defaultOllama     = "llama3.1"
	defaultLogKey     = "landvote/query-log.csv"
	defaultLogRegion  = "us-east-1"
	defaultLogTimeout = 30 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Dev convenience; a missing .env is fine.
	_ = godotenv.Load()

	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	listenAddrFlag := flag.String("listen-addr", envOr("LANDVOTE_LISTEN_ADDR", defaultListenAddr), "HTTP server listen address (or set LANDVOTE_LISTEN_ADDR)")

	// Dataset configuration
	datasetURLFlag := flag.String("dataset-url", envOr("LANDVOTE_DATASET_URL", defaultDatasetURL), "Parquet file with the raw ballot-measure rows, https URL or local path (or set LANDVOTE_DATASET_URL)")
	dbPathFlag := flag.String("db-path", envOr("LANDVOTE_DB_PATH", ""), "DuckDB database file, empty for in-memory (or set LANDVOTE_DB_PATH)")

	// Model configuration
	modelFlag := flag.String("model", envOr("LANDVOTE_MODEL", defaultModel), "default model choice: claude or ollama (or set LANDVOTE_MODEL)")
	claudeModelFlag := flag.String("claude-model", envOr("LANDVOTE_CLAUDE_MODEL", defaultClaude), "Anthropic model name (or set LANDVOTE_CLAUDE_MODEL)")
	ollamaURLFlag := flag.String("ollama-url", envOr("OLLAMA_URL", defaultOllamaURL), "Ollama server base URL (or set OLLAMA_URL)")
	ollamaModelFlag := flag.String("ollama-model", envOr("OLLAMA_MODEL", defaultOllama), "Ollama model name (or set OLLAMA_MODEL)")

	// Query log configuration
	logBucketFlag := flag.String("log-bucket", envOr("LANDVOTE_LOG_BUCKET", ""), "S3 bucket for the query log, empty disables logging (or set LANDVOTE_LOG_BUCKET)")
	logKeyFlag := flag.String("log-key", envOr("LANDVOTE_LOG_KEY", defaultLogKey), "object key of the query log CSV (or set LANDVOTE_LOG_KEY)")
	logRegionFlag := flag.String("log-region", envOr("AWS_REGION", defaultLogRegion), "S3 region for the query log (or set AWS_REGION)")
	logEndpointFlag := flag.String("log-endpoint", envOr("AWS_S3_ENDPOINT", ""), "S3-compatible endpoint for the query log, empty for AWS (or set AWS_S3_ENDPOINT)")
	consentFlag := flag.Bool("consent", false, "record question text in the query log for one-shot asks")

	flag.Parse()

	log := newLogger(*verboseFlag)

	model, err := synth.ParseModelChoice(*modelFlag)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Info("opening votes store", "dataset", *datasetURLFlag, "path", *dbPathFlag)
	store, err := votes.Open(ctx, votes.Config{
		Logger:     log,
		Path:       *dbPathFlag,
		DatasetURL: *datasetURLFlag,
	})
	if err != nil {
		return fmt.Errorf("failed to open votes store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("failed to close votes store", "error", err)
		}
	}()

	models, err := newSelector(log, *claudeModelFlag, *ollamaURLFlag, *ollamaModelFlag)
	if err != nil {
		return err
	}

	queryLog, err := newQueryLog(ctx, log, *logBucketFlag, *logKeyFlag, *logRegionFlag, *logEndpointFlag)
	if err != nil {
		return err
	}

	pipe, err := pipeline.New(pipeline.Config{
		Logger:     log,
		Models:     models,
		Store:      store,
		QueryLog:   queryLog,
		LogTimeout: defaultLogTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	if flag.Arg(0) == "ask" {
		question := flag.Arg(1)
		if question == "" {
			return fmt.Errorf("usage: landvote ask \"question\"")
		}
		return ask(ctx, pipe, model, *consentFlag, question)
	}

	srv, err := server.New(server.Config{
		Logger:     log,
		ListenAddr: *listenAddrFlag,
		Pipeline:   pipe,
		Stats:      store,
		Charts:     charts.NewService(store.DB()),
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	return srv.Run(ctx)
}

// ask runs one question through the pipeline and renders the result to
// stdout.
func ask(ctx context.Context, pipe *pipeline.Pipeline, model synth.ModelChoice, consent bool, question string) error {
	interaction, err := pipe.Run(ctx, pipeline.Request{
		Question: question,
		Model:    model,
		Consent:  consent,
	})
	if err != nil {
		if interaction != nil && interaction.Query.SQL != "" {
			fmt.Printf("SQL: %s\n", interaction.Query.SQL)
		}
		return err
	}

	if interaction.Query.SQL != "" {
		fmt.Printf("SQL: %s\n", interaction.Query.SQL)
	}
	if interaction.Query.Explanation != "" {
		fmt.Printf("%s\n\n", interaction.Query.Explanation)
	}

	switch interaction.Outcome {
	case pipeline.OutcomeDeclined:
		return nil
	case pipeline.OutcomeEmpty:
		fmt.Println("No matching measures.")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeader(interaction.Result.Columns)
	for _, row := range interaction.Result.Rows {
		values := make([]string, len(interaction.Result.Columns))
		for i, col := range interaction.Result.Columns {
			values[i] = fmt.Sprintf("%v", row[col])
		}
		table.Append(values)
	}
	table.Render()

	if interaction.Bounds != nil {
		b := interaction.Bounds
		fmt.Printf("\nBounds: [%g, %g, %g, %g]\n", b.MinLon, b.MinLat, b.MaxLon, b.MaxLat)
	}
	return nil
}

// newSelector builds the model providers. Claude is always configured; the
// Anthropic SDK reads ANTHROPIC_API_KEY from the environment. Both providers
// are memoized per (model, question).
func newSelector(log *slog.Logger, claudeModel, ollamaURL, ollamaModel string) (*synth.Selector, error) {
	claude, err := synth.NewAnthropicClient(synth.AnthropicConfig{
		Logger: log,
		Client: anthropic.NewClient(),
		Model:  anthropic.Model(claudeModel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create anthropic client: %w", err)
	}

	ollama, err := synth.NewOllamaClient(synth.OllamaConfig{
		Logger:  log,
		BaseURL: ollamaURL,
		Model:   ollamaModel,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama client: %w", err)
	}

	return &synth.Selector{
		Claude: synth.NewMemo(synth.ModelClaude, claude),
		Ollama: synth.NewMemo(synth.ModelOllama, ollama),
	}, nil
}

// newQueryLog builds the S3-backed interaction log, or returns nil when no
// bucket is configured so the pipeline runs without logging.
func newQueryLog(ctx context.Context, log *slog.Logger, bucket, key, region, endpoint string) (pipeline.InteractionLogger, error) {
	if bucket == "" {
		log.Info("query logging disabled, no bucket configured")
		return nil, nil
	}

	objects, err := logstore.NewS3Store(ctx, logstore.S3Config{
		Bucket:          bucket,
		Region:          region,
		Endpoint:        endpoint,
		AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create log object store: %w", err)
	}

	queryLog, err := logstore.New(logstore.Config{
		Logger: log,
		Store:  objects,
		Key:    key,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create query log: %w", err)
	}
	return queryLog, nil
}

// envOr returns the value of the environment variable key, or def when the
// variable is unset or empty.
func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
	}))
}
