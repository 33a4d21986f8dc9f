package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/aschepis/backscratcher/skillloop/agent"
	"github.com/aschepis/backscratcher/skillloop/config"
	"github.com/aschepis/backscratcher/skillloop/llm"
	skilllogger "github.com/aschepis/backscratcher/skillloop/logger"
	"github.com/aschepis/backscratcher/skillloop/skill"
	"github.com/aschepis/backscratcher/skillloop/transcript"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", config.GetConfigPath(), "Path to config file")
		logFile    = flag.String("logfile", "", "Path to log file. If not set, logs to stderr")
		pretty     = flag.Bool("pretty", false, "Use pretty console output (only valid when logfile is not set)")
		logLevel   = flag.String("log-level", "", "Log level (overrides LOG_LEVEL)")
		prompt     = flag.String("prompt", "", "User prompt. Remaining arguments are used when empty")
		system     = flag.String("system", "", "System prompt (overrides system_prompt in config)")
		executor   = flag.String("executor", "", "Skill executor: local, http or mcp (overrides config)")
		record     = flag.Bool("record", false, "Record the run to the transcript database")
		replay     = flag.String("replay", "", "Replay a recorded run id as the seed conversation")
		listRuns   = flag.Bool("runs", false, "List recorded runs and exit")
	)
	flag.Parse()

	if *logFile != "" && *pretty {
		return fmt.Errorf("--logfile and --pretty are mutually exclusive")
	}

	// A missing .env file is not an error.
	_ = godotenv.Load()

	logger, closer, err := skilllogger.New(skilllogger.Options{File: *logFile, Pretty: *pretty, Level: *logLevel})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer closer.Close() //nolint:errcheck // No remedy for log close errors

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if *executor != "" {
		cfg.Executor = *executor
	}
	if *system != "" {
		cfg.SystemPrompt = *system
	}
	if *record {
		cfg.Transcript.Enabled = true
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store *transcript.Store
	if cfg.Transcript.Enabled || *replay != "" || *listRuns {
		store, err = transcript.Open(cfg.Transcript.Path, logger)
		if err != nil {
			return fmt.Errorf("failed to open transcript store: %w", err)
		}
		defer store.Close() //nolint:errcheck // No remedy for db close errors
	}

	if *listRuns {
		return printRuns(ctx, store)
	}

	seed, err := seedConversation(ctx, logger, store, *replay, cfg.SystemPrompt, userPrompt(*prompt, flag.Args()))
	if err != nil {
		return err
	}

	client, key, err := cfg.NewLLMClient(logger)
	if err != nil {
		return err
	}
	client = llm.WrapWithMiddleware(client, agent.NewLoggingMiddleware(logger))

	skills, err := cfg.NewSkills(ctx, skill.NewRegistry(logger), logger)
	if err != nil {
		return fmt.Errorf("failed to set up skills: %w", err)
	}
	defer skills.Close() //nolint:errcheck // No remedy for executor close errors

	opts := agent.Options{
		MaxTurns:      cfg.MaxTurns,
		Seed:          cfg.Seed,
		MaxTokens:     cfg.MaxTokens,
		Temperature:   cfg.Temperature,
		ParallelTools: cfg.ParallelTools,
		Retry:         cfg.Retry,
	}
	if store != nil && cfg.Transcript.Enabled {
		opts.Recorder = store
	}

	orchestrator, err := agent.NewOrchestrator(logger, client, skill.NewInvoker(skills.Catalog, skills.Executor, logger), key.Model, opts)
	if err != nil {
		return err
	}

	result, err := orchestrator.Run(ctx, seed, skills.Catalog.Specs())
	if err != nil {
		var maxErr *agent.MaxTurnsError
		if errors.As(err, &maxErr) && len(maxErr.Repeated) > 0 {
			logger.Warn().Interface("repeated", maxErr.Repeated).Msg("Model kept repeating tool calls")
		}
		return err
	}

	logRunSummary(logger, result)
	fmt.Println(result.FinalText)
	return nil
}

func userPrompt(flagPrompt string, args []string) string {
	if flagPrompt != "" {
		return flagPrompt
	}
	return strings.TrimSpace(strings.Join(args, " "))
}

func seedConversation(ctx context.Context, logger zerolog.Logger, store *transcript.Store, replayID, systemPrompt, prompt string) ([]llm.Message, error) {
	if replayID != "" {
		msgs, err := store.Load(ctx, replayID)
		if err != nil {
			return nil, fmt.Errorf("failed to load run %s: %w", replayID, err)
		}
		trimmed := trimUnanswered(msgs)
		if dropped := len(msgs) - len(trimmed); dropped > 0 {
			logger.Warn().Str("run_id", replayID).Int("dropped", dropped).Msg("Transcript ends with unanswered tool calls; replaying from before them")
		}
		if len(trimmed) == 0 {
			return nil, fmt.Errorf("run %s has no complete turns to replay", replayID)
		}
		return trimmed, nil
	}
	if prompt == "" {
		return nil, fmt.Errorf("a prompt is required (use --prompt or pass it as arguments)")
	}

	var seed []llm.Message
	if systemPrompt != "" {
		seed = append(seed, llm.NewTextMessage(llm.RoleSystem, systemPrompt))
	}
	return append(seed, llm.NewTextMessage(llm.RoleUser, prompt)), nil
}

// trimUnanswered drops a trailing assistant turn whose tool calls were not all
// answered, along with its partial results. A run that stopped while tools
// were executing leaves such a tail behind.
func trimUnanswered(msgs []llm.Message) []llm.Message {
	results := 0
	for i := len(msgs) - 1; i >= 0; i-- {
		switch msgs[i].Role {
		case llm.RoleTool:
			results++
			continue
		case llm.RoleAssistant:
			if len(msgs[i].ToolUses()) > results {
				return msgs[:i]
			}
		}
		return msgs
	}
	return msgs
}

func printRuns(ctx context.Context, store *transcript.Store) error {
	runs, err := store.Runs(ctx, 50)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tCREATED\tMESSAGES")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%d\n", r.ID, r.CreatedAt.Format(time.RFC3339), r.Messages)
	}
	return w.Flush()
}

func logRunSummary(logger zerolog.Logger, result *agent.RunResult) {
	logger.Info().
		Str("run_id", result.RunID).
		Int("turns", result.Turns).
		Int("invocations", result.Invocations).
		Int("failures", result.Failures).
		Int("messages", len(result.Messages)).
		Msg("Run complete")
}
