package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"agenthive/internal/approval"
	"agenthive/internal/brain"
	"agenthive/internal/config"
	"agenthive/internal/core/ports"
	"agenthive/internal/id"
	"agenthive/internal/logger"
	"agenthive/internal/metrics"
	"agenthive/internal/sites/reddit"
	"agenthive/internal/tools"
	"agenthive/internal/ui/console"
	"agenthive/internal/ui/telegram"
	"agenthive/internal/workflow"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, config.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		if errors.Is(err, config.ErrMissingLLMKey) {
			fmt.Printf("Please set %s environment variable\n", cfg.LLMKeyVar())
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		return 1
	}

	logger.Setup(os.Stderr, cfg.IsDevelopment())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "agenthive", Subreddit: cfg.Subreddit})

	slog.InfoContext(ctx, "agenthive starting",
		"version", cfg.Version,
		"env", cfg.Env,
		"provider", cfg.LLM.Provider,
		"ui", cfg.UI)

	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr); err != nil {
				slog.ErrorContext(ctx, "metrics server failed", "error", err)
			}
		}()
	}

	if err := runWorkflow(ctx, cfg); err != nil {
		slog.ErrorContext(ctx, "workflow failed", "error", err)
		return 1
	}
	return 0
}

func runWorkflow(ctx context.Context, cfg *config.Config) error {
	client, err := reddit.NewClient(reddit.Credentials{
		ClientID:     cfg.Reddit.ClientID,
		ClientSecret: cfg.Reddit.ClientSecret,
		UserAgent:    cfg.Reddit.UserAgent,
		Username:     cfg.Reddit.Username,
		Password:     cfg.Reddit.Password,
	})
	if err != nil {
		return err
	}

	llm, err := brain.NewAgentClient(ctx, brain.Config{
		Provider: cfg.LLM.Provider,
		APIKey:   cfg.LLM.APIKey,
		BaseURL:  cfg.LLM.BaseURL,
		Model:    cfg.LLM.Model,
	})
	if err != nil {
		return fmt.Errorf("create llm client: %w", err)
	}

	ids, err := id.NewGenerator(cfg.NodeID)
	if err != nil {
		return err
	}

	human, err := newHumanChannel(ctx, cfg)
	if err != nil {
		return err
	}

	roles, err := workflow.LoadRoles(cfg.RolesFile)
	if err != nil {
		return err
	}

	gate := approval.NewGate(client, client, human, ids)
	registry := tools.NewRegistry(client, gate)

	chat, err := workflow.NewGroupChat(llm, registry, roles, cfg.MaxRounds)
	if err != nil {
		return err
	}

	chat.Observe(printEntry)

	transcript, err := chat.Run(ctx, roles.Brief(cfg.Subreddit))
	if err != nil {
		return err
	}
	fmt.Printf("\nSession ended: %s after %d rounds\n", transcript.Reason, transcript.Rounds)

	slog.InfoContext(ctx, "workflow finished", "reason", transcript.Reason, "rounds", transcript.Rounds, "model", llm.Model())
	return nil
}

func newHumanChannel(ctx context.Context, cfg *config.Config) (ports.Interaction, error) {
	if cfg.UI == config.UITelegram {
		ui, err := telegram.NewTelegramUI(ctx, cfg.Telegram.Token, cfg.Telegram.ChatID)
		if err != nil {
			return nil, err
		}
		return ui, nil
	}
	return console.New(os.Stdin, os.Stdout), nil
}

func printEntry(e workflow.Entry) {
	if e.Tool != "" {
		fmt.Printf("\n[%s -> %s]\n%s\n", e.Speaker, e.Tool, e.Content)
		return
	}
	fmt.Printf("\n--- %s (round %d) ---\n%s\n", e.Speaker, e.Round, e.Content)
}
