package main

import (
	"context"
	"fmt"
	"math"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	slacklib "github.com/slack-go/slack"
	"github.com/spf13/cobra"

	"github.com/gosuda/helpdesk/internal/agent"
	"github.com/gosuda/helpdesk/internal/agent/backends"
	"github.com/gosuda/helpdesk/internal/api/ws"
	"github.com/gosuda/helpdesk/internal/auth"
	"github.com/gosuda/helpdesk/internal/config"
	"github.com/gosuda/helpdesk/internal/domain"
	"github.com/gosuda/helpdesk/internal/messenger"
	hdslack "github.com/gosuda/helpdesk/internal/messenger/slack"
	"github.com/gosuda/helpdesk/internal/notify"
	"github.com/gosuda/helpdesk/internal/queue"
	"github.com/gosuda/helpdesk/internal/secrets"
	"github.com/gosuda/helpdesk/internal/server"
	"github.com/gosuda/helpdesk/internal/session"
	"github.com/gosuda/helpdesk/internal/store/postgres"
	redisstore "github.com/gosuda/helpdesk/internal/store/redis"
	"github.com/gosuda/helpdesk/internal/tool"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Slack webhook and admin API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(ctx context.Context) error {
	// Load configuration from environment.
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Graceful shutdown on SIGINT / SIGTERM.
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var deps server.Deps

	// Optional Redis: memory tools, event dedupe and live watch.
	var redisClient *redisstore.Client
	if cfg.Redis.Enabled() {
		redisClient, err = redisstore.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		deps.Hub = ws.NewHub(redisClient, redisstore.ChannelTopic)
	}

	// Optional PostgreSQL run log.
	var recorder agent.RunRecorder
	if cfg.Database.AuditEnabled {
		if cfg.Database.MaxConns > math.MaxInt32 {
			return fmt.Errorf("database max_conns %d out of int32 range", cfg.Database.MaxConns)
		}

		store, storeErr := postgres.New(ctx, cfg.Database.DSN(), int32(cfg.Database.MaxConns)) //nolint:gosec // bounds checked above
		if storeErr != nil {
			return storeErr
		}
		defer store.Close()

		if migrateErr := store.Migrate(ctx); migrateErr != nil {
			return migrateErr
		}
		recorder = agent.NewAuditRecorder(store.RunLogs())
		deps.RunLogs = store.RunLogs()
	}

	registry, closeTools, err := buildTools(ctx, cfg, redisClient)
	if err != nil {
		return err
	}
	defer closeTools()

	// Outbound delivery.
	messengers := notify.NewRegistry()
	var (
		slackClient    *slacklib.Client
		slackMessenger *hdslack.SlackMessenger
		delivery       messenger.Delivery = logDelivery{}
	)
	if cfg.Slack.Enabled() {
		slackClient = slacklib.New(cfg.Slack.BotToken)
		slackMessenger = hdslack.NewSlackMessenger(slackClient)
		messengers.Register(slackMessenger)
		delivery = messenger.NewDelivery(slackMessenger)
	} else {
		log.Warn().Msg("Slack is not configured; replies are only logged")
	}
	if redisClient != nil {
		delivery = messenger.NewBroadcast(delivery, redisClient, redisstore.ChannelTopic)
	}

	// Model and reasoning loop.
	modelCfg := backends.AnthropicConfig{
		APIKey:    cfg.Model.APIKey,
		BaseURL:   cfg.Model.BaseURL,
		Model:     cfg.Model.Name,
		MaxTokens: cfg.Model.MaxTokens,
	}
	client := backends.NewAnthropicClient(modelCfg)
	model := backends.NewAnthropicModel(&client.Messages, modelCfg)

	var loopOpts []agent.LoopOption
	if recorder != nil {
		loopOpts = append(loopOpts, agent.WithRecorder(recorder))
	}
	loop := agent.NewLoop(model, registry, delivery, agent.LoopConfig{
		MaxTurns:        cfg.Agent.MaxTurns,
		SilentMarker:    cfg.Agent.SilentMarker,
		SystemPrompt:    cfg.Agent.SystemPrompt,
		HistoryMaxTurns: cfg.Agent.HistoryMaxTurns,
		Pricing: domain.Pricing{
			InputPerMTok:  cfg.Model.InputPricePerMTok,
			OutputPerMTok: cfg.Model.OutputPricePerMTok,
		},
	}, loopOpts...)

	sessions := session.NewStore(cfg.Agent.IdleTimeout, session.WithEvictHook(func(channelID string, reason session.EvictReason) {
		log.Info().Str("channel_id", channelID).Str("reason", string(reason)).Msg("session evicted")
	}))

	orchOpts := []agent.OrchestratorOption{
		agent.WithQueueOptions(queue.WithMaxPending(cfg.Agent.MaxPending)),
	}
	if slackMessenger != nil {
		orchOpts = append(orchOpts, agent.WithTicketNotifier(
			notify.New(messengers, slackMessenger.Platform(), cfg.Slack.EscalationChannels),
		))
	}
	orchestrator := agent.NewOrchestrator(sessions, loop, delivery, orchOpts...)
	deps.Channels = orchestrator

	// Admin API keys.
	if len(cfg.Admin.APIKeyHashes) > 0 {
		keys, keysErr := auth.NewKeyVerifier(cfg.Admin.APIKeyHashes)
		if keysErr != nil {
			return keysErr
		}
		deps.Keys = keys
	}

	// Slack webhook.
	if slackClient != nil {
		handlerOpts := []hdslack.HandlerOption{
			hdslack.WithBotUserID(cfg.Slack.BotUserID),
			hdslack.WithFileDownloader(slackClient),
			hdslack.WithMaxImageBytes(cfg.Slack.MaxImageBytes),
		}
		if redisClient != nil {
			handlerOpts = append(handlerOpts, hdslack.WithDeduper(redisstore.NewDeduper(redisClient, cfg.Redis.DedupeTTL)))
		}
		deps.Slack = hdslack.NewHandler(cfg.Slack.SigningSecret, orchestrator, slackMessenger, handlerOpts...)
	}

	// Create HTTP server with all routes wired.
	srv := server.New(ctx, cfg, deps)

	// Start server in background goroutine.
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Strs("tools", registry.Available()).Msg("starting server")
		if startErr := srv.Start(ctx); startErr != nil {
			log.Error().Err(startErr).Msg("server error")
			cancel()
		}
	}()

	// Block until shutdown signal.
	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Error().Err(shutdownErr).Msg("http shutdown")
	}
	if deps.Slack != nil {
		deps.Slack.Wait()
	}
	if shutdownErr := orchestrator.Shutdown(shutdownCtx); shutdownErr != nil {
		return shutdownErr
	}

	log.Info().Msg("stopped")
	return nil
}

// buildTools registers every tool whose backend is configured. The returned
// func releases tool clients.
func buildTools(ctx context.Context, cfg *config.Config, redisClient *redisstore.Client) (*tool.Registry, func(), error) {
	registry := tool.NewRegistry()
	closers := []func(){}
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	if redisClient != nil {
		var memOpts []redisstore.MemoryOption
		if cfg.Redis.MemoryKey != "" {
			vault, err := secrets.NewVaultFromBase64(cfg.Redis.MemoryKey)
			if err != nil {
				return nil, func() {}, fmt.Errorf("HELPDESK_REDIS_MEMORY_KEY: %w", err)
			}
			memOpts = append(memOpts, redisstore.WithSealer(vault))
		}
		tool.RegisterMemoryTools(registry, redisstore.NewMemory(redisClient, cfg.Redis.MemoryTTL, memOpts...))
	}

	if cfg.Docker.Host != "" {
		dockerClient, err := tool.NewDockerClient(cfg.Docker.Host)
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		closers = append(closers, func() { _ = dockerClient.Close() })
		tool.NewContainerTools(dockerClient, cfg.Docker.AllowedContainers).Register(registry)
	}

	if cfg.SSH.KeyPath != "" {
		runner, err := tool.LoadSSHRunner(tool.SSHConfig{
			User:           cfg.SSH.User,
			KeyPath:        cfg.SSH.KeyPath,
			KnownHostsPath: cfg.SSH.KnownHostsPath,
			AllowedHosts:   cfg.SSH.AllowedHosts,
			Timeout:        cfg.SSH.Timeout,
		})
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		runner.Register(registry)
	}

	if cfg.Ticket.TeamID != "" {
		httpClient := tool.NewTicketHTTPClient(ctx, tool.TicketConfig{
			Endpoint:     cfg.Ticket.Endpoint,
			TeamID:       cfg.Ticket.TeamID,
			APIKey:       cfg.Ticket.APIKey,
			ClientID:     cfg.Ticket.ClientID,
			ClientSecret: cfg.Ticket.ClientSecret,
			TokenURL:     cfg.Ticket.TokenURL,
		})
		tool.NewTicketClient(cfg.Ticket.Endpoint, cfg.Ticket.TeamID, httpClient).Register(registry)
	}

	return registry, closeAll, nil
}

// logDelivery stands in for a chat platform when none is configured.
type logDelivery struct{}

func (logDelivery) Deliver(_ context.Context, target messenger.Target, text string) error {
	log.Info().Str("channel_id", target.ChannelID).Str("thread_ts", target.ThreadTS).Str("text", text).Msg("reply (no messenger configured)")
	return nil
}
