package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/revubot/revubot/pkg/botapi"
	"github.com/revubot/revubot/pkg/config"
	"github.com/revubot/revubot/pkg/db"
	"github.com/revubot/revubot/pkg/dispatcher"
	"github.com/revubot/revubot/pkg/handler"
	"github.com/revubot/revubot/pkg/notifier"
	"github.com/revubot/revubot/pkg/service"
	"github.com/revubot/revubot/pkg/utils"
)

func main() {
	utils.InitLogger()
	logger := utils.GetLogger()

	if _, err := config.EnsureDefaultConfig(); err != nil {
		logger.Warn("Failed to write default config", "error", err)
	}

	cfg, cfgPath, err := config.Load()
	if err != nil {
		logger.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.BotToken() == "" {
		logger.Error("bot.token is not set", "config", cfgPath)
		os.Exit(1)
	}

	storagePath, err := cfg.StoragePath()
	if err != nil {
		logger.Error("Failed to resolve storage path", "error", err)
		os.Exit(1)
	}
	gdb, err := db.Open(storagePath)
	if err != nil {
		logger.Error("Failed to open database", "path", storagePath, "error", err)
		os.Exit(1)
	}
	logger.Info("Database ready", "path", storagePath)

	client := botapi.NewClient(botapi.Config{
		Token:     cfg.BotToken(),
		APIURL:    cfg.APIURL(),
		PollTimeS: cfg.PollTimeS(),
	})

	taskService := service.NewTaskService(gdb)
	taskService.SetAllowClosedApprovals(cfg.AllowClosedApprovals())
	stateService := service.NewStateService()
	notificationService := service.NewNotificationService(client, cfg.GroupChat())

	commands := handler.NewCommandHandler(client, logger)
	messages := handler.NewMessageHandler(stateService, client, logger)
	callbacks := handler.NewCallbackHandler(taskService, stateService, notificationService, client, logger)
	callbacks.SetRecordRevisionVotes(cfg.RecordRevisionVotes())

	disp := dispatcher.New(client, client, client, stateService, commands, messages, callbacks)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	info, err := client.SelfGet(ctx)
	if err != nil {
		logger.Error("Failed to connect to Bot API", "error", err)
		os.Exit(1)
	}
	logger.Info("Bot connected", "nick", info.Nick, "user", info.UserID)

	if cfg.NotifyEnabled() && cfg.GroupChat() != "" {
		digest, err := notifier.New(taskService, notificationService, cfg.NotifyTime(), cfg.NotifyTimezone())
		if err != nil {
			logger.Error("Failed to set up daily digest", "error", err)
			os.Exit(1)
		}
		go digest.Run(ctx)
		logger.Info("Daily digest scheduled", "time", cfg.NotifyTime(), "timezone", cfg.NotifyTimezone())
	}

	if cfg.AdminEnabled() {
		admin := NewAdminServer(taskService, cfg.AdminHost(), cfg.AdminPort())
		if err := admin.Start(ctx); err != nil {
			logger.Error("Failed to start admin server", "error", err)
			os.Exit(1)
		}
	}

	go func() {
		if err := disp.Run(ctx); err != nil {
			logger.Error("Event loop stopped", "error", err)
			cancel()
		}
	}()
	logger.Info("Polling started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Received signal, shutting down", "signal", sig.String())
	case <-ctx.Done():
	}
	cancel()
}
