package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/lyssadev/MarkPEWeb/core/catalog"
	"github.com/lyssadev/MarkPEWeb/core/content"
	"github.com/lyssadev/MarkPEWeb/core/gateway"
	"github.com/lyssadev/MarkPEWeb/core/infra/buildinfo"
	"github.com/lyssadev/MarkPEWeb/core/infra/cache"
	"github.com/lyssadev/MarkPEWeb/core/infra/config"
	"github.com/lyssadev/MarkPEWeb/core/infra/logging"
	"github.com/lyssadev/MarkPEWeb/core/infra/metrics"
	"github.com/lyssadev/MarkPEWeb/core/keys"
)

func main() {
	buildinfo.Log("markpe-gateway")
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := config.NewSettingsStore(cfg.SettingsPath)
	settings, err := store.Load()
	if err != nil {
		logging.Error("main", "settings load failed", "path", cfg.SettingsPath, "error", err)
		os.Exit(1)
	}

	if settings.UpdateKeysEnabled() {
		updater := keys.NewUpdater(store, cfg.KeyFilePath, cfg.ListFilePath)
		if added, updated, err := updater.UpdateKeys(ctx, false); err != nil {
			logging.Warn("main", "key feed update failed", "error", err)
		} else if updated {
			logging.Info("main", "key feed updated", "added", added)
		}
		if fresh, err := updater.UpdateList(ctx, false); err != nil {
			logging.Warn("main", "content list update failed", "error", err)
		} else if len(fresh) > 0 {
			logging.Info("main", "content list updated", "added", len(fresh))
		}
	}
	ring := keys.Load(cfg.KeyFilePath, cfg.PersonalKeyPath)

	rules, err := config.LoadRules(cfg.RulesPath)
	if err != nil {
		logging.Warn("main", "rules load failed, using defaults", "path", cfg.RulesPath, "error", err)
		rules = config.DefaultRules()
	}

	var searchCache cache.SearchCache
	if cfg.RedisURL != "" {
		redisCache, err := cache.NewRedis(cfg.RedisURL)
		if err != nil {
			logging.Error("main", "redis connect failed", "error", err)
			os.Exit(1)
		}
		searchCache = redisCache
	} else {
		searchCache = cache.NewMemory()
	}

	session := catalog.NewSession(cfg.PlayFabTitle, store)
	if err := session.Login(ctx); err != nil {
		logging.Error("main", "catalog login failed", "error", err)
		os.Exit(1)
	}
	client := catalog.NewClient(session, searchCache, rules)

	pipelineMetrics := metrics.NewProm("markpe")
	fetcher := content.NewFetcher()
	fetcher.Metrics = pipelineMetrics
	assembler := content.NewAssembler(fetcher, ring)
	assembler.Metrics = pipelineMetrics
	orchestrator := content.NewOrchestrator(client, assembler, cfg.WorkDir, cfg.OutputDir, 0)

	auth := gateway.NewAPIKeyAuth(cfg.APIKeys)
	if auth == nil {
		logging.Warn("main", "no api keys configured, endpoints are open")
	}
	srv := gateway.NewServer(client, orchestrator, orchestrator.Progress, auth, metrics.NewGatewayProm("markpe"))

	if err := srv.Run(ctx, cfg.ListenAddr); err != nil {
		os.Exit(1)
	}
}
