package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/openbeans/plugin-counter/internal/buildinfo"
	"github.com/openbeans/plugin-counter/internal/config"
	"github.com/openbeans/plugin-counter/internal/utils"
)

// The tracker drives the service's throttled update endpoint on a schedule,
// replacing the cron-and-CSV script the service grew out of.
func main() {
	buildinfo.PrintBuildInfo()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.NewTrackerConfig()
	if len(cfg.PluginIDs) == 0 {
		cfg.Logger.Fatal("no plugin IDs configured, set -plugins or PLUGINS")
	}

	client := &http.Client{Timeout: time.Duration(cfg.ClientTimeout) * time.Second}

	cfg.Logger.Infof("Tracker config: ServerAddr=%s, Plugins=%v, PollInterval=%ds",
		cfg.ServerAddr, cfg.PluginIDs, cfg.PollInterval)

	updateAll(ctx, cfg, client)

	ticker := time.NewTicker(time.Duration(cfg.PollInterval) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			cfg.Logger.Info("tracker stopped")
			return
		case <-ticker.C:
			updateAll(ctx, cfg, client)
		}
	}
}

func updateAll(ctx context.Context, cfg *config.TrackerConfig, client *http.Client) {
	for _, pluginID := range cfg.PluginIDs {
		if err := updateOne(ctx, cfg.Logger, client, cfg.ServerAddr, pluginID); err != nil {
			cfg.Logger.Errorf("update failed [plugin=%s]: %v", pluginID, err)
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func updateOne(ctx context.Context, logger *zap.SugaredLogger, client *http.Client, serverAddr, pluginID string) error {
	url := fmt.Sprintf("%s/update/%s", serverAddr, pluginID)

	return utils.WithRetry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
		if err != nil {
			return err
		}

		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)

		switch resp.StatusCode {
		case http.StatusOK:
			var r struct {
				Count int64 `json:"count"`
			}
			if err := json.Unmarshal(body, &r); err == nil {
				logger.Infof("updated plugin %s: %d downloads", pluginID, r.Count)
			}
			return nil
		case http.StatusTooManyRequests:
			// Expected between throttle windows, not an error.
			logger.Infof("plugin %s throttled, skipping", pluginID)
			return nil
		default:
			return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
		}
	})
}
