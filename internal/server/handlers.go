package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/openbeans/plugin-counter/internal/badge"
	"github.com/openbeans/plugin-counter/internal/errs"
	"github.com/openbeans/plugin-counter/internal/history"
	"github.com/openbeans/plugin-counter/internal/sparkline"
	"github.com/openbeans/plugin-counter/model"
)

const (
	minSparklineDays = 1
	maxSparklineDays = 365
)

type updateRequest struct {
	Name string `json:"name"`
}

type updateResponse struct {
	Success   bool      `json:"success"`
	PluginID  string    `json:"plugin_id"`
	Count     int64     `json:"count"`
	Timestamp time.Time `json:"timestamp"`
}

type errorResponse struct {
	Error       string `json:"error"`
	Message     string `json:"message"`
	LastFetched string `json:"last_fetched,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// IndexHandler serves a short HTML page documenting the endpoints.
func (srv *Server) IndexHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, err := fmt.Fprint(w, `<html>
<head><title>Download Counter Service</title></head>
<body>
	<h1>Download Counter Service</h1>
	<h2>Available Endpoints:</h2>
	<ul>
		<li><strong>GET /api/&lt;plugin_id&gt;</strong> - Download count as JSON (shields.io endpoint badge)</li>
		<li><strong>GET /sparkline/&lt;plugin_id&gt;</strong> - Sparkline SVG image (optional: ?days=30)</li>
		<li><strong>POST /update/&lt;plugin_id&gt;</strong> - Update download count (throttled)</li>
	</ul>
	<h2>Usage Example:</h2>
	<pre>![Downloads](https://img.shields.io/endpoint?url=https://openbeans.org/plugin-counter/api/118)</pre>
</body>
</html>
`)
	if err != nil {
		srv.config.Logger.Errorf("failed to write index page: %v", err)
	}
}

// BadgeHandler returns the shields.io endpoint badge payload. It never
// fails closed: missing data and internal errors both map to renderable
// payloads.
func (srv *Server) BadgeHandler(w http.ResponseWriter, r *http.Request) {
	pluginID := chi.URLParam(r, "pluginID")

	last, err := srv.storage.LatestSample(r.Context(), pluginID)
	if err != nil {
		if errors.Is(err, errs.ErrNoData) {
			writeJSON(w, http.StatusOK, badge.NoData(srv.config.BadgeLabel))
			return
		}
		srv.config.Logger.Errorf("badge: failed to read latest sample [plugin=%s]: %v", pluginID, err)
		writeJSON(w, http.StatusInternalServerError, badge.Error(srv.config.BadgeLabel))
		return
	}

	writeJSON(w, http.StatusOK, badge.Payload(srv.config.BadgeLabel, srv.config.BadgeColor, last.Count))
}

// SparklineHandler renders the download history of the last ?days days as
// an SVG. Errors still produce a well-formed placeholder image.
func (srv *Server) SparklineHandler(w http.ResponseWriter, r *http.Request) {
	pluginID := chi.URLParam(r, "pluginID")

	days := srv.config.DefaultSparklineDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			days = v
		}
	}
	if days < minSparklineDays {
		days = minSparklineDays
	}
	if days > maxSparklineDays {
		days = maxSparklineDays
	}

	opts := sparkline.Options{
		Width:  srv.config.SparklineWidth,
		Height: srv.config.SparklineHeight,
		Color:  srv.config.SparklineColor,
	}

	w.Header().Set("Content-Type", "image/svg+xml")

	since := srv.now().AddDate(0, 0, -days)
	samples, err := srv.storage.History(r.Context(), pluginID, since)
	if err != nil {
		srv.config.Logger.Errorf("sparkline: failed to read history [plugin=%s]: %v", pluginID, err)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(sparkline.Empty(opts)))
		return
	}

	_, _ = w.Write([]byte(sparkline.Render(history.Reduce(samples), opts)))
}

// UpdateHandler fetches the current count for a plugin and appends it to
// the history, throttled to one accepted update per window.
func (srv *Server) UpdateHandler(w http.ResponseWriter, r *http.Request) {
	pluginID := chi.URLParam(r, "pluginID")
	ctx := r.Context()

	ok, err := srv.policy.CanUpdate(ctx, srv.storage, pluginID)
	if err != nil {
		srv.config.Logger.Errorf("update: throttle check failed [plugin=%s]: %v", pluginID, err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error:   "Internal server error",
			Message: err.Error(),
		})
		return
	}
	if !ok {
		lastFetched := ""
		if last, err := srv.storage.LatestSample(ctx, pluginID); err == nil {
			lastFetched = last.Timestamp.Format(time.RFC3339)
		}
		writeJSON(w, http.StatusTooManyRequests, errorResponse{
			Error: "Too many requests",
			Message: fmt.Sprintf("Plugin was last updated at %s. Updates are throttled to once per %d hours.",
				lastFetched, srv.config.ThrottleHours),
			LastFetched: lastFetched,
		})
		return
	}

	var req updateRequest
	if r.Body != nil {
		// The body is optional; a missing or malformed one means no name.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	if err := srv.storage.AddPlugin(ctx, &model.Plugin{
		ID:        pluginID,
		Name:      req.Name,
		CreatedAt: srv.now(),
	}); err != nil {
		srv.config.Logger.Errorf("update: failed to register plugin [plugin=%s]: %v", pluginID, err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error:   "Internal server error",
			Message: err.Error(),
		})
		return
	}

	srv.config.Logger.Infof("fetching download count for plugin %s", pluginID)
	count, err := srv.fetcher.FetchDownloadCount(ctx, pluginID)
	if err != nil {
		srv.config.Logger.Errorf("update: fetch failed [plugin=%s]: %v", pluginID, err)
		srv.logScrape(ctx, pluginID, false, err.Error())
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error:   "Scraper error",
			Message: err.Error(),
		})
		return
	}

	timestamp := srv.now()
	if err := srv.storage.AddSample(ctx, &model.Sample{
		PluginID:  pluginID,
		Timestamp: timestamp,
		Count:     count,
	}); err != nil {
		srv.config.Logger.Errorf("update: failed to save sample [plugin=%s]: %v", pluginID, err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error:   "Internal server error",
			Message: err.Error(),
		})
		return
	}
	srv.logScrape(ctx, pluginID, true, "")

	srv.config.Logger.Infof("successfully updated plugin %s: %d downloads", pluginID, count)
	writeJSON(w, http.StatusOK, updateResponse{
		Success:   true,
		PluginID:  pluginID,
		Count:     count,
		Timestamp: timestamp,
	})
}

// logScrape appends to the scrape log; failures here must not fail the
// update itself.
func (srv *Server) logScrape(ctx context.Context, pluginID string, success bool, errMsg string) {
	entry := &model.ScrapeLogEntry{
		PluginID:  pluginID,
		Timestamp: srv.now(),
		Success:   success,
		Error:     errMsg,
	}
	if err := srv.storage.AddScrapeLog(ctx, entry); err != nil {
		srv.config.Logger.Errorf("failed to append scrape log [plugin=%s]: %v", pluginID, err)
	}
}

// HealthHandler reports process liveness.
func (srv *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// PingHandler checks storage connectivity.
func (srv *Server) PingHandler(w http.ResponseWriter, r *http.Request) {
	if err := srv.storage.Ping(r.Context()); err != nil {
		srv.config.Logger.Errorf("storage ping failed: %v", err)
		http.Error(w, "storage unavailable", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}
