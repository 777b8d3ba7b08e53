// Package model contains core data types for the project.
package model

import "time"

// Plugin is a tracked plugin in the registry.
type Plugin struct {
	ID        string    `json:"id"`             // Opaque plugin portal ID.
	Name      string    `json:"name,omitempty"` // Optional human-readable name.
	CreatedAt time.Time `json:"created_at"`     // First time the plugin was registered.
}

// Sample is one download-count observation for a plugin. Samples are
// append-only: once recorded they are never updated or deleted.
type Sample struct {
	PluginID  string    `json:"plugin_id"` // Plugin the sample belongs to.
	Timestamp time.Time `json:"timestamp"` // When the count was observed.
	Count     int64     `json:"count"`     // Total downloads at that instant.
}

// ScrapeLogEntry records one scrape attempt, successful or not. The log is
// append-only and consulted only by the retry policy.
type ScrapeLogEntry struct {
	PluginID  string    `json:"plugin_id"`
	Timestamp time.Time `json:"timestamp"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"` // Set only for failed attempts.
}

// BadgePayload is the shields.io endpoint badge document.
// See https://shields.io/endpoint for the schema.
type BadgePayload struct {
	SchemaVersion int    `json:"schemaVersion"`
	Label         string `json:"label"`
	Message       string `json:"message"`
	Color         string `json:"color"` // Bare hex or named color, no leading '#'.
}
