// Package badge builds shields.io endpoint payloads for download counts.
package badge

import (
	"fmt"
	"strings"

	"github.com/openbeans/plugin-counter/model"
)

const schemaVersion = 1

// Format renders a count compactly: 1500000 -> "1.5M", 1000 -> "1.0k",
// 999 -> "999". No locale separators.
func Format(count int64) string {
	switch {
	case count >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(count)/1_000_000)
	case count >= 1_000:
		return fmt.Sprintf("%.1fk", float64(count)/1_000)
	default:
		return fmt.Sprintf("%d", count)
	}
}

// Payload builds the badge document for a known count.
func Payload(label, color string, count int64) model.BadgePayload {
	return model.BadgePayload{
		SchemaVersion: schemaVersion,
		Label:         label,
		Message:       Format(count),
		Color:         strings.TrimPrefix(color, "#"),
	}
}

// NoData builds the neutral badge shown before any sample exists.
func NoData(label string) model.BadgePayload {
	return model.BadgePayload{
		SchemaVersion: schemaVersion,
		Label:         label,
		Message:       "no data",
		Color:         "lightgrey",
	}
}

// Error builds the alert badge returned on internal failures. The badge
// endpoint never fails closed, so even errors stay renderable.
func Error(label string) model.BadgePayload {
	return model.BadgePayload{
		SchemaVersion: schemaVersion,
		Label:         label,
		Message:       "error",
		Color:         "red",
	}
}
