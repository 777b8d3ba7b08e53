package config

import (
	"encoding/json"
	"os"
)

type serverJSON struct {
	Address         *string `json:"address"`
	DatabasePath    *string `json:"database_path"`
	DatabaseDSN     *string `json:"database_dsn"`
	TrustedSubnet   *string `json:"trusted_subnet"`
	PortalBaseURL   *string `json:"portal_base_url"`
	ThrottleHours   *int    `json:"throttle_hours"`
	SparklineDays   *int    `json:"sparkline_days"`
	SparklineWidth  *int    `json:"sparkline_width"`
	SparklineHeight *int    `json:"sparkline_height"`
	SparklineColor  *string `json:"sparkline_color"`
	BadgeLabel      *string `json:"badge_label"`
	BadgeColor      *string `json:"badge_color"`
}

func applyServerJSON(cfg *ServerConfig, path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var j serverJSON
	if err := json.Unmarshal(b, &j); err != nil {
		return err
	}

	if j.Address != nil {
		cfg.Addr = *j.Address
	}
	if j.DatabasePath != nil {
		cfg.DatabasePath = *j.DatabasePath
	}
	if j.DatabaseDSN != nil {
		cfg.DatabaseDsn = *j.DatabaseDSN
	}
	if j.TrustedSubnet != nil {
		cfg.TrustedSubnet = *j.TrustedSubnet
	}
	if j.PortalBaseURL != nil {
		cfg.PortalBaseURL = *j.PortalBaseURL
	}
	if j.ThrottleHours != nil {
		cfg.ThrottleHours = *j.ThrottleHours
	}
	if j.SparklineDays != nil {
		cfg.DefaultSparklineDays = *j.SparklineDays
	}
	if j.SparklineWidth != nil {
		cfg.SparklineWidth = *j.SparklineWidth
	}
	if j.SparklineHeight != nil {
		cfg.SparklineHeight = *j.SparklineHeight
	}
	if j.SparklineColor != nil {
		cfg.SparklineColor = *j.SparklineColor
	}
	if j.BadgeLabel != nil {
		cfg.BadgeLabel = *j.BadgeLabel
	}
	if j.BadgeColor != nil {
		cfg.BadgeColor = *j.BadgeColor
	}

	return nil
}
