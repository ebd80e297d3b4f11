package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors Config with optional fields so that only keys present
// in the YAML document override env-derived values.
type fileConfig struct {
	Bot struct {
		Token               *string        `yaml:"token"`
		APIBaseURL          *string        `yaml:"api_base_url"`
		PollTimeout         *time.Duration `yaml:"poll_timeout"`
		CallTimeout         *time.Duration `yaml:"call_timeout"`
		Workers             *int           `yaml:"workers"`
		SuperAdmins         []int64        `yaml:"super_admins"`
		ReplyUnknownCommand *bool          `yaml:"reply_unknown_command"`
		ApprovalTTL         *time.Duration `yaml:"approval_ttl"`
	} `yaml:"bot"`
	Store struct {
		DataDir             *string        `yaml:"data_dir"`
		RulesFile           *string        `yaml:"rules_file"`
		UsersFile           *string        `yaml:"users_file"`
		RequestsFile        *string        `yaml:"requests_file"`
		WatchRules          *bool          `yaml:"watch_rules"`
		PermissionCacheSize *int           `yaml:"permission_cache_size"`
		PermissionCacheTTL  *time.Duration `yaml:"permission_cache_ttl"`
	} `yaml:"store"`
	Server struct {
		HealthPort      *string        `yaml:"health_port"`
		ShutdownTimeout *time.Duration `yaml:"shutdown_timeout"`
		MetricsEnabled  *bool          `yaml:"metrics_enabled"`
	} `yaml:"server"`
}

// applyFile overlays a YAML config file onto cfg
func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	if fc.Bot.Token != nil {
		cfg.Bot.Token = *fc.Bot.Token
	}
	if fc.Bot.APIBaseURL != nil {
		cfg.Bot.APIBaseURL = *fc.Bot.APIBaseURL
	}
	if fc.Bot.PollTimeout != nil {
		cfg.Bot.PollTimeout = *fc.Bot.PollTimeout
	}
	if fc.Bot.CallTimeout != nil {
		cfg.Bot.CallTimeout = *fc.Bot.CallTimeout
	}
	if fc.Bot.Workers != nil {
		cfg.Bot.Workers = *fc.Bot.Workers
	}
	if len(fc.Bot.SuperAdmins) > 0 {
		cfg.Bot.SuperAdmins = fc.Bot.SuperAdmins
	}
	if fc.Bot.ReplyUnknownCommand != nil {
		cfg.Bot.ReplyUnknownCommand = *fc.Bot.ReplyUnknownCommand
	}
	if fc.Bot.ApprovalTTL != nil {
		cfg.Bot.ApprovalTTL = *fc.Bot.ApprovalTTL
	}

	if fc.Store.DataDir != nil {
		cfg.Store.DataDir = *fc.Store.DataDir
	}
	if fc.Store.RulesFile != nil {
		cfg.Store.RulesFile = *fc.Store.RulesFile
	}
	if fc.Store.UsersFile != nil {
		cfg.Store.UsersFile = *fc.Store.UsersFile
	}
	if fc.Store.RequestsFile != nil {
		cfg.Store.RequestsFile = *fc.Store.RequestsFile
	}
	if fc.Store.WatchRules != nil {
		cfg.Store.WatchRules = *fc.Store.WatchRules
	}
	if fc.Store.PermissionCacheSize != nil {
		cfg.Store.PermissionCacheSize = *fc.Store.PermissionCacheSize
	}
	if fc.Store.PermissionCacheTTL != nil {
		cfg.Store.PermissionCacheTTL = *fc.Store.PermissionCacheTTL
	}

	if fc.Server.HealthPort != nil {
		cfg.Server.HealthPort = *fc.Server.HealthPort
	}
	if fc.Server.ShutdownTimeout != nil {
		cfg.Server.ShutdownTimeout = *fc.Server.ShutdownTimeout
	}
	if fc.Server.MetricsEnabled != nil {
		cfg.Server.MetricsEnabled = *fc.Server.MetricsEnabled
	}

	return nil
}
