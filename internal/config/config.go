// Package config loads the PlexAniBridge configuration document: one
// global block plus a map of named profiles, in YAML, TOML or JSON,
// detected by file extension. A typed struct plus an explicit
// validate() pass, backed by a document-at-a-path loader with env
// overlay for secrets rather than an env-only loader.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"plexanibridge/internal/domain"
)

// Global holds options that apply to the whole process.
type Global struct {
	DataPath            string `yaml:"data_path" toml:"data_path" json:"data_path"`
	LogLevel            string `yaml:"log_level" toml:"log_level" json:"log_level"`
	LogFormat           string `yaml:"log_format" toml:"log_format" json:"log_format"`
	BackupRetentionDays int    `yaml:"backup_retention_days" toml:"backup_retention_days" json:"backup_retention_days"`
	RedisURL            string `yaml:"redis_url" toml:"redis_url" json:"redis_url"`
	JWTSecret           string `yaml:"jwt_secret" toml:"jwt_secret" json:"jwt_secret"`
	ListenAddr          string `yaml:"listen_addr" toml:"listen_addr" json:"listen_addr"`
	MappingsURL         string `yaml:"mappings_url" toml:"mappings_url" json:"mappings_url"`
	DBSyncIntervalHours int    `yaml:"db_sync_interval_hours" toml:"db_sync_interval_hours" json:"db_sync_interval_hours"`
}

// ProfileConfig is the on-disk shape of one profile block. It is
// converted into domain.Profile after validation, keeping file-format
// concerns (tags, string durations) out of the domain type.
type ProfileConfig struct {
	PlexURL        string   `yaml:"plex_url" toml:"plex_url" json:"plex_url"`
	PlexToken      string   `yaml:"plex_token" toml:"plex_token" json:"plex_token"`
	PlexUser       string   `yaml:"plex_user" toml:"plex_user" json:"plex_user"`
	PlexSections   []string `yaml:"plex_sections" toml:"plex_sections" json:"plex_sections"`
	PlexClientID   string   `yaml:"plex_client_identifier" toml:"plex_client_identifier" json:"plex_client_identifier"`
	PlexOnlineMeta bool     `yaml:"plex_online_metadata" toml:"plex_online_metadata" json:"plex_online_metadata"`

	AniListToken string `yaml:"anilist_token" toml:"anilist_token" json:"anilist_token"`

	SyncModes            []string        `yaml:"sync_modes" toml:"sync_modes" json:"sync_modes"`
	SyncInterval         int             `yaml:"sync_interval" toml:"sync_interval" json:"sync_interval"`
	PollInterval         int             `yaml:"poll_interval" toml:"poll_interval" json:"poll_interval"`
	FullScan             bool            `yaml:"full_scan" toml:"full_scan" json:"full_scan"`
	DestructiveSync      bool            `yaml:"destructive_sync" toml:"destructive_sync" json:"destructive_sync"`
	DryRun               bool            `yaml:"dry_run" toml:"dry_run" json:"dry_run"`
	BatchRequests        bool            `yaml:"batch_requests" toml:"batch_requests" json:"batch_requests"`
	ExcludedSyncFields   []string        `yaml:"excluded_sync_fields" toml:"excluded_sync_fields" json:"excluded_sync_fields"`
	FuzzySearchThreshold int             `yaml:"fuzzy_search_threshold" toml:"fuzzy_search_threshold" json:"fuzzy_search_threshold"`
	SyncWebhookSecret    string          `yaml:"sync_webhook_secret" toml:"sync_webhook_secret" json:"sync_webhook_secret"`
}

// Document is the full on-disk configuration.
type Document struct {
	Global   Global                   `yaml:"global" toml:"global" json:"global"`
	Profiles map[string]ProfileConfig `yaml:"profiles" toml:"profiles" json:"profiles"`
}

// Config is the validated, process-wide configuration.
type Config struct {
	Global   Global
	Profiles map[string]domain.Profile
}

var validSyncModes = map[string]domain.SyncMode{
	"periodic": domain.SyncModePeriodic,
	"poll":     domain.SyncModePoll,
	"webhook":  domain.SyncModeWebhook,
}

// Load reads and validates the configuration document at path. godotenv
// is consulted first so `${VAR}`-style secrets can live outside the
// document; Load does not perform substitution itself, callers set
// real env vars before parsing if they need that.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "warning: .env not loaded: %v\n", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	doc, err := parseDocument(path, raw)
	if err != nil {
		return nil, err
	}

	return validate(doc)
}

func parseDocument(path string, raw []byte) (*Document, error) {
	var doc Document
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("config: parse yaml: %w", err)
		}
	case ".toml":
		d := toml.NewDecoder(bytes.NewReader(raw))
		d.DisallowUnknownFields()
		if err := d.Decode(&doc); err != nil {
			return nil, fmt.Errorf("config: parse toml: %w", err)
		}
	case ".json":
		d := json.NewDecoder(bytes.NewReader(raw))
		d.DisallowUnknownFields()
		if err := d.Decode(&doc); err != nil {
			return nil, fmt.Errorf("config: parse json: %w", err)
		}
	default:
		return nil, fmt.Errorf("config: unrecognized extension %q (want .yaml, .toml or .json)", ext)
	}
	return &doc, nil
}

func validate(doc *Document) (*Config, error) {
	cfg := &Config{Global: doc.Global, Profiles: make(map[string]domain.Profile, len(doc.Profiles))}

	if cfg.Global.DataPath == "" {
		return nil, fmt.Errorf("config: global.data_path is required")
	}
	if cfg.Global.LogLevel == "" {
		cfg.Global.LogLevel = "info"
	}
	if cfg.Global.LogFormat == "" {
		cfg.Global.LogFormat = "text"
	}
	if cfg.Global.BackupRetentionDays == 0 {
		cfg.Global.BackupRetentionDays = 7
	}
	if cfg.Global.DBSyncIntervalHours == 0 {
		cfg.Global.DBSyncIntervalHours = 24
	}
	if cfg.Global.ListenAddr == "" {
		cfg.Global.ListenAddr = "127.0.0.1:8585"
	}

	if len(doc.Profiles) == 0 {
		return nil, fmt.Errorf("config: at least one profile is required")
	}

	seenAniListTokens := make(map[string]string)

	for name, pc := range doc.Profiles {
		profile, err := toDomainProfile(name, pc)
		if err != nil {
			return nil, fmt.Errorf("config: profile %q: %w", name, err)
		}
		if owner, ok := seenAniListTokens[profile.AniListToken]; ok {
			return nil, fmt.Errorf("config: profiles %q and %q share an AniList token; two profiles on one account is unsupported", owner, name)
		}
		seenAniListTokens[profile.AniListToken] = name
		cfg.Profiles[name] = profile
	}

	return cfg, nil
}

func toDomainProfile(name string, pc ProfileConfig) (domain.Profile, error) {
	if pc.PlexURL == "" {
		return domain.Profile{}, fmt.Errorf("plex_url is required")
	}
	if pc.PlexToken == "" {
		return domain.Profile{}, fmt.Errorf("plex_token is required")
	}
	if pc.AniListToken == "" {
		return domain.Profile{}, fmt.Errorf("anilist_token is required")
	}
	if len(pc.PlexSections) == 0 {
		return domain.Profile{}, fmt.Errorf("plex_sections must list at least one section")
	}

	modes := make(map[domain.SyncMode]bool)
	for _, m := range pc.SyncModes {
		mode, ok := validSyncModes[strings.ToLower(m)]
		if !ok {
			return domain.Profile{}, fmt.Errorf("unknown sync mode %q", m)
		}
		modes[mode] = true
	}
	if len(modes) == 0 {
		modes[domain.SyncModePeriodic] = true
	}

	scanInterval := pc.SyncInterval
	if scanInterval == 0 {
		scanInterval = 3600
	}
	if scanInterval != -1 && scanInterval < 60 {
		return domain.Profile{}, fmt.Errorf("sync_interval must be -1 or >= 60, got %d", scanInterval)
	}

	pollInterval := pc.PollInterval
	if pollInterval == 0 {
		pollInterval = 300
	}

	threshold := pc.FuzzySearchThreshold
	if threshold == 0 {
		threshold = 90
	}
	if threshold < 0 || threshold > 100 {
		return domain.Profile{}, fmt.Errorf("fuzzy_search_threshold must be 0-100, got %d", threshold)
	}

	excluded := make(map[string]bool, len(pc.ExcludedSyncFields))
	for _, f := range pc.ExcludedSyncFields {
		excluded[f] = true
	}

	return domain.Profile{
		Name:                name,
		PlexURL:             pc.PlexURL,
		PlexToken:           pc.PlexToken,
		PlexUser:            pc.PlexUser,
		PlexSections:        pc.PlexSections,
		PlexClientID:        pc.PlexClientID,
		PlexOnlineMeta:      pc.PlexOnlineMeta,
		AniListToken:        pc.AniListToken,
		SyncModes:           modes,
		ScanIntervalSeconds: scanInterval,
		PollIntervalSeconds: pollInterval,
		FullScan:            pc.FullScan,
		DestructiveSync:     pc.DestructiveSync,
		DryRun:              pc.DryRun,
		BatchRequests:       pc.BatchRequests,
		ExcludedSyncFields:  excluded,
		FuzzyThreshold:      threshold,
		WebhookSecret:       pc.SyncWebhookSecret,
	}, nil
}

// BackupRetention returns the configured retention window as a Duration.
func (c *Config) BackupRetention() time.Duration {
	return time.Duration(c.Global.BackupRetentionDays) * 24 * time.Hour
}

// DBSyncInterval returns the configured mappings refresh cadence.
func (c *Config) DBSyncInterval() time.Duration {
	return time.Duration(c.Global.DBSyncIntervalHours) * time.Hour
}
