package io

import (
	"context"
	"fmt"
	"io/fs"
	"net/url"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/slok/opwatch/internal/model"
)

// SettingsYAMLRepository loads engine settings from YAML files.
type SettingsYAMLRepository struct {
	fs fs.FS
}

// NewSettingsYAMLRepository creates a new YAML settings repository.
func NewSettingsYAMLRepository(filesystem fs.FS) *SettingsYAMLRepository {
	return &SettingsYAMLRepository{fs: filesystem}
}

// GetSettings loads the settings from a YAML file and returns a validated domain model.
func (r *SettingsYAMLRepository) GetSettings(ctx context.Context, path string) (model.Settings, error) {
	data, err := fs.ReadFile(r.fs, path)
	if err != nil {
		return model.Settings{}, fmt.Errorf("reading config file: %w", err)
	}

	if ctx.Err() != nil {
		return model.Settings{}, ctx.Err()
	}

	var cfg Settings
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return model.Settings{}, fmt.Errorf("parsing YAML: %w", err)
	}

	settings, err := cfg.toModel()
	if err != nil {
		return model.Settings{}, fmt.Errorf("invalid configuration: %w", err)
	}

	return settings, nil
}

// Settings represents the YAML structure of the settings file.
type Settings struct {
	API           APISettings          `yaml:"api"`
	Polling       PollingSettings      `yaml:"polling"`
	Cache         CacheSettings        `yaml:"cache"`
	Notifications NotificationSettings `yaml:"notifications"`
}

// APISettings represents the back office API section.
type APISettings struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

// PollingSettings represents the polling section.
type PollingSettings struct {
	StatsInterval string `yaml:"stats_interval"`
	JobInterval   string `yaml:"job_interval"`
}

// CacheSettings represents the cache section.
type CacheSettings struct {
	FreshnessWindow string `yaml:"freshness_window"`
}

// NotificationSettings represents the notifications section.
type NotificationSettings struct {
	TTL string `yaml:"ttl"`
	Max int    `yaml:"max"`
}

func (c Settings) toModel() (model.Settings, error) {
	if c.API.URL != "" {
		u, err := url.Parse(c.API.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return model.Settings{}, fmt.Errorf("api url %q is not a valid absolute URL", c.API.URL)
		}
	}

	if c.Notifications.Max < 0 {
		return model.Settings{}, fmt.Errorf("notifications max must be positive, got: %d", c.Notifications.Max)
	}

	s := model.Settings{
		APIURL:           c.API.URL,
		APIToken:         c.API.Token,
		MaxNotifications: c.Notifications.Max,
	}

	durations := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{name: "polling.stats_interval", value: c.Polling.StatsInterval, dst: &s.StatsPollInterval},
		{name: "polling.job_interval", value: c.Polling.JobInterval, dst: &s.JobPollInterval},
		{name: "cache.freshness_window", value: c.Cache.FreshnessWindow, dst: &s.FreshnessWindow},
		{name: "notifications.ttl", value: c.Notifications.TTL, dst: &s.NotificationTTL},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		v, err := time.ParseDuration(d.value)
		if err != nil {
			return model.Settings{}, fmt.Errorf("%s: %w", d.name, err)
		}
		if v <= 0 {
			return model.Settings{}, fmt.Errorf("%s must be positive, got: %s", d.name, d.value)
		}
		*d.dst = v
	}

	return s, nil
}
