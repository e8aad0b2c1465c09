package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig is read from a YAML file under the user's home directory.
// All fields are optional; defaults are applied by the accessor methods.
//
// Example (~/.revubot/config.yaml):
//
// bot:
//   token: 001.1234567890.0987654321:1000000
//   api_url: https://myteam.mail.ru/bot/v1
// review:
//   group_chat: review-team@chat.agent
// notify:
//   time: "09:00"
//   timezone: Europe/Moscow
//
// Notes:
// - If the config file does not exist, Load returns defaults without error.
// - If the config file exists but cannot be parsed, Load returns an error.
// - REVUBOT_CONFIG overrides the config file location.

type AppConfig struct {
	Bot     BotConfig     `yaml:"bot"`
	Storage StorageConfig `yaml:"storage"`
	Review  ReviewConfig  `yaml:"review"`
	Notify  NotifyConfig  `yaml:"notify"`
	Admin   AdminConfig   `yaml:"admin"`
}

type BotConfig struct {
	Token     *string `yaml:"token"`
	APIURL    *string `yaml:"api_url"`
	PollTimeS *int    `yaml:"poll_time_s"`
}

type StorageConfig struct {
	Path *string `yaml:"path"`
}

type ReviewConfig struct {
	GroupChat            *string `yaml:"group_chat"`
	AllowClosedApprovals *bool   `yaml:"allow_closed_approvals"`
	RecordRevisionVotes  *bool   `yaml:"record_revision_votes"`
}

type NotifyConfig struct {
	Enabled  *bool   `yaml:"enabled"`
	Time     *string `yaml:"time"`
	Timezone *string `yaml:"timezone"`
}

type AdminConfig struct {
	Enabled *bool   `yaml:"enabled"`
	Host    *string `yaml:"host"`
	Port    *int    `yaml:"port"`
}

const (
	DefaultAPIURL     = "https://myteam.mail.ru/bot/v1"
	DefaultPollTimeS  = 20
	DefaultNotifyTime = "09:00"
	DefaultAdminHost  = "127.0.0.1"
	DefaultAdminPort  = 8090
)

// DefaultPaths returns the config dir and config file path.
func DefaultPaths() (configDir string, configFile string, err error) {
	if override := strings.TrimSpace(os.Getenv("REVUBOT_CONFIG")); override != "" {
		return filepath.Dir(override), override, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", "", fmt.Errorf("get user home dir: %w", err)
	}
	configDir = filepath.Join(home, ".revubot")
	configFile = filepath.Join(configDir, "config.yaml")
	return configDir, configFile, nil
}

// Load reads the config file. If the file doesn't exist, it returns a default
// config and nil error.
func Load() (*AppConfig, string, error) {
	_, configFile, err := DefaultPaths()
	if err != nil {
		return nil, "", err
	}

	cfg := &AppConfig{}

	b, err := os.ReadFile(configFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, configFile, nil
		}
		return nil, "", fmt.Errorf("read config file %s: %w", configFile, err)
	}

	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, "", fmt.Errorf("parse yaml config %s: %w", configFile, err)
	}

	// Validate
	if port := cfg.AdminPort(); port < 1 || port > 65535 {
		return nil, "", fmt.Errorf("invalid admin.port %d in %s", port, configFile)
	}
	if poll := cfg.PollTimeS(); poll < 1 || poll > 90 {
		return nil, "", fmt.Errorf("invalid bot.poll_time_s %d in %s", poll, configFile)
	}
	if _, err := time.Parse("15:04", cfg.NotifyTime()); err != nil {
		return nil, "", fmt.Errorf("invalid notify.time %q in %s (want HH:MM)", cfg.NotifyTime(), configFile)
	}
	if tz := cfg.NotifyTimezone(); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return nil, "", fmt.Errorf("invalid notify.timezone %q in %s: %w", tz, configFile, err)
		}
	}

	return cfg, configFile, nil
}

// EnsureDefaultConfig writes a default config file if it doesn't already exist.
// It is safe to call on startup.
func EnsureDefaultConfig() (string, error) {
	configDir, configFile, err := DefaultPaths()
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(configFile); err == nil {
		return configFile, nil
	}

	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return "", fmt.Errorf("create config dir %s: %w", configDir, err)
	}

	defaultCfg := AppConfig{
		Bot:    BotConfig{APIURL: ptr(DefaultAPIURL), PollTimeS: ptr(DefaultPollTimeS)},
		Notify: NotifyConfig{Enabled: ptr(true), Time: ptr(DefaultNotifyTime)},
	}
	b, err := yaml.Marshal(&defaultCfg)
	if err != nil {
		return "", fmt.Errorf("marshal default config: %w", err)
	}

	// Write with restrictive permissions; the file holds the bot token.
	if err := os.WriteFile(configFile, b, 0o600); err != nil {
		return "", fmt.Errorf("write default config file %s: %w", configFile, err)
	}

	return configFile, nil
}

func (c *AppConfig) BotToken() string {
	if c == nil || c.Bot.Token == nil {
		return ""
	}
	return strings.TrimSpace(*c.Bot.Token)
}

func (c *AppConfig) APIURL() string {
	if c == nil || c.Bot.APIURL == nil {
		return DefaultAPIURL
	}
	v := strings.TrimSpace(*c.Bot.APIURL)
	if v == "" {
		return DefaultAPIURL
	}
	return v
}

func (c *AppConfig) PollTimeS() int {
	if c == nil || c.Bot.PollTimeS == nil {
		return DefaultPollTimeS
	}
	return *c.Bot.PollTimeS
}

// StoragePath resolves the sqlite database location, defaulting to
// tasks.db next to the config file.
func (c *AppConfig) StoragePath() (string, error) {
	if c != nil && c.Storage.Path != nil && strings.TrimSpace(*c.Storage.Path) != "" {
		return strings.TrimSpace(*c.Storage.Path), nil
	}
	configDir, _, err := DefaultPaths()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "tasks.db"), nil
}

func (c *AppConfig) GroupChat() string {
	if c == nil || c.Review.GroupChat == nil {
		return ""
	}
	return strings.TrimSpace(*c.Review.GroupChat)
}

func (c *AppConfig) AllowClosedApprovals() bool {
	if c == nil || c.Review.AllowClosedApprovals == nil {
		return false
	}
	return *c.Review.AllowClosedApprovals
}

func (c *AppConfig) RecordRevisionVotes() bool {
	if c == nil || c.Review.RecordRevisionVotes == nil {
		return true
	}
	return *c.Review.RecordRevisionVotes
}

func (c *AppConfig) NotifyEnabled() bool {
	if c == nil || c.Notify.Enabled == nil {
		return true
	}
	return *c.Notify.Enabled
}

func (c *AppConfig) NotifyTime() string {
	if c == nil || c.Notify.Time == nil {
		return DefaultNotifyTime
	}
	v := strings.TrimSpace(*c.Notify.Time)
	if v == "" {
		return DefaultNotifyTime
	}
	return v
}

// NotifyTimezone returns the configured IANA zone name, or "" for local time.
func (c *AppConfig) NotifyTimezone() string {
	if c == nil || c.Notify.Timezone == nil {
		return ""
	}
	return strings.TrimSpace(*c.Notify.Timezone)
}

func (c *AppConfig) AdminEnabled() bool {
	if c == nil || c.Admin.Enabled == nil {
		return false
	}
	return *c.Admin.Enabled
}

func (c *AppConfig) AdminHost() string {
	if c == nil || c.Admin.Host == nil {
		return DefaultAdminHost
	}
	v := strings.TrimSpace(*c.Admin.Host)
	if v == "" {
		return DefaultAdminHost
	}
	return v
}

func (c *AppConfig) AdminPort() int {
	if c == nil || c.Admin.Port == nil {
		return DefaultAdminPort
	}
	return *c.Admin.Port
}

func ptr[T any](v T) *T { return &v }
