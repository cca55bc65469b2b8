package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/drewp/commentserve/notify"
	"gopkg.in/yaml.v3"
)

type NotifyConfig struct {
	// URL of the message relay that gets one form post per listener.
	URL       string            `yaml:"url"`
	Listeners []notify.Listener `yaml:"listeners"`
	Redis     string            `yaml:"redis"`
	Channel   string            `yaml:"channel"`
	Timeout   time.Duration     `yaml:"timeout"`
}

type Config struct {
	Server   string `yaml:"server"`
	Database string `yaml:"database"`
	Dsn      string `yaml:"dsn"`
	// Baseline is an optional N-Triples file merged into every graph.
	Baseline string `yaml:"baseline"`

	UserBase    string `yaml:"user_base"`
	CommentBase string `yaml:"comment_base"`

	AgentHeader     string        `yaml:"agent_header"`
	ForwardedHeader string        `yaml:"forwarded_header"`
	HoneypotKey     string        `yaml:"honeypot_key"`
	HoneypotKeyFile string        `yaml:"honeypot_key_file"`
	HoneypotTimeout time.Duration `yaml:"honeypot_timeout"`
	PostBlockExpire time.Duration `yaml:"post_block_expire"`
	AllowImages     bool          `yaml:"allow_images"`
	Admins          []string      `yaml:"admins"`

	Timeout time.Duration `yaml:"timeout"`
	Notify  NotifyConfig  `yaml:"notify"`

	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Link        string `yaml:"link"`
}

func NewConfig() *Config {
	return &Config{
		Server:          ":9031",
		Database:        "file",
		Dsn:             "./commentstore",
		AgentHeader:     "X-Foaf-Agent",
		ForwardedHeader: "X-Forwarded-For",
		HoneypotTimeout: 3 * time.Second,
		Timeout:         30 * time.Second,
		Notify:          NotifyConfig{Timeout: 10 * time.Second},
		Title:           "Comments",
		Description:     "Recent comments",
	}
}

func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

// Load reads path, when given, over the defaults and then applies
// environment overrides.
func (c *Config) Load(path string) error {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("config %s: %w", path, err)
		}
	}
	if port := os.Getenv("PORT"); port != "" {
		if !strings.Contains(port, ":") {
			port = ":" + port
		}
		c.Server = port
	}
	c.Database = getenv("COMMENTSERVE_DATABASE", c.Database)
	c.Dsn = getenv("COMMENTSERVE_DSN", c.Dsn)
	c.Baseline = getenv("COMMENTSERVE_BASELINE", c.Baseline)
	c.HoneypotKey = getenv("COMMENTSERVE_HONEYPOT_KEY", c.HoneypotKey)
	c.Notify.Redis = getenv("COMMENTSERVE_REDIS", c.Notify.Redis)

	if c.HoneypotKey == "" && c.HoneypotKeyFile != "" {
		key, err := os.ReadFile(c.HoneypotKeyFile)
		if err != nil {
			return fmt.Errorf("honeypot key: %w", err)
		}
		c.HoneypotKey = strings.TrimSpace(string(key))
	}
	return nil
}

func (c *Config) isAdmin(agent string) bool {
	for _, a := range c.Admins {
		if a == agent {
			return true
		}
	}
	return false
}
