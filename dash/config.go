package dash

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the dashboard configuration file.
type Config struct {
	Server         ServerConfig  `yaml:"server"`
	Camera         CameraConfig  `yaml:"camera"`
	ReconnectDelay time.Duration `yaml:"reconnectDelay,omitempty"`
	HTTP           HTTPConfig    `yaml:"http"`
	View           ViewConfig    `yaml:"view"`
	MQTT           MQTTConfig    `yaml:"mqtt,omitempty"`
	Relay          RelayConfig   `yaml:"relay,omitempty"`
}

// ServerConfig locates the control server websocket. URL wins over the parts.
type ServerConfig struct {
	URL  string `yaml:"url,omitempty"`
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// CameraConfig locates the MJPEG stream.
type CameraConfig struct {
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
	Topic   string `yaml:"topic"`
	Width   int    `yaml:"width"`
	Height  int    `yaml:"height"`
	Quality int    `yaml:"quality"`
}

type HTTPConfig struct {
	Port int `yaml:"port"`
}

// ViewConfig is the default live-view size in pixels.
type ViewConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// MQTTConfig enables the telemetry bridge when Broker is set.
type MQTTConfig struct {
	Broker        string `yaml:"broker,omitempty"`
	ClientID      string `yaml:"clientId,omitempty"`
	Username      string `yaml:"username,omitempty"`
	Password      string `yaml:"password,omitempty"`
	PublishPrefix string `yaml:"publishPrefix,omitempty"`
}

// RelayConfig configures the embedded control-server relay.
type RelayConfig struct {
	Port      int    `yaml:"port,omitempty"`
	MapImage  string `yaml:"mapImage,omitempty"`
	MapWidth  int    `yaml:"mapWidth,omitempty"`
	MapHeight int    `yaml:"mapHeight,omitempty"`
	StaticDir string `yaml:"staticDir,omitempty"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{Host: "192.168.0.57", Port: 8000, Path: "/ws/realtime"},
		Camera: CameraConfig{
			Host:    "192.168.0.100",
			Port:    8080,
			Path:    "/stream",
			Topic:   "/image_raw",
			Width:   640,
			Height:  480,
			Quality: 50,
		},
		ReconnectDelay: ReconnectDelay,
		HTTP:           HTTPConfig{Port: 8080},
		View:           ViewConfig{Width: 800, Height: 600},
		Relay:          RelayConfig{Port: 8000, StaticDir: "static"},
	}
}

// LoadConfig loads the configuration from a YAML file. Fields missing from
// the file keep their defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadConfigOrDefault loads path, falling back to defaults when it does not
// exist. Parse and validation errors are still returned.
func LoadConfigOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	return LoadConfig(path)
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// Validate checks the fields the dashboard cannot run without.
func (c *Config) Validate() error {
	if c.Server.URL != "" {
		u, err := url.Parse(c.Server.URL)
		if err != nil {
			return fmt.Errorf("server.url: %w", err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return fmt.Errorf("server.url must use ws:// or wss://, got %q", c.Server.URL)
		}
	} else {
		if c.Server.Host == "" {
			return fmt.Errorf("server.host is required")
		}
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			return fmt.Errorf("server.port out of range: %d", c.Server.Port)
		}
	}
	if c.ReconnectDelay < 0 {
		return fmt.Errorf("reconnectDelay must not be negative")
	}
	if c.View.Width <= 0 || c.View.Height <= 0 {
		return fmt.Errorf("view size must be positive, got %dx%d", c.View.Width, c.View.Height)
	}
	return nil
}

// WebsocketURL returns the control server endpoint.
func (c *Config) WebsocketURL() string {
	if c.Server.URL != "" {
		return c.Server.URL
	}
	return BuildURL(c.Server.Host, c.Server.Port, c.Server.Path)
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadEnvFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides config fields from environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("PATROLDASH_WS_URL"); v != "" {
		c.Server.URL = v
	}
	if v := os.Getenv("PATROLDASH_CAMERA_HOST"); v != "" {
		c.Camera.Host = v
	}
	if v := os.Getenv("PATROLDASH_HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.HTTP.Port = port
		} else {
			Logf("Ignoring PATROLDASH_HTTP_PORT=%q: %v", v, err)
		}
	}
	if v := os.Getenv("MQTT_BROKER"); v != "" {
		c.MQTT.Broker = v
	}
	if v := os.Getenv("MQTT_CLIENT_ID"); v != "" {
		c.MQTT.ClientID = v
	}
	if v := os.Getenv("MQTT_USERNAME"); v != "" {
		c.MQTT.Username = v
	}
	if v := os.Getenv("MQTT_PASSWORD"); v != "" {
		c.MQTT.Password = v
	}
	if v := os.Getenv("MQTT_PUBLISH_PREFIX"); v != "" {
		c.MQTT.PublishPrefix = v
	}
}
