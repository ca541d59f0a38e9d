package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is used when CAMLINK_CONFIG is not set.
const DefaultPath = "configs/config.yaml"

const minJWTSecretLength = 32

// Config is the root configuration structure for camlinkd.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Node      NodeConfig      `yaml:"node"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Device    DeviceConfig    `yaml:"device"`
	Security  SecurityConfig  `yaml:"security"`
}

// NodeConfig identifies this host in published topics and audit rows.
type NodeConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings, in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// CORSConfig lists the browser origins allowed to call the API. An empty
// list allows every origin.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// APITimeoutConfig contains HTTP timeout settings, in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains event stream settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`

	// StatusKeepalive is the longest gap, in seconds, between two status
	// points of an unchanged camera.
	StatusKeepalive int `yaml:"status_keepalive"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// DiscoveryConfig enables transport families and sets their scan intervals.
type DiscoveryConfig struct {
	USB      USBDiscoveryConfig     `yaml:"usb"`
	Network  NetworkDiscoveryConfig `yaml:"network"`
	BLE      BLEDiscoveryConfig     `yaml:"ble"`
	Loopback LoopbackConfig         `yaml:"loopback"`

	// HandshakeTimeout bounds open plus identity handshake.
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
}

// FamilyConfig is the part shared by every family.
type FamilyConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// USBDiscoveryConfig selects which serial ports are cameras.
type USBDiscoveryConfig struct {
	FamilyConfig `yaml:",inline"`

	// VendorIDs lists accepted USB vendor IDs as hex strings ("2e1a").
	VendorIDs []string `yaml:"vendor_ids"`
	BaudRate  int      `yaml:"baud_rate"`
}

// NetworkDiscoveryConfig configures UDP discovery and TCP links.
type NetworkDiscoveryConfig struct {
	FamilyConfig `yaml:",inline"`

	DiscoveryPort     int           `yaml:"discovery_port"`
	DevicePort        int           `yaml:"device_port"`
	BroadcastAddress  string        `yaml:"broadcast_address"`
	ListenWindow      time.Duration `yaml:"listen_window"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	AllowList         []string      `yaml:"allow_list"`

	// StaticHosts are probed directly in addition to the broadcast.
	StaticHosts []string `yaml:"static_hosts"`
}

// BLEDiscoveryConfig configures the BLE advertisement scan.
type BLEDiscoveryConfig struct {
	FamilyConfig `yaml:",inline"`

	ScanWindow time.Duration `yaml:"scan_window"`
	NamePrefix string        `yaml:"name_prefix"`
}

// LoopbackConfig runs simulated cameras instead of, or next to, real ones.
type LoopbackConfig struct {
	FamilyConfig `yaml:",inline"`

	Devices      int           `yaml:"devices"`
	TickInterval time.Duration `yaml:"tick_interval"`
}

// DeviceConfig contains per-device defaults.
type DeviceConfig struct {
	RefreshPeriod  int           `yaml:"refresh_period"`
	QueueDepth     int           `yaml:"queue_depth"`
	DefaultTimeout time.Duration `yaml:"default_timeout"`
	ChunkSize      int           `yaml:"chunk_size"`
	ResourceDir    string        `yaml:"resource_dir"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: CAMLINK_SECTION_KEY
// For example: CAMLINK_DATABASE_PATH, CAMLINK_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Path returns the config file location from CAMLINK_CONFIG or DefaultPath.
func Path() string {
	if v := os.Getenv("CAMLINK_CONFIG"); v != "" {
		return v
	}
	return DefaultPath
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Node: NodeConfig{
			ID:   "camlink-001",
			Name: "camlink",
		},
		Database: DatabaseConfig{
			Path:        "./data/camlink.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "camlinkd",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:       100,
			FlushInterval:   10,
			StatusKeepalive: 60,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
			File: FileLoggingConfig{
				Path:       "./logs/camlinkd.log",
				MaxSize:    50,
				MaxBackups: 5,
				MaxAge:     28,
				Compress:   true,
			},
		},
		Discovery: DiscoveryConfig{
			USB: USBDiscoveryConfig{
				FamilyConfig: FamilyConfig{Enabled: true, Interval: time.Second},
				BaudRate:     115200,
			},
			Network: NetworkDiscoveryConfig{
				FamilyConfig:      FamilyConfig{Enabled: true, Interval: 3 * time.Second},
				DiscoveryPort:     7788,
				DevicePort:        7789,
				BroadcastAddress:  "255.255.255.255",
				ListenWindow:      time.Second,
				HeartbeatInterval: 3 * time.Second,
			},
			BLE: BLEDiscoveryConfig{
				FamilyConfig: FamilyConfig{Interval: 5 * time.Second},
				ScanWindow:   5 * time.Second,
				NamePrefix:   "OBSBOT",
			},
			Loopback: LoopbackConfig{
				FamilyConfig: FamilyConfig{Interval: 500 * time.Millisecond},
				Devices:      2,
				TickInterval: 10 * time.Millisecond,
			},
			HandshakeTimeout: 5 * time.Second,
		},
		Device: DeviceConfig{
			RefreshPeriod:  100,
			QueueDepth:     32,
			DefaultTimeout: 3 * time.Second,
			ChunkSize:      16 << 10,
			ResourceDir:    "./data/resources",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 60,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: CAMLINK_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	strs := map[string]*string{
		"CAMLINK_NODE_ID":         &cfg.Node.ID,
		"CAMLINK_DATABASE_PATH":   &cfg.Database.Path,
		"CAMLINK_MQTT_HOST":       &cfg.MQTT.Broker.Host,
		"CAMLINK_MQTT_USERNAME":   &cfg.MQTT.Auth.Username,
		"CAMLINK_MQTT_PASSWORD":   &cfg.MQTT.Auth.Password,
		"CAMLINK_API_HOST":        &cfg.API.Host,
		"CAMLINK_INFLUXDB_URL":    &cfg.InfluxDB.URL,
		"CAMLINK_INFLUXDB_TOKEN":  &cfg.InfluxDB.Token,
		"CAMLINK_LOG_LEVEL":       &cfg.Logging.Level,
		"CAMLINK_JWT_SECRET":      &cfg.Security.JWT.Secret,
		"CAMLINK_DEVICE_RESOURCE": &cfg.Device.ResourceDir,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"CAMLINK_MQTT_PORT":             &cfg.MQTT.Broker.Port,
		"CAMLINK_API_PORT":              &cfg.API.Port,
		"CAMLINK_DEVICE_REFRESH_PERIOD": &cfg.Device.RefreshPeriod,
	}
	for key, dst := range ints {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
	}

	bools := map[string]*bool{
		"CAMLINK_MQTT_ENABLED":      &cfg.MQTT.Enabled,
		"CAMLINK_INFLUXDB_ENABLED":  &cfg.InfluxDB.Enabled,
		"CAMLINK_LOOPBACK_ENABLED":  &cfg.Discovery.Loopback.Enabled,
		"CAMLINK_DISCOVERY_USB":     &cfg.Discovery.USB.Enabled,
		"CAMLINK_DISCOVERY_NETWORK": &cfg.Discovery.Network.Enabled,
		"CAMLINK_DISCOVERY_BLE":     &cfg.Discovery.BLE.Enabled,
	}
	for key, dst := range bools {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = b
	}
	return nil
}

// Validate checks the configuration and reports every problem at once.
//
// Returns:
//   - error: All validation failures joined, or nil if valid
func (c *Config) Validate() error {
	var errs []error

	if c.Node.ID == "" {
		errs = append(errs, errors.New("node.id is required"))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, errors.New("mqtt.qos must be 0, 1, or 2"))
	}
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, errors.New("api.port must be between 1 and 65535"))
	}
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, errors.New("influxdb.url is required when influxdb is enabled"))
	}

	switch c.Logging.Output {
	case "stdout", "stderr":
	case "file":
		if c.Logging.File.Path == "" {
			errs = append(errs, errors.New("logging.file.path is required for file output"))
		}
	default:
		errs = append(errs, fmt.Errorf("logging.output %q must be stdout, stderr or file", c.Logging.Output))
	}

	families := map[string]FamilyConfig{
		"usb":      c.Discovery.USB.FamilyConfig,
		"network":  c.Discovery.Network.FamilyConfig,
		"ble":      c.Discovery.BLE.FamilyConfig,
		"loopback": c.Discovery.Loopback.FamilyConfig,
	}
	for name, f := range families {
		if f.Enabled && f.Interval <= 0 {
			errs = append(errs, fmt.Errorf("discovery.%s.interval must be positive", name))
		}
	}
	if c.Discovery.Network.Enabled && c.Discovery.Network.HeartbeatInterval <= 0 {
		errs = append(errs, errors.New("discovery.network.heartbeat_interval must be positive"))
	}

	if c.Device.RefreshPeriod < 1 {
		errs = append(errs, errors.New("device.refresh_period must be at least 1"))
	}
	if c.Device.QueueDepth < 1 {
		errs = append(errs, errors.New("device.queue_depth must be at least 1"))
	}
	if c.Device.ChunkSize < 1 || c.Device.ChunkSize > 60<<10 {
		errs = append(errs, errors.New("device.chunk_size must be between 1 and 61440"))
	}

	// The API grants camera control; a guessable secret forges tokens.
	if c.API.Enabled {
		if c.Security.JWT.Secret == "" {
			errs = append(errs, errors.New("security.jwt.secret is required (set CAMLINK_JWT_SECRET environment variable)"))
		} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
			errs = append(errs, errors.New("security.jwt.secret must be at least 32 characters"))
		}
	}

	return errors.Join(errs...)
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// TokenTTL returns the access token lifetime.
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.Security.JWT.AccessTokenTTL) * time.Minute
}
