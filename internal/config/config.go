package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`
	LogLevel   string        `mapstructure:"log_level"`

	// Account is our own full address.
	Account string `mapstructure:"account"`

	Signal SignalConfig `mapstructure:"signal"`
	Call   CallConfig   `mapstructure:"call"`
	Coin   CoinConfig   `mapstructure:"coin"`
	Relay  RelayConfig  `mapstructure:"relay"`
	ICE    ICEConfig    `mapstructure:"ice"`
}

type SignalConfig struct {
	SendBuffer   int           `mapstructure:"send_buffer"`
	RateLimit    float64       `mapstructure:"rate_limit"`
	RateBurst    int           `mapstructure:"rate_burst"`
	QueryTimeout time.Duration `mapstructure:"query_timeout"`
}

type CallConfig struct {
	// Paranoia rejects offers that advertise none of Encryption.
	Paranoia        bool          `mapstructure:"paranoia"`
	Encryption      []string      `mapstructure:"encryption"`
	VideoAllowed    bool          `mapstructure:"video_allowed"`
	InputEventAware bool          `mapstructure:"input_event_aware"`
	AutoAnswer      bool          `mapstructure:"auto_answer"`
	MaxCalls        int           `mapstructure:"max_calls"`
	HarvestTimeout  time.Duration `mapstructure:"harvest_timeout"`
	Components      int           `mapstructure:"components"`
	// TransportWait bounds how long transport-info waits for session-initiate processing.
	TransportWait time.Duration `mapstructure:"transport_wait"`
}

type CoinConfig struct {
	Disabled             bool          `mapstructure:"disabled"`
	MinInterval          time.Duration `mapstructure:"min_interval"`
	PartialNotifications bool          `mapstructure:"partial_notifications"`
}

type RelayEntry struct {
	Address string `mapstructure:"address"`
	Kind    string `mapstructure:"kind"`
	// Protocol is the transport the relay allocates, "udp" by default.
	Protocol string `mapstructure:"protocol"`
}

type RelayConfig struct {
	AutoDiscovery bool          `mapstructure:"auto_discovery"`
	Prefixes      []string      `mapstructure:"prefixes"`
	StopOnFirst   bool          `mapstructure:"stop_on_first"`
	MaxDepth      int           `mapstructure:"max_depth"`
	MaxEntries    int           `mapstructure:"max_entries"`
	MaxNodes      int           `mapstructure:"max_nodes"`
	EntryTTL      time.Duration `mapstructure:"entry_ttl"`
	Preconfigured []RelayEntry  `mapstructure:"preconfigured"`
}

type ICEConfig struct {
	STUNServers []string `mapstructure:"stun_servers"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("log_level", "info")
	v.SetDefault("account", "voice@localhost/server")

	v.SetDefault("signal.send_buffer", 32)
	v.SetDefault("signal.rate_limit", 50)
	v.SetDefault("signal.rate_burst", 100)
	v.SetDefault("signal.query_timeout", "5s")

	v.SetDefault("call.paranoia", false)
	v.SetDefault("call.encryption", []string{"dtls-srtp", "zrtp", "sdes"})
	v.SetDefault("call.video_allowed", true)
	v.SetDefault("call.input_event_aware", false)
	v.SetDefault("call.auto_answer", false)
	v.SetDefault("call.max_calls", 0)
	v.SetDefault("call.harvest_timeout", "5s")
	v.SetDefault("call.components", 2)
	v.SetDefault("call.transport_wait", "10s")

	v.SetDefault("coin.disabled", false)
	v.SetDefault("coin.min_interval", "200ms")
	v.SetDefault("coin.partial_notifications", true)

	v.SetDefault("relay.auto_discovery", true)
	v.SetDefault("relay.prefixes", []string{"relay", "jn", "jinglenodes"})
	v.SetDefault("relay.stop_on_first", true)
	v.SetDefault("relay.max_depth", 3)
	v.SetDefault("relay.max_entries", 10)
	v.SetDefault("relay.max_nodes", 30)
	v.SetDefault("relay.entry_ttl", "30m")

	v.SetDefault("ice.stun_servers", []string{"stun:stun.l.google.com:19302"})
}

// Load reads .env, then config/config.<CONFIG_ENV>.yaml, then VOICE_* variables.
func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("VOICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	fmt.Printf("🧩 Mode: %s | Port: %d | Account: %s\n", cfg.Mode, cfg.Port, cfg.Account)
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Coin.MinInterval < 0 {
		return fmt.Errorf("coin.min_interval must not be negative: %s", c.Coin.MinInterval)
	}
	if c.Relay.MaxDepth < 0 || c.Relay.MaxNodes < 0 || c.Relay.MaxEntries < 0 {
		return fmt.Errorf("relay bounds must not be negative")
	}
	if c.Call.Components < 1 || c.Call.Components > 2 {
		return fmt.Errorf("call.components must be 1 or 2, got %d", c.Call.Components)
	}
	return nil
}
