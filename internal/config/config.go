package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/dkeye/VoiceClient/internal/domain"
)

var ErrInvalid = errors.New("invalid config")

type Config struct {
	Mode     string `mapstructure:"mode"`
	LogLevel string `mapstructure:"log_level"`

	SignalURL     string                      `mapstructure:"signal_url"`
	DirectoryURL  string                      `mapstructure:"directory_url"`
	RendezvousURL string                      `mapstructure:"rendezvous_url"`
	RoomID        string                      `mapstructure:"room_id"`
	ClientID      string                      `mapstructure:"client_id"`
	ICEServers    []domain.ConnectivityServer `mapstructure:"ice_servers"`

	CloseTimeout time.Duration `mapstructure:"close_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PingPeriod   time.Duration `mapstructure:"ping_period"`
	ReadLimit    int64         `mapstructure:"read_limit"`
	HTTPTimeout  time.Duration `mapstructure:"http_timeout"`

	// devserver
	Port          int     `mapstructure:"port"`
	Secret        string  `mapstructure:"secret"`
	RegisterRate  float64 `mapstructure:"register_rate"`
	RegisterBurst int     `mapstructure:"register_burst"`
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("VOICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("mode", "release")
	v.SetDefault("log_level", "info")
	v.SetDefault("signal_url", "ws://localhost:8080/ws")
	v.SetDefault("directory_url", "")
	v.SetDefault("rendezvous_url", "")
	v.SetDefault("room_id", "")
	v.SetDefault("client_id", "")
	v.SetDefault("ice_servers", []map[string]string{{"url": "stun:stun.l.google.com:19302"}})
	v.SetDefault("close_timeout", "1s")
	v.SetDefault("write_timeout", "5s")
	v.SetDefault("ping_period", "54s")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("http_timeout", "10s")
	v.SetDefault("port", 8080)
	v.SetDefault("secret", "voice-dev-secret")
	v.SetDefault("register_rate", 5)
	v.SetDefault("register_burst", 10)
	return v
}

// Load reads config/config.<CONFIG_ENV>.yaml (dev by default). A missing
// file is not an error, defaults and VOICE_* variables still apply.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return load(fmt.Sprintf("config/config.%s.yaml", env), false)
}

// LoadFile reads an explicit file, which must exist.
func LoadFile(path string) (*Config, error) {
	return load(path, true)
}

func load(fileName string, required bool) (*Config, error) {
	v := newViper()
	v.SetConfigFile(fileName)

	if err := v.ReadInConfig(); err != nil {
		if required {
			return nil, fmt.Errorf("read config %s: %w", fileName, err)
		}
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	log.Debug().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Str("signal", cfg.SignalURL).
		Int("ice_servers", len(cfg.ICEServers)).
		Msg("config")
	return &cfg, nil
}

// Validate checks the client side settings.
func (c *Config) Validate() error {
	var errs []error
	if err := checkURL(c.SignalURL, "ws", "wss"); err != nil {
		errs = append(errs, fmt.Errorf("signal_url: %w", err))
	}
	if c.DirectoryURL != "" {
		if err := checkURL(c.DirectoryURL, "http", "https"); err != nil {
			errs = append(errs, fmt.Errorf("directory_url: %w", err))
		}
	}
	if c.RendezvousURL != "" {
		if err := checkURL(c.RendezvousURL, "http", "https"); err != nil {
			errs = append(errs, fmt.Errorf("rendezvous_url: %w", err))
		}
	}
	if c.RoomID != "" {
		if _, err := domain.ParseRoomID(c.RoomID); err != nil {
			errs = append(errs, fmt.Errorf("room_id: %w", err))
		}
	}
	if c.CloseTimeout <= 0 {
		errs = append(errs, errors.New("close_timeout must be positive"))
	}
	if c.ReadLimit <= 0 {
		errs = append(errs, errors.New("read_limit must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || c.LogLevel == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

func checkURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	for _, s := range schemes {
		if u.Scheme == s {
			if u.Host == "" {
				return errors.New("missing host")
			}
			return nil
		}
	}
	return fmt.Errorf("scheme %q, want one of %v", u.Scheme, schemes)
}
