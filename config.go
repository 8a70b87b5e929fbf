package lobby

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	minMemberCap = 2
	maxMemberCap = 250
)

// Config is the process-level engine configuration, loaded from the
// environment.
type Config struct {
	// BuildID is the local build identity used for the version gate.
	BuildID string `env:"LOBBY_BUILD_ID" envDefault:"dev"`
	// MemberCap limits hosted sessions; clamped to the directory's range.
	MemberCap int `env:"LOBBY_MEMBER_CAP" envDefault:"8"`
	// RelayBind is the listen address for the host-side match relay. Port 0
	// picks a free port.
	RelayBind string `env:"LOBBY_RELAY_BIND" envDefault:"127.0.0.1:0"`
	// TickInterval paces the engine loop.
	TickInterval time.Duration `env:"LOBBY_TICK_INTERVAL" envDefault:"250ms"`
	// AllowVersionMismatch disables the strict build gate on join.
	AllowVersionMismatch bool `env:"LOBBY_ALLOW_VERSION_MISMATCH" envDefault:"false"`
}

// LoadConfig reads configuration from the environment and normalizes it.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	if c.MemberCap < minMemberCap {
		c.MemberCap = minMemberCap
	}
	if c.MemberCap > maxMemberCap {
		c.MemberCap = maxMemberCap
	}
	if c.TickInterval <= 0 {
		c.TickInterval = 250 * time.Millisecond
	}
	if c.RelayBind == "" {
		c.RelayBind = "127.0.0.1:0"
	}
	if c.BuildID == "" {
		c.BuildID = "dev"
	}
}
