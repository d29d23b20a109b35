package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/npezzotti/roomchat/internal/chat"
)

const (
	StorePostgres = "postgres"
	StoreBolt     = "bolt"

	DefaultSweepInterval = 60 * time.Second
)

type Config struct {
	ServerAddr     string
	StoreDriver    string
	StoreDSN       string
	SigningKey     []byte
	AllowedOrigins []string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	SweepInterval  time.Duration
	DecodePolicy   chat.DecodePolicy
}

type Option func(*Config) error

// WithRedis enables the cross-process relay. An empty addr leaves it off.
func WithRedis(addr, password string, db int) Option {
	return func(c *Config) error {
		c.RedisAddr = addr
		c.RedisPassword = password
		c.RedisDB = db
		return nil
	}
}

func WithSweepInterval(d time.Duration) Option {
	return func(c *Config) error {
		if d <= 0 {
			return fmt.Errorf("sweep interval must be positive, got %s", d)
		}
		c.SweepInterval = d
		return nil
	}
}

func WithDecodePolicy(policy string) Option {
	return func(c *Config) error {
		p, err := chat.ParseDecodePolicy(policy)
		if err != nil {
			return err
		}
		c.DecodePolicy = p
		return nil
	}
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	if base64Secret == "" {
		return nil, errors.New("empty secret")
	}
	return base64.StdEncoding.DecodeString(base64Secret)
}

func NewConfig(serverAddr, storeDriver, storeDSN, base64Secret string, allowedOrigins []string, opts ...Option) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if storeDriver != StorePostgres && storeDriver != StoreBolt {
		return nil, fmt.Errorf("unknown store driver %q", storeDriver)
	}
	if storeDSN == "" {
		return nil, fmt.Errorf("store DSN cannot be empty")
	}
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}

	// Decode the base64 encoded signing secret
	signingKey, err := decodeSigningSecret(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	cfg := &Config{
		ServerAddr:     serverAddr,
		StoreDriver:    storeDriver,
		StoreDSN:       storeDSN,
		SigningKey:     signingKey,
		AllowedOrigins: allowedOrigins,
		SweepInterval:  DefaultSweepInterval,
		DecodePolicy:   chat.DefaultOnMalformed,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}
