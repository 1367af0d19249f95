// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Store drivers.
const (
	DriverMongo  = "mongo"
	DriverMemory = "memory"
)

// Config is the full runtime configuration.
type Config struct {
	Port     string `env:"PORT" envDefault:"3000" validate:"required"`
	Env      string `env:"APP_ENV" envDefault:"dev"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	StoreDriver   string        `env:"STORE_DRIVER" envDefault:"mongo" validate:"oneof=mongo memory"`
	MongoURI      string        `env:"MONGODB_URI" validate:"required_if=StoreDriver mongo"`
	MongoDatabase string        `env:"MONGODB_DATABASE" envDefault:"chat_db" validate:"required"`
	StoreTimeout  time.Duration `env:"STORE_TIMEOUT" envDefault:"5s" validate:"gt=0"`

	// JWTKeys is kid:secret,kid2:secret2; it enables key rotation and takes
	// precedence over JWTSecret.
	JWTSecret    string            `env:"JWT_SECRET"`
	JWTKeys      map[string]string `env:"JWT_KEYS" envKeyValSeparator:":"`
	JWTActiveKid string            `env:"JWT_ACTIVE_KID"`
	TokenTTL     time.Duration     `env:"TOKEN_TTL" envDefault:"1h" validate:"gt=0"`

	RateLimitRPM   int `env:"RATE_LIMIT_RPM" envDefault:"10" validate:"gt=0"`
	RateLimitBurst int `env:"RATE_LIMIT_BURST" envDefault:"3" validate:"gt=0"`

	StaticDir string `env:"STATIC_DIR" envDefault:"public"`

	WSSendBuffer    int           `env:"WS_SEND_BUFFER" envDefault:"256" validate:"gt=0"`
	WSPingInterval  time.Duration `env:"WS_PING_INTERVAL" envDefault:"30s" validate:"gt=0"`
	WSPongWait      time.Duration `env:"WS_PONG_WAIT" envDefault:"60s" validate:"gtfield=WSPingInterval"`
	WSMaxFrameBytes int64         `env:"WS_MAX_FRAME_BYTES" envDefault:"65536" validate:"gt=0"`

	// GRPCHealthAddr enables the gRPC health endpoint when set, e.g. ":50051".
	GRPCHealthAddr  string        `env:"GRPC_HEALTH_ADDR"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s" validate:"gt=0"`
}

// Load reads an optional .env file, then the environment, and validates the
// result. Variables already set in the environment win over .env entries.
func Load() (Config, error) {
	_ = godotenv.Load()
	return parse(env.Options{})
}

func parse(opts env.Options) (Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](opts)
	if err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and the JWT key material.
func (c Config) Validate() error {
	var errs []error
	if err := validate.Struct(c); err != nil {
		errs = append(errs, err)
	}

	switch {
	case len(c.JWTKeys) > 0:
		if _, ok := c.JWTKeys[c.JWTActiveKid]; !ok {
			errs = append(errs, fmt.Errorf("JWT_ACTIVE_KID %q is not one of JWT_KEYS", c.JWTActiveKid))
		}
	case c.JWTSecret == "":
		errs = append(errs, errors.New("either JWT_SECRET or JWT_KEYS must be set"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Addr is the HTTP listen address.
func (c Config) Addr() string {
	return ":" + c.Port
}
