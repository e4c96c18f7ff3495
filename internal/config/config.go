package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Methods accepted in OBJ_METHOD and in minimize requests.
var Methods = []string{"newton", "bfgs", "lbfgs", "neldermead"}

type Config struct {
	Environment string `env:"ENV" envDefault:"development"`
	HTTP        struct {
		Port            int           `env:"HTTP_PORT" envDefault:"8080"`
		ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
		WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
		IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
		ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s"`
		RequestTimeout  time.Duration `env:"HTTP_REQUEST_TIMEOUT" envDefault:"60s"`
	}
	Logging struct {
		// Level defaults to debug in development and info elsewhere.
		Level  string `env:"LOG_LEVEL"`
		Format string `env:"LOG_FORMAT" envDefault:"json"`
		Output string `env:"LOG_OUTPUT" envDefault:"stderr"`
	}
	Objective struct {
		// WorkerCount bounds parallel term evaluation; 0 means GOMAXPROCS.
		WorkerCount   int    `env:"OBJ_WORKER_COUNT" envDefault:"0"`
		Method        string `env:"OBJ_METHOD" envDefault:"newton"`
		MaxIterations int    `env:"OBJ_MAX_ITERATIONS" envDefault:"200"`
		MaxVariables  int    `env:"OBJ_MAX_VARIABLES" envDefault:"10000"`
		MaxTerms      int    `env:"OBJ_MAX_TERMS" envDefault:"100000"`
		// MaxScalars caps the total length of all variables; Newton and the
		// dense Hessian grow with its square.
		MaxScalars int `env:"OBJ_MAX_SCALARS" envDefault:"4096"`
		// MaxResults caps the number of finished runs kept for lookup.
		MaxResults int `env:"OBJ_MAX_RESULTS" envDefault:"1000"`
	}
}

func Load() (*Config, error) {
	cfg := &Config{}

	// Parse environment variables
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	// Set default logging level based on environment
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
		if cfg.Environment == "development" {
			cfg.Logging.Level = "debug"
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values env tags cannot express.
func (c *Config) Validate() error {
	if c.Objective.WorkerCount < 0 {
		return fmt.Errorf("OBJ_WORKER_COUNT must not be negative, got %d", c.Objective.WorkerCount)
	}
	if !ValidMethod(c.Objective.Method) {
		return fmt.Errorf("OBJ_METHOD must be one of %v, got %q", Methods, c.Objective.Method)
	}
	if c.Objective.MaxScalars < 0 {
		return fmt.Errorf("OBJ_MAX_SCALARS must not be negative, got %d", c.Objective.MaxScalars)
	}
	if c.Objective.MaxIterations <= 0 {
		return fmt.Errorf("OBJ_MAX_ITERATIONS must be positive, got %d", c.Objective.MaxIterations)
	}
	return nil
}

// ValidMethod reports whether name is one of Methods.
func ValidMethod(name string) bool {
	for _, m := range Methods {
		if m == name {
			return true
		}
	}
	return false
}
