package cycle

import (
	"errors"
	"time"

	"github.com/dreschagin/monitor-dw/pkg/config"
)

type Config struct {
	Port     string
	Interval time.Duration
	Timeout  time.Duration
}

func ConfigFrom(cfg *config.Config) (Config, error) {
	c := Config{
		Port:     cfg.Worker.Port,
		Interval: cfg.Alerting.CycleInterval,
		Timeout:  cfg.Alerting.CycleTimeout,
	}

	if c.Interval <= 0 {
		return Config{}, errors.New("cycle interval must be positive")
	}
	if c.Timeout <= 0 || c.Timeout > c.Interval {
		c.Timeout = c.Interval
	}

	return c, nil
}
