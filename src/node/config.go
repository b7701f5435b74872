package node

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stablemesh/stablemesh/src/common"
)

type Config struct {
	JoinAddr        string        `mapstructure:"join"`
	JoinTimeout     time.Duration `mapstructure:"join-timeout"`
	HandoverTimeout time.Duration `mapstructure:"handover-timeout"`
	ProbeInterval   time.Duration `mapstructure:"probe-interval"`
	RetryMaxElapsed time.Duration `mapstructure:"retry-max-elapsed"`
	ElderCount      int           `mapstructure:"elder-count"`
	CacheSize       int           `mapstructure:"cache-size"`
	JoinsAllowed    bool          `mapstructure:"joins-allowed"`
	Logger          *logrus.Logger
}

func NewConfig(joinAddr string,
	joinTimeout time.Duration,
	handoverTimeout time.Duration,
	probeInterval time.Duration,
	retryMaxElapsed time.Duration,
	elderCount int,
	cacheSize int,
	logger *logrus.Logger) *Config {

	return &Config{
		JoinAddr:        joinAddr,
		JoinTimeout:     joinTimeout,
		HandoverTimeout: handoverTimeout,
		ProbeInterval:   probeInterval,
		RetryMaxElapsed: retryMaxElapsed,
		ElderCount:      elderCount,
		CacheSize:       cacheSize,
		JoinsAllowed:    true,
		Logger:          logger,
	}
}

func DefaultConfig() *Config {
	logger := logrus.New()
	logger.Level = logrus.DebugLevel

	return &Config{
		JoinTimeout:     30000 * time.Millisecond,
		HandoverTimeout: 10000 * time.Millisecond,
		ProbeInterval:   10000 * time.Millisecond,
		RetryMaxElapsed: 180000 * time.Millisecond,
		ElderCount:      7,
		CacheSize:       10000,
		JoinsAllowed:    true,
		Logger:          logger,
	}
}

func TestConfig(t *testing.T) *Config {
	config := DefaultConfig()
	config.HandoverTimeout = 500 * time.Millisecond
	config.ProbeInterval = 200 * time.Millisecond
	config.Logger = common.NewTestLogger(t, common.TestLogLevel)
	return config
}
