package config

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/onflow/flow-go/crypto"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"

	"github.com/stablemesh/stablemesh/src/common"
)

// Default filenames.
const (
	// DefaultKeyfile is the default name of the file containing the node's
	// private identity key
	DefaultKeyfile = "priv_key"

	// DefaultBadgerFile is the default name of the folder containing the Badger
	// database of section state
	DefaultBadgerFile = "badger_db"

	// DefaultLedgerFile is the default name of the folder containing the Badger
	// database of the reward ledger
	DefaultLedgerFile = "ledger_db"
)

// Default configuration values.
const (
	DefaultLogLevel        = "debug"
	DefaultBindAddr        = "127.0.0.1:1337"
	DefaultServiceAddr     = "127.0.0.1:8000"
	DefaultTCPTimeout      = 1000 * time.Millisecond
	DefaultJoinTimeout     = 30000 * time.Millisecond
	DefaultHandoverTimeout = 10000 * time.Millisecond
	DefaultProbeInterval   = 10000 * time.Millisecond
	DefaultRetryMaxElapsed = 180000 * time.Millisecond
	DefaultElderCount      = 7
	DefaultCacheSize       = 10000
	DefaultMaxPool         = 2
	DefaultStore           = false
)

// Config contains all the configuration properties of a stablemesh node.
type Config struct {
	// DataDir is the top-level directory containing stablemesh configuration
	// and data
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// LogFile, when set, is the path of a file that receives a copy of every
	// log line in addition to stderr.
	LogFile string `mapstructure:"log-file"`

	// BindAddr is the local address:port where this node talks to other
	// nodes. In some cases, there may be a routable address that cannot be
	// bound. Use AdvertiseAddr to advertise a different address to support
	// this. If this address is not routable, the node will be in a constant
	// flapping state as other nodes will treat the non-routability as a
	// failure.
	BindAddr string `mapstructure:"listen"`

	// AdvertiseAddr is used to change the address that we advertise to other
	// nodes.
	AdvertiseAddr string `mapstructure:"advertise"`

	// NoService disables the HTTP API service.
	NoService bool `mapstructure:"no-service"`

	// ServiceAddr is the address:port of the optional HTTP service. If not
	// specified, and "no-service" is not set, the API handlers are registered
	// with the DefaultServerMux of the http package.
	ServiceAddr string `mapstructure:"service-listen"`

	// JoinAddr is the address of an existing section member to contact for
	// admission. Ignored when the node already belongs to a recorded section
	// or bootstraps one with SectionPrefix.
	JoinAddr string `mapstructure:"join"`

	// MaxPool controls how many connections are pooled per target.
	MaxPool int `mapstructure:"max-pool"`

	// TCPTimeout is the timeout of RPC connections.
	TCPTimeout time.Duration `mapstructure:"timeout"`

	// JoinTimeout bounds how long a joining candidate waits for its admission
	// to be confirmed by the section before giving up.
	JoinTimeout time.Duration `mapstructure:"join-timeout"`

	// HandoverTimeout bounds a handover vote round. When it fires without a
	// decision, elders drop the round and restart it from the current stable
	// set.
	HandoverTimeout time.Duration `mapstructure:"handover-timeout"`

	// ProbeInterval is the period of liveness probes towards section members.
	ProbeInterval time.Duration `mapstructure:"probe-interval"`

	// RetryMaxElapsed is the total retry budget for pushing reward transfers
	// at the ledger after a handover.
	RetryMaxElapsed time.Duration `mapstructure:"retry-max-elapsed"`

	// ElderCount is the target number of elders per section.
	ElderCount int `mapstructure:"elder-count"`

	// SectionPrefix, when set, overrides the section prefix the node assumes
	// at startup, e.g. "0b01". Used for bootstrapping the first sections of a
	// network.
	SectionPrefix string `mapstructure:"section-prefix"`

	// Store activates persistent storage.
	Store bool `mapstructure:"store"`

	// DatabaseDir is the directory containing database files.
	DatabaseDir string `mapstructure:"db"`

	// Bootstrap determines whether to load the node from an existing database
	// file. Forces Store.
	Bootstrap bool `mapstructure:"bootstrap"`

	// CacheSize is the max number of items in in-memory caches.
	CacheSize int `mapstructure:"cache-size"`

	// JoinsAllowed controls whether this node, when elder, admits new
	// candidates.
	JoinsAllowed bool `mapstructure:"joins-allowed"`

	// Moniker defines the friendly name of this node
	Moniker string `mapstructure:"moniker"`

	// Key is the private identity key of the node.
	Key crypto.PrivateKey

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:         DefaultDataDir(),
		LogLevel:        DefaultLogLevel,
		BindAddr:        DefaultBindAddr,
		ServiceAddr:     DefaultServiceAddr,
		TCPTimeout:      DefaultTCPTimeout,
		JoinTimeout:     DefaultJoinTimeout,
		HandoverTimeout: DefaultHandoverTimeout,
		ProbeInterval:   DefaultProbeInterval,
		RetryMaxElapsed: DefaultRetryMaxElapsed,
		ElderCount:      DefaultElderCount,
		CacheSize:       DefaultCacheSize,
		MaxPool:         DefaultMaxPool,
		Store:           DefaultStore,
		JoinsAllowed:    true,
		DatabaseDir:     DefaultDatabaseDir(),
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB, level logrus.Level) *Config {
	config := NewDefaultConfig()
	config.logger = common.NewTestLogger(t, level)
	return config
}

// SetDataDir sets the top-level stablemesh directory, and updates the database
// directory if it is currently set to the default value. If the database
// directory is not currently the default, it means the user has explicitely set
// it to something else, so avoid changing it again here.
func (c *Config) SetDataDir(dataDir string) {
	c.DataDir = dataDir
	if c.DatabaseDir == DefaultDatabaseDir() {
		c.DatabaseDir = filepath.Join(dataDir, DefaultBadgerFile)
	}
}

// Keyfile returns the full path of the file containing the private key.
func (c *Config) Keyfile() string {
	return filepath.Join(c.DataDir, DefaultKeyfile)
}

// LedgerDir returns the full path of the reward-ledger database directory.
func (c *Config) LedgerDir() string {
	return filepath.Join(c.DataDir, DefaultLedgerFile)
}

// Logger returns a formatted logrus Entry, with prefix set to "stablemesh".
// When LogFile is set, a file hook copies every level there.
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)

		if c.LogFile != "" {
			if _, err := os.OpenFile(c.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666); err != nil {
				c.logger.WithError(err).Warnf("Failed to open %s, using stderr only", c.LogFile)
			} else {
				pathMap := lfshook.PathMap{}
				for _, lvl := range logrus.AllLevels {
					pathMap[lvl] = c.LogFile
				}
				c.logger.Hooks.Add(lfshook.NewHook(pathMap, &logrus.TextFormatter{}))
			}
		}
	}
	return c.logger.WithField("prefix", "stablemesh")
}

// DefaultDatabaseDir returns the default path for the badger database files.
func DefaultDatabaseDir() string {
	return filepath.Join(DefaultDataDir(), DefaultBadgerFile)
}

// DefaultDataDir return the default directory name for top-level stablemesh
// config based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".Stablemesh")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "Stablemesh")
		} else {
			return filepath.Join(home, ".stablemesh")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
