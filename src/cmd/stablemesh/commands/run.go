package commands

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stablemesh/stablemesh/src/stablemesh"
)

//NewRunCmd returns the command that starts a stablemesh node
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run node",
		PreRunE: loadConfig,
		RunE:    runStablemesh,
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runStablemesh(cmd *cobra.Command, args []string) error {
	engine := stablemesh.NewStablemesh(_config)

	if err := engine.Init(); err != nil {
		_config.Logger().Error("Cannot initialize engine:", err)
		return err
	}

	engine.Run()

	return nil
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

//AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {

	cmd.Flags().String("datadir", _config.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", _config.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("log-file", _config.LogFile, "Optional file to copy log output to")
	cmd.Flags().String("moniker", _config.Moniker, "Optional name")

	// Network
	cmd.Flags().StringP("listen", "l", _config.BindAddr, "Listen IP:Port for stablemesh node")
	cmd.Flags().StringP("advertise", "a", _config.AdvertiseAddr, "Advertise IP:Port for stablemesh node")
	cmd.Flags().DurationP("timeout", "t", _config.TCPTimeout, "TCP Timeout")
	cmd.Flags().Int("max-pool", _config.MaxPool, "Connection pool size max")

	// Section
	cmd.Flags().StringP("join", "j", _config.JoinAddr, "IP:Port of a section member to request admission from")
	cmd.Flags().Duration("join-timeout", _config.JoinTimeout, "Timeout waiting for admission confirmation")
	cmd.Flags().String("section-prefix", _config.SectionPrefix, "Bootstrap a new section ruling this prefix, e.g. 0b")
	cmd.Flags().Int("elder-count", _config.ElderCount, "Target number of elders per section")
	cmd.Flags().Duration("handover-timeout", _config.HandoverTimeout, "Timeout of a handover vote round")
	cmd.Flags().Duration("probe-interval", _config.ProbeInterval, "Period of liveness probes")
	cmd.Flags().Duration("retry-max-elapsed", _config.RetryMaxElapsed, "Total retry budget for reward settlement")
	cmd.Flags().Bool("joins-allowed", _config.JoinsAllowed, "Admit new candidates when elder")

	// Service
	cmd.Flags().Bool("no-service", _config.NoService, "Disable the HTTP service")
	cmd.Flags().StringP("service-listen", "s", _config.ServiceAddr, "Listen IP:Port for HTTP service")

	// Store
	cmd.Flags().Bool("store", _config.Store, "Use badgerDB instead of in-mem DB")
	cmd.Flags().String("db", _config.DatabaseDir, "Database directory")
	cmd.Flags().Bool("bootstrap", _config.Bootstrap, "Load from database")
	cmd.Flags().Int("cache-size", _config.CacheSize, "Number of items in LRU caches")
}

func loadConfig(cmd *cobra.Command, args []string) error {

	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	// If --datadir was explicitely set, but not --db, this will update the
	// default database dir to be inside the new datadir
	_config.SetDataDir(_config.DataDir)

	logFields := logrus.Fields{
		"DataDir":         _config.DataDir,
		"BindAddr":        _config.BindAddr,
		"AdvertiseAddr":   _config.AdvertiseAddr,
		"ServiceAddr":     _config.ServiceAddr,
		"NoService":       _config.NoService,
		"MaxPool":         _config.MaxPool,
		"Store":           _config.Store,
		"LogLevel":        _config.LogLevel,
		"Moniker":         _config.Moniker,
		"JoinAddr":        _config.JoinAddr,
		"SectionPrefix":   _config.SectionPrefix,
		"ElderCount":      _config.ElderCount,
		"TCPTimeout":      _config.TCPTimeout,
		"JoinTimeout":     _config.JoinTimeout,
		"HandoverTimeout": _config.HandoverTimeout,
		"ProbeInterval":   _config.ProbeInterval,
		"RetryMaxElapsed": _config.RetryMaxElapsed,
		"JoinsAllowed":    _config.JoinsAllowed,
		"CacheSize":       _config.CacheSize,
	}

	if _config.Store {
		logFields["DatabaseDir"] = _config.DatabaseDir
		logFields["Bootstrap"] = _config.Bootstrap
	}

	_config.Logger().WithFields(logFields).Debug("RUN")

	return nil
}

// Bind all flags and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for config file in [datadir]/stablemesh.toml (.json, .yaml also work)
	viper.SetConfigName("stablemesh")    // name of config file (without extension)
	viper.AddConfigPath(_config.DataDir) // search root directory

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		_config.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.Logger().Debugf("No config file found in: %s", _config.DataDir)
	} else {
		return err
	}

	// second unmarshal to read from config file
	return viper.Unmarshal(_config)
}
