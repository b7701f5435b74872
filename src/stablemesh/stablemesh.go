package stablemesh

import (
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/stablemesh/stablemesh/src/config"
	"github.com/stablemesh/stablemesh/src/keys"
	"github.com/stablemesh/stablemesh/src/net"
	"github.com/stablemesh/stablemesh/src/node"
	"github.com/stablemesh/stablemesh/src/section"
	"github.com/stablemesh/stablemesh/src/service"
	"github.com/stablemesh/stablemesh/src/store"
	"github.com/stablemesh/stablemesh/src/wallet"
	"github.com/stablemesh/stablemesh/src/xor"
)

// Stablemesh is a wrapper around a section node, its transport, its stores,
// and the optional HTTP service. It reads the configuration, wires everything
// together, and runs the node.
type Stablemesh struct {
	Config    *config.Config
	Node      *node.Node
	Transport net.Transport
	Store     store.Store
	Ledger    wallet.Ledger
	Service   *service.Service

	logger *logrus.Entry
}

// NewStablemesh ...
func NewStablemesh(config *config.Config) *Stablemesh {
	engine := &Stablemesh{
		Config: config,
		logger: config.Logger(),
	}

	return engine
}

func (s *Stablemesh) initKey() error {
	if s.Config.Key != nil {
		return nil
	}

	keyfile := keys.NewSimpleKeyfile(s.Config.Keyfile())

	privKey, err := keyfile.ReadKey()
	if err != nil {
		s.logger.Warn("Cannot read private key from file", err)

		privKey, err = keys.GenerateKey()
		if err != nil {
			s.logger.Error("Cannot generate a new private key", err)
			return err
		}

		if err := keyfile.WriteKey(privKey); err != nil {
			return err
		}

		s.logger.Info("Created a new key:", s.Config.Keyfile())
	}

	s.Config.Key = privKey

	return nil
}

func (s *Stablemesh) initTransport() error {
	transport, err := net.NewTCPTransport(
		s.Config.BindAddr,
		s.Config.AdvertiseAddr,
		s.Config.MaxPool,
		s.Config.TCPTimeout,
		s.Config.JoinTimeout,
		s.logger,
	)
	if err != nil {
		return err
	}

	s.Transport = transport

	return nil
}

func (s *Stablemesh) initStore() error {
	if !s.Config.Store {
		s.Store = store.NewInmemStore()

		s.logger.Debug("Created new in-mem store")

		return nil
	}

	s.logger.WithField("path", s.Config.DatabaseDir).Debug("Attempting to load or create database")

	dbStore, err := store.LoadOrCreateBadgerStore(s.Config.DatabaseDir)
	if err != nil {
		return err
	}

	if dbStore.SapCount() > 0 {
		s.logger.Debug("Loaded badger store from existing database")
	} else {
		s.logger.Debug("Created new badger store from fresh database")
	}

	s.Store = dbStore

	return nil
}

func (s *Stablemesh) initLedger() error {
	if !s.Config.Store {
		s.Ledger = wallet.NewInmemLedger()
		return nil
	}

	ledger, err := wallet.NewBadgerLedger(s.Config.LedgerDir())
	if err != nil {
		return err
	}

	s.Ledger = ledger

	return nil
}

func (s *Stablemesh) initNode() error {
	validator := node.NewValidator(s.Config.Key, s.Config.Moniker)

	nodeConf := node.NewConfig(
		s.Config.JoinAddr,
		s.Config.JoinTimeout,
		s.Config.HandoverTimeout,
		s.Config.ProbeInterval,
		s.Config.RetryMaxElapsed,
		s.Config.ElderCount,
		s.Config.CacheSize,
		s.logger.Logger,
	)
	nodeConf.JoinsAllowed = s.Config.JoinsAllowed

	s.logger.WithFields(logrus.Fields{
		"name":    validator.Name().ShortString(),
		"moniker": validator.Moniker,
	}).Debug("VALIDATOR")

	s.Node = node.NewNode(
		nodeConf,
		validator,
		s.Store,
		s.Transport,
		s.Ledger,
	)

	// a configured section prefix bootstraps a brand new section, unless the
	// store already records one
	if s.Config.SectionPrefix != "" && s.Store.SapCount() == 0 {
		prefix, err := xor.ParsePrefix(s.Config.SectionPrefix)
		if err != nil {
			return fmt.Errorf("bad section prefix %q: %w", s.Config.SectionPrefix, err)
		}
		if !prefix.Matches(validator.Name()) {
			return fmt.Errorf("section prefix %q does not cover this node's name", s.Config.SectionPrefix)
		}
		return s.Node.BootstrapSection(prefix)
	}

	if err := s.Node.Init(); err != nil {
		return fmt.Errorf("failed to initialize node: %s", err)
	}

	return nil
}

func (s *Stablemesh) initService() error {
	if !s.Config.NoService {
		s.Service = service.NewService(s.Config.ServiceAddr, s.Node, s.logger)
	}
	return nil
}

// Init reads the configuration and initialises the engine.
func (s *Stablemesh) Init() error {
	// Bootstrap implies loading section state from an existing database
	if s.Config.Bootstrap {
		s.Config.Store = true
	}

	if err := s.initKey(); err != nil {
		return err
	}

	if err := s.initStore(); err != nil {
		return err
	}

	if err := s.initLedger(); err != nil {
		return err
	}

	if err := s.initTransport(); err != nil {
		return err
	}

	if err := s.initNode(); err != nil {
		return err
	}

	if err := s.initService(); err != nil {
		return err
	}

	return nil
}

// Run starts the node and the optional HTTP service. This is a blocking call.
func (s *Stablemesh) Run() {
	if s.Service != nil && s.Config.ServiceAddr != "" {
		go s.Service.Serve()
	}

	s.Node.Run()
}

// CurrentSap returns the section authority proof the node currently follows.
func (s *Stablemesh) CurrentSap() (*section.Sap, error) {
	return s.Node.GetLastSap()
}

// Keygen generates a new identity key in datadir, refusing to overwrite an
// existing one.
func Keygen(datadir string) (string, error) {
	keyfile := keys.NewSimpleKeyfile(filepath.Join(datadir, config.DefaultKeyfile))

	if _, err := keyfile.ReadKey(); err == nil {
		return "", fmt.Errorf("another key already lives under %s", datadir)
	}

	privKey, err := keys.GenerateKey()
	if err != nil {
		return "", err
	}

	if err := keyfile.WriteKey(privKey); err != nil {
		return "", err
	}

	return keys.NameOf(privKey.PublicKey()).String(), nil
}
