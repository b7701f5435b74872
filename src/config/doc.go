// Package config defines the configuration for a stablemesh node.
//
// Regardless of how stablemesh is started, directly from Go code or as a
// standalone process from the command line, it uses the Config object defined
// in this package to store and forward configuration options. On top of these
// configuration options, stablemesh relies on a data directory, defined by
// Config.DataDir, where it expects to find a few additional files:
//
//	priv_key   // a plain text file containing the raw private key (cf. stablemesh keygen).
//	badger_db  // the database of durable section state.
//	ledger_db  // the database backing the local reward ledger.
package config
