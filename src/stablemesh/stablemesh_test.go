package stablemesh

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stablemesh/stablemesh/src/common"
	"github.com/stablemesh/stablemesh/src/config"
)

func TestInitKey(t *testing.T) {
	datadir := t.TempDir()

	conf := config.NewTestConfig(t, common.TestLogLevel)
	conf.SetDataDir(datadir)

	s := NewStablemesh(conf)
	require.NoError(t, s.initKey())
	require.NotNil(t, conf.Key)

	// a second engine over the same datadir reads the same key back
	conf2 := config.NewTestConfig(t, common.TestLogLevel)
	conf2.SetDataDir(datadir)

	s2 := NewStablemesh(conf2)
	require.NoError(t, s2.initKey())

	assert.Equal(t, conf.Key.PublicKey().Encode(), conf2.Key.PublicKey().Encode())
}

func TestKeygen(t *testing.T) {
	datadir := t.TempDir()

	name, err := Keygen(datadir)
	require.NoError(t, err)
	assert.NotEmpty(t, name)

	// refuses to overwrite
	_, err = Keygen(datadir)
	require.Error(t, err)
}

func TestBootstrapGenesisSection(t *testing.T) {
	conf := config.NewTestConfig(t, common.TestLogLevel)
	conf.SetDataDir(t.TempDir())
	conf.BindAddr = "127.0.0.1:0"
	conf.SectionPrefix = "0b"
	conf.NoService = true

	s := NewStablemesh(conf)
	require.NoError(t, s.Init())
	defer s.Node.Shutdown()

	stats := s.Node.GetStats()
	assert.Equal(t, "Running", stats["state"])
	assert.Equal(t, "1", stats["saps"])
	assert.Equal(t, "true", stats["is_elder"])

	sap, err := s.CurrentSap()
	require.NoError(t, err)
	assert.NoError(t, sap.VerifySelfSigned())
}
