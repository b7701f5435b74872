package keys

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignVerify(t *testing.T) {
	priv, err := GenerateKey()
	require.NoError(t, err)

	msg := []byte("time is an illusion")

	sig, err := Sign(priv, msg)
	require.NoError(t, err)

	assert.True(t, Verify(priv.PublicKey(), msg, sig))
	assert.False(t, Verify(priv.PublicKey(), []byte("other"), sig))

	other, err := GenerateKey()
	require.NoError(t, err)
	assert.False(t, Verify(other.PublicKey(), msg, sig))
}

func TestNameOfIsStable(t *testing.T) {
	priv, err := GenerateKey()
	require.NoError(t, err)

	n1 := NameOf(priv.PublicKey())
	n2 := NameOf(priv.PublicKey())
	assert.Equal(t, n1, n2)

	other, err := GenerateKey()
	require.NoError(t, err)
	assert.NotEqual(t, n1, NameOf(other.PublicKey()))
}

func TestReadWriteKey(t *testing.T) {
	keyfile := filepath.Join(t.TempDir(), "priv_key")

	priv, err := GenerateKey()
	require.NoError(t, err)

	kf := NewSimpleKeyfile(keyfile)
	require.NoError(t, kf.WriteKey(priv))

	loaded, err := kf.ReadKey()
	require.NoError(t, err)
	assert.True(t, priv.Equals(loaded))
}
