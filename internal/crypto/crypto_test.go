package crypto

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndRecover(t *testing.T) {
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	s := NewSigner(key)

	msg := []byte(`{"payment":"1.5"}`)
	sig, err := s.SignMessage(msg)
	require.NoError(t, err)
	require.Len(t, sig, 65)
	assert.GreaterOrEqual(t, sig[64], byte(27))

	got, err := RecoverSigner(msg, sig)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), got)

	assert.True(t, VerifySigner(msg, sig, s.Address()))
	assert.False(t, VerifySigner([]byte("tampered"), sig, s.Address()))

	_, err = RecoverSigner(msg, sig[:64])
	require.Error(t, err)
}

func TestSignLog(t *testing.T) {
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	s := NewSigner(key)

	log := &types.Log{
		Address: common.HexToAddress("0xa1"),
		Topics:  []common.Hash{ethcrypto.Keccak256Hash([]byte("Staked(address,uint256)"))},
		Data:    []byte{1, 2, 3},
	}
	sig, err := s.SignLog(log)
	require.NoError(t, err)
	assert.True(t, VerifySigner(LogDigest(log).Bytes(), sig, s.Address()))
}

func TestEncryptDecryptKeyfile(t *testing.T) {
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)

	blob, err := EncryptKey(KeyHex(key), "hunter2")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "operator.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	loaded, err := LoadKey(KeyConfig{EncryptedKeyPath: path, KeyPassword: "hunter2"})
	require.NoError(t, err)
	assert.Equal(t, KeyHex(key), KeyHex(loaded))

	_, err = LoadKey(KeyConfig{EncryptedKeyPath: path, KeyPassword: "wrong"})
	require.Error(t, err)

	raw, err := LoadKey(KeyConfig{RawPrivateKey: "0x" + KeyHex(key)})
	require.NoError(t, err)
	assert.Equal(t, KeyHex(key), KeyHex(raw))

	_, err = LoadKey(KeyConfig{})
	require.Error(t, err)
}

func TestWebhookSigner(t *testing.T) {
	w := NewWebhookSigner("s3cret")
	now := time.Unix(1_700_000_000, 0)
	body := []byte(`{"event":"token_created"}`)

	h := w.Headers(body, now)
	require.NoError(t, w.Verify(body, h[HeaderWebhookTimestamp], h[HeaderWebhookSignature], now.Add(time.Minute), 5*time.Minute))

	err := w.Verify([]byte("other"), h[HeaderWebhookTimestamp], h[HeaderWebhookSignature], now, 5*time.Minute)
	require.Error(t, err)

	err = w.Verify(body, h[HeaderWebhookTimestamp], h[HeaderWebhookSignature], now.Add(time.Hour), 5*time.Minute)
	require.Error(t, err)

	assert.NotContains(t, w.String(), "s3cret")
}
