package auth

import (
	"bytes"
	"crypto/ed25519"
	"strings"
	"testing"

	"github.com/stellar/go/strkey"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stelgent-web/pkg/types"
)

func TestEncodePublicKey_ZeroAccount(t *testing.T) {
	key, err := EncodePublicKey(make([]byte, 32))

	require.NoError(t, err)
	assert.Equal(t, "GAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAWHF", key)
}

func TestPublicKeyRoundTrip(t *testing.T) {
	pub := bytes.Repeat([]byte{0xAB}, 32)

	key, err := EncodePublicKey(pub)
	require.NoError(t, err)
	assert.Len(t, key, 56)
	assert.True(t, strings.HasPrefix(key, "G"))

	decoded, err := DecodePublicKey(key)
	require.NoError(t, err)
	assert.Equal(t, pub, decoded)
}

func TestDecodePublicKey_Invalid(t *testing.T) {
	valid, err := EncodePublicKey(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)

	flipped := []byte(valid)
	if flipped[10] == 'A' {
		flipped[10] = 'B'
	} else {
		flipped[10] = 'A'
	}

	cases := map[string]string{
		"empty":        "",
		"short":        valid[:55],
		"lowercase":    strings.ToLower(valid),
		"bad checksum": string(flipped),
		"secret seed":  "S" + valid[1:],
	}
	for name, key := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodePublicKey(key)
			assert.ErrorIs(t, err, types.ErrInvalidPublicKey)
		})
	}
}

func TestDecodePublicKey_GeneratedKey(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	address, err := strkey.Encode(strkey.VersionByteAccountID, pub)
	require.NoError(t, err)
	raw, err := DecodePublicKey(address)
	require.NoError(t, err)
	assert.Equal(t, []byte(pub), raw)

	seed, err := strkey.Encode(strkey.VersionByteSeed, priv.Seed())
	require.NoError(t, err)
	_, err = DecodePublicKey(seed)
	assert.ErrorIs(t, err, types.ErrInvalidPublicKey)
}

func TestDecodePublicKey_WrongPayloadLength(t *testing.T) {
	short, err := strkey.Encode(strkey.VersionByteAccountID, bytes.Repeat([]byte{2}, 31))
	require.NoError(t, err)

	_, err = DecodePublicKey(short)
	assert.ErrorIs(t, err, types.ErrInvalidPublicKey)
}

func TestEncodePublicKey_WrongLength(t *testing.T) {
	_, err := EncodePublicKey([]byte{1, 2, 3})

	assert.ErrorIs(t, err, types.ErrInvalidPublicKey)
}

func TestValidatePublicKey(t *testing.T) {
	key, err := EncodePublicKey(bytes.Repeat([]byte{1}, 32))
	require.NoError(t, err)

	got, err := ValidatePublicKey("  " + key + "\n")
	require.NoError(t, err)
	assert.Equal(t, key, got)

	_, err = ValidatePublicKey("   ")
	assert.ErrorIs(t, err, types.ErrUnauthenticated)

	_, err = ValidatePublicKey("GNOTAKEY")
	assert.ErrorIs(t, err, types.ErrInvalidPublicKey)
}
