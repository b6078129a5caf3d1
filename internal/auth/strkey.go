// Package auth validates Stellar wallet public keys used as bearer credentials.
package auth

import (
	"crypto/ed25519"
	"fmt"
	"strings"

	"github.com/stellar/go/strkey"

	"stelgent-web/pkg/types"
)

// DecodePublicKey 解码 StrKey 账户公钥（G 开头），返回 32 字节的 ed25519 公钥
func DecodePublicKey(key string) ([]byte, error) {
	raw, err := strkey.Decode(strkey.VersionByteAccountID, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidPublicKey, err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: decoded length %d", types.ErrInvalidPublicKey, len(raw))
	}
	return raw, nil
}

// ValidatePublicKey 检查公钥格式，首尾空白会被忽略
func ValidatePublicKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", types.ErrUnauthenticated
	}
	if _, err := DecodePublicKey(key); err != nil {
		return "", err
	}
	return key, nil
}

// EncodePublicKey 把 32 字节公钥编码为 StrKey 账户公钥
func EncodePublicKey(pub []byte) (string, error) {
	if len(pub) != ed25519.PublicKeySize {
		return "", fmt.Errorf("%w: raw key length %d", types.ErrInvalidPublicKey, len(pub))
	}
	key, err := strkey.Encode(strkey.VersionByteAccountID, pub)
	if err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrInvalidPublicKey, err)
	}
	return key, nil
}
