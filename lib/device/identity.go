package device

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"github.com/flynn/noise"
	"io"
)

// KeySize is the byte size of a Key and an Identity.
const KeySize = 32

// ShortIDSize is the number of public key bytes that make up a short id.
const ShortIDSize = 10

var (
	ErrKeySize = fmt.Errorf("a key must be %v bytes long", KeySize)
)

// Key is the X25519 private key of this client.
type Key []byte

// Identity is the X25519 public key of a device or of this client.
// A device is identified by its Identity.
type Identity []byte

// KeyPair holds both a Key and its corresponding Identity.
// The client creates one per run and never persists it.
type KeyPair struct {
	Private Key
	Public  Identity
}

// GenerateKeyPair generates a new X25519 KeyPair.
func GenerateKeyPair(reader io.Reader) (KeyPair, error) {
	dh, err := noise.DH25519.GenerateKeypair(reader)
	if err != nil {
		return KeyPair{}, err
	}
	return KeyPair{
		Private: Key(dh.Private),
		Public:  Identity(dh.Public),
	}, nil
}

// ParseIdentity decodes a standard base64 encoded public key,
// which is how the device HTTP API transmits keys.
func ParseIdentity(b64 string) (Identity, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode public key: %w", err)
	}
	if len(raw) != KeySize {
		return nil, ErrKeySize
	}
	return raw, nil
}

// String encodes the identity with standard base64.
// The result is the id under which a device is stored in the registry.
func (id Identity) String() string {
	return base64.StdEncoding.EncodeToString(id)
}

// ShortID returns hex(id[:10]), a 20 character label which is safe to use
// in URLs and DNS names. The relay addresses devices by this label.
func ShortID(id Identity) (string, error) {
	if len(id) < ShortIDSize {
		return "", errors.New("public key is too short for a short id")
	}
	return hex.EncodeToString(id[:ShortIDSize]), nil
}

// ShortIDOf is like ShortID but takes the base64 form that the registry stores.
func ShortIDOf(b64 string) (string, error) {
	id, err := ParseIdentity(b64)
	if err != nil {
		return "", err
	}
	return ShortID(id)
}
