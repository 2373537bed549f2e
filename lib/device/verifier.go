package device

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"github.com/oasisprotocol/curve25519-voi/primitives/x25519"
	"io"
)

// ChallengeSize is the byte size of a challenge and of the proof
// that a device returns for it (an HMAC-SHA256 digest).
const ChallengeSize = 32

// Verifier issues challenges to devices and checks their proofs.
// A device proves that it owns the private key of its claimed public key
// by computing HMAC-SHA256 over the challenge,
// keyed with the X25519 shared secret of both key pairs.
//
// The claimed key must come from a trusted registration event.
// A key that was just read from the network proves nothing.
type Verifier struct {
	keyPair KeyPair
	random  io.Reader
}

// NewVerifier creates a Verifier that answers with the given key pair.
func NewVerifier(keyPair KeyPair) *Verifier {
	return &Verifier{
		keyPair: keyPair,
		random:  rand.Reader,
	}
}

// NewEphemeralVerifier creates a Verifier with a freshly generated key pair.
func NewEphemeralVerifier() (*Verifier, error) {
	keyPair, err := GenerateKeyPair(rand.Reader)
	if err != nil {
		return nil, err
	}
	return NewVerifier(keyPair), nil
}

// OwnPublicKey returns the public key that is sent to the device with a challenge.
func (v *Verifier) OwnPublicKey() Identity {
	return v.keyPair.Public
}

// CreateChallenge returns ChallengeSize random bytes.
func (v *Verifier) CreateChallenge() (challenge []byte, err error) {
	challenge = make([]byte, ChallengeSize)
	_, err = io.ReadFull(v.random, challenge)
	if err != nil {
		challenge = nil
	}
	return
}

// Verify reports whether proof equals HMAC-SHA256(ECDH(own, claimed), challenge).
// Malformed input and cryptographic failures yield false.
func (v *Verifier) Verify(claimed Identity, challenge, proof []byte) bool {
	if len(challenge) != ChallengeSize || len(proof) != ChallengeSize {
		return false
	}
	expected, err := Prove(v.keyPair.Private, claimed, challenge)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, proof)
}

// Prove computes the proof for a challenge. The device runs this with its own
// private key and the public key that the client sent along with the challenge.
func Prove(private Key, peer Identity, challenge []byte) ([]byte, error) {
	if len(private) != KeySize || len(peer) != KeySize {
		return nil, ErrKeySize
	}
	shared, err := x25519.X25519(private, peer)
	if err != nil {
		return nil, err
	}
	mac := hmac.New(sha256.New, shared)
	mac.Write(challenge)
	return mac.Sum(nil), nil
}
