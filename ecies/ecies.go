// Package ecies implements the sealed-bid encryption scheme: an integrated
// encryption scheme over secp256k1 where the symmetric key is the Keccak-256
// hash of the ECDH shared secret and a caller-supplied salt. The salt binds a
// ciphertext to its auction lot, so a bid captured from one lot cannot be
// replayed into another.
//
// The plaintext is always 32 bytes: a random 128-bit seed followed by the
// 128-bit message masked by the seed (seed - message, wrapping). Recovering a
// sensible message therefore requires the matching private key and salt;
// anything else decrypts to noise that fails the caller's range checks.
package ecies

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/holiman/uint256"
	"golang.org/x/crypto/sha3"
)

const (
	// CiphertextSize is the fixed size of every bid ciphertext.
	CiphertextSize = 32

	privateKeySize = 32
	halfSize       = 16 // seed and masked message are 128 bits each
)

var (
	ErrMalformedKey        = errors.New("malformed key")
	ErrMalformedCiphertext = errors.New("malformed ciphertext")
	ErrMessageTooLarge     = errors.New("message exceeds 128 bits")

	mask128 = new(uint256.Int).SubUint64(new(uint256.Int).Lsh(uint256.NewInt(1), 128), 1)
)

// KeyPair is an auction key pair. The private key is revealed to the engine
// only after the lot concludes.
type KeyPair struct {
	PrivateKey []byte // 32-byte scalar
	PublicKey  []byte // compressed SEC1 point
}

// GenerateKeyPair creates a fresh auction key pair from crypto/rand.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key pair: %w", err)
	}
	return &KeyPair{
		PrivateKey: priv.Serialize(),
		PublicKey:  priv.PubKey().SerializeCompressed(),
	}, nil
}

// Scheme is the concrete cipher wired into the clearing engine.
type Scheme struct{}

// ValidatePublicKey checks that pub parses as a point on the curve.
func (Scheme) ValidatePublicKey(pub []byte) error {
	if _, err := secp256k1.ParsePubKey(pub); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	return nil
}

// DerivePublicKey returns the compressed public key for a 32-byte private key.
func (Scheme) DerivePublicKey(priv []byte) ([]byte, error) {
	pk, err := parsePrivateKey(priv)
	if err != nil {
		return nil, err
	}
	return pk.PubKey().SerializeCompressed(), nil
}

// Encrypt seals a numeric message (at most 128 bits) to the recipient public
// key under the given salt. It returns the ciphertext and the ephemeral bid
// public key the recipient needs for decryption.
func (Scheme) Encrypt(message *uint256.Int, recipientPub, salt []byte) (ciphertext, bidPub []byte, err error) {
	if message.Cmp(mask128) > 0 {
		return nil, nil, ErrMessageTooLarge
	}
	recipient, err := secp256k1.ParsePubKey(recipientPub)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}

	ephemeral, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate ephemeral key: %w", err)
	}

	var seedBytes [halfSize]byte
	if _, err := rand.Read(seedBytes[:]); err != nil {
		return nil, nil, fmt.Errorf("entropy generation failed: %w", err)
	}
	seed := new(uint256.Int).SetBytes(seedBytes[:])

	// masked = seed - message (mod 2^128)
	masked := new(uint256.Int).Sub(seed, message)
	masked.And(masked, mask128)

	return sealPlaintext(seed, masked, ephemeral, recipient, salt)
}

// Decrypt recovers the message from a bid ciphertext using the auction private
// key, the bid's ephemeral public key, and the lot salt.
func (Scheme) Decrypt(ciphertext, bidPub, priv, salt []byte) (*uint256.Int, error) {
	if len(ciphertext) != CiphertextSize {
		return nil, ErrMalformedCiphertext
	}
	pk, err := parsePrivateKey(priv)
	if err != nil {
		return nil, err
	}
	ephemeral, err := secp256k1.ParsePubKey(bidPub)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}

	key := symmetricKey(secp256k1.GenerateSharedSecret(pk, ephemeral), salt)

	var plaintext [CiphertextSize]byte
	xorKeystream(plaintext[:], ciphertext, key)

	seed := new(uint256.Int).SetBytes(plaintext[:halfSize])
	masked := new(uint256.Int).SetBytes(plaintext[halfSize:])

	// message = seed - masked (mod 2^128)
	message := new(uint256.Int).Sub(seed, masked)
	message.And(message, mask128)
	return message, nil
}

func sealPlaintext(seed, masked *uint256.Int, ephemeral *secp256k1.PrivateKey, recipient *secp256k1.PublicKey, salt []byte) ([]byte, []byte, error) {
	var plaintext [CiphertextSize]byte
	seedBytes := seed.Bytes32()
	maskedBytes := masked.Bytes32()
	copy(plaintext[:halfSize], seedBytes[32-halfSize:])
	copy(plaintext[halfSize:], maskedBytes[32-halfSize:])

	key := symmetricKey(secp256k1.GenerateSharedSecret(ephemeral, recipient), salt)

	ciphertext := make([]byte, CiphertextSize)
	xorKeystream(ciphertext, plaintext[:], key)

	return ciphertext, ephemeral.PubKey().SerializeCompressed(), nil
}

// symmetricKey derives the XOR key as Keccak-256(sharedSecret || salt).
func symmetricKey(sharedSecret, salt []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(sharedSecret)
	h.Write(salt)
	return h.Sum(nil)
}

func xorKeystream(dst, src, key []byte) {
	for i := range src {
		dst[i] = src[i] ^ key[i%len(key)]
	}
}

func parsePrivateKey(priv []byte) (*secp256k1.PrivateKey, error) {
	if len(priv) != privateKeySize {
		return nil, ErrMalformedKey
	}
	pk := secp256k1.PrivKeyFromBytes(priv)
	if pk.Key.IsZero() {
		return nil, ErrMalformedKey
	}
	return pk, nil
}
