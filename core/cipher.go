package core

import "github.com/holiman/uint256"

// BidCipher is the asymmetric bid-encryption primitive consumed by the engine.
// Its only contract obligation is that a ciphertext is bound to its lot via the
// salt and is recoverable only with the matching private key. Implementations
// are swappable; the engine never inspects key material beyond these calls.
type BidCipher interface {
	// ValidatePublicKey checks the structural shape of an encoded public key.
	ValidatePublicKey(pub []byte) error

	// DerivePublicKey returns the encoded public key for a private key, used to
	// verify that a revealed private key corresponds to the auction key pair.
	DerivePublicKey(priv []byte) ([]byte, error)

	// Decrypt recovers the numeric message from a bid ciphertext. A ciphertext
	// produced under a different key pair or salt yields either an error or an
	// out-of-range message; the caller treats both the same way.
	Decrypt(ciphertext, bidPub, priv, salt []byte) (*uint256.Int, error)
}
