package core

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// VerifySignature reports whether signature over digest was produced by expected.
// A well-formed signature from another key returns false with a nil error; input that
// cannot be parsed returns false with ErrMalformedDigest or ErrMalformedSignature.
func VerifySignature(digest []byte, signature []byte, expected common.Address) (bool, error) {

	// Verify the digest is exactly 32 bytes
	if len(digest) != common.HashLength {
		return false, fmt.Errorf("%w: expected %d bytes, got %d", ErrMalformedDigest, common.HashLength, len(digest))
	}

	// Verify the signature is exactly 65 bytes (32 bytes r + 32 bytes s + 1 byte v)
	if len(signature) != crypto.SignatureLength {
		return false, fmt.Errorf("%w: expected %d bytes, got %d", ErrMalformedSignature, crypto.SignatureLength, len(signature))
	}

	// Copy the signature so the caller's bytes are left untouched
	sig := make([]byte, crypto.SignatureLength)
	copy(sig, signature)

	// Convert the V value of the signature if necessary (27/28 → 0/1)
	if sig[crypto.RecoveryIDOffset] == 27 || sig[crypto.RecoveryIDOffset] == 28 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	if sig[crypto.RecoveryIDOffset] > 1 {
		return false, fmt.Errorf("%w: invalid recovery id %d", ErrMalformedSignature, signature[crypto.RecoveryIDOffset])
	}

	// Recover the public key
	pubkey, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}

	// Convert the public key to an address and compare with the expected signer
	return crypto.PubkeyToAddress(*pubkey) == expected, nil
}

// SignAuthorization signs digest with key, returning a 65-byte signature with v in {27, 28}.
func SignAuthorization(key *ecdsa.PrivateKey, digest []byte) ([]byte, error) {

	// Verify the digest is exactly 32 bytes
	if len(digest) != common.HashLength {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrMalformedDigest, common.HashLength, len(digest))
	}

	// Sign the digest
	signature, err := crypto.Sign(digest, key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign digest: %v", err)
	}

	// Convert the V value to the legacy form used by wallets (0/1 → 27/28)
	signature[crypto.RecoveryIDOffset] += 27

	return signature, nil
}
