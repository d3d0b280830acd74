package protocol

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// SignatureLength is the size of one secp256k1 signature (R ‖ S ‖ V)
const SignatureLength = 65

var ErrInvalidSignature = errors.New("invalid signature")

// RecoverSigner returns the address that produced sig over hash. V may be given
// as 0/1 or 27/28.
func RecoverSigner(hash common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != SignatureLength {
		return common.Address{}, fmt.Errorf("%w: length %d", ErrInvalidSignature, len(sig))
	}
	normalized := make([]byte, SignatureLength)
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	pub, err := crypto.SigToPub(hash[:], normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// SignTx signs the transaction hash with key
func SignTx(txBytes []byte, key *ecdsa.PrivateKey) ([]byte, error) {
	h := TxHash(txBytes)
	return crypto.Sign(h[:], key)
}

// SplitSignatures returns the two input signatures of a 130-byte signature blob
func SplitSignatures(sigs []byte) ([]byte, []byte, error) {
	if len(sigs) != SignaturesLength {
		return nil, nil, fmt.Errorf("%w: signatures have %d bytes", ErrInvalidSignature, len(sigs))
	}
	return sigs[:SignatureLength], sigs[SignatureLength:], nil
}

// IsZero reports whether b is all zero bytes
func IsZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
