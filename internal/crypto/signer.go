package crypto

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/pumpfight/internal/domain"
)

// Signer produces EIP-191 personal signatures with the operator key.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewSigner wraps an operator key.
func NewSigner(key *ecdsa.PrivateKey) *Signer {
	return &Signer{key: key, address: ethcrypto.PubkeyToAddress(key.PublicKey)}
}

// Address returns the operator address.
func (s *Signer) Address() common.Address {
	return s.address
}

// SignMessage returns the 65-byte personal signature (v in {27,28}) over msg.
func (s *Signer) SignMessage(msg []byte) ([]byte, error) {
	sig, err := ethcrypto.Sign(accounts.TextHash(msg), s.key)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: %w: %v", domain.ErrSigningFailed, err)
	}
	sig[64] += 27
	return sig, nil
}

// SignLog signs the receipt digest of an encoded event log.
func (s *Signer) SignLog(log *types.Log) ([]byte, error) {
	return s.SignMessage(LogDigest(log).Bytes())
}

// LogDigest is keccak256(address || topics... || data).
func LogDigest(log *types.Log) common.Hash {
	parts := make([][]byte, 0, 2+len(log.Topics))
	parts = append(parts, log.Address.Bytes())
	for _, t := range log.Topics {
		parts = append(parts, t.Bytes())
	}
	parts = append(parts, log.Data)
	return ethcrypto.Keccak256Hash(parts...)
}

// RecoverSigner returns the address that produced a personal signature over
// msg. Both {0,1} and {27,28} recovery ids are accepted.
func RecoverSigner(msg, sig []byte) (common.Address, error) {
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("crypto/signer: signature must be 65 bytes, got %d", len(sig))
	}
	normalized := make([]byte, 65)
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	pub, err := ethcrypto.SigToPub(accounts.TextHash(msg), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto/signer: recover: %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

// VerifySigner reports whether sig over msg was produced by want.
func VerifySigner(msg, sig []byte, want common.Address) bool {
	got, err := RecoverSigner(msg, sig)
	return err == nil && got == want
}
