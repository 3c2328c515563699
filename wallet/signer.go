package wallet

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog/log"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SIGNER - Single custodial trading identity
// ═══════════════════════════════════════════════════════════════════════════════

// Signer holds the one ECDSA key this agent trades with. Signing is
// deterministic and has no side effects beyond using the key material.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewSigner loads a signer from a hex-encoded private key.
func NewSigner(privateKeyHex string) (*Signer, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x")
	if raw == "" {
		return nil, fmt.Errorf("private key not provided")
	}
	key, err := crypto.HexToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	s := &Signer{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}
	log.Info().Str("address", s.address.Hex()).Msg("🔑 Wallet loaded")
	return s, nil
}

// Address returns the trading identity's address.
func (s *Signer) Address() common.Address { return s.address }

// SignTx signs a transaction for the given chain.
func (s *Signer) SignTx(tx *ethtypes.Transaction, chainID *big.Int) (*ethtypes.Transaction, error) {
	signed, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(chainID), s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return signed, nil
}

// SignMessage produces an EIP-191 personal-sign signature over msg.
func (s *Signer) SignMessage(msg []byte) ([]byte, error) {
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(msg), msg)
	hash := crypto.Keccak256Hash([]byte(prefixed))
	sig, err := crypto.Sign(hash.Bytes(), s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign message: %w", err)
	}
	// Shift recovery id to the 27/28 convention wallets expect.
	sig[64] += 27
	return sig, nil
}
