package chain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/tradeguard/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// CHAIN GATEWAY - Blockchain access boundary
// ═══════════════════════════════════════════════════════════════════════════════

// Gateway is the executor's view of the chain. The production implementation
// is EthGateway; tests substitute fakes.
type Gateway interface {
	// Balance returns the native balance in whole units (not wei).
	Balance(ctx context.Context, address common.Address) (decimal.Decimal, error)
	// TokenBalance returns an ERC-20 balance in whole token units.
	TokenBalance(ctx context.Context, token, holder common.Address, decimals int32) (decimal.Decimal, error)
	// FeePrice returns the current fee price in wei per gas.
	FeePrice(ctx context.Context) (*big.Int, error)
	// EstimateGas estimates gas for a call; callers treat failure as
	// non-fatal and fall back to a static default.
	EstimateGas(ctx context.Context, from, to common.Address, value *big.Int, payload []byte) (uint64, error)
	// PendingNonce returns the account's next nonce.
	PendingNonce(ctx context.Context, address common.Address) (uint64, error)
	// ChainID returns the connected network's chain id.
	ChainID(ctx context.Context) (*big.Int, error)
	// Submit broadcasts a signed transaction and returns its reference.
	Submit(ctx context.Context, tx *ethtypes.Transaction) (string, error)
	// Status reports the lifecycle state of a submitted transaction.
	Status(ctx context.Context, txRef string) (types.TxStatus, error)
	// WaitForConfirmation polls until the transaction is mined or the
	// timeout elapses.
	WaitForConfirmation(ctx context.Context, txRef string, timeout time.Duration) (types.TxStatus, error)
	// NetworkInfo returns a snapshot of the connected chain.
	NetworkInfo(ctx context.Context) (types.NetworkInfo, error)
}

var weiPerNative = decimal.New(1, 18)

// WeiToNative converts a wei amount to whole native units. Exact: a single
// wei survives as 1e-18 (division would truncate below default precision).
func WeiToNative(wei *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(wei, -18)
}

// NativeToWei converts whole native units to wei, truncating sub-wei dust.
func NativeToWei(native decimal.Decimal) *big.Int {
	return native.Mul(weiPerNative).Truncate(0).BigInt()
}

// UnitsToAmount scales a raw integer token amount by the token's decimals,
// exactly, whatever the decimal count.
func UnitsToAmount(raw *big.Int, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(raw, -decimals)
}
