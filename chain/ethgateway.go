package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/tradeguard/types"
)

// balanceOf(address)
var balanceOfSelector = []byte{0x70, 0xa0, 0x82, 0x31}

const receiptPollInterval = 2 * time.Second

// EthGateway talks JSON-RPC to an EVM node through ethclient.
type EthGateway struct {
	client *ethclient.Client
	rpcURL string
}

// Dial connects to the node and verifies the connection with a chain id call.
func Dial(ctx context.Context, rpcURL string) (*EthGateway, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rpc %s: %w", rpcURL, err)
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("rpc %s not responding: %w", rpcURL, err)
	}
	log.Info().Str("rpc", rpcURL).Uint64("chain_id", chainID.Uint64()).Msg("⛓️ Connected to network")
	return &EthGateway{client: client, rpcURL: rpcURL}, nil
}

// Close releases the underlying RPC connection.
func (g *EthGateway) Close() { g.client.Close() }

func (g *EthGateway) Balance(ctx context.Context, address common.Address) (decimal.Decimal, error) {
	wei, err := g.client.BalanceAt(ctx, address, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to fetch balance: %w", err)
	}
	return WeiToNative(wei), nil
}

func (g *EthGateway) TokenBalance(ctx context.Context, token, holder common.Address, decimals int32) (decimal.Decimal, error) {
	data := make([]byte, 0, 36)
	data = append(data, balanceOfSelector...)
	data = append(data, common.LeftPadBytes(holder.Bytes(), 32)...)

	out, err := g.client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("balanceOf call failed: %w", err)
	}
	if len(out) == 0 {
		return decimal.Zero, fmt.Errorf("balanceOf returned no data for %s", token.Hex())
	}
	return UnitsToAmount(new(big.Int).SetBytes(out), decimals), nil
}

func (g *EthGateway) FeePrice(ctx context.Context) (*big.Int, error) {
	price, err := g.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch gas price: %w", err)
	}
	return price, nil
}

func (g *EthGateway) EstimateGas(ctx context.Context, from, to common.Address, value *big.Int, payload []byte) (uint64, error) {
	gas, err := g.client.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &to,
		Value: value,
		Data:  payload,
	})
	if err != nil {
		return 0, fmt.Errorf("gas estimation failed: %w", err)
	}
	return gas, nil
}

func (g *EthGateway) PendingNonce(ctx context.Context, address common.Address) (uint64, error) {
	nonce, err := g.client.PendingNonceAt(ctx, address)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch nonce: %w", err)
	}
	return nonce, nil
}

func (g *EthGateway) ChainID(ctx context.Context) (*big.Int, error) {
	id, err := g.client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chain id: %w", err)
	}
	return id, nil
}

func (g *EthGateway) Submit(ctx context.Context, tx *ethtypes.Transaction) (string, error) {
	if err := g.client.SendTransaction(ctx, tx); err != nil {
		return "", fmt.Errorf("broadcast failed: %w", err)
	}
	ref := tx.Hash().Hex()
	log.Info().Str("tx_ref", ref).Msg("📤 Transaction broadcast")
	return ref, nil
}

func (g *EthGateway) Status(ctx context.Context, txRef string) (types.TxStatus, error) {
	receipt, err := g.client.TransactionReceipt(ctx, common.HexToHash(txRef))
	if errors.Is(err, ethereum.NotFound) {
		return types.TxPending, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to fetch receipt: %w", err)
	}
	if receipt.Status == ethtypes.ReceiptStatusSuccessful {
		return types.TxConfirmed, nil
	}
	return types.TxFailed, nil
}

func (g *EthGateway) WaitForConfirmation(ctx context.Context, txRef string, timeout time.Duration) (types.TxStatus, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		status, err := g.Status(ctx, txRef)
		if err != nil {
			return "", err
		}
		if status != types.TxPending {
			return status, nil
		}
		if time.Now().After(deadline) {
			return types.TxPending, types.Timeoutf("transaction %s not confirmed within %s", txRef, timeout)
		}
		select {
		case <-ctx.Done():
			return types.TxPending, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (g *EthGateway) NetworkInfo(ctx context.Context) (types.NetworkInfo, error) {
	chainID, err := g.client.ChainID(ctx)
	if err != nil {
		return types.NetworkInfo{}, fmt.Errorf("failed to fetch chain id: %w", err)
	}
	block, err := g.client.BlockNumber(ctx)
	if err != nil {
		return types.NetworkInfo{}, fmt.Errorf("failed to fetch block number: %w", err)
	}
	price, err := g.client.SuggestGasPrice(ctx)
	if err != nil {
		return types.NetworkInfo{}, fmt.Errorf("failed to fetch gas price: %w", err)
	}
	return types.NetworkInfo{
		ChainID:        chainID.Uint64(),
		LatestBlock:    block,
		FeePriceNative: WeiToNative(price),
	}, nil
}
