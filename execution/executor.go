package execution

import (
	"context"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/tradeguard/chain"
	"github.com/web3guy0/tradeguard/types"
	"github.com/web3guy0/tradeguard/wallet"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TRADE EXECUTOR - Validate → assess → fund-check → sign → submit → record
// ═══════════════════════════════════════════════════════════════════════════════
//
// Every trade, direct or copy-derived, goes through the same pipeline.
// The submit mutex keeps one assess+record pair atomic against the
// gateway's counters.
//
// ═══════════════════════════════════════════════════════════════════════════════

const (
	// staticGasLimit is the conservative reserve used before a real
	// estimate is available, and the fallback when estimation fails.
	staticGasLimit = uint64(50000)

	// betGasLimit is the fallback gas limit for market-maker buys.
	betGasLimit = uint64(150000)

	// gasMarginNum/Den apply a +20% safety margin to estimates.
	gasMarginNum = 120
	gasMarginDen = 100
)

var marketMakerABI = mustParseABI(`[{"name":"buy","type":"function","stateMutability":"nonpayable","inputs":[{"name":"investmentAmount","type":"uint256"},{"name":"outcomeIndex","type":"uint256"},{"name":"minOutcomeTokensToBuy","type":"uint256"}],"outputs":[]}]`)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// RiskGate is the executor's view of the risk gateway.
type RiskGate interface {
	Assess(destination string, value decimal.Decimal, payload []byte) types.Decision
	Record(destination string, value decimal.Decimal, txRef string)
	Stats() types.TradingStats
	Limits() types.RiskLimits
}

// QuoteConverter turns a quote-currency amount into its native-unit
// equivalent for risk assessment.
type QuoteConverter func(amountQuote decimal.Decimal) (decimal.Decimal, error)

// Config wires the executor's market addresses.
type Config struct {
	// BetContract is the conditional tokens contract bets settle
	// against; the risk gateway assesses bets as trades to it.
	BetContract common.Address
	// MarketMaker receives the buy transactions.
	MarketMaker common.Address
	// QuoteToken is the ERC-20 bets are funded from.
	QuoteToken common.Address
	// QuoteDecimals is the quote token's decimal scale (6 for USDC).
	QuoteDecimals int32
}

// Executor drives trades through the gateway, signer and chain.
type Executor struct {
	submitMu sync.Mutex

	gate    RiskGate
	signer  *wallet.Signer
	chain   chain.Gateway
	convert QuoteConverter
	cfg     Config

	onTrade func(types.TradeResult)
}

// NewExecutor builds an executor. convert must not be nil when the
// market-bet path is in use.
func NewExecutor(gate RiskGate, signer *wallet.Signer, gw chain.Gateway, convert QuoteConverter, cfg Config) *Executor {
	return &Executor{
		gate:    gate,
		signer:  signer,
		chain:   gw,
		convert: convert,
		cfg:     cfg,
	}
}

// SetTradeCallback registers a hook invoked after every submission.
// The trade outcome is already fixed by then; hook failures are contained.
func (e *Executor) SetTradeCallback(cb func(types.TradeResult)) {
	e.onTrade = cb
}

// Execute runs the full pipeline for a direct value transfer.
// Returns with status pending; confirmation is a separate follow-up.
func (e *Executor) Execute(ctx context.Context, destination string, value decimal.Decimal, payloadHex string) (*types.TradeResult, error) {
	intent, err := types.NewTradeIntent(destination, value, payloadHex)
	if err != nil {
		return nil, err
	}

	e.submitMu.Lock()
	defer e.submitMu.Unlock()

	decision := e.gate.Assess(intent.Destination.Hex(), intent.ValueNative, intent.Payload)
	if !decision.Approved {
		return nil, types.RiskRejectedf("trade rejected: %s", decision.Reason)
	}

	feePrice, err := e.chain.FeePrice(ctx)
	if err != nil {
		return nil, types.Unavailablef(err, "fee price unavailable")
	}
	if err := e.checkNativeBalance(ctx, intent.ValueNative, feePrice); err != nil {
		return nil, err
	}

	gasLimit := e.estimateGas(ctx, intent, staticGasLimit)

	signed, err := e.buildAndSign(ctx, intent.Destination, chain.NativeToWei(intent.ValueNative), gasLimit, feePrice, intent.Payload)
	if err != nil {
		return nil, err
	}
	txRef, err := e.chain.Submit(ctx, signed)
	if err != nil {
		return nil, types.Submissionf(err, "transaction broadcast failed")
	}

	e.gate.Record(intent.Destination.Hex(), intent.ValueNative, txRef)

	result := types.TradeResult{
		TxRef:       txRef,
		Status:      types.TxPending,
		Destination: intent.Destination.Hex(),
		ValueNative: intent.ValueNative,
		GasLimit:    gasLimit,
		Decision:    &decision,
		Timestamp:   time.Now().UTC(),
	}

	log.Info().
		Str("tx_ref", txRef).
		Str("destination", result.Destination).
		Str("value", value.String()).
		Uint64("gas_limit", gasLimit).
		Msg("🚀 Trade submitted")

	e.notify(result)
	return &result, nil
}

// Simulate runs validation, assessment, balance and fee checks without
// submitting anything. Never records.
func (e *Executor) Simulate(ctx context.Context, destination string, value decimal.Decimal, payloadHex string) (*types.SimulationReport, error) {
	intent, err := types.NewTradeIntent(destination, value, payloadHex)
	if err != nil {
		return nil, err
	}

	decision := e.gate.Assess(intent.Destination.Hex(), intent.ValueNative, intent.Payload)

	report := types.SimulationReport{
		Approved:  decision.Approved,
		Decision:  &decision,
		Timestamp: time.Now().UTC(),
	}

	balance, err := e.chain.Balance(ctx, e.signer.Address())
	if err != nil {
		return nil, types.Unavailablef(err, "balance unavailable")
	}
	feePrice, err := e.chain.FeePrice(ctx)
	if err != nil {
		return nil, types.Unavailablef(err, "fee price unavailable")
	}

	gasLimit := e.estimateGas(ctx, intent, staticGasLimit)
	feeWei := new(big.Int).Mul(new(big.Int).SetUint64(gasLimit), feePrice)

	report.GasEstimate = gasLimit
	report.FeeCostNative = chain.WeiToNative(feeWei)
	report.TotalCostNative = intent.ValueNative.Add(report.FeeCostNative)
	report.BalanceNative = balance
	report.BalanceSufficient = balance.GreaterThanOrEqual(report.TotalCostNative)

	return &report, nil
}

// ExecuteMarketBet places a prediction-market buy funded from the quote
// token, assessed by the gateway at its native-unit equivalent.
func (e *Executor) ExecuteMarketBet(ctx context.Context, marketID string, outcome int, amountQuote, price decimal.Decimal) (*types.TradeResult, error) {
	if marketID == "" {
		return nil, types.Validationf("market id is required")
	}
	if outcome != 0 && outcome != 1 {
		return nil, types.Validationf("outcome must be 0 or 1, got %d", outcome)
	}
	if amountQuote.LessThanOrEqual(decimal.Zero) {
		return nil, types.Validationf("bet amount must be positive")
	}
	if price.LessThan(decimal.Zero) || price.GreaterThan(decimal.NewFromInt(1)) {
		return nil, types.Validationf("price must be in [0, 1], got %s", price.String())
	}
	if e.convert == nil {
		return nil, types.Internalf(nil, "no quote converter configured")
	}

	nativeEq, err := e.convert(amountQuote)
	if err != nil {
		return nil, types.Unavailablef(err, "quote conversion unavailable")
	}

	e.submitMu.Lock()
	defer e.submitMu.Unlock()

	destination := e.cfg.BetContract.Hex()
	decision := e.gate.Assess(destination, nativeEq, nil)
	if !decision.Approved {
		return nil, types.RiskRejectedf("bet rejected: %s", decision.Reason)
	}

	quoteBalance, err := e.chain.TokenBalance(ctx, e.cfg.QuoteToken, e.signer.Address(), e.cfg.QuoteDecimals)
	if err != nil {
		return nil, types.Unavailablef(err, "quote balance unavailable")
	}
	if quoteBalance.LessThan(amountQuote) {
		return nil, types.InsufficientFundsf("insufficient quote balance: %s available, %s required",
			quoteBalance.String(), amountQuote.String())
	}

	amountUnits := amountQuote.Mul(decimal.New(1, e.cfg.QuoteDecimals)).Truncate(0).BigInt()
	payload, err := marketMakerABI.Pack("buy", amountUnits, big.NewInt(int64(outcome)), big.NewInt(0))
	if err != nil {
		return nil, types.Internalf(err, "failed to encode bet")
	}

	feePrice, err := e.chain.FeePrice(ctx)
	if err != nil {
		return nil, types.Unavailablef(err, "fee price unavailable")
	}

	gasLimit := betGasLimit
	if est, err := e.chain.EstimateGas(ctx, e.signer.Address(), e.cfg.MarketMaker, nil, payload); err == nil {
		gasLimit = est * gasMarginNum / gasMarginDen
	} else {
		log.Warn().Err(err).Msg("⚠️ Bet gas estimation failed, using static default")
	}

	signed, err := e.buildAndSign(ctx, e.cfg.MarketMaker, big.NewInt(0), gasLimit, feePrice, payload)
	if err != nil {
		return nil, err
	}
	txRef, err := e.chain.Submit(ctx, signed)
	if err != nil {
		return nil, types.Submissionf(err, "bet broadcast failed")
	}

	e.gate.Record(destination, nativeEq, txRef)

	result := types.TradeResult{
		TxRef:       txRef,
		Status:      types.TxPending,
		Destination: destination,
		ValueNative: nativeEq,
		GasLimit:    gasLimit,
		Decision:    &decision,
		Timestamp:   time.Now().UTC(),
	}

	log.Info().
		Str("tx_ref", txRef).
		Str("market_id", marketID).
		Int("outcome", outcome).
		Str("amount_quote", amountQuote.String()).
		Str("price", price.String()).
		Msg("🎲 Market bet submitted")

	e.notify(result)
	return &result, nil
}

// Status reports a submitted transaction's current state.
func (e *Executor) Status(ctx context.Context, txRef string) (types.TxStatus, error) {
	status, err := e.chain.Status(ctx, txRef)
	if err != nil {
		return "", types.Unavailablef(err, "status lookup failed")
	}
	return status, nil
}

// WaitForConfirmation blocks until the transaction is mined or timeout.
func (e *Executor) WaitForConfirmation(ctx context.Context, txRef string, timeout time.Duration) (types.TxStatus, error) {
	return e.chain.WaitForConfirmation(ctx, txRef, timeout)
}

// QuoteBalance returns the wallet's quote-token balance.
func (e *Executor) QuoteBalance(ctx context.Context) (decimal.Decimal, error) {
	return e.chain.TokenBalance(ctx, e.cfg.QuoteToken, e.signer.Address(), e.cfg.QuoteDecimals)
}

// Summary aggregates wallet, gateway and network state for operators.
// Network details degrade to nil when the node is unreachable.
func (e *Executor) Summary(ctx context.Context) types.TradingSummary {
	summary := types.TradingSummary{
		WalletAddress: e.signer.Address().Hex(),
		Stats:         e.gate.Stats(),
		Limits:        e.gate.Limits(),
	}

	if balance, err := e.chain.Balance(ctx, e.signer.Address()); err == nil {
		summary.BalanceNative = balance.String()
	} else {
		log.Warn().Err(err).Msg("⚠️ Balance lookup failed for summary")
		summary.BalanceNative = "unavailable"
	}
	if info, err := e.chain.NetworkInfo(ctx); err == nil {
		summary.Network = &info
	} else {
		log.Warn().Err(err).Msg("⚠️ Network info lookup failed for summary")
	}
	return summary
}

func (e *Executor) checkNativeBalance(ctx context.Context, value decimal.Decimal, feePrice *big.Int) error {
	balance, err := e.chain.Balance(ctx, e.signer.Address())
	if err != nil {
		return types.Unavailablef(err, "balance unavailable")
	}
	reserveWei := new(big.Int).Mul(new(big.Int).SetUint64(staticGasLimit), feePrice)
	required := value.Add(chain.WeiToNative(reserveWei))
	if balance.LessThan(required) {
		return types.InsufficientFundsf("insufficient balance: %s available, %s required",
			balance.String(), required.String())
	}
	return nil
}

// estimateGas asks the node, applies the margin, and falls back to the
// static default when estimation fails. Estimation is best-effort.
func (e *Executor) estimateGas(ctx context.Context, intent *types.TradeIntent, fallback uint64) uint64 {
	est, err := e.chain.EstimateGas(ctx, e.signer.Address(), intent.Destination,
		chain.NativeToWei(intent.ValueNative), intent.Payload)
	if err != nil {
		log.Warn().Err(err).Msg("⚠️ Gas estimation failed, using static default")
		return fallback
	}
	return est * gasMarginNum / gasMarginDen
}

func (e *Executor) buildAndSign(ctx context.Context, to common.Address, valueWei *big.Int, gasLimit uint64, feePrice *big.Int, payload []byte) (*ethtypes.Transaction, error) {
	nonce, err := e.chain.PendingNonce(ctx, e.signer.Address())
	if err != nil {
		return nil, types.Unavailablef(err, "nonce unavailable")
	}
	chainID, err := e.chain.ChainID(ctx)
	if err != nil {
		return nil, types.Unavailablef(err, "chain id unavailable")
	}

	tx := ethtypes.NewTransaction(nonce, to, valueWei, gasLimit, feePrice, payload)
	signed, err := e.signer.SignTx(tx, chainID)
	if err != nil {
		return nil, types.Submissionf(err, "signing failed")
	}
	return signed, nil
}

func (e *Executor) notify(result types.TradeResult) {
	if e.onTrade == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("❌ Trade callback panicked")
		}
	}()
	e.onTrade(result)
}
