// Tradeguard - custodial trading agent with a central risk gateway.
//
// Every trade, whether requested by an operator or derived from a
// tracked whale's market activity, passes through the same pipeline:
// risk assessment, balance check, fee estimate, sign, submit, record.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/tradeguard/bot"
	"github.com/web3guy0/tradeguard/chain"
	"github.com/web3guy0/tradeguard/execution"
	"github.com/web3guy0/tradeguard/feeds"
	"github.com/web3guy0/tradeguard/internal/config"
	"github.com/web3guy0/tradeguard/monitor"
	"github.com/web3guy0/tradeguard/risk"
	"github.com/web3guy0/tradeguard/server"
	"github.com/web3guy0/tradeguard/storage"
	"github.com/web3guy0/tradeguard/types"
	"github.com/web3guy0/tradeguard/wallet"
)

const version = "1.0.0"

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	log.Info().Str("version", version).Msg("🚀 Tradeguard starting")

	// Wallet
	signer, err := wallet.NewSigner(cfg.PrivateKey)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load wallet")
	}

	// Chain
	dialCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	gateway, err := chain.Dial(dialCtx, cfg.RPCURL)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to chain")
	}
	defer gateway.Close()

	// Risk gateway
	riskGate := risk.NewGateway(risk.ConfigFromEnv(), nil)

	// Rate feed for quote→native conversion
	rateFeed := feeds.NewRateFeed(cfg.RateSymbol, cfg.FallbackRate)
	rateFeed.Start()
	defer rateFeed.Stop()

	// Executor
	exec := execution.NewExecutor(riskGate, signer, gateway, rateFeed.Convert, execution.Config{
		BetContract:   common.HexToAddress(cfg.BetContract),
		MarketMaker:   common.HexToAddress(cfg.MarketMaker),
		QuoteToken:    common.HexToAddress(cfg.QuoteToken),
		QuoteDecimals: int32(cfg.QuoteDecimals),
	})

	// Durable trade mirror, off when DATABASE_PATH is set empty
	var db *storage.Database
	if cfg.DatabasePath != "" {
		db, err = storage.New(cfg.DatabasePath)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open database")
		}
	} else {
		log.Info().Msg("Trade persistence disabled")
	}

	// Optional Telegram notifier
	var notifier *bot.Notifier
	if cfg.TelegramToken != "" {
		notifier, err = bot.NewNotifier()
		if err != nil {
			log.Warn().Err(err).Msg("Telegram notifier disabled")
			notifier = nil
		}
	}

	exec.SetTradeCallback(func(result types.TradeResult) {
		if db != nil {
			if err := db.SaveTrade(result); err != nil {
				log.Error().Err(err).Str("tx_ref", result.TxRef).Msg("❌ Failed to persist trade")
			}
		}
		if notifier != nil {
			notifier.TradeSubmitted(result)
		}
	})

	// Whale monitor
	monCfg := monitor.DefaultConfig()
	monCfg.PollInterval = cfg.PollInterval
	monCfg.CopyDelay = cfg.CopyDelay
	activity := feeds.NewActivityClient(cfg.ActivityAPIURL)
	mon := monitor.New(monCfg, exec, activity)
	if notifier != nil {
		mon.SetEventCallback(notifier.MonitorEvent)
	}

	// Admin API
	srv := server.New(cfg.ListenAddr, riskGate, exec, mon)
	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("Admin API failed")
		}
	}()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("🛑 Shutting down...")
	mon.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Admin API shutdown failed")
	}

	log.Info().Msg("👋 Goodbye")
}
