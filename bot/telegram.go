package bot

import (
	"fmt"
	"os"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/tradeguard/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TELEGRAM NOTIFIER - Push trade and monitor events to the operator
// ═══════════════════════════════════════════════════════════════════════════════
//
// Outbound only. Send failures are logged and dropped; notifications
// never influence trade outcomes.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Notifier pushes messages to a single operator chat.
type Notifier struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

// NewNotifier builds a notifier from TELEGRAM_BOT_TOKEN and
// TELEGRAM_CHAT_ID. Both must be set.
func NewNotifier() (*Notifier, error) {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN not set")
	}
	chatIDStr := os.Getenv("TELEGRAM_CHAT_ID")
	if chatIDStr == "" {
		return nil, fmt.Errorf("TELEGRAM_CHAT_ID not set")
	}
	chatID, err := strconv.ParseInt(chatIDStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	log.Info().Str("bot", api.Self.UserName).Msg("📱 Telegram notifier ready")
	return &Notifier{api: api, chatID: chatID}, nil
}

// TradeSubmitted announces a submitted trade.
func (n *Notifier) TradeSubmitted(result types.TradeResult) {
	msg := fmt.Sprintf("🚀 *Trade submitted*\n`%s`\n→ `%s`\nValue: %s",
		result.TxRef, result.Destination, result.ValueNative.String())
	if result.Decision != nil && len(result.Decision.Warnings) > 0 {
		msg += fmt.Sprintf("\n⚠️ %d risk warning(s)", len(result.Decision.Warnings))
	}
	n.send(msg)
}

// MonitorEvent announces a monitor lifecycle or copy-trade event.
func (n *Notifier) MonitorEvent(event string) {
	n.send("🐋 " + event)
}

func (n *Notifier) send(text string) {
	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := n.api.Send(msg); err != nil {
		log.Warn().Err(err).Msg("⚠️ Telegram send failed")
	}
}
