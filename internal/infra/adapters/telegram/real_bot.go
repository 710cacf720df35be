package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"agency-checkout/internal/config"
	"agency-checkout/internal/domain/model"
	"agency-checkout/internal/domain/ports/adapter"
)

var _ adapter.PurchaseNotifier = (*TelegramNotifier)(nil)

// sender is the subset of tgbotapi.BotAPI the notifier needs.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier tells the business owners about completed purchases.
type TelegramNotifier struct {
	bot      sender
	adminIDs []int64
	log      *zerolog.Logger
}

func NewTelegramNotifier(cfg config.TelegramConfig, logger *zerolog.Logger) (*TelegramNotifier, error) {
	if cfg.Token == "" {
		return nil, errors.New("telegram token is empty")
	}
	if len(cfg.AdminIDs) == 0 {
		return nil, errors.New("telegram admin_ids is empty")
	}
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, err
	}
	return newTelegramNotifier(bot, cfg.AdminIDs, logger), nil
}

func newTelegramNotifier(bot sender, adminIDs []int64, logger *zerolog.Logger) *TelegramNotifier {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &TelegramNotifier{bot: bot, adminIDs: adminIDs, log: logger}
}

// NotifyPurchaseCompleted messages every configured owner; it fails only when
// no owner could be reached.
func (n *TelegramNotifier) NotifyPurchaseCompleted(ctx context.Context, p *model.Purchase) error {
	text := purchaseMessage(p)
	var sent int
	var lastErr error
	for _, id := range n.adminIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(id, text)
		if _, err := n.bot.Send(msg); err != nil {
			lastErr = err
			n.log.Warn().Err(err).Int64("chat_id", id).Str("purchase_id", p.ID).Msg("telegram notify failed")
			continue
		}
		sent++
	}
	if sent == 0 && lastErr != nil {
		return fmt.Errorf("notify purchase %s: %w", p.ID, lastErr)
	}
	return nil
}

func purchaseMessage(p *model.Purchase) string {
	var b strings.Builder
	b.WriteString("✅ Nueva compra completada\n")
	fmt.Fprintf(&b, "Plan: %s\n", p.PlanID)
	fmt.Fprintf(&b, "Monto: $%s\n", p.Amount.StringFixed(2))
	fmt.Fprintf(&b, "Email: %s\n", p.Email)
	if p.TransactionID != nil {
		fmt.Fprintf(&b, "Transacción: %s\n", *p.TransactionID)
	}
	fmt.Fprintf(&b, "Compra: %s", p.ID)
	if p.Requirements != nil && *p.Requirements != "" {
		fmt.Fprintf(&b, "\nRequerimientos: %s", *p.Requirements)
	}
	return b.String()
}
