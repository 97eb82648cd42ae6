package delivery

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Telegram sends briefs straight to a Telegram chat. The recipient id
// of an entry is the chat id in decimal form.
type Telegram struct {
	bot *tgbotapi.BotAPI
	log *zap.Logger
}

func NewTelegram(token string, log *zap.Logger) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	log.Info("telegram transport ready", zap.String("bot", bot.Self.UserName))
	return &Telegram{bot: bot, log: log}, nil
}

func (t *Telegram) Deliver(_ context.Context, recipientID, content string) error {
	chatID, err := strconv.ParseInt(recipientID, 10, 64)
	if err != nil {
		return fmt.Errorf("recipient %q is not a chat id: %w", recipientID, err)
	}

	msg := tgbotapi.NewMessage(chatID, content)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}

	t.log.Debug("telegram delivery sent", zap.Int64("chat", chatID))
	return nil
}
