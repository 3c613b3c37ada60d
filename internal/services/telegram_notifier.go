package services

import (
	"context"
	"fmt"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"amoflow/internal/config"
)

type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	log    *log.Logger
}

// NewTelegramNotifier подключается к боту (getMe). apiURL пустой — api.telegram.org.
func NewTelegramNotifier(cfg config.TelegramConfig, client *http.Client, logger *log.Logger) (*TelegramNotifier, error) {
	if cfg.BotToken == "" || cfg.ChatID == 0 {
		return nil, fmt.Errorf("telegram: bot_token and chat_id are required")
	}
	endpoint := tgbotapi.APIEndpoint
	if cfg.APIURL != "" {
		endpoint = cfg.APIURL + "/bot%s/%s"
	}
	if client == nil {
		client = &http.Client{}
	}
	bot, err := tgbotapi.NewBotAPIWithClient(cfg.BotToken, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return &TelegramNotifier{bot: bot, chatID: cfg.ChatID, log: logger}, nil
}

func (t *TelegramNotifier) Notify(_ context.Context, s RunSummary) error {
	msg := tgbotapi.NewMessage(t.chatID, SummaryText(s))
	msg.DisableWebPagePreview = true

	t.log.WithFields(log.Fields{"chat_id": t.chatID, "run_id": s.RunID}).Debug("[tg][send]")
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram sendMessage failed: %w", err)
	}
	return nil
}
