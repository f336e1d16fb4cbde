package bot

import (
	"fmt"

	"arriendo/internal/config"
	"arriendo/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// BotWrapper adapts *tgbotapi.BotAPI to domain.TelegramSender.
type BotWrapper struct {
	*tgbotapi.BotAPI
}

var _ domain.TelegramSender = (*BotWrapper)(nil)

func (w *BotWrapper) GetSelf() tgbotapi.User {
	return w.Self
}

// NewTelegramAPI authorizes the bot token from the telegram config section.
func NewTelegramAPI(cfg config.TelegramConfig) (*BotWrapper, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("telegram.bot_token is required")
	}
	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}
	api.Debug = cfg.Debug
	return &BotWrapper{BotAPI: api}, nil
}
