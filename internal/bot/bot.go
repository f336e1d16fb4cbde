package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"arriendo/internal/config"
	"arriendo/internal/domain"
	"arriendo/internal/events"
	"arriendo/internal/logging"
	"arriendo/internal/models"
	"arriendo/internal/wizard"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Bot runs the visit wizard over Telegram, one wizard per chat.
type Bot struct {
	tg       domain.TelegramSender
	api      domain.VisitsAPI
	store    domain.SnapshotStore
	eventBus domain.EventPublisher
	config   *config.Config
	listings map[string]models.Listing
	loc      *time.Location
	limiter  *chatLimiter
	metrics  *Metrics
	logger   *zerolog.Logger
	now      func() time.Time

	mu       sync.Mutex
	sessions map[int64]*session
}

type session struct {
	listingID string
	wiz       *wizard.Wizard
}

func NewBot(
	tg domain.TelegramSender,
	api domain.VisitsAPI,
	store domain.SnapshotStore,
	eventBus domain.EventPublisher,
	cfg *config.Config,
	metrics *Metrics,
	logger *zerolog.Logger,
) (*Bot, error) {
	if eventBus == nil {
		eventBus = events.NewEventBus()
	}
	loc, err := models.LoadLocation(cfg.Scheduler.Timezone)
	if err != nil {
		return nil, err
	}

	listings := make(map[string]models.Listing, len(cfg.Listings))
	for _, l := range cfg.Listings {
		if l.IsActive {
			listings[l.ID] = l
		}
	}

	return &Bot{
		tg:       tg,
		api:      api,
		store:    store,
		eventBus: eventBus,
		config:   cfg,
		listings: listings,
		loc:      loc,
		limiter:  newChatLimiter(cfg.Telegram.RateLimitRPS, cfg.Telegram.RateLimitBurst),
		metrics:  metrics,
		logger:   logging.Component(logger, "bot"),
		now:      time.Now,
		sessions: make(map[int64]*session),
	}, nil
}

func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.tg.GetUpdatesChan(u)

	b.logger.Info().Str("username", b.tg.GetSelf().UserName).Msg("Authorized on account")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info().Msg("Bot stopping...")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.processUpdate(ctx, update)
		}
	}
}

// Stop stops receiving updates and flushes the progress of open wizards.
func (b *Bot) Stop(ctx context.Context) {
	b.tg.StopReceivingUpdates()

	b.mu.Lock()
	sessions := b.sessions
	b.sessions = make(map[int64]*session)
	b.mu.Unlock()

	for chatID, s := range sessions {
		if err := s.wiz.Close(ctx, true); err != nil {
			b.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("Failed to close wizard")
		}
	}
}

func (b *Bot) processUpdate(ctx context.Context, update tgbotapi.Update) {
	start := time.Now()
	defer func() {
		if b.metrics != nil {
			b.metrics.UpdateProcessingTime.Observe(time.Since(start).Seconds())
		}
	}()

	// Создаем контекст для обработки каждого обновления
	updateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	l := b.logger.With().Str("request_id", uuid.NewString()).Logger()
	updateCtx = l.WithContext(updateCtx)

	b.withRecovery(func() {
		chat := update.FromChat()
		if chat == nil {
			return
		}

		if !b.limiter.allow(chat.ID) {
			if b.metrics != nil {
				b.metrics.RateLimited.Inc()
			}
			l.Warn().Int64("chat_id", chat.ID).Msg("Rate limit exceeded")
			if update.Message != nil {
				b.sendText(chat.ID, "⚠️ Estás enviando mensajes muy rápido. Espera un momento.")
			}
			return
		}

		if update.CallbackQuery != nil {
			b.handleCallbackQuery(updateCtx, update.CallbackQuery)
			return
		}
		if update.Message != nil {
			b.handleMessage(updateCtx, update.Message)
		}
	})
}

func (b *Bot) session(chatID int64) *session {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sessions[chatID]
}

func (b *Bot) dropSession(chatID int64) {
	b.mu.Lock()
	delete(b.sessions, chatID)
	b.mu.Unlock()
}

// openSession starts a wizard for listingID in chatID, replacing any other
// wizard of the chat. Saved progress of the same chat and listing is restored.
func (b *Bot) openSession(ctx context.Context, chatID, userID int64, listingID string) *session {
	if prev := b.session(chatID); prev != nil {
		if err := prev.wiz.Close(ctx, true); err != nil {
			b.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("Failed to close previous wizard")
		}
	}

	sc := b.config.Scheduler
	wiz := wizard.New(wizard.Deps{
		API:    b.api,
		Store:  b.store,
		Events: b.eventBus,
		Logger: b.logger,
	}, wizard.Options{
		ListingID:      listingID,
		UserID:         fmt.Sprintf("tg:%d", userID),
		Channel:        models.ChannelTelegram,
		WhatsAppNumber: sc.WhatsAppNumber,
		StorageKey:     storageKey(listingID, chatID),
		Location:       b.loc,
		BookableDays:   sc.BookableDays,
		PersistTTL:     sc.PersistTTL(),
		Debounce:       sc.Debounce(),
		Dev:            b.config.App.IsDevelopment(),
		Now:            b.now,
	})

	// ошибка загрузки остается во view и показывается с кнопкой повтора
	if err := wiz.Open(ctx); err != nil {
		zerolog.Ctx(ctx).Info().Err(err).Str("listing_id", listingID).Msg("Availability load failed")
	}

	s := &session{listingID: listingID, wiz: wiz}
	b.mu.Lock()
	b.sessions[chatID] = s
	b.mu.Unlock()

	if b.metrics != nil {
		b.metrics.WizardsOpened.Inc()
	}
	return s
}

func storageKey(listingID string, chatID int64) string {
	return fmt.Sprintf("%s_tg%d", models.StorageKey(listingID), chatID)
}

func (b *Bot) listingName(id string) string {
	if l, ok := b.listings[id]; ok && l.Name != "" {
		return l.Name
	}
	return id
}

// knownListing reports whether id may be booked from chat. Without
// configured listings every id is passed on to the API.
func (b *Bot) knownListing(id string) bool {
	if len(b.listings) == 0 {
		return true
	}
	_, ok := b.listings[id]
	return ok
}

func (b *Bot) sendText(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.tg.Send(msg); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send message")
	}
}

func (b *Bot) send(msg tgbotapi.MessageConfig) {
	if _, err := b.tg.Send(msg); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", msg.ChatID).Msg("Failed to send message")
	}
}
