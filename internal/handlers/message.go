package handlers

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/kw-tgbot-go/internal/config"
	"github.com/kw-tgbot-go/internal/i18n"
	"github.com/kw-tgbot-go/internal/middleware"
	"github.com/kw-tgbot-go/internal/services/keywords"
	"github.com/kw-tgbot-go/internal/services/permissions"
	"github.com/kw-tgbot-go/internal/services/stats"
	"github.com/kw-tgbot-go/pkg/logger"
	"github.com/kw-tgbot-go/pkg/markdown"
	"github.com/sirupsen/logrus"
)

// Sender is the part of the bot API the handlers need. *tgbotapi.BotAPI
// satisfies it.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// MessageHandler routes inbound group messages: it filters by the chat
// allow-list, records the message for statistics, matches the text against
// the keyword table and replies when the sender holds enough permission.
type MessageHandler struct {
	config      *config.Config
	bot         Sender
	keywords    *keywords.Table
	permissions *permissions.Engine
	stats       *stats.Engine
	metrics     *middleware.Metrics
	localizer   *i18n.Localizer
	logger      *logrus.Logger
	allowed     map[int64]bool
}

// NewMessageHandler creates a new message handler
func NewMessageHandler(
	cfg *config.Config,
	bot Sender,
	keywordTable *keywords.Table,
	permissionEngine *permissions.Engine,
	statsEngine *stats.Engine,
	metrics *middleware.Metrics,
	localizer *i18n.Localizer,
	logger *logrus.Logger,
) *MessageHandler {
	allowed := make(map[int64]bool, len(cfg.Bot.AllowedGroupIDs))
	for _, id := range cfg.Bot.AllowedGroupIDs {
		allowed[id] = true
	}

	return &MessageHandler{
		config:      cfg,
		bot:         bot,
		keywords:    keywordTable,
		permissions: permissionEngine,
		stats:       statsEngine,
		metrics:     metrics,
		localizer:   localizer,
		logger:      logger,
		allowed:     allowed,
	}
}

// HandleMessage processes a regular (non-command) message. Recording the
// message and matching keywords are independent: a failed record never
// skips matching and a failed reply never loses the recorded message.
func (h *MessageHandler) HandleMessage(ctx context.Context, update *tgbotapi.Update) error {
	message := update.Message
	if message == nil || message.IsCommand() || message.Text == "" || message.From == nil {
		return nil
	}

	chatID := message.Chat.ID
	if !h.allowed[chatID] {
		h.metrics.RecordMessageIgnored()
		h.logger.WithField("chat_id", chatID).Debug("Chat not in allow-list, ignoring")
		return nil
	}

	user := message.From
	displayName := user.UserName
	if displayName == "" {
		displayName = user.FirstName
	}

	recordErr := h.stats.Record(ctx, user.ID, displayName, message.Time())
	if recordErr != nil {
		logger.WithMessage(h.logger, chatID, user.ID).WithError(recordErr).Error("Failed to record message")
	}

	keyword, entry, matched := h.keywords.Match(message.Text)
	if !matched {
		return recordErr
	}

	h.metrics.RecordKeywordMatch(keyword)

	if !h.permissions.HasPermission(user.ID, entry.Level) {
		// Do not reveal that a match existed
		h.metrics.RecordPermissionDenied()
		logger.WithMessage(h.logger, chatID, user.ID).WithFields(logrus.Fields{
			"keyword": keyword,
			"level":   entry.Level,
		}).Debug("Keyword match suppressed by permission check")
		return recordErr
	}

	if err := h.reply(chatID, message.MessageID, entry.Response); err != nil {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"chat_id": chatID,
			"keyword": keyword,
		}).Error("Failed to send keyword reply")
		if recordErr != nil {
			return recordErr
		}
		return err
	}

	h.metrics.RecordReplySent()
	logger.WithMessage(h.logger, chatID, user.ID).WithField("keyword", keyword).Info("Keyword reply sent")

	return recordErr
}

// reply renders the response as Telegram HTML, falling back to plain text
// when Telegram rejects the markup.
func (h *MessageHandler) reply(chatID int64, replyTo int, response string) error {
	msg := tgbotapi.NewMessage(chatID, markdown.ToTelegramHTML(response))
	msg.ParseMode = "HTML"
	msg.ReplyToMessageID = replyTo

	if _, err := h.bot.Send(msg); err != nil {
		h.logger.WithError(err).Warn("Failed to send HTML reply, trying plain text")
		msg.ParseMode = ""
		msg.Text = response
		if _, err := h.bot.Send(msg); err != nil {
			return err
		}
	}

	return nil
}
