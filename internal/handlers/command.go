package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/kw-tgbot-go/internal/config"
	"github.com/kw-tgbot-go/internal/i18n"
	"github.com/kw-tgbot-go/internal/middleware"
	"github.com/kw-tgbot-go/internal/models"
	"github.com/kw-tgbot-go/internal/services/keywords"
	"github.com/kw-tgbot-go/internal/services/permissions"
	"github.com/kw-tgbot-go/internal/services/stats"
	"github.com/kw-tgbot-go/pkg/markdown"
	"github.com/sirupsen/logrus"
)

// CommandHandler handles the administrative command surface.
type CommandHandler struct {
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

// NewCommandHandler creates a new command handler
func NewCommandHandler(
	cfg *config.Config,
	bot Sender,
	keywordTable *keywords.Table,
	permissionEngine *permissions.Engine,
	statsEngine *stats.Engine,
	metrics *middleware.Metrics,
	localizer *i18n.Localizer,
	logger *logrus.Logger,
) *CommandHandler {
	allowed := make(map[int64]bool, len(cfg.Bot.AllowedGroupIDs))
	for _, id := range cfg.Bot.AllowedGroupIDs {
		allowed[id] = true
	}

	return &CommandHandler{
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

// HandleCommand processes telegram commands. Commands are accepted in
// allow-listed groups and in private chats; elsewhere they are ignored
// silently like any other message.
func (h *CommandHandler) HandleCommand(ctx context.Context, message *tgbotapi.Message) error {
	if message.From == nil {
		return nil
	}

	chatID := message.Chat.ID
	if !message.Chat.IsPrivate() && !h.allowed[chatID] {
		h.metrics.RecordMessageIgnored()
		return nil
	}

	userID := message.From.ID
	command := message.Command()
	args := strings.Fields(message.CommandArguments())
	lang := h.config.I18n.DefaultLanguage

	h.metrics.RecordCommandExecuted(command)

	switch command {
	case "start", "help":
		return h.handleHelp(chatID, lang)
	case "add_keyword":
		return h.handleAddKeyword(ctx, chatID, userID, args, lang)
	case "edit_keyword":
		return h.handleEditKeyword(ctx, message, args, lang)
	case "delete_keyword":
		return h.handleDeleteKeyword(ctx, chatID, userID, args, lang)
	case "list_keywords":
		return h.handleListKeywords(chatID, lang)
	case "set_role":
		return h.handleSetRole(ctx, chatID, userID, args, lang)
	case "leaderboard":
		return h.handleLeaderboard(chatID, args, lang)
	case "mystats":
		return h.handleMyStats(chatID, userID, args, lang)
	default:
		return h.reply(chatID, h.localizer.Get(lang, i18n.MsgUnknownCommand, nil))
	}
}

func (h *CommandHandler) handleHelp(chatID int64, lang string) error {
	return h.reply(chatID, h.localizer.Get(lang, i18n.MsgHelp, nil))
}

// handleAddKeyword handles /add_keyword <keyword> [level=LEVEL] <response...>
func (h *CommandHandler) handleAddKeyword(ctx context.Context, chatID, userID int64, args []string, lang string) error {
	if !h.permissions.HasPermission(userID, models.LevelAdmin) {
		return h.reply(chatID, h.localizer.Get(lang, i18n.MsgDenied, nil))
	}

	if len(args) < 2 {
		return h.reply(chatID, h.localizer.Get(lang, i18n.MsgUsageAddKeyword, nil))
	}

	keyword := args[0]
	rest := args[1:]

	level := models.LevelPublic
	if strings.HasPrefix(rest[0], "level=") {
		// A level token with no response text left is a usage error
		if len(rest) == 1 {
			return h.reply(chatID, h.localizer.Get(lang, i18n.MsgUsageAddKeyword, nil))
		}
		parsed, err := models.ParseLevel(strings.TrimPrefix(rest[0], "level="))
		if err != nil {
			return h.reply(chatID, h.localizer.Get(lang, i18n.MsgInvalidLevel, map[string]interface{}{
				"Level": strings.TrimPrefix(rest[0], "level="),
			}))
		}
		level = parsed
		rest = rest[1:]
	}

	response := strings.Join(rest, " ")

	if err := h.keywords.Add(ctx, keyword, response, level); err != nil {
		if errors.Is(err, models.ErrAlreadyExists) {
			return h.reply(chatID, h.localizer.Get(lang, i18n.MsgKeywordExists, map[string]interface{}{
				"Keyword": keyword,
			}))
		}
		h.logger.WithError(err).WithField("keyword", keyword).Error("Failed to add keyword")
		return h.reply(chatID, h.localizer.Get(lang, i18n.MsgError, nil))
	}

	return h.reply(chatID, h.localizer.Get(lang, i18n.MsgKeywordAdded, map[string]interface{}{
		"Keyword":  keyword,
		"Response": response,
		"Level":    string(level),
	}))
}

// handleEditKeyword handles /edit_keyword <keyword> <level> <response...>
func (h *CommandHandler) handleEditKeyword(ctx context.Context, message *tgbotapi.Message, args []string, lang string) error {
	chatID := message.Chat.ID
	userID := message.From.ID

	if !h.permissions.HasPermission(userID, models.LevelAdmin) {
		return h.reply(chatID, h.localizer.Get(lang, i18n.MsgDenied, nil))
	}

	if len(args) < 3 {
		return h.reply(chatID, h.localizer.Get(lang, i18n.MsgUsageEditKeyword, nil))
	}

	keyword, levelStr := args[0], args[1]
	response := strings.Join(args[2:], " ")

	err := h.keywords.Edit(ctx, keyword, levelStr, response, userID, message.Time())
	switch {
	case errors.Is(err, models.ErrNotFound):
		return h.reply(chatID, h.localizer.Get(lang, i18n.MsgKeywordNotFound, map[string]interface{}{
			"Keyword": keyword,
		}))
	case errors.Is(err, models.ErrInvalidInput):
		return h.reply(chatID, h.localizer.Get(lang, i18n.MsgInvalidLevel, map[string]interface{}{
			"Level": levelStr,
		}))
	case err != nil:
		h.logger.WithError(err).WithField("keyword", keyword).Error("Failed to edit keyword")
		return h.reply(chatID, h.localizer.Get(lang, i18n.MsgError, nil))
	}

	return h.reply(chatID, h.localizer.Get(lang, i18n.MsgKeywordUpdated, map[string]interface{}{
		"Keyword": keyword,
		"Level":   strings.ToUpper(levelStr),
	}))
}

// handleDeleteKeyword handles /delete_keyword <keyword>
func (h *CommandHandler) handleDeleteKeyword(ctx context.Context, chatID, userID int64, args []string, lang string) error {
	if !h.permissions.HasPermission(userID, models.LevelAdmin) {
		return h.reply(chatID, h.localizer.Get(lang, i18n.MsgDenied, nil))
	}

	if len(args) != 1 {
		return h.reply(chatID, h.localizer.Get(lang, i18n.MsgUsageDelKeyword, nil))
	}

	keyword := args[0]
	prev, err := h.keywords.Delete(ctx, keyword)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return h.reply(chatID, h.localizer.Get(lang, i18n.MsgKeywordNotFound, map[string]interface{}{
				"Keyword": keyword,
			}))
		}
		h.logger.WithError(err).WithField("keyword", keyword).Error("Failed to delete keyword")
		return h.reply(chatID, h.localizer.Get(lang, i18n.MsgError, nil))
	}

	return h.reply(chatID, h.localizer.Get(lang, i18n.MsgKeywordDeleted, map[string]interface{}{
		"Keyword":  keyword,
		"Response": prev.Response,
		"Level":    string(prev.Level),
	}))
}

// handleListKeywords handles /list_keywords (no permission floor)
func (h *CommandHandler) handleListKeywords(chatID int64, lang string) error {
	records := h.keywords.List()
	if len(records) == 0 {
		return h.reply(chatID, h.localizer.Get(lang, i18n.MsgKeywordListEmpty, nil))
	}

	var list strings.Builder
	for _, rec := range records {
		fmt.Fprintf(&list, "• `%s` (%s)\n", rec.Keyword, rec.Level)
	}

	return h.reply(chatID, h.localizer.Get(lang, i18n.MsgKeywordList, map[string]interface{}{
		"List": list.String(),
	}))
}

// handleSetRole handles /set_role <userID> <level>
func (h *CommandHandler) handleSetRole(ctx context.Context, chatID, userID int64, args []string, lang string) error {
	if len(args) != 2 {
		return h.reply(chatID, h.localizer.Get(lang, i18n.MsgUsageSetRole, nil))
	}

	targetID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return h.reply(chatID, h.localizer.Get(lang, i18n.MsgUsageSetRole, nil))
	}

	level, err := models.ParseLevel(args[1])
	if err != nil || !level.Assignable() {
		return h.reply(chatID, h.localizer.Get(lang, i18n.MsgInvalidLevel, map[string]interface{}{
			"Level": args[1],
		}))
	}

	err = h.permissions.SetRole(ctx, userID, targetID, level)
	switch {
	case errors.Is(err, models.ErrDenied):
		return h.reply(chatID, h.localizer.Get(lang, i18n.MsgDenied, nil))
	case err != nil:
		h.logger.WithError(err).WithField("target_user", targetID).Error("Failed to set role")
		return h.reply(chatID, h.localizer.Get(lang, i18n.MsgError, nil))
	}

	return h.reply(chatID, h.localizer.Get(lang, i18n.MsgRoleSet, map[string]interface{}{
		"UserID": args[0],
		"Level":  string(level),
	}))
}

// handleLeaderboard handles /leaderboard [day|week|month]
func (h *CommandHandler) handleLeaderboard(chatID int64, args []string, lang string) error {
	period := h.config.Stats.DefaultPeriod
	if len(args) > 0 {
		period = args[0]
	}

	entries := h.stats.Leaderboard(period, h.config.Stats.LeaderboardLimit)
	if len(entries) == 0 {
		return h.reply(chatID, h.localizer.Get(lang, i18n.MsgLeaderboardEmpty, nil))
	}

	var board strings.Builder
	board.WriteString(h.localizer.Get(lang, i18n.MsgLeaderboardHeader, map[string]interface{}{
		"Period": period,
	}))
	board.WriteString("\n")
	for i, entry := range entries {
		fmt.Fprintf(&board, "%d. %s — %d\n", i+1, entry.Username, entry.Count)
	}

	return h.reply(chatID, board.String())
}

// handleMyStats handles /mystats [period]
func (h *CommandHandler) handleMyStats(chatID, userID int64, args []string, lang string) error {
	period := h.config.Stats.DefaultPeriod
	if len(args) > 0 {
		period = args[0]
	}

	count := h.stats.CountInWindow(userID, period)
	return h.reply(chatID, h.localizer.Get(lang, i18n.MsgMyStats, map[string]interface{}{
		"Count":  count,
		"Period": period,
	}))
}

// reply sends a localized confirmation, rendering markdown as Telegram
// HTML with a plain-text fallback.
func (h *CommandHandler) reply(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, markdown.ToTelegramHTML(text))
	msg.ParseMode = "HTML"

	if _, err := h.bot.Send(msg); err != nil {
		h.logger.WithError(err).Warn("Failed to send HTML reply, trying plain text")
		msg.ParseMode = ""
		msg.Text = text
		if _, err := h.bot.Send(msg); err != nil {
			return err
		}
	}

	return nil
}
