package i18n

import (
	"encoding/json"
	"fmt"

	"github.com/kw-tgbot-go/internal/config"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

// Localizer manages internationalization
type Localizer struct {
	bundle          *i18n.Bundle
	defaultLanguage string
	localizers      map[string]*i18n.Localizer
}

// NewLocalizer creates a new localizer
func NewLocalizer(cfg *config.I18nConfig) (*Localizer, error) {
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	// Load language files
	dir := cfg.Directory
	if dir == "" {
		dir = "configs/i18n"
	}
	for _, lang := range cfg.Languages {
		if _, err := bundle.LoadMessageFile(fmt.Sprintf("%s/%s.json", dir, lang)); err != nil {
			return nil, fmt.Errorf("failed to load language file %s: %w", lang, err)
		}
	}

	localizers := make(map[string]*i18n.Localizer)
	for _, lang := range cfg.Languages {
		localizers[lang] = i18n.NewLocalizer(bundle, lang)
	}

	return &Localizer{
		bundle:          bundle,
		defaultLanguage: cfg.DefaultLanguage,
		localizers:      localizers,
	}, nil
}

// Get returns localized message
func (l *Localizer) Get(lang, messageID string, data map[string]interface{}) string {
	localizer, exists := l.localizers[lang]
	if !exists {
		localizer = l.localizers[l.defaultLanguage]
	}
	if localizer == nil {
		return messageID
	}

	msg, err := localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    messageID,
		TemplateData: data,
	})
	if err != nil {
		return messageID // Fallback to message ID
	}

	return msg
}

// Message IDs
const (
	MsgWelcome           = "welcome"
	MsgHelp              = "help"
	MsgKeywordAdded      = "keyword_added"
	MsgKeywordExists     = "keyword_exists"
	MsgKeywordUpdated    = "keyword_updated"
	MsgKeywordDeleted    = "keyword_deleted"
	MsgKeywordNotFound   = "keyword_not_found"
	MsgKeywordList       = "keyword_list"
	MsgKeywordListEmpty  = "keyword_list_empty"
	MsgInvalidLevel      = "invalid_level"
	MsgDenied            = "denied"
	MsgRoleSet           = "role_set"
	MsgLeaderboardHeader = "leaderboard_header"
	MsgLeaderboardEmpty  = "leaderboard_empty"
	MsgMyStats           = "my_stats"
	MsgUnknownCommand    = "unknown_command"
	MsgError             = "error"
	MsgUsageAddKeyword   = "usage_add_keyword"
	MsgUsageEditKeyword  = "usage_edit_keyword"
	MsgUsageDelKeyword   = "usage_delete_keyword"
	MsgUsageSetRole      = "usage_set_role"
)
