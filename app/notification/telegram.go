package notification

import (
	"context"
	"fmt"
	"log/slog"
	"stravachallenge/app/storage/models"

	"github.com/go-telegram/bot"
	botModels "github.com/go-telegram/bot/models"
	"github.com/pkg/errors"
)

const (
	greetingMessage   = "I am the Strava challenge bot! Send /start to link this chat."
	authLinkMessage   = "Connect your Strava account to receive challenge news here: %s"
	missingURLMessage = "Server configuration error. Please contact admin."
	connectLinkFormat = "%s/auth?chat_id=%d"
)

// BotSender is the part of the Telegram bot used for outgoing messages.
type BotSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*botModels.Message, error)
}

// Telegram delivers notifications to linked chats and answers /start with
// a Strava connect link carrying the chat id.
type Telegram struct {
	APIKey string
	URL    string
	Bot    BotSender
}

func NewTelegram(apiKey, url string) *Telegram {
	return &Telegram{APIKey: apiKey, URL: url}
}

func (tg *Telegram) defaultHandler(ctx context.Context, _ *bot.Bot, update *botModels.Update) {
	chatID, ok := chatId(update)
	if !ok {
		return
	}
	tg.send(ctx, chatID, greetingMessage, "")
}

func (tg *Telegram) startHandler(ctx context.Context, _ *bot.Bot, update *botModels.Update) {
	chatID, ok := chatId(update)
	if !ok {
		return
	}
	slog.Debug("received start command", "chatID", chatID)
	if tg.URL == "" {
		slog.Error("URL not set, cannot build connect link")
		tg.send(ctx, chatID, missingURLMessage, "")
		return
	}
	link := fmt.Sprintf(connectLinkFormat, tg.URL, chatID)
	tg.send(ctx, chatID, fmt.Sprintf(authLinkMessage, bot.EscapeMarkdownUnescaped(link)), botModels.ParseModeMarkdown)
}

// Start connects to Telegram and serves updates until ctx is done.
func (tg *Telegram) Start(ctx context.Context) error {
	b, err := bot.New(tg.APIKey, bot.WithDefaultHandler(tg.defaultHandler))
	if err != nil {
		return errors.Wrap(err, "start telegram bot")
	}
	b.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypeExact, tg.startHandler)
	tg.Bot = b
	go b.Start(ctx)
	return nil
}

// Deliver sends message to the athlete's chat. Athletes without a linked
// chat are skipped.
func (tg *Telegram) Deliver(ctx context.Context, athlete models.Athlete, message string) error {
	if athlete.TelegramChatId == nil || tg.Bot == nil {
		return nil
	}
	_, err := tg.Bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: *athlete.TelegramChatId,
		Text:   message,
	})
	return errors.Wrapf(err, "send telegram message to athlete %d", athlete.ID)
}

func (tg *Telegram) send(ctx context.Context, chatID int64, text string, mode botModels.ParseMode) {
	_, err := tg.Bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: mode,
	})
	if err != nil {
		slog.Error("failed to send telegram message", "err", err, "chatID", chatID)
	}
}

func chatId(update *botModels.Update) (int64, bool) {
	if update.Message != nil {
		return update.Message.Chat.ID, true
	}
	if update.CallbackQuery != nil {
		return update.CallbackQuery.From.ID, true
	}
	return 0, false
}
