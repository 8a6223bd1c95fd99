package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// maxMessageLen stays below Telegram's 4096 character limit.
const maxMessageLen = 4000

var buttonLabels = map[string]string{
	"yes":    "✅ Yes",
	"modify": "✏️ Modify",
	"no":     "❌ No",
}

type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// TelegramUI asks the human through a Telegram chat. Replies come from the
// inline buttons or from any text message sent to the chat.
type TelegramUI struct {
	bot    botAPI
	chatID int64

	mu      sync.Mutex
	pending chan string
	msgID   int
}

func NewTelegramUI(ctx context.Context, token string, chatIDStr string) (*TelegramUI, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connect telegram bot: %w", err)
	}

	chatID, err := strconv.ParseInt(chatIDStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat id: %w", err)
	}

	return newTelegramUI(ctx, bot, chatID), nil
}

func newTelegramUI(ctx context.Context, bot botAPI, chatID int64) *TelegramUI {
	ui := &TelegramUI{bot: bot, chatID: chatID}
	go ui.listen(ctx)
	return ui
}

func (ui *TelegramUI) listen(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := ui.bot.GetUpdatesChan(u)
	defer ui.bot.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			ui.handle(update)
		}
	}
}

func (ui *TelegramUI) handle(update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		cb := update.CallbackQuery
		if cb.Message == nil || cb.Message.Chat == nil || cb.Message.Chat.ID != ui.chatID {
			return
		}
		if !ui.deliver(cb.Data, cb.Message.MessageID) {
			return
		}
		if _, err := ui.bot.Request(tgbotapi.NewCallback(cb.ID, "Selected: "+cb.Data)); err != nil {
			slog.Warn("telegram callback ack failed", "error", err)
		}
		edit := tgbotapi.NewEditMessageReplyMarkup(ui.chatID, cb.Message.MessageID, tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}})
		if _, err := ui.bot.Send(edit); err != nil {
			slog.Warn("telegram keyboard removal failed", "error", err)
		}

	case update.Message != nil:
		msg := update.Message
		if msg.Chat == nil || msg.Chat.ID != ui.chatID || msg.Text == "" {
			return
		}
		ui.deliver(msg.Text, 0)
	}
}

// deliver hands a reply to the waiting Ask. Button presses must belong to
// the current question; msgID 0 accepts a typed reply.
func (ui *TelegramUI) deliver(reply string, msgID int) bool {
	ui.mu.Lock()
	defer ui.mu.Unlock()

	if ui.pending == nil || (msgID != 0 && msgID != ui.msgID) {
		return false
	}
	ui.pending <- reply
	ui.pending = nil
	return true
}

// Ask sends prompt to the chat and blocks until the human replies or ctx
// ends. Choices become inline buttons; without them the prompt expects a
// typed answer.
func (ui *TelegramUI) Ask(ctx context.Context, prompt string, choices ...string) (string, error) {
	msg := tgbotapi.NewMessage(ui.chatID, escapeMarkdown(clip(prompt)))
	msg.ParseMode = tgbotapi.ModeMarkdown
	if len(choices) > 0 {
		msg.ReplyMarkup = keyboard(choices)
	}

	respCh := make(chan string, 1)
	ui.mu.Lock()
	sent, err := ui.bot.Send(msg)
	if err != nil {
		ui.mu.Unlock()
		return "", fmt.Errorf("send telegram prompt: %w", err)
	}
	ui.pending = respCh
	ui.msgID = sent.MessageID
	ui.mu.Unlock()

	select {
	case reply := <-respCh:
		return reply, nil
	case <-ctx.Done():
		ui.clear(respCh)
		return "", ctx.Err()
	}
}

func keyboard(choices []string) tgbotapi.InlineKeyboardMarkup {
	row := make([]tgbotapi.InlineKeyboardButton, len(choices))
	for i, c := range choices {
		label, ok := buttonLabels[c]
		if !ok {
			label = c
		}
		row[i] = tgbotapi.NewInlineKeyboardButtonData(label, c)
	}
	return tgbotapi.NewInlineKeyboardMarkup(row)
}

func (ui *TelegramUI) clear(ch chan string) {
	ui.mu.Lock()
	defer ui.mu.Unlock()
	if ui.pending == ch {
		ui.pending = nil
	}
}

func clip(s string) string {
	r := []rune(s)
	if len(r) <= maxMessageLen {
		return s
	}
	return string(r[:maxMessageLen]) + "…"
}

// escapeMarkdown escapes the characters legacy Markdown mode would parse.
func escapeMarkdown(text string) string {
	replacer := strings.NewReplacer(
		"_", "\\_",
		"*", "\\*",
		"[", "\\[",
		"`", "\\`",
	)
	return replacer.Replace(text)
}
