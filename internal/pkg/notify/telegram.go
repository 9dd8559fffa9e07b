package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/stakeaware/accessgate/internal/pkg/env"
)

// Notifier delivers outbound messages to a chat identity. Deliveries are
// best-effort and at-most-once: callers log failures and move on, and no
// delivery outcome ever feeds back into a ledger mutation.
type Notifier interface {
	Send(chatID int64, text string) error
	SendButton(chatID int64, text, label, buttonURL string) error
	NotifyAdmin(text string) error
}

const defaultTelegramAPIBaseURL = "https://api.telegram.org"

// TelegramNotifier sends messages through the Telegram Bot API.
type TelegramNotifier struct {
	BotToken    string
	AdminChatID int64
	APIBaseURL  string

	HTTPClient *http.Client
}

// NewTelegramNotifierFromEnv builds the notifier from environment
// configuration. A missing bot token leaves the notifier in log-only mode.
func NewTelegramNotifierFromEnv() *TelegramNotifier {
	adminChatID, _ := strconv.ParseInt(strings.TrimSpace(env.GetEnv("ADMIN_TELEGRAM_ID", "")), 10, 64)
	return &TelegramNotifier{
		BotToken:    strings.TrimSpace(env.GetEnv("ACCESS_BOT_TOKEN", "")),
		AdminChatID: adminChatID,
		APIBaseURL:  strings.TrimSpace(env.GetEnv("TELEGRAM_API_BASE_URL", defaultTelegramAPIBaseURL)),
		HTTPClient: &http.Client{
			Timeout: 8 * time.Second,
		},
	}
}

type inlineKeyboardButton struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

type replyMarkup struct {
	InlineKeyboard [][]inlineKeyboardButton `json:"inline_keyboard"`
}

type sendMessageRequest struct {
	ChatID      int64        `json:"chat_id"`
	Text        string       `json:"text"`
	ReplyMarkup *replyMarkup `json:"reply_markup,omitempty"`
}

// Send delivers a plain text message to a chat.
func (n *TelegramNotifier) Send(chatID int64, text string) error {
	return n.sendMessage(sendMessageRequest{ChatID: chatID, Text: text})
}

// SendButton delivers a message with a single inline URL button.
func (n *TelegramNotifier) SendButton(chatID int64, text, label, buttonURL string) error {
	req := sendMessageRequest{ChatID: chatID, Text: text}
	if label != "" && buttonURL != "" {
		req.ReplyMarkup = &replyMarkup{
			InlineKeyboard: [][]inlineKeyboardButton{{{Text: label, URL: buttonURL}}},
		}
	}
	return n.sendMessage(req)
}

// NotifyAdmin delivers a message to the configured admin chat. Without a bot
// token or admin chat id the message is only logged, keeping local and test
// runs working without Telegram credentials.
func (n *TelegramNotifier) NotifyAdmin(text string) error {
	if n.BotToken == "" || n.AdminChatID == 0 {
		log.Infof("[Notify] admin message: %s", text)
		return nil
	}
	return n.Send(n.AdminChatID, text)
}

func (n *TelegramNotifier) sendMessage(msg sendMessageRequest) error {
	if n.BotToken == "" {
		return fmt.Errorf("notify: no bot token configured")
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	base := strings.TrimRight(n.APIBaseURL, "/")
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", base, n.BotToken)
	resp, err := n.HTTPClient.Post(endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: telegram send failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("notify: telegram send failed: status=%d body=%s", resp.StatusCode, string(data))
	}
	return nil
}

// DeepLink builds the bot deep link a subscriber opens to hand their payment
// reference to the access bot.
func DeepLink(botUsername, reference string) string {
	return fmt.Sprintf("https://t.me/%s?start=%s", botUsername, url.QueryEscape(reference))
}
