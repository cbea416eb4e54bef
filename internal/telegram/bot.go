package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	telegramAPI = "https://api.telegram.org/bot"
	pollBackoff = 5 * time.Second
)

// StatusFunc renders the current monitor status for the /status command.
type StatusFunc func() string

type Bot struct {
	token   string
	chatID  string
	status  StatusFunc
	logger  *slog.Logger
	client  *http.Client
	apiBase string
	offset  int64
}

// NewBot creates a bot bound to a single chat. Alerts go to chatID and
// commands from any other chat are ignored.
func NewBot(token, chatID string, status StatusFunc, logger *slog.Logger) *Bot {
	return &Bot{
		token:   token,
		chatID:  chatID,
		status:  status,
		logger:  logger,
		client:  &http.Client{Timeout: 40 * time.Second},
		apiBase: telegramAPI,
	}
}

// SendMessage sends an HTML message to the configured chat.
func (b *Bot) SendMessage(ctx context.Context, text string) error {
	return b.send(ctx, b.chatID, text)
}

func (b *Bot) send(ctx context.Context, chatID, text string) error {
	payload := map[string]interface{}{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "HTML",
	}
	body, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.apiBase+b.token+"/sendMessage", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			Description string `json:"description"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		return fmt.Errorf("telegram API error %d: %s", resp.StatusCode, errResp.Description)
	}
	return nil
}

// Run starts the long-polling loop for incoming commands.
func (b *Bot) Run(ctx context.Context) {
	b.logger.Info("telegram bot started")
	for {
		select {
		case <-ctx.Done():
			return
		default:
			b.poll(ctx)
		}
	}
}

type update struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		Text string `json:"text"`
	} `json:"message"`
}

func (b *Bot) poll(ctx context.Context) {
	url := fmt.Sprintf("%s%s/getUpdates?offset=%d&timeout=30", b.apiBase, b.token, b.offset)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		b.logger.Error("create poll request", "error", err)
		return
	}

	resp, err := b.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		b.logger.Error("poll updates", "error", err)
		sleep(ctx, pollBackoff)
		return
	}
	defer resp.Body.Close()

	var result struct {
		OK          bool     `json:"ok"`
		Description string   `json:"description"`
		Result      []update `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		b.logger.Error("decode updates", "status", resp.StatusCode, "error", err)
		sleep(ctx, pollBackoff)
		return
	}
	// 409 means another instance is polling with the same token.
	if resp.StatusCode != http.StatusOK || !result.OK {
		b.logger.Error("poll updates rejected", "status", resp.StatusCode, "description", result.Description)
		sleep(ctx, pollBackoff)
		return
	}

	for _, u := range result.Result {
		b.offset = u.UpdateID + 1
		b.handle(ctx, u)
	}
}

func (b *Bot) handle(ctx context.Context, u update) {
	if u.Message == nil {
		return
	}
	chatID := strconv.FormatInt(u.Message.Chat.ID, 10)
	if chatID != b.chatID {
		b.logger.Warn("ignoring command from unknown chat", "chat_id", chatID)
		return
	}

	// Commands may carry a bot suffix in groups, e.g. /status@lp_monitor_bot.
	cmd, _, _ := strings.Cut(strings.TrimSpace(u.Message.Text), "@")

	var reply string
	switch cmd {
	case "/status":
		reply = "📍 <b>Position Status</b>\n\n" + b.status()
	case "/help", "/start":
		reply = "🤖 <b>LP Range Monitor</b>\n\n" +
			"Commands:\n" +
			"/status - Current price, range and baselines\n" +
			"/help - Show this message"
	default:
		reply = "Unknown command. Send /help for available commands."
	}
	if err := b.send(ctx, chatID, reply); err != nil {
		b.logger.Error("reply to command", "command", cmd, "error", err)
	}
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
