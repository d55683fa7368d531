// Package telegram delivers notifications to a single Telegram chat. It is
// outbound-only: the bot never polls for updates.
package telegram

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"pawtrack/internal/transport"
	logx "pawtrack/pkg/logx"
)

const textLimit = 4000

type Config struct {
	Token  string
	ChatID int64
	// ClientTimeout bounds each Bot API call.
	ClientTimeout time.Duration
}

type Sender struct {
	bot  *tele.Bot
	chat *tele.Chat
	log  logx.Logger
}

func New(cfg Config, log logx.Logger) (*Sender, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is empty")
	}
	timeout := cfg.ClientTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Client: &http.Client{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Sender{bot: b, chat: &tele.Chat{ID: cfg.ChatID}, log: log}, nil
}

// Send implements transport.Sender. Long messages are split on newline
// boundaries; urgent notifications ring, normal ones are delivered silently.
func (s *Sender) Send(ctx context.Context, n transport.Notification) error {
	for _, chunk := range splitText(formatText(n), textLimit) {
		if ctx != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}
		opt := &tele.SendOptions{
			DisableNotification: n.Priority != transport.PriorityUrgent,
		}
		if _, err := s.bot.Send(s.chat, chunk, opt); err != nil {
			return err
		}
	}
	return nil
}

func formatText(n transport.Notification) string {
	var b strings.Builder
	if t := strings.TrimSpace(n.Title); t != "" {
		b.WriteString(t)
		b.WriteString("\n")
	}
	b.WriteString(n.Message)
	return b.String()
}

// splitText splits long messages into chunks Telegram accepts, preferring
// newline boundaries so chunks stay readable.
func splitText(s string, limit int) []string {
	if limit <= 0 {
		limit = textLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := start + limit
		if end > len(rs) {
			end = len(rs)
		}
		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
		}
		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
