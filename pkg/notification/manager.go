// Package notification sends connection status alerts to Telegram chats.
package notification

import (
	"context"
	"fmt"
	"sort"
	"time"

	"racedirector/pkg/logging"
	"racedirector/pkg/metrics"
	"racedirector/pkg/model"
	"racedirector/pkg/settings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	"github.com/nikoksr/notify"
	"github.com/nikoksr/notify/service/telegram"
	"github.com/pkg/errors"
)

const (
	Subject = "racedirector"
	// pending alerts beyond this are dropped rather than blocking the caller
	queueSize = 16
)

type Lister interface {
	ListSubscribers(ctx context.Context, status model.ConnectionStatus) ([]settings.Subscriber, error)
}

type Sender interface {
	Send(ctx context.Context, subject, message string, chatIDs []int64) error
}

type telegramSender struct {
	bot *tgbotapi.BotAPI
}

// NewTelegramSender authenticates against the Bot API with token.
func NewTelegramSender(token string) (Sender, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, errors.Wrap(err, "telegram login")
	}
	logging.Info().Str("bot", bot.Self.UserName).Msg("telegram bot authorized")
	return &telegramSender{bot: bot}, nil
}

func (s *telegramSender) Send(ctx context.Context, subject, message string, chatIDs []int64) error {
	tg := &telegram.Telegram{}
	tg.SetClient(s.bot)
	tg.AddReceivers(chatIDs...)
	return notify.NewWithServices(tg).Send(ctx, subject, message)
}

type event struct {
	status   model.ConnectionStatus
	endpoint string
	at       time.Time
}

// Manager turns status transitions into alerts. Notify never blocks; sending
// happens on the Serve goroutine.
type Manager struct {
	sender   Sender
	lister   Lister
	static   []int64
	endpoint func() string
	metrics  *metrics.Manager
	events   chan event
	last     model.ConnectionStatus
}

type Option func(*Manager)

// WithChatIDs adds chats that always get ERROR and CONNECTED alerts.
func WithChatIDs(ids ...int64) Option {
	return func(m *Manager) {
		m.static = append(m.static, ids...)
	}
}

func WithLister(l Lister) Option {
	return func(m *Manager) {
		m.lister = l
	}
}

// WithEndpoint resolves the endpoint for alerts queued without one. It runs on
// the Serve goroutine, so it may take locks the notifier's callers hold.
func WithEndpoint(fn func() string) Option {
	return func(m *Manager) {
		m.endpoint = fn
	}
}

func WithMetrics(mm *metrics.Manager) Option {
	return func(m *Manager) {
		m.metrics = mm
	}
}

func NewManager(sender Sender, opts ...Option) *Manager {
	m := &Manager{
		sender: sender,
		events: make(chan event, queueSize),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Notify queues an alert for status. Safe to call from connection callbacks.
func (m *Manager) Notify(status model.ConnectionStatus, endpoint string) {
	select {
	case m.events <- event{status: status, endpoint: endpoint, at: time.Now()}:
	default:
		m.metrics.RecordNotification("dropped")
		logging.Warn().Str("status", string(status)).Msg("notification queue full, alert dropped")
	}
}

// Serve delivers queued alerts until ctx is done.
func (m *Manager) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-m.events:
			m.handle(ctx, e)
		}
	}
}

func (m *Manager) handle(ctx context.Context, e event) {
	if e.status == m.last {
		return
	}
	recipients, err := m.recipients(ctx, e.status)
	if err != nil {
		logging.Error().Err(err).Msg("listing alert subscribers")
		return
	}
	if len(recipients) == 0 {
		return
	}
	m.last = e.status
	if e.endpoint == "" && m.endpoint != nil {
		e.endpoint = m.endpoint()
	}

	logging.Info().Str("status", string(e.status)).Int("chats", len(recipients)).Msg("sending status alert")
	if err := m.sender.Send(ctx, Subject, Message(e.status, e.endpoint, e.at), recipients); err != nil {
		m.metrics.RecordNotification("failed")
		logging.Error().Err(err).Msg("sending status alert")
		return
	}
	m.metrics.RecordNotification("sent")
}

func (m *Manager) recipients(ctx context.Context, status model.ConnectionStatus) ([]int64, error) {
	seen := map[int64]bool{}
	if status == model.Error || status == model.Connected {
		for _, id := range m.static {
			seen[id] = true
		}
	}
	if m.lister != nil {
		subs, err := m.lister.ListSubscribers(ctx, status)
		if err != nil {
			return nil, err
		}
		for _, s := range subs {
			seen[s.ChatID] = true
		}
	}
	ids := make([]int64, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func Message(status model.ConnectionStatus, endpoint string, at time.Time) string {
	var text string
	switch status {
	case model.Connected:
		text = "🟢 Connected to the simulator"
	case model.Error:
		text = "🔴 Lost the simulator connection"
	case model.Disconnected:
		text = "⚪ Disconnected from the simulator"
	default:
		text = fmt.Sprintf("Simulator connection is %s", status)
	}
	return fmt.Sprintf("%s\n%s\n%s", text, endpoint, at.Format("15:04:05"))
}
