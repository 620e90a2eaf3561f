package notification

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"ensemble-signal-engine/internal/events"
)

// NotificationType represents the type of notification
type NotificationType string

const (
	NotifySignal   NotificationType = "signal"
	NotifyHotSwap  NotificationType = "hot_swap"
	NotifyFailover NotificationType = "failover"
	NotifyError    NotificationType = "error"
	NotifyInfo     NotificationType = "info"
)

// Notification represents a notification message
type Notification struct {
	Type      NotificationType
	Title     string
	Message   string
	Symbol    string
	Timestamp time.Time
	Extra     map[string]interface{}
}

// Notifier interface for different notification providers
type Notifier interface {
	Send(notification *Notification) error
	Name() string
	IsEnabled() bool
}

// Manager manages multiple notification providers
type Manager struct {
	notifiers []Notifier
	enabled   bool
}

// NewManager creates a new notification manager
func NewManager() *Manager {
	return &Manager{
		notifiers: make([]Notifier, 0),
		enabled:   true,
	}
}

// AddNotifier adds a notification provider
func (m *Manager) AddNotifier(n Notifier) {
	m.notifiers = append(m.notifiers, n)
}

// Send sends a notification to all enabled providers
func (m *Manager) Send(notification *Notification) error {
	if !m.enabled {
		return nil
	}

	var lastErr error
	for _, n := range m.notifiers {
		if n.IsEnabled() {
			if err := n.Send(notification); err != nil {
				lastErr = err
			}
		}
	}
	return lastErr
}

// SendSignal sends an ensemble signal notification
func (m *Manager) SendSignal(symbol, action string, confidence float64) error {
	emoji := "🟢"
	if action == "SELL" {
		emoji = "🔴"
	} else if action == "HOLD" {
		emoji = "⚪"
	}

	return m.Send(&Notification{
		Type:      NotifySignal,
		Title:     fmt.Sprintf("%s Signal: %s", emoji, symbol),
		Message:   fmt.Sprintf("%s %s\nConfidence: %.2f", action, symbol, confidence),
		Symbol:    symbol,
		Timestamp: time.Now(),
		Extra: map[string]interface{}{
			"action":     action,
			"confidence": confidence,
		},
	})
}

// SendHotSwap sends an agent model replacement notification
func (m *Manager) SendHotSwap(agent, oldVersion, newVersion string) error {
	return m.Send(&Notification{
		Type:      NotifyHotSwap,
		Title:     fmt.Sprintf("🔄 Agent Swapped: %s", agent),
		Message:   fmt.Sprintf("Model %s → %s", oldVersion, newVersion),
		Timestamp: time.Now(),
		Extra: map[string]interface{}{
			"agent":       agent,
			"old_version": oldVersion,
			"new_version": newVersion,
		},
	})
}

// SendFailover sends a transport failover notification
func (m *Manager) SendFailover(from, to, trigger string) error {
	return m.Send(&Notification{
		Type:      NotifyFailover,
		Title:     "⚡ Transport Failover",
		Message:   fmt.Sprintf("%s → %s (%s)", from, to, trigger),
		Timestamp: time.Now(),
		Extra: map[string]interface{}{
			"from":    from,
			"to":      to,
			"trigger": trigger,
		},
	})
}

// SendError sends an error notification
func (m *Manager) SendError(title, message string) error {
	return m.Send(&Notification{
		Type:      NotifyError,
		Title:     fmt.Sprintf("⚠️ %s", title),
		Message:   message,
		Timestamp: time.Now(),
	})
}

// BindBus subscribes the manager to hot-swap and failover events so
// operators hear about degraded agents and transport flips.
func (m *Manager) BindBus(bus *events.EventBus) {
	bus.Subscribe(events.EventAgentHotSwapped, func(e events.Event) {
		agent, _ := e.Data["agent"].(string)
		oldV, _ := e.Data["old_version"].(string)
		newV, _ := e.Data["new_version"].(string)
		m.SendHotSwap(agent, oldV, newV)
	})
	bus.Subscribe(events.EventBridgeFailover, func(e events.Event) {
		from, _ := e.Data["from"].(string)
		to, _ := e.Data["to"].(string)
		trigger, _ := e.Data["trigger"].(string)
		m.SendFailover(from, to, trigger)
	})
}

// =============================================================================
// TELEGRAM NOTIFIER
// =============================================================================

// TelegramNotifier sends notifications via Telegram
type TelegramNotifier struct {
	botToken string
	chatID   string
	enabled  bool
	client   *http.Client
}

// TelegramConfig holds Telegram configuration
type TelegramConfig struct {
	BotToken string
	ChatID   string
	Enabled  bool
}

// NewTelegramNotifier creates a new Telegram notifier
func NewTelegramNotifier(config TelegramConfig) *TelegramNotifier {
	return &TelegramNotifier{
		botToken: config.BotToken,
		chatID:   config.ChatID,
		enabled:  config.Enabled && config.BotToken != "" && config.ChatID != "",
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TelegramNotifier) Name() string {
	return "telegram"
}

func (t *TelegramNotifier) IsEnabled() bool {
	return t.enabled
}

func (t *TelegramNotifier) Send(notification *Notification) error {
	if !t.enabled {
		return nil
	}

	message := fmt.Sprintf("*%s*\n\n%s", notification.Title, notification.Message)

	payload := map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       message,
		"parse_mode": "Markdown",
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.botToken)
	resp, err := t.client.Post(url, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}

	return nil
}

// =============================================================================
// DISCORD NOTIFIER
// =============================================================================

// DiscordNotifier sends notifications via Discord webhook
type DiscordNotifier struct {
	webhookURL string
	enabled    bool
	client     *http.Client
}

// DiscordConfig holds Discord configuration
type DiscordConfig struct {
	WebhookURL string
	Enabled    bool
}

// NewDiscordNotifier creates a new Discord notifier
func NewDiscordNotifier(config DiscordConfig) *DiscordNotifier {
	return &DiscordNotifier{
		webhookURL: config.WebhookURL,
		enabled:    config.Enabled && config.WebhookURL != "",
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (d *DiscordNotifier) Name() string {
	return "discord"
}

func (d *DiscordNotifier) IsEnabled() bool {
	return d.enabled
}

func (d *DiscordNotifier) Send(notification *Notification) error {
	if !d.enabled {
		return nil
	}

	color := 0x00FF00
	if notification.Type == NotifyError || notification.Type == NotifyFailover {
		color = 0xFF0000
	} else if notification.Type == NotifyHotSwap {
		color = 0xFFA500
	}

	embed := map[string]interface{}{
		"title":       notification.Title,
		"description": notification.Message,
		"color":       color,
		"timestamp":   notification.Timestamp.Format(time.RFC3339),
	}

	if notification.Symbol != "" {
		embed["fields"] = []map[string]interface{}{
			{"name": "Symbol", "value": notification.Symbol, "inline": true},
		}
	}

	payload := map[string]interface{}{
		"embeds": []map[string]interface{}{embed},
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal discord payload: %w", err)
	}

	resp, err := d.client.Post(d.webhookURL, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to send discord message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("discord API returned status %d", resp.StatusCode)
	}

	return nil
}
