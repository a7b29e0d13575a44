package notify

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gregdel/pushover"

	"github.com/marcus-crane/voxpro/events"
	"github.com/marcus-crane/voxpro/metrics"
)

type Level string

const (
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
	LevelError   Level = "error"
)

const (
	SuccessDuration = 3 * time.Second
	ErrorDuration   = 6 * time.Second
)

// Notice is a transient message shown on the console
type Notice struct {
	ID        string    `json:"id"`
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Notifier is what the rest of the engine reports to
type Notifier interface {
	Notify(level Level, message string)
	Alert(title, message string)
}

// Center publishes notices to consoles and escalates alerts to Pushover
// when it's configured. Only the latest notice is kept, a new one
// replaces whatever was showing.
type Center struct {
	publisher events.Publisher
	pushover  *pushover.Pushover
	recipient *pushover.Recipient
	now       func() time.Time

	m       sync.Mutex
	current *Notice
}

func NewCenter(publisher events.Publisher, pushoverToken, pushoverRecipient string) *Center {
	if publisher == nil {
		publisher = events.Discard{}
	}
	c := &Center{publisher: publisher, now: time.Now}
	if pushoverToken != "" && pushoverRecipient != "" {
		c.pushover = pushover.New(pushoverToken)
		c.recipient = pushover.NewRecipient(pushoverRecipient)
	}
	return c
}

func (c *Center) Notify(level Level, message string) {
	now := c.now()
	duration := SuccessDuration
	if level == LevelError {
		duration = ErrorDuration
	}
	notice := Notice{
		ID:        uuid.NewString(),
		Level:     level,
		Message:   message,
		CreatedAt: now,
		ExpiresAt: now.Add(duration),
	}
	c.m.Lock()
	c.current = &notice
	c.m.Unlock()

	metrics.NoticeTotal.WithLabelValues(string(level)).Inc()
	slog.Debug("Notice raised", slog.String("level", string(level)), slog.String("message", message))
	c.publisher.Publish(events.StreamNotices, notice)
}

// Current returns the notice still on screen, if any
func (c *Center) Current() (Notice, bool) {
	c.m.Lock()
	defer c.m.Unlock()
	if c.current == nil || !c.now().Before(c.current.ExpiresAt) {
		return Notice{}, false
	}
	return *c.current, true
}

// Alert raises an error notice and pages the operator
func (c *Center) Alert(title, message string) {
	c.Notify(LevelError, message)
	if c.pushover == nil {
		return
	}
	msg := &pushover.Message{
		Message:    message,
		Title:      title,
		Priority:   pushover.PriorityNormal,
		Timestamp:  c.now().Unix(),
		DeviceName: "Voxpro",
	}
	go func() {
		if _, err := c.pushover.SendMessage(msg, c.recipient); err != nil {
			slog.Error("Failed to send pushover alert", slog.String("title", title), slog.Any("error", err))
		}
	}()
}

// Coverage reports how many of the listed items have a playable URL
func Coverage(n Notifier, have, total int) {
	if total == 0 {
		return
	}
	n.Notify(LevelSuccess, fmt.Sprintf("Media URLs found: %d/%d", have, total))
}

// Discard drops every notice
type Discard struct{}

func (Discard) Notify(Level, string) {}
func (Discard) Alert(string, string) {}
