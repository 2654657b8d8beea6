package channels

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/MKWorldWide/MKronoSphere/internal/broadcast"
)

// Telegram pushes signals to a chat as plain messages. Send-only: this
// channel never polls for updates.
type Telegram struct {
	id     string
	prio   int
	chatID int64
	bot    *tele.Bot
}

func NewTelegram(priority int, token string, chatID int64) (*Telegram, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if chatID == 0 {
		return nil, errors.New("telegram chat id is required")
	}
	b, err := tele.NewBot(tele.Settings{Token: token})
	if err != nil {
		return nil, err
	}
	return &Telegram{id: "telegram", prio: priority, chatID: chatID, bot: b}, nil
}

func (t *Telegram) ID() string      { return t.id }
func (t *Telegram) Priority() int   { return t.prio }
func (t *Telegram) Available() bool { return t.bot != nil }

func (t *Telegram) Broadcast(ctx context.Context, sig *broadcast.Signal) error {
	_ = ctx // telebot carries its own HTTP deadline; the executor races ours.
	ev := sig.Event
	text := fmt.Sprintf("◉ %s\n%s · priority %d\n%s",
		ev.Description, ev.Category, ev.Priority, ev.Timestamp.Format(time.RFC3339))
	if len(ev.Tags) > 0 {
		text += "\n#" + strings.Join(ev.Tags, " #")
	}
	_, err := t.bot.Send(tele.ChatID(t.chatID), text)
	return err
}
