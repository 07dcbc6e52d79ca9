package bot

import (
	"context"
	"fmt"

	tele "gopkg.in/telebot.v3"
)

type Sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// TelegramChannel posts alert notifications to one operator chat. Every
// user's alerts land in the same chat, so the text never carries the
// subscriber's address.
type TelegramChannel struct {
	sender Sender
	chatID int64
}

func NewTelegramChannel(sender Sender, chatID int64) *TelegramChannel {
	return &TelegramChannel{sender: sender, chatID: chatID}
}

func (*TelegramChannel) Name() string { return "telegram" }

func (t *TelegramChannel) Send(ctx context.Context, _, subject, body string) (bool, error) {
	if t.sender == nil || t.chatID == 0 {
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	text := fmt.Sprintf("%s\n\n%s", subject, body)
	if _, err := t.sender.Send(tele.ChatID(t.chatID), text); err != nil {
		return false, fmt.Errorf("telegram send to %d: %w", t.chatID, err)
	}
	return true, nil
}
