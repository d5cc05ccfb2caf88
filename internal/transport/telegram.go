package transport

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramTransport implements Messenger and Poster on the Bot API. A posted
// ad is pinned, and the placement reference is the pinned message ID; the
// placement counts as live while that message stays pinned.
type TelegramTransport struct {
	Bot *tgbotapi.BotAPI
}

func NewTelegramTransport(bot *tgbotapi.BotAPI) *TelegramTransport {
	return &TelegramTransport{Bot: bot}
}

func (t *TelegramTransport) Send(ctx context.Context, userTelegramID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := t.Bot.Send(tgbotapi.NewMessage(userTelegramID, text))
	return err
}

func (t *TelegramTransport) Publish(ctx context.Context, channelTelegramID int64, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	msg, err := t.Bot.Send(tgbotapi.NewMessage(channelTelegramID, text))
	if err != nil {
		return "", fmt.Errorf("post to channel %d: %w", channelTelegramID, err)
	}

	pin := tgbotapi.PinChatMessageConfig{
		ChatID:              channelTelegramID,
		MessageID:           msg.MessageID,
		DisableNotification: true,
	}
	if _, err := t.Bot.Request(pin); err != nil {
		return "", fmt.Errorf("pin message %d in channel %d: %w", msg.MessageID, channelTelegramID, err)
	}

	return strconv.Itoa(msg.MessageID), nil
}

func (t *TelegramTransport) Exists(ctx context.Context, channelTelegramID int64, placementRef string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	messageID, err := strconv.Atoi(placementRef)
	if err != nil {
		return false, fmt.Errorf("invalid placement ref %q: %w", placementRef, err)
	}

	chat, err := t.Bot.GetChat(tgbotapi.ChatInfoConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: channelTelegramID},
	})
	if err != nil {
		return false, err
	}

	return chat.PinnedMessage != nil && chat.PinnedMessage.MessageID == messageID, nil
}

func (t *TelegramTransport) AdminStatus(ctx context.Context, channelTelegramID int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	member, err := t.Bot.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{
			ChatID: channelTelegramID,
			UserID: t.Bot.Self.ID,
		},
	})
	if err != nil {
		return false, err
	}
	return member.IsAdministrator() || member.IsCreator(), nil
}

func (t *TelegramTransport) SubscriberCount(ctx context.Context, channelTelegramID int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return t.Bot.GetChatMembersCount(tgbotapi.ChatMemberCountConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: channelTelegramID},
	})
}

var (
	_ Messenger = (*TelegramTransport)(nil)
	_ Poster    = (*TelegramTransport)(nil)
)
