package dispatch

import (
	tele "gopkg.in/telebot.v4"
)

// ChatType is the subset of Telegram chat types the dispatcher distinguishes.
type ChatType int

const (
	ChatOther ChatType = iota
	ChatPrivate
	ChatGroup
	ChatChannel
)

func (t ChatType) String() string {
	switch t {
	case ChatPrivate:
		return "private"
	case ChatGroup:
		return "group"
	case ChatChannel:
		return "channel"
	default:
		return "other"
	}
}

// Chat identifies where a reply goes.
type Chat struct {
	ID          int64
	Type        ChatType
	DisplayName string
}

// Update is one incoming event. The concrete type is exactly one of
// Message, ChatMemberUpdate, ChannelPost, CallbackQuery or Unrecognized.
type Update interface {
	// Kind names the variant for logs and metrics.
	Kind() string
	isUpdate()
}

// Message is text sent to the bot in a private chat or a group.
type Message struct {
	Chat Chat
	Text string
}

// ChatMemberUpdate reports a change of the bot's own membership in a chat.
type ChatMemberUpdate struct {
	Chat Chat
	// NewStatus is the bot's new membership status, e.g. "member", "administrator", "left".
	NewStatus string
}

// ChannelPost is a post in a channel the bot belongs to.
type ChannelPost struct {
	Chat Chat
	Text string
}

// CallbackQuery is a press on an inline button of a message the bot sent.
type CallbackQuery struct {
	ID        string
	MessageID int
	ChatID    int64
	Data      string
}

// Unrecognized stands for every other Telegram update kind.
type Unrecognized struct{}

func (Message) Kind() string          { return "message" }
func (ChatMemberUpdate) Kind() string { return "chat_member" }
func (ChannelPost) Kind() string      { return "channel_post" }
func (CallbackQuery) Kind() string    { return "callback" }
func (Unrecognized) Kind() string     { return "unrecognized" }

func (Message) isUpdate()          {}
func (ChatMemberUpdate) isUpdate() {}
func (ChannelPost) isUpdate()      {}
func (CallbackQuery) isUpdate()    {}
func (Unrecognized) isUpdate()     {}

// ChatIDOf returns the chat an update belongs to, or 0.
func ChatIDOf(u Update) int64 {
	switch v := u.(type) {
	case Message:
		return v.Chat.ID
	case ChatMemberUpdate:
		return v.Chat.ID
	case ChannelPost:
		return v.Chat.ID
	case CallbackQuery:
		return v.ChatID
	}
	return 0
}

// FromTelegram classifies a raw Bot API update.
func FromTelegram(u tele.Update) Update {
	switch {
	case u.Message != nil:
		return Message{Chat: chatFrom(u.Message.Chat), Text: u.Message.Text}
	case u.MyChatMember != nil:
		upd := ChatMemberUpdate{Chat: chatFrom(u.MyChatMember.Chat)}
		if m := u.MyChatMember.NewChatMember; m != nil {
			upd.NewStatus = string(m.Role)
		}
		return upd
	case u.ChannelPost != nil:
		return ChannelPost{Chat: chatFrom(u.ChannelPost.Chat), Text: u.ChannelPost.Text}
	case u.Callback != nil:
		cb := CallbackQuery{ID: u.Callback.ID, Data: u.Callback.Data}
		if msg := u.Callback.Message; msg != nil {
			cb.MessageID = msg.ID
			if msg.Chat != nil {
				cb.ChatID = msg.Chat.ID
			}
		}
		return cb
	}
	return Unrecognized{}
}

func chatFrom(c *tele.Chat) Chat {
	if c == nil {
		return Chat{}
	}
	out := Chat{ID: c.ID, DisplayName: c.Title}
	switch c.Type {
	case tele.ChatPrivate:
		out.Type = ChatPrivate
		out.DisplayName = c.FirstName
	case tele.ChatGroup, tele.ChatSuperGroup:
		out.Type = ChatGroup
	case tele.ChatChannel, tele.ChatChannelPrivate:
		out.Type = ChatChannel
	}
	return out
}
