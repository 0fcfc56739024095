package transport

import (
	"strings"

	"github.com/fastygo/taskbot/domain"
)

// PhotoMarker names a photo attachment, which carries no file name.
const PhotoMarker = "фотография"

// TelegramUpdate is the subset of the Bot API Update object the bot reads.
type TelegramUpdate struct {
	UpdateID      int64                  `json:"update_id"`
	Message       *TelegramMessage       `json:"message,omitempty"`
	CallbackQuery *TelegramCallbackQuery `json:"callback_query,omitempty"`
}

type TelegramUser struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

// FullName joins first and last name the way Telegram clients show them.
func (u *TelegramUser) FullName() string {
	if u == nil {
		return ""
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

type TelegramChat struct {
	ID    int64  `json:"id"`
	Type  string `json:"type,omitempty"`
	Title string `json:"title,omitempty"`
}

type TelegramDocument struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name,omitempty"`
}

type TelegramPhotoSize struct {
	FileID string `json:"file_id"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// TelegramMessageOrigin describes where a forwarded message came from.
type TelegramMessageOrigin struct {
	Type           string        `json:"type"`
	SenderUser     *TelegramUser `json:"sender_user,omitempty"`
	SenderUserName string        `json:"sender_user_name,omitempty"`
	Chat           *TelegramChat `json:"chat,omitempty"`
}

type TelegramMessage struct {
	MessageID         int64                  `json:"message_id"`
	From              *TelegramUser          `json:"from,omitempty"`
	Chat              TelegramChat           `json:"chat"`
	Text              *string                `json:"text,omitempty"`
	Caption           *string                `json:"caption,omitempty"`
	Document          *TelegramDocument      `json:"document,omitempty"`
	Photo             []TelegramPhotoSize    `json:"photo,omitempty"`
	ForwardFrom       *TelegramUser          `json:"forward_from,omitempty"`
	ForwardSenderName string                 `json:"forward_sender_name,omitempty"`
	ForwardOrigin     *TelegramMessageOrigin `json:"forward_origin,omitempty"`
}

type TelegramCallbackQuery struct {
	ID      string           `json:"id"`
	From    TelegramUser     `json:"from"`
	Message *TelegramMessage `json:"message,omitempty"`
	Data    string           `json:"data"`
}

// ToDomain maps a Bot API update to a transport-neutral update. Updates the
// bot does not handle report false.
func (u TelegramUpdate) ToDomain() (domain.Update, bool) {
	switch {
	case u.Message != nil:
		return domain.Update{ID: u.UpdateID, Message: u.Message.toInbound()}, true
	case u.CallbackQuery != nil:
		cb := u.CallbackQuery
		chatID := cb.From.ID
		if cb.Message != nil {
			chatID = cb.Message.Chat.ID
		}
		return domain.Update{ID: u.UpdateID, Callback: &domain.Callback{
			ID:     cb.ID,
			UserID: cb.From.ID,
			ChatID: chatID,
			Data:   cb.Data,
		}}, true
	}
	return domain.Update{}, false
}

func (m *TelegramMessage) toInbound() *domain.Inbound {
	in := &domain.Inbound{
		UserID:        m.Chat.ID,
		ChatID:        m.Chat.ID,
		Attachment:    m.attachment(),
		ForwardedFrom: m.forwardedFrom(),
	}
	if m.From != nil {
		in.UserID = m.From.ID
	}
	switch {
	case m.Text != nil:
		in.Text = m.Text
	case m.Caption != nil:
		in.Text = m.Caption
	}
	return in
}

func (m *TelegramMessage) attachment() string {
	switch {
	case m.Document != nil:
		if m.Document.FileName != "" {
			return m.Document.FileName
		}
		return "документ"
	case len(m.Photo) > 0:
		return PhotoMarker
	}
	return ""
}

func (m *TelegramMessage) forwardedFrom() string {
	if name := m.ForwardFrom.FullName(); name != "" {
		return name
	}
	if m.ForwardSenderName != "" {
		return m.ForwardSenderName
	}
	if o := m.ForwardOrigin; o != nil {
		if o.SenderUserName != "" {
			return o.SenderUserName
		}
		if name := o.SenderUser.FullName(); name != "" {
			return name
		}
		if o.Chat != nil {
			return o.Chat.Title
		}
	}
	return ""
}

// TelegramInlineButton is one button of an inline keyboard.
type TelegramInlineButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

type TelegramInlineKeyboard struct {
	InlineKeyboard [][]TelegramInlineButton `json:"inline_keyboard"`
}

type TelegramKeyboardButton struct {
	Text string `json:"text"`
}

type TelegramReplyKeyboard struct {
	Keyboard       [][]TelegramKeyboardButton `json:"keyboard"`
	ResizeKeyboard bool                       `json:"resize_keyboard"`
}

// TelegramSendMessage is the sendMessage request body.
type TelegramSendMessage struct {
	ChatID      int64       `json:"chat_id"`
	Text        string      `json:"text"`
	ParseMode   string      `json:"parse_mode,omitempty"`
	ReplyMarkup interface{} `json:"reply_markup,omitempty"`
}

// NewSendMessage renders a reply with HTML formatting. Inline buttons take
// precedence over a reply keyboard.
func NewSendMessage(reply domain.Reply) TelegramSendMessage {
	msg := TelegramSendMessage{ChatID: reply.ChatID, Text: reply.Text, ParseMode: "HTML"}
	switch {
	case len(reply.Buttons) > 0:
		rows := make([][]TelegramInlineButton, 0, len(reply.Buttons))
		for _, row := range reply.Buttons {
			buttons := make([]TelegramInlineButton, 0, len(row))
			for _, b := range row {
				buttons = append(buttons, TelegramInlineButton{Text: b.Text, CallbackData: b.Data})
			}
			rows = append(rows, buttons)
		}
		msg.ReplyMarkup = TelegramInlineKeyboard{InlineKeyboard: rows}
	case len(reply.Keyboard) > 0:
		rows := make([][]TelegramKeyboardButton, 0, len(reply.Keyboard))
		for _, row := range reply.Keyboard {
			buttons := make([]TelegramKeyboardButton, 0, len(row))
			for _, label := range row {
				buttons = append(buttons, TelegramKeyboardButton{Text: label})
			}
			rows = append(rows, buttons)
		}
		msg.ReplyMarkup = TelegramReplyKeyboard{Keyboard: rows, ResizeKeyboard: true}
	}
	return msg
}

// TelegramResponse is the envelope every Bot API method returns.
type TelegramResponse[T any] struct {
	OK          bool   `json:"ok"`
	Result      T      `json:"result"`
	Description string `json:"description,omitempty"`
	ErrorCode   int    `json:"error_code,omitempty"`
}
