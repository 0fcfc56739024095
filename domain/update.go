package domain

// Inbound is a chat message reduced to what the bot needs.
type Inbound struct {
	UserID int64
	ChatID int64
	// Text is nil when the message carried neither text nor caption.
	Text          *string
	Attachment    string
	ForwardedFrom string
}

// Callback is a button press on a previously sent message.
type Callback struct {
	ID     string
	UserID int64
	ChatID int64
	Data   string
}

// Update is one inbound event: either a message or a callback.
type Update struct {
	ID       int64
	Message  *Inbound
	Callback *Callback
}

// UserID returns the originating user of the update.
func (u Update) UserID() int64 {
	switch {
	case u.Message != nil:
		return u.Message.UserID
	case u.Callback != nil:
		return u.Callback.UserID
	}
	return 0
}

// ChatID returns the chat the update came from.
func (u Update) ChatID() int64 {
	switch {
	case u.Message != nil:
		return u.Message.ChatID
	case u.Callback != nil:
		return u.Callback.ChatID
	}
	return 0
}

// Button is an inline action offered with a reply.
type Button struct {
	Text string `json:"text"`
	Data string `json:"data"`
}

// Reply is a transport-neutral outbound message.
type Reply struct {
	ChatID   int64      `json:"chat_id"`
	Text     string     `json:"text"`
	Buttons  [][]Button `json:"buttons,omitempty"`
	Keyboard [][]string `json:"keyboard,omitempty"`
}

// Row is a helper for a single keyboard row.
func Row(buttons ...Button) []Button {
	return buttons
}
