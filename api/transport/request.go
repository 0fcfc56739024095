package transport

// CompleteTaskRequest marks a task done. Comment is optional.
type CompleteTaskRequest struct {
	Hours   *float64 `json:"hours"`
	Comment *string  `json:"comment"`
}

// ExtendTaskRequest moves a deadline. Deadline and time accept the same
// formats as the chat dialogue; an empty time clears it.
type ExtendTaskRequest struct {
	Deadline string `json:"deadline"`
	Time     string `json:"time"`
}

// UserIDHeader carries the authenticated Telegram user id from the auth
// middleware to the task handlers.
const UserIDHeader = "X-User-ID"
