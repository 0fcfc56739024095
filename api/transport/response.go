package transport

import "encoding/json"

// Envelope wraps every REST response, success or error.
type Envelope struct {
	Status string      `json:"status"`
	Code   string      `json:"code,omitempty"`
	Data   interface{} `json:"data,omitempty"`
	Error  interface{} `json:"error,omitempty"`
	Meta   interface{} `json:"meta,omitempty"`
}

// PageMeta describes one page of a task listing.
type PageMeta struct {
	Page    int `json:"page"`
	Pages   int `json:"pages"`
	Total   int `json:"total"`
	PerPage int `json:"per_page"`
}

func NewSuccess(data interface{}, meta interface{}) Envelope {
	return Envelope{Status: "success", Data: data, Meta: meta}
}

// NewPage returns a success envelope carrying items and their page position.
func NewPage(items interface{}, meta PageMeta) Envelope {
	return NewSuccess(items, meta)
}

func NewError(code string, err interface{}, meta interface{}) Envelope {
	return Envelope{Status: "error", Code: code, Error: err, Meta: meta}
}

// String renders the envelope for log fields.
func (e Envelope) String() string {
	out, err := json.Marshal(e)
	if err != nil {
		return "{}"
	}
	return string(out)
}
