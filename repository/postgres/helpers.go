package postgres

import (
	"encoding/json"
	"time"
)

func marshalList(items []string) []byte {
	if items == nil {
		items = []string{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return []byte("[]")
	}
	return b
}

// wallClock formats t for comparison against timestamp-without-zone values.
func wallClock(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}
