package monitor

import "time"

// Probe is the last observation of one dependency.
type Probe struct {
	Enabled bool   `json:"enabled"`
	Up      bool   `json:"up"`
	Latency string `json:"latency,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Healthy is true for reachable dependencies and for ones the storage driver does not use.
func (p Probe) Healthy() bool {
	return !p.Enabled || p.Up
}

type Status struct {
	Postgres   Probe     `json:"postgres"`
	Redis      Probe     `json:"redis"`
	Buffer     Probe     `json:"buffer"`
	BufferSize int       `json:"buffer_size"`
	LastCheck  time.Time `json:"last_check"`
}

// Online reports whether the task and draft stores accept writes.
// Nothing is online before the first check.
func (s Status) Online() bool {
	return !s.LastCheck.IsZero() && s.Postgres.Healthy() && s.Redis.Healthy()
}
