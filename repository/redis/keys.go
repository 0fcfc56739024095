package redis

import "strconv"

// keyspace prefixes per-user keys.
type keyspace string

const (
	draftKeys   keyspace = "draft:"
	sessionKeys keyspace = "action_session:"
)

func (k keyspace) user(userID int64) string {
	return string(k) + strconv.FormatInt(userID, 10)
}
