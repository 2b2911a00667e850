package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// SessionKey returns the store key holding a serialized session record.
func (r *CacheKeyStruct) SessionKey(sessionID string) string {
	return fmt.Sprintf("session:%s", sessionID)
}

// UserSessionsKey returns the store key of a user's session-id index.
func (r *CacheKeyStruct) UserSessionsKey(userID int) string {
	return fmt.Sprintf("user:%d:sessions", userID)
}

// UserExamSessionKey returns the exam pointer key: the id of the user's single EXAM session.
func (r *CacheKeyStruct) UserExamSessionKey(userID int) string {
	return fmt.Sprintf("user:%d:exam_session", userID)
}

// SessionEventsChannel is the Redis PubSub channel lifecycle events are mirrored to.
func (r *CacheKeyStruct) SessionEventsChannel() string {
	return "session:events"
}

var CacheKey = NewCacheKeyStruct()
