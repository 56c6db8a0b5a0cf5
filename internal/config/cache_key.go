package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// StudentLastAttemptKey returns the cache key for the "last test taken" blob of a student
func (r *CacheKeyStruct) StudentLastAttemptKey(studentID int) string {
	return fmt.Sprintf("student:%d:last_attempt", studentID)
}

// AttemptEventsChannel returns the Redis PubSub channel name for attempt events of a paper
func (r *CacheKeyStruct) AttemptEventsChannel(paperID string) string {
	return fmt.Sprintf("attempt:%s:events", paperID)
}

var CacheKey = NewCacheKeyStruct()
