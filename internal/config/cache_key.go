package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// SessionJournalKey returns the hash key holding a session's unconfirmed answers
func (r *CacheKeyStruct) SessionJournalKey(sessionID string) string {
	return fmt.Sprintf("proctor:session:%s:journal", sessionID)
}

var CacheKey = NewCacheKeyStruct()
