package authkit

import (
	"context"
	"errors"
	"sync"
	"time"
)

var errEmptyTokenID = errors.New("deny_list.empty_token_id")

type memoryDenyList struct {
	mutex   sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemoryDenyList constructs an in-process TokenDenyList.
// Entries are purged once the token they block has expired.
func NewMemoryDenyList() TokenDenyList {
	return &memoryDenyList{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (denyList *memoryDenyList) Deny(ctx context.Context, tokenID string, expiresAt time.Time) error {
	if tokenID == "" {
		return errEmptyTokenID
	}
	denyList.mutex.Lock()
	defer denyList.mutex.Unlock()
	denyList.purgeExpiredLocked()
	if !denyList.now().Before(expiresAt) {
		return nil
	}
	denyList.entries[tokenID] = expiresAt
	return nil
}

func (denyList *memoryDenyList) IsDenied(ctx context.Context, tokenID string) (bool, error) {
	denyList.mutex.Lock()
	defer denyList.mutex.Unlock()
	expiry, ok := denyList.entries[tokenID]
	if !ok {
		return false, nil
	}
	if !denyList.now().Before(expiry) {
		delete(denyList.entries, tokenID)
		return false, nil
	}
	return true, nil
}

func (denyList *memoryDenyList) purgeExpiredLocked() {
	if len(denyList.entries) == 0 {
		return
	}
	now := denyList.now()
	for tokenID, expiry := range denyList.entries {
		if !now.Before(expiry) {
			delete(denyList.entries, tokenID)
		}
	}
}
