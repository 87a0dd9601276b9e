package network

import (
	"encoding/json"
	"fmt"

	"github.com/quasilyte/gdata"
)

const sessionItem = "session"

// ItemStore is the slice of gdata.Manager the client needs.
type ItemStore interface {
	LoadItem(key string) ([]byte, error)
	SaveItem(key string, data []byte) error
}

// SavedSession is what the client keeps on disk to resume after a restart.
type SavedSession struct {
	Server         string `json:"server"`
	ReconnectToken string `json:"reconnectToken"`
	PlayerName     string `json:"playerName"`
}

// SessionStore persists the reconnect token between runs.
type SessionStore struct {
	items ItemStore
}

// OpenSessionStore opens the gdata store for appName.
func OpenSessionStore(appName string) (*SessionStore, error) {
	m, err := gdata.Open(gdata.Config{AppName: appName})
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	return &SessionStore{items: m}, nil
}

// NewSessionStore wraps an existing item store.
func NewSessionStore(items ItemStore) *SessionStore {
	return &SessionStore{items: items}
}

// Token returns the saved reconnect token for server, or "".
func (s *SessionStore) Token(server string) (string, error) {
	if s == nil || s.items == nil {
		return "", nil
	}
	data, err := s.items.LoadItem(sessionItem)
	if err != nil {
		return "", fmt.Errorf("load session: %w", err)
	}
	if len(data) == 0 {
		return "", nil
	}
	var saved SavedSession
	if err := json.Unmarshal(data, &saved); err != nil {
		return "", fmt.Errorf("parse session: %w", err)
	}
	if saved.Server != server {
		return "", nil
	}
	return saved.ReconnectToken, nil
}

// Save records the token handed out by server.
func (s *SessionStore) Save(saved SavedSession) error {
	if s == nil || s.items == nil {
		return nil
	}
	data, err := json.Marshal(saved)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.items.SaveItem(sessionItem, data); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Clear forgets the saved session, used after a clean leave.
func (s *SessionStore) Clear() error {
	if s == nil || s.items == nil {
		return nil
	}
	return s.items.SaveItem(sessionItem, nil)
}
