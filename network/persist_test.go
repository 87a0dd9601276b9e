package network

import (
	"errors"
	"testing"
)

type memoryItems map[string][]byte

func (m memoryItems) LoadItem(key string) ([]byte, error) { return m[key], nil }

func (m memoryItems) SaveItem(key string, data []byte) error {
	m[key] = data
	return nil
}

type brokenItems struct{}

func (brokenItems) LoadItem(string) ([]byte, error) { return nil, errors.New("disk gone") }

func (brokenItems) SaveItem(string, []byte) error { return errors.New("disk gone") }

func TestSessionStoreRoundTrip(t *testing.T) {
	items := memoryItems{}
	store := NewSessionStore(items)

	if tok, err := store.Token("ws://a/ws"); err != nil || tok != "" {
		t.Fatalf("empty store = %q,%v", tok, err)
	}
	if err := store.Save(SavedSession{Server: "ws://a/ws", ReconnectToken: "abc", PlayerName: "ann"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if tok, _ := store.Token("ws://a/ws"); tok != "abc" {
		t.Fatalf("token = %q", tok)
	}
	if tok, _ := store.Token("ws://b/ws"); tok != "" {
		t.Fatalf("token for another server = %q", tok)
	}

	if err := store.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if tok, _ := store.Token("ws://a/ws"); tok != "" {
		t.Fatalf("token after clear = %q", tok)
	}
}

func TestSessionStoreErrorsAndNil(t *testing.T) {
	if _, err := NewSessionStore(brokenItems{}).Token("x"); err == nil {
		t.Fatalf("expected load error")
	}
	if err := NewSessionStore(brokenItems{}).Save(SavedSession{}); err == nil {
		t.Fatalf("expected save error")
	}

	var none *SessionStore
	if tok, err := none.Token("x"); tok != "" || err != nil {
		t.Fatalf("nil store token = %q,%v", tok, err)
	}
	if err := none.Save(SavedSession{}); err != nil {
		t.Fatalf("nil store save: %v", err)
	}
}

func TestSessionStoreRejectsGarbage(t *testing.T) {
	store := NewSessionStore(memoryItems{sessionItem: []byte("{not json")})
	if _, err := store.Token("x"); err == nil {
		t.Fatalf("expected parse error")
	}
}
