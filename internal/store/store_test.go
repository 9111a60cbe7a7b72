package store

import (
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSessionsAndMessages(t *testing.T) {
	s := newTestStore(t)

	sess, err := s.CreateSession("main", "first chat")
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if sess.ID == "" || sess.AgentID != "main" || sess.Title != "first chat" {
		t.Errorf("unexpected session row: %+v", sess)
	}

	if _, err := s.AppendMessage(sess.ID, "user", "hello"); err != nil {
		t.Fatalf("AppendMessage() error = %v", err)
	}
	if _, err := s.AppendMessage(sess.ID, "agent", "hi there"); err != nil {
		t.Fatalf("AppendMessage() error = %v", err)
	}

	msgs, err := s.Messages(sess.ID, 0)
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != "user" || msgs[0].Content != "hello" {
		t.Errorf("first message = %+v, want user/hello", msgs[0])
	}
	if msgs[1].Role != "agent" || msgs[1].Content != "hi there" {
		t.Errorf("second message = %+v, want agent/hi there", msgs[1])
	}

	sessions, err := s.ListSessions(10)
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != sess.ID {
		t.Errorf("ListSessions() = %+v, want the created session", sessions)
	}
}

func TestMemoryWriteListSearch(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.WriteMemory("the user prefers espresso over filter coffee", "preferences"); err != nil {
		t.Fatalf("WriteMemory() error = %v", err)
	}
	if _, err := s.WriteMemory("meeting with dana moved to thursday", "calendar"); err != nil {
		t.Fatalf("WriteMemory() error = %v", err)
	}

	all, err := s.ListMemory(0)
	if err != nil {
		t.Fatalf("ListMemory() error = %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(all))
	}

	results, err := s.SearchMemory("espresso", 5)
	if err != nil {
		t.Fatalf("SearchMemory() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 search hit, got %d", len(results))
	}
	if results[0].Tags != "preferences" {
		t.Errorf("hit tags = %q, want preferences", results[0].Tags)
	}
	if results[0].Rank >= 0 {
		t.Errorf("bm25 rank should be negative for a match, got %f", results[0].Rank)
	}

	none, err := s.SearchMemory("zeppelin", 5)
	if err != nil {
		t.Fatalf("SearchMemory() error = %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no hits, got %d", len(none))
	}
}

func TestSearchMemoryQuotesInput(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.WriteMemory("quoting is handled", ""); err != nil {
		t.Fatalf("WriteMemory() error = %v", err)
	}

	// FTS5 operators in user input must not produce a syntax error.
	if _, err := s.SearchMemory(`quoting AND "handled`, 5); err != nil {
		t.Errorf("SearchMemory() with operators error = %v", err)
	}

	// Interior quotes are escaped, not passed through to the parser.
	if _, err := s.SearchMemory(`quo"ting`, 5); err != nil {
		t.Errorf("SearchMemory() with interior quote error = %v", err)
	}

	// A blank query matches nothing instead of issuing MATCH ''.
	for _, q := range []string{"", "   ", `"`} {
		hits, err := s.SearchMemory(q, 5)
		if err != nil {
			t.Errorf("SearchMemory(%q) error = %v", q, err)
		}
		if len(hits) != 0 {
			t.Errorf("SearchMemory(%q) = %d hits, want none", q, len(hits))
		}
	}
}

func TestConfigRoundTrip(t *testing.T) {
	s := newTestStore(t)

	if err := s.SetConfigValue("voice.language", "en"); err != nil {
		t.Fatalf("SetConfigValue() error = %v", err)
	}
	if err := s.SetConfigValue("voice.language", "de"); err != nil {
		t.Fatalf("SetConfigValue() upsert error = %v", err)
	}
	if err := s.SetConfigValue("voice.enabled", "true"); err != nil {
		t.Fatalf("SetConfigValue() error = %v", err)
	}

	values, err := s.ConfigValues()
	if err != nil {
		t.Fatalf("ConfigValues() error = %v", err)
	}
	if values["voice.language"] != "de" {
		t.Errorf("voice.language = %q, want de (upserted)", values["voice.language"])
	}
	if values["voice.enabled"] != "true" {
		t.Errorf("voice.enabled = %q, want true", values["voice.enabled"])
	}
}
