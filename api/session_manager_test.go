package api

import "testing"

func TestCreateSessionDefaultsRAMSize(t *testing.T) {
	sm := NewSessionManager(nil)

	session, err := sm.CreateSession(SessionCreateRequest{})
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if session.ID == "" {
		t.Error("expected a non-empty session ID")
	}
	if session.TempDir == "" {
		t.Error("expected a temp dir when FSRoot is not supplied")
	}

	if _, err := sm.GetSession(session.ID); err != nil {
		t.Errorf("GetSession failed for freshly created session: %v", err)
	}
}

func TestCreateSessionExplicitFSRootSkipsTempDir(t *testing.T) {
	sm := NewSessionManager(nil)

	session, err := sm.CreateSession(SessionCreateRequest{FSRoot: "/tmp"})
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if session.TempDir != "" {
		t.Errorf("expected no temp dir when FSRoot is explicit, got %q", session.TempDir)
	}
	if got := session.FSRootFor(""); got != "" {
		t.Errorf("FSRootFor with no override and no temp dir should be empty, got %q", got)
	}
	if got := session.FSRootFor("/custom"); got != "/custom" {
		t.Errorf("FSRootFor should prefer the explicit override, got %q", got)
	}
}

func TestDestroySessionRemovesIt(t *testing.T) {
	sm := NewSessionManager(nil)

	session, err := sm.CreateSession(SessionCreateRequest{})
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	if err := sm.DestroySession(session.ID); err != nil {
		t.Fatalf("DestroySession failed: %v", err)
	}

	if _, err := sm.GetSession(session.ID); err != ErrSessionNotFound {
		t.Errorf("expected ErrSessionNotFound after destroy, got %v", err)
	}
}

func TestDestroyUnknownSession(t *testing.T) {
	sm := NewSessionManager(nil)

	if err := sm.DestroySession("does-not-exist"); err != ErrSessionNotFound {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestSessionCountAndList(t *testing.T) {
	sm := NewSessionManager(nil)

	if sm.Count() != 0 {
		t.Errorf("expected 0 sessions initially, got %d", sm.Count())
	}

	a, err := sm.CreateSession(SessionCreateRequest{})
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	b, err := sm.CreateSession(SessionCreateRequest{})
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	if sm.Count() != 2 {
		t.Errorf("expected 2 sessions, got %d", sm.Count())
	}

	ids := sm.ListSessions()
	if len(ids) != 2 {
		t.Fatalf("expected 2 session IDs, got %d", len(ids))
	}
	seen := map[string]bool{a.ID: false, b.ID: false}
	for _, id := range ids {
		seen[id] = true
	}
	for id, found := range seen {
		if !found {
			t.Errorf("expected session %s in list", id)
		}
	}
}
