package session

import (
	"sync"
	"testing"
	"time"

	"github.com/livetemplate/tinkercalc"
)

func TestStoreBasic(t *testing.T) {
	s := NewStore(time.Minute, 0)
	defer s.Stop()

	if _, err := s.Get("missing"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	sess, err := s.Create()
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sess.ID == "" {
		t.Fatal("expected a session ID")
	}

	sess.Do(func(c *tinkercalc.Calculator) {
		if err := c.Press("7"); err != nil {
			t.Errorf("Press: %v", err)
		}
	})

	got, err := s.Get(sess.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	got.Do(func(c *tinkercalc.Calculator) {
		if cur := c.State().CurrentOperand; cur != "7" {
			t.Errorf("expected calculator state to persist, got %q", cur)
		}
	})
}

func TestStoreSessionsAreIndependent(t *testing.T) {
	s := NewStore(time.Minute, 0)
	defer s.Stop()

	a, _ := s.Create()
	b, _ := s.Create()
	if a.ID == b.ID {
		t.Fatal("expected distinct IDs")
	}

	a.Do(func(c *tinkercalc.Calculator) { _ = c.Press("9") })
	b.Do(func(c *tinkercalc.Calculator) {
		if cur := c.State().CurrentOperand; cur != "0" {
			t.Errorf("session b saw session a's input: %q", cur)
		}
	})
}

func TestStoreTTL(t *testing.T) {
	s := NewStore(50*time.Millisecond, 0)
	defer s.Stop()

	sess, _ := s.Create()
	if _, err := s.Get(sess.ID); err != nil {
		t.Errorf("expected hit immediately after create: %v", err)
	}

	time.Sleep(120 * time.Millisecond)

	if _, err := s.Get(sess.ID); err != ErrNotFound {
		t.Errorf("expected ErrNotFound after TTL expired, got %v", err)
	}
}

func TestStoreMax(t *testing.T) {
	s := NewStore(time.Minute, 2)
	defer s.Stop()

	for i := 0; i < 2; i++ {
		if _, err := s.Create(); err != nil {
			t.Fatalf("Create %d: %v", i, err)
		}
	}
	if _, err := s.Create(); err != ErrFull {
		t.Errorf("expected ErrFull, got %v", err)
	}
}

func TestStoreDeleteAndEvict(t *testing.T) {
	s := NewStore(time.Minute, 0)
	defer s.Stop()

	var mu sync.Mutex
	var evicted []string
	s.OnEvict = func(id string) {
		mu.Lock()
		evicted = append(evicted, id)
		mu.Unlock()
	}

	sess, _ := s.Create()
	if !s.Delete(sess.ID) {
		t.Error("expected Delete to report an existing session")
	}
	if s.Delete(sess.ID) {
		t.Error("expected second Delete to report nothing removed")
	}
	if s.Len() != 0 {
		t.Errorf("expected empty store, got %d", s.Len())
	}

	mu.Lock()
	defer mu.Unlock()
	if len(evicted) != 1 || evicted[0] != sess.ID {
		t.Errorf("unexpected evictions: %v", evicted)
	}
}

func TestStoreCleanup(t *testing.T) {
	s := NewStore(20*time.Millisecond, 0)
	defer s.Stop()

	for i := 0; i < 3; i++ {
		_, _ = s.Create()
	}
	time.Sleep(40 * time.Millisecond)
	s.cleanup()

	if s.Len() != 0 {
		t.Errorf("expected cleanup to drop expired sessions, got %d", s.Len())
	}
}

func TestStopIsIdempotent(t *testing.T) {
	s := NewStore(time.Minute, 0)
	s.Stop()
	s.Stop()
}
