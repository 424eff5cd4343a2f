// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Chat License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package server

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

func newBareSession(id string) *Session {
	return &Session{id: id}
}

func TestRegistry_AddLookupRemove(t *testing.T) {
	r := NewRegistry()
	s := newBareSession("id-1")

	r.Add(s)
	if got := r.Lookup("id-1"); got != s {
		t.Fatalf("expected lookup to return the session, got %v", got)
	}
	if r.Count() != 1 {
		t.Errorf("expected count 1, got %d", r.Count())
	}

	if !r.Remove("id-1") {
		t.Error("expected first remove to return true")
	}
	if r.Remove("id-1") {
		t.Error("expected second remove to return false")
	}
	if got := r.Lookup("id-1"); got != nil {
		t.Errorf("expected nil after remove, got %v", got)
	}
}

func TestRegistry_SetNameUniqueness(t *testing.T) {
	r := NewRegistry()
	a := newBareSession("id-a")
	b := newBareSession("id-b")
	r.Add(a)
	r.Add(b)

	if _, err := r.SetName(a, "alice"); err != nil {
		t.Fatalf("SetName failed: %v", err)
	}
	if got := r.NameOf(a); got != "alice" {
		t.Errorf("expected name alice, got %q", got)
	}

	if _, err := r.SetName(b, "alice"); !errors.Is(err, ErrNameDuplicated) {
		t.Fatalf("expected ErrNameDuplicated, got %v", err)
	}
	if got := r.NameOf(b); got != "" {
		t.Errorf("expected b unnamed after rejection, got %q", got)
	}

	// Renomear para o próprio nome não conflita consigo mesmo.
	old, err := r.SetName(a, "alice")
	if err != nil {
		t.Fatalf("self-rename failed: %v", err)
	}
	if old != "alice" {
		t.Errorf("expected old name alice, got %q", old)
	}
}

func TestRegistry_FindByName(t *testing.T) {
	r := NewRegistry()
	a := newBareSession("id-a")
	r.Add(a)

	if got := r.FindByName("alice"); got != nil {
		t.Errorf("expected nil for unnamed session, got %v", got)
	}

	r.SetName(a, "alice")
	if got := r.FindByName("alice"); got != a {
		t.Errorf("expected session a, got %v", got)
	}
	// Match é exato, sem normalização.
	if got := r.FindByName("Alice"); got != nil {
		t.Errorf("expected nil for different case, got %v", got)
	}
}

func TestRegistry_SnapshotExcept(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < 5; i++ {
		r.Add(newBareSession(fmt.Sprintf("id-%d", i)))
	}

	snap := r.SnapshotExcept("id-2")
	if len(snap) != 4 {
		t.Fatalf("expected 4 sessions, got %d", len(snap))
	}
	for _, s := range snap {
		if s.id == "id-2" {
			t.Error("snapshot contains the excluded session")
		}
	}

	all := r.SnapshotExcept("")
	if len(all) != 5 {
		t.Errorf("expected 5 sessions, got %d", len(all))
	}
}

func TestRegistry_NameExistsOther(t *testing.T) {
	r := NewRegistry()
	a := newBareSession("id-a")
	r.Add(a)
	r.SetName(a, "alice")

	if !r.NameExistsOther("alice", "id-b") {
		t.Error("expected alice to exist for other id")
	}
	if r.NameExistsOther("alice", "id-a") {
		t.Error("expected alice not to conflict with itself")
	}
	if r.NameExistsOther("bob", "id-a") {
		t.Error("expected bob not to exist")
	}
}

func TestRegistry_NamedCount(t *testing.T) {
	r := NewRegistry()
	a := newBareSession("id-a")
	b := newBareSession("id-b")
	r.Add(a)
	r.Add(b)

	if got := r.NamedCount(); got != 0 {
		t.Errorf("expected 0 named, got %d", got)
	}
	r.SetName(a, "alice")
	if got := r.NamedCount(); got != 1 {
		t.Errorf("expected 1 named, got %d", got)
	}
}

func TestRegistry_ConcurrentRegistration(t *testing.T) {
	r := NewRegistry()
	const n = 50

	sessions := make([]*Session, n)
	for i := range sessions {
		sessions[i] = newBareSession(fmt.Sprintf("id-%d", i))
		r.Add(sessions[i])
	}

	// Todas as goroutines disputam o mesmo nome: exatamente uma vence.
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			if _, err := r.SetName(s, "highlander"); err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(s)
	}
	wg.Wait()

	if winners != 1 {
		t.Fatalf("expected exactly 1 winner, got %d", winners)
	}
	if r.NamedCount() != 1 {
		t.Errorf("expected 1 named session, got %d", r.NamedCount())
	}
}
