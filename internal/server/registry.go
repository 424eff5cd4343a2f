// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Chat License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package server

import (
	"errors"
	"sync"
)

// Erros de validação de nome. Mapeiam 1:1 para os packets de falha
// NAME_CANNOT_BE_BLANK e NAME_CANNOT_BE_DUPLICATED.
var (
	ErrNameBlank      = errors.New("server: name is blank")
	ErrNameDuplicated = errors.New("server: name already in use")
)

// Registry é o mapa global de sessões ativas, indexado pelo id do client.
// É o único dado mutável compartilhado entre sessões; um único lock
// coarse-grained protege o mapa E os nomes das sessões: unicidade de nome
// só pode ser verificada e afirmada sob o mesmo lock que protege a troca
// de nome.
//
// Membership muda apenas em connect/disconnect/rename, então a contenção
// aqui é baixa; um esquema mais elaborado não se justifica.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry cria um Registry vazio.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
	}
}

// Add insere a sessão sob o seu id. Chamado logo após o accept.
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	r.sessions[s.id] = s
	r.mu.Unlock()
}

// Remove retira a sessão do registry. Retorna false se o id já não
// estava presente (cleanup duplicado).
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	return true
}

// Lookup retorna a sessão com o id dado, ou nil.
func (r *Registry) Lookup(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[id]
}

// FindByName retorna a sessão registrada com exatamente esse nome, ou nil.
// Sessões sem nome nunca são encontradas.
func (r *Registry) FindByName(name string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.name != "" && s.name == name {
			return s
		}
	}
	return nil
}

// SnapshotExcept retorna uma lista shallow das sessões ativas, exceto a de
// exceptID. A lista é segura para iterar sem o lock: as referências
// permanecem válidas e os enqueues passam pela fila de cada conexão.
func (r *Registry) SnapshotExcept(exceptID string) []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		if id == exceptID {
			continue
		}
		out = append(out, s)
	}
	return out
}

// NameExistsOther reporta se alguma sessão diferente de exceptID já usa o
// nome exato.
func (r *Registry) NameExistsOther(name, exceptID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nameExistsOtherLocked(name, exceptID)
}

func (r *Registry) nameExistsOtherLocked(name, exceptID string) bool {
	for id, s := range r.sessions {
		if id == exceptID {
			continue
		}
		if s.name != "" && s.name == name {
			return true
		}
	}
	return false
}

// SetName valida e grava o nome da sessão numa operação atômica sob o
// lock. Retorna o nome anterior. name já deve chegar trimado; a validação
// de blank acontece antes, no handler.
func (r *Registry) SetName(s *Session, name string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.nameExistsOtherLocked(name, s.id) {
		return "", ErrNameDuplicated
	}
	old := s.name
	s.name = name
	return old, nil
}

// NameOf retorna o nome atual da sessão ("" = não registrada).
// O campo é guardado pelo lock do registry.
func (r *Registry) NameOf(s *Session) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return s.name
}

// Count retorna o número de sessões ativas.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// NamedCount retorna o número de sessões com nome registrado.
func (r *Registry) NamedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.sessions {
		if s.name != "" {
			n++
		}
	}
	return n
}
