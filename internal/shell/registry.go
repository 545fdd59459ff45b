package shell

import "sync"

// Registry hands out one Interpreter per user, so each user keeps their
// own working directory across exec requests.
type Registry struct {
	mu      sync.Mutex
	history HistoryStore
	users   map[string]*Interpreter
}

// NewRegistry creates a Registry backed by the given history store.
func NewRegistry(history HistoryStore) *Registry {
	return &Registry{
		history: history,
		users:   make(map[string]*Interpreter),
	}
}

// Get returns the interpreter for userID, creating it on first use.
func (r *Registry) Get(userID string) *Interpreter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i, ok := r.users[userID]; ok {
		return i
	}
	i := New(userID, r.history)
	r.users[userID] = i
	return i
}

// Remove drops the interpreter for userID.
func (r *Registry) Remove(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.users, userID)
}
