// Package registry implements the connection registry (C2): the
// concurrent-safe index of live plugin connections, by hub type, by
// connection id, and by auth token.
package registry

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// HubType shards the registry. Only McpServerHub is used today; the type
// is kept extensible for future per-capability channels.
type HubType string

// McpServerHub is the only hub type exercised today.
const McpServerHub HubType = "McpServerHub"

// Connection describes one live plugin connection.
type Connection struct {
	ID            string
	Token         string
	HubType       HubType
	FirstSeen     time.Time
	LastSuccessAt time.Time
}

// Registry tracks live plugin connections. All exported methods are
// concurrency-safe. The zero value is not usable; construct with New.
type Registry struct {
	log *zap.Logger

	mu sync.RWMutex

	// order[hubType] -> ordered slice of connection ids (insertion order),
	// used by GetBest's deterministic rotation.
	order map[HubType][]string
	// conns[hubType][id] -> *Connection
	conns map[HubType]map[string]*Connection

	tokenToConn map[string]string // token -> connection id
	connToToken map[string]string // connection id -> token

	lastSuccessful map[HubType]string // hubType -> connection id
}

// New constructs an empty Registry.
func New(log *zap.Logger) *Registry {
	return &Registry{
		log:            log,
		order:          make(map[HubType][]string),
		conns:          make(map[HubType]map[string]*Connection),
		tokenToConn:    make(map[string]string),
		connToToken:    make(map[string]string),
		lastSuccessful: make(map[HubType]string),
	}
}

// Add inserts a connection. Idempotent: a second insertion of the same id
// is a no-op warning.
func (r *Registry) Add(hubType HubType, connID, token string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conns[hubType] == nil {
		r.conns[hubType] = make(map[string]*Connection)
	}
	if _, exists := r.conns[hubType][connID]; exists {
		if r.log != nil {
			r.log.Warn("connection already registered", zap.String("connection_id", connID))
		}
		return
	}

	r.conns[hubType][connID] = &Connection{
		ID:        connID,
		Token:     token,
		HubType:   hubType,
		FirstSeen: time.Now(),
	}
	r.order[hubType] = append(r.order[hubType], connID)

	if token != "" {
		r.tokenToConn[token] = connID
		r.connToToken[connID] = token
	}
}

// Remove deletes a connection from every index.
func (r *Registry) Remove(hubType HubType, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(hubType, connID)
}

func (r *Registry) removeLocked(hubType HubType, connID string) {
	if m := r.conns[hubType]; m != nil {
		delete(m, connID)
	}
	if order := r.order[hubType]; len(order) > 0 {
		filtered := order[:0]
		for _, id := range order {
			if id != connID {
				filtered = append(filtered, id)
			}
		}
		r.order[hubType] = filtered
	}
	if token, ok := r.connToToken[connID]; ok {
		delete(r.connToToken, connID)
		delete(r.tokenToConn, token)
	}
	if r.lastSuccessful[hubType] == connID {
		delete(r.lastSuccessful, hubType)
	}
}

// GetByToken returns the connection id bound to token, if any.
func (r *Registry) GetByToken(token string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.tokenToConn[token]
	return id, ok
}

// TokenOf returns the token bound to connID, if any.
func (r *Registry) TokenOf(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tok, ok := r.connToToken[connID]
	return tok, ok
}

// GetBest returns a candidate connection for hubType. offset == 0 returns
// the sticky last-successful connection if it is still live; otherwise (or
// for offset != 0) it deterministically rotates through the set ordered by
// insertion time, guaranteeing progress across retries.
func (r *Registry) GetBest(hubType HubType, offset int) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if offset == 0 {
		if id, ok := r.lastSuccessful[hubType]; ok {
			if _, live := r.conns[hubType][id]; live {
				return id, true
			}
		}
	}

	order := r.order[hubType]
	n := len(order)
	if n == 0 {
		return "", false
	}
	idx := offset % n
	if idx < 0 {
		idx += n
	}
	return order[idx], true
}

// MarkSuccess records connID as the sticky preferred connection for
// hubType, per the router's "on success" step.
func (r *Registry) MarkSuccess(hubType HubType, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, live := r.conns[hubType][connID]; live {
		r.lastSuccessful[hubType] = connID
		r.conns[hubType][connID].LastSuccessAt = time.Now()
	}
}

// Connections returns a snapshot of all live connection ids for hubType.
func (r *Registry) Connections(hubType HubType) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	order := r.order[hubType]
	out := make([]string, len(order))
	copy(out, order)
	return out
}

// AllConnections returns a snapshot of every live connection across hub
// types, for diagnostics/metrics.
func (r *Registry) AllConnections() []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Connection
	for _, m := range r.conns {
		for _, c := range m {
			out = append(out, *c)
		}
	}
	return out
}

// Count returns the number of live connections for hubType.
func (r *Registry) Count(hubType HubType) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns[hubType])
}

// EvictOthers removes every connection in hubType except keepID, invoking
// disconnect(id) for each evicted peer. Used by the local strategy to
// enforce single-tenant admission.
func (r *Registry) EvictOthers(hubType HubType, keepID string, disconnect func(id string)) {
	r.mu.Lock()
	var toEvict []string
	for id := range r.conns[hubType] {
		if id != keepID {
			toEvict = append(toEvict, id)
		}
	}
	for _, id := range toEvict {
		r.removeLocked(hubType, id)
	}
	r.mu.Unlock()

	for _, id := range toEvict {
		disconnect(id)
	}
}
