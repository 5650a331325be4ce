package bridge

import (
	"errors"
	"sync"
)

// ErrCallNotFound is returned for takeover requests against unknown calls.
var ErrCallNotFound = errors.New("bridge: call not found")

// CallInfo is the registry view of a call exposed to operator clients.
// AwaitingOperator flags calls the model handed off that no operator has
// joined yet.
type CallInfo struct {
	CallUUID         string            `json:"call_uuid"`
	CustomParams     map[string]string `json:"custom_params"`
	Mode             string            `json:"mode"`
	AwaitingOperator bool              `json:"awaiting_operator"`
}

// Registry is the process-wide set of active calls. Calls register at
// session start and deregister exactly once at call end.
type Registry struct {
	mu    sync.RWMutex
	calls map[string]*Call
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{calls: make(map[string]*Call)}
}

// Add registers a call under its UUID.
func (r *Registry) Add(c *Call) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[c.UUID] = c
}

// Remove deregisters a call. Removing an unknown UUID is a no-op.
func (r *Registry) Remove(uuid string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.calls, uuid)
}

// Get looks a call up by UUID.
func (r *Registry) Get(uuid string) (*Call, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.calls[uuid]
	return c, ok
}

// List returns a snapshot of the active calls.
func (r *Registry) List() []CallInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]CallInfo, 0, len(r.calls))
	for _, c := range r.calls {
		infos = append(infos, CallInfo{
			CallUUID:         c.UUID,
			CustomParams:     c.CustomParams,
			Mode:             c.Mode().String(),
			AwaitingOperator: c.AwaitingOperator(),
		})
	}
	return infos
}

// RequestTakeover attaches an operator channel to the named call and flips
// it to operator mode.
func (r *Registry) RequestTakeover(uuid string, ch OperatorChannel) (*Call, error) {
	c, ok := r.Get(uuid)
	if !ok {
		return nil, ErrCallNotFound
	}
	if err := c.BeginTakeover(ch); err != nil {
		return nil, err
	}
	return c, nil
}

// EndTakeover returns the named call to AI mode. Unknown UUIDs are ignored;
// the call may have ended while the operator held it.
func (r *Registry) EndTakeover(uuid string) {
	if c, ok := r.Get(uuid); ok {
		c.EndTakeover()
	}
}
