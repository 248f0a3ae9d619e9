// Package manager maintains the registry of Agent clients, picks a default
// agent when a caller doesn't name one, and fans control calls out to the
// right underlying connection.
package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ampiolux/lcs-gateway/internal/agent"
	"github.com/ampiolux/lcs-gateway/internal/effect"
	"github.com/ampiolux/lcs-gateway/internal/lcscmd"
	"github.com/ampiolux/lcs-gateway/internal/lcsframe"
	"github.com/ampiolux/lcs-gateway/internal/logging"
	"github.com/ampiolux/lcs-gateway/internal/metrics"
	"github.com/ampiolux/lcs-gateway/internal/push"
	"github.com/ampiolux/lcs-gateway/internal/response"
)

// Registry errors.
var (
	ErrDuplicateID    = errors.New("manager: duplicate agent id")
	ErrUnknownAgent   = errors.New("manager: unknown agent")
	ErrNoDefaultAgent = errors.New("manager: no default agent registered")
)

// entry is one registered agent plus its insertion order, used to find the
// promotion candidate when the default agent is removed.
type entry struct {
	id       string
	name     string
	host     string
	port     int
	client   *agent.Client
	inserted int
}

// AgentInfo is the externally visible shape of one registered agent.
type AgentInfo struct {
	ID    string
	Name  string
	Host  string
	Port  int
	State agent.State
}

// Status is the snapshot returned by GetConnectionStatus.
type Status struct {
	TotalAgents     int
	ConnectedAgents int
	DefaultAgentID  string
	Agents          []AgentInfo
}

// Manager owns the agent registry and the effect engine that runs fades and
// waves against it.
type Manager struct {
	mu             sync.RWMutex
	agents         map[string]*entry
	order          int
	defaultID      string
	requestTimeout time.Duration

	effects *effect.Engine
	hub     *push.Hub
}

// Option configures a Manager at construction.
type Option func(*Manager)

// WithPushHub wires a push.Hub that receives state-change and
// agent-lifecycle notifications.
func WithPushHub(h *push.Hub) Option { return func(m *Manager) { m.hub = h } }

// WithRequestTimeout overrides the per-request deadline applied to newly
// registered agents.
func WithRequestTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.requestTimeout = d
		}
	}
}

// New returns an empty Manager.
func New(opts ...Option) *Manager {
	m := &Manager{
		agents:  make(map[string]*entry),
		effects: effect.NewEngine(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// AddAgent registers a new Agent client under id and starts connecting to
// host:port. An agent added while no default is set (the first one, or the
// first after the registry was emptied) becomes the default.
func (m *Manager) AddAgent(id, host string, port int, name string) error {
	m.mu.Lock()
	if _, exists := m.agents[id]; exists {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	if name == "" {
		name = id
	}
	opts := []agent.Option{
		WithManagerStatusListener(m, id),
	}
	if m.requestTimeout > 0 {
		opts = append(opts, agent.WithRequestTimeout(m.requestTimeout))
	}
	c := agent.New(id, host, port, opts...)
	e := &entry{id: id, name: name, host: host, port: port, client: c, inserted: m.order}
	m.order++
	m.agents[id] = e
	if m.defaultID == "" {
		m.defaultID = id
	}
	m.mu.Unlock()

	c.Connect()
	metrics.SetAgentsRegistered(m.Count())
	m.notifyAgentsUpdated()
	return nil
}

// WithManagerStatusListener wires an agent.Client's status callback to emit
// agents_updated push events on every transition.
func WithManagerStatusListener(m *Manager, id string) agent.Option {
	return agent.WithStatusListener(func(ev agent.StatusEvent) {
		m.notifyAgentsUpdated()
		if ev.Err != nil {
			logging.L().Warn("agent_status", "agent_id", id, "state", ev.State.String(), "error", ev.Err)
		}
	})
}

// RemoveAgent disconnects and deletes id, promoting the next-inserted
// surviving agent to default if id was the default.
func (m *Manager) RemoveAgent(id string) error {
	m.mu.Lock()
	e, ok := m.agents[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownAgent, id)
	}
	delete(m.agents, id)
	if m.defaultID == id {
		m.defaultID = m.nextDefaultLocked()
	}
	m.mu.Unlock()

	e.client.Disconnect()
	metrics.SetAgentsRegistered(m.Count())
	m.notifyAgentsUpdated()
	return nil
}

// nextDefaultLocked returns the surviving agent with the smallest insertion
// order, or "" if none remain. Caller must hold m.mu.
func (m *Manager) nextDefaultLocked() string {
	best := ""
	bestOrder := -1
	for _, e := range m.agents {
		if bestOrder == -1 || e.inserted < bestOrder {
			best = e.id
			bestOrder = e.inserted
		}
	}
	return best
}

// SetDefaultAgent makes id the default agent; fails if id isn't registered.
func (m *Manager) SetDefaultAgent(id string) error {
	m.mu.Lock()
	if _, ok := m.agents[id]; !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownAgent, id)
	}
	m.defaultID = id
	m.mu.Unlock()
	m.notifyAgentsUpdated()
	return nil
}

// ReconnectAgent forces id to drop and re-establish its connection.
func (m *Manager) ReconnectAgent(id string) error {
	e, err := m.lookup(id)
	if err != nil {
		return err
	}
	e.client.Disconnect()
	// Client.Disconnect tears down the goroutines started by Connect; a
	// fresh client picks the reconnect loop back up immediately.
	m.mu.Lock()
	opts := []agent.Option{WithManagerStatusListener(m, id)}
	if m.requestTimeout > 0 {
		opts = append(opts, agent.WithRequestTimeout(m.requestTimeout))
	}
	fresh := agent.New(e.id, e.host, e.port, opts...)
	e.client = fresh
	m.mu.Unlock()
	fresh.Connect()
	m.notifyAgentsUpdated()
	return nil
}

// Count returns the number of registered agents.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.agents)
}

// GetConnectionStatus returns a snapshot of the whole registry.
func (m *Manager) GetConnectionStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := Status{TotalAgents: len(m.agents), DefaultAgentID: m.defaultID}
	st.Agents = make([]AgentInfo, 0, len(m.agents))
	for _, e := range m.agents {
		info := AgentInfo{ID: e.id, Name: e.name, Host: e.host, Port: e.port, State: e.client.State()}
		if info.State == agent.StateConnected {
			st.ConnectedAgents++
		}
		st.Agents = append(st.Agents, info)
	}
	return st
}

func (m *Manager) lookup(id string) (*entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id == "" {
		id = m.defaultID
	}
	if id == "" {
		return nil, ErrNoDefaultAgent
	}
	e, ok := m.agents[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAgent, id)
	}
	return e, nil
}

// resolvedID returns the agent id actually used for a call (helps callers
// stamp state-change events correctly when "" means "default").
func (m *Manager) resolvedID(id string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id == "" {
		return m.defaultID
	}
	return id
}

func (m *Manager) notifyStateChanged(agentID string, payload interface{}) {
	if m.hub == nil {
		return
	}
	m.hub.Broadcast(push.Event{Type: push.EventStateChanged, AgentID: agentID, Payload: payload})
}

func (m *Manager) notifyAgentsUpdated() {
	if m.hub == nil {
		return
	}
	m.hub.Broadcast(push.Event{Type: push.EventAgentsUpdated, Payload: m.GetConnectionStatus()})
}

// --- C3 proxy methods -------------------------------------------------

// GetLampBrightness reads lamp brightness levels from the named (or
// default) agent.
func (m *Manager) GetLampBrightness(ctx context.Context, agentID string, devType lcsframe.DeviceType, master, cu int) (response.Typed, error) {
	frame, err := lcscmd.GetLampBrightness(devType, master, cu)
	if err != nil {
		return response.Typed{}, err
	}
	return m.send(ctx, agentID, frame)
}

// GetColorTemperature reads color temperature from the named (or default)
// agent.
func (m *Manager) GetColorTemperature(ctx context.Context, agentID string, master, cu int) (response.Typed, error) {
	frame, err := lcscmd.GetColorTemperature(master, cu)
	if err != nil {
		return response.Typed{}, err
	}
	return m.send(ctx, agentID, frame)
}

// DimLamp sets one lamp's brightness and emits a state-change event on
// success.
func (m *Manager) DimLamp(ctx context.Context, agentID string, master, cu, lampNo, brightness int) (response.Typed, error) {
	frame, err := lcscmd.DimLamp(master, cu, lampNo, brightness)
	if err != nil {
		return response.Typed{}, err
	}
	resp, err := m.send(ctx, agentID, frame)
	if err == nil {
		m.notifyStateChanged(m.resolvedID(agentID), map[string]interface{}{
			"op": "dimLamp", "master": master, "cu": cu, "lampNo": lampNo, "brightness": brightness,
		})
	}
	return resp, err
}

// BlockLampControl dims a list of lamps in one command.
func (m *Manager) BlockLampControl(ctx context.Context, agentID string, master, cu int, lamps []int, brightness int) (response.Typed, error) {
	frame, err := lcscmd.BlockLampControl(master, cu, lamps, brightness)
	if err != nil {
		return response.Typed{}, err
	}
	resp, err := m.send(ctx, agentID, frame)
	if err == nil {
		m.notifyStateChanged(m.resolvedID(agentID), map[string]interface{}{
			"op": "blockLampControl", "master": master, "cu": cu, "lamps": lamps, "brightness": brightness,
		})
	}
	return resp, err
}

// BlockColorTemp sets color temperature across a list of lamps.
func (m *Manager) BlockColorTemp(ctx context.Context, agentID string, master, cu int, lamps []int, colorTemp int) (response.Typed, error) {
	frame, err := lcscmd.BlockColorTemp(master, cu, lamps, colorTemp)
	if err != nil {
		return response.Typed{}, err
	}
	resp, err := m.send(ctx, agentID, frame)
	if err == nil {
		m.notifyStateChanged(m.resolvedID(agentID), map[string]interface{}{
			"op": "blockColorTemp", "master": master, "cu": cu, "lamps": lamps, "colorTemp": colorTemp,
		})
	}
	return resp, err
}

// ExecuteScene triggers a preset scene.
func (m *Manager) ExecuteScene(ctx context.Context, agentID string, master, cu, sceneNo, fadeTime int) (response.Typed, error) {
	frame, err := lcscmd.ExecuteScene(master, cu, sceneNo, fadeTime)
	if err != nil {
		return response.Typed{}, err
	}
	resp, err := m.send(ctx, agentID, frame)
	if err == nil {
		m.notifyStateChanged(m.resolvedID(agentID), map[string]interface{}{
			"op": "executeScene", "master": master, "cu": cu, "sceneNo": sceneNo, "fadeTime": fadeTime,
		})
	}
	return resp, err
}

// AllLamps sets every lamp on a control unit to the same brightness.
func (m *Manager) AllLamps(ctx context.Context, agentID string, master, cu, brightness int) (response.Typed, error) {
	frame, err := lcscmd.AllLamps(master, cu, brightness)
	if err != nil {
		return response.Typed{}, err
	}
	resp, err := m.send(ctx, agentID, frame)
	if err == nil {
		m.notifyStateChanged(m.resolvedID(agentID), map[string]interface{}{
			"op": "allLamps", "master": master, "cu": cu, "brightness": brightness,
		})
	}
	return resp, err
}

// GetDeviceName broadcasts a device-name query on the named (or default)
// agent.
func (m *Manager) GetDeviceName(ctx context.Context, agentID string) (response.Typed, error) {
	frame, err := lcscmd.GetDeviceName()
	if err != nil {
		return response.Typed{}, err
	}
	return m.send(ctx, agentID, frame)
}

// Fade runs a fade effect on the named (or default) agent in the
// background, emitting state-change events as it completes or fails. The
// effect is detached from ctx's lifetime: a request context would be
// cancelled the instant the caller's handler returns, killing the effect
// before its first step.
func (m *Manager) Fade(ctx context.Context, agentID string, master, cu, lampNo, start, end, durationSec int) error {
	e, err := m.lookup(agentID)
	if err != nil {
		return err
	}
	resolved := e.id
	go func() {
		err := m.effects.Fade(context.Background(), e.client, resolved, master, cu, lampNo, start, end, durationSec)
		outcome := "completed"
		if err != nil {
			outcome = "error"
		}
		m.notifyStateChanged(resolved, map[string]interface{}{
			"op": "fade", "master": master, "cu": cu, "lampNo": lampNo, "outcome": outcome,
		})
	}()
	return nil
}

// Wave runs a wave effect on the named (or default) agent in the
// background. See Fade for why the effect runs detached from ctx.
func (m *Manager) Wave(ctx context.Context, agentID string, master, cu int, lamps []int, brightness, intervalMs int) error {
	e, err := m.lookup(agentID)
	if err != nil {
		return err
	}
	resolved := e.id
	go func() {
		err := m.effects.Wave(context.Background(), e.client, resolved, master, cu, lamps, brightness, intervalMs)
		outcome := "completed"
		if err != nil {
			outcome = "error"
		}
		m.notifyStateChanged(resolved, map[string]interface{}{
			"op": "wave", "master": master, "cu": cu, "lamps": lamps, "outcome": outcome,
		})
	}()
	return nil
}

func (m *Manager) send(ctx context.Context, agentID string, frame []byte) (response.Typed, error) {
	e, err := m.lookup(agentID)
	if err != nil {
		return response.Typed{}, err
	}
	return e.client.Send(ctx, frame)
}

// DisconnectAll tears down every registered agent's connection and clears
// the registry.
func (m *Manager) DisconnectAll() {
	m.mu.Lock()
	entries := make([]*entry, 0, len(m.agents))
	for _, e := range m.agents {
		entries = append(entries, e)
	}
	m.agents = make(map[string]*entry)
	m.defaultID = ""
	m.mu.Unlock()
	for _, e := range entries {
		e.client.Disconnect()
	}
	metrics.SetAgentsRegistered(0)
	m.notifyAgentsUpdated()
}
