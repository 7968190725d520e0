// Package roomcast is a high-level, user-friendly API over the Agent
// Manager for embedding roomcast in another process or in tests, without
// the caller standing up its own bus.
//
// Generalizes the teacher's root conversation.go (a Conversation wrapping
// one Orchestrator+ConversationSession) into a Client wrapping one
// AgentManager+Bus: many agents across many rooms instead of one session.
package roomcast

import (
	"context"
	"fmt"

	"github.com/lokutor-ai/roomcast/pkg/bus"
	"github.com/lokutor-ai/roomcast/pkg/orchestrator"
)

// Client is a convenience wrapper over one AgentManager and one Bus.
//
// Example:
//
//	client := roomcast.New(mgr, bus.NewInMemoryBus(), emitter, logger)
//	if err := client.Start(ctx); err != nil { ... }
//	defer client.Stop(ctx)
//	agent, err := client.CreateAgent("host", "a cheerful quiz host", orchestrator.DefaultAgentConfig())
type Client struct {
	mgr    *orchestrator.AgentManager
	bus    bus.Bus
	binder *orchestrator.BusBinder
}

// New wraps an already-constructed AgentManager and Bus. Providers, media
// factory, and config are the caller's concern (see cmd/roomcast/main.go
// for the full wiring this trims down).
func New(mgr *orchestrator.AgentManager, b bus.Bus, emitter *orchestrator.Emitter, logger orchestrator.Logger) *Client {
	return &Client{
		mgr:    mgr,
		bus:    b,
		binder: orchestrator.NewBusBinder(mgr, b, emitter, logger),
	}
}

// Start connects the bus and begins translating its control/event topics
// onto the wrapped AgentManager.
func (c *Client) Start(ctx context.Context) error {
	if err := c.bus.Connect(ctx); err != nil {
		return err
	}
	return c.binder.Start(ctx)
}

// Stop unsubscribes from every control topic and disconnects the bus.
func (c *Client) Stop(ctx context.Context) error {
	c.binder.Stop(ctx)
	return c.bus.Disconnect(ctx)
}

// CreateAgent registers a new agent with the given persona prompt.
//
// Example:
//
//	agent, err := client.CreateAgent("host-1", "a cheerful quiz host", orchestrator.DefaultAgentConfig())
func (c *Client) CreateAgent(id, persona string, cfg orchestrator.AgentConfig) (*orchestrator.Agent, error) {
	return c.mgr.CreateAgent(id, persona, cfg)
}

// DeleteAgent detaches and removes an agent.
func (c *Client) DeleteAgent(id string) error {
	return c.mgr.DeleteAgent(id)
}

// Join attaches an existing agent to a room's media session.
func (c *Client) Join(ctx context.Context, agentID, roomID string) error {
	return c.mgr.AttachAgentToRoom(ctx, agentID, roomID)
}

// Leave detaches an agent from whatever room it is currently attached to.
func (c *Client) Leave(agentID string) error {
	return c.mgr.DetachAgentFromRoom(agentID)
}

// Speak requests the agent speak the given text, subject to the room's
// turn-taking arbiter.
func (c *Client) Speak(agentID, text string) error {
	return c.mgr.RequestSpeak(agentID, text)
}

// StopSpeaking cancels an agent's in-flight or queued turn.
func (c *Client) StopSpeaking(agentID string) error {
	return c.mgr.CancelSpeak(agentID)
}

// Transcript feeds a finalized transcription into a room so every attached
// agent can react to it.
func (c *Client) Transcript(roomID, originID, text string, confidence float64) error {
	return c.mgr.SubmitTranscript(roomID, originID, text, confidence)
}

// Agents lists every agent attached to roomID, or every agent known to the
// manager when roomID is empty.
func (c *Client) Agents(roomID string) []*orchestrator.Agent {
	return c.mgr.ListAgents(roomID)
}

// Agent looks up a single agent by ID.
func (c *Client) Agent(id string) (*orchestrator.Agent, error) {
	return c.mgr.GetAgent(id)
}

// Room looks up a single room by ID.
func (c *Client) Room(id string) (*orchestrator.Room, error) {
	return c.mgr.GetRoom(id)
}

// Stats reports process-wide counts (registered agents, active rooms).
func (c *Client) Stats() orchestrator.ManagerStats {
	return c.mgr.Stats()
}

// String implements fmt.Stringer for debug logging.
func (c *Client) String() string {
	stats := c.mgr.Stats()
	return fmt.Sprintf("roomcast.Client{agents=%d rooms=%d}", stats.AgentCount, stats.RoomCount)
}
