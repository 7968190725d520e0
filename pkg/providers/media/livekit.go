// Package media implements orchestrator.MediaRoomClient against LiveKit
// rooms, grounded on the real-world Connect/PublishTrack/OnTrackSubscribed
// usage found in the retrieval pack's livekit-agent adapters.
package media

import (
	"context"
	"fmt"
	"sync"
	"time"

	livekitpb "github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	"github.com/lokutor-ai/roomcast/pkg/orchestrator"
)

// LiveKitClient is one agent's per-binding handle on a LiveKit room: it
// joins as a participant, publishes the agent's synthesized speech on one
// local track, and can subscribe to any other participant's track on
// demand. One instance per Agent Manager binding (pkg/orchestrator/manager.go).
type LiveKitClient struct {
	url       string
	apiKey    string
	apiSecret string
	cfg       orchestrator.Config
	logger    orchestrator.Logger

	mu    sync.RWMutex
	room  *lksdk.Room
	state orchestrator.MediaClientState

	localTrack   *lksdk.LocalTrack
	producers    map[string]context.CancelFunc
	consumers    map[string]context.CancelFunc
	remoteTracks map[string]*webrtc.TrackRemote // producerOrPeerID -> subscribed track
}

// NewLiveKitClient constructs a client bound to one LiveKit server project.
func NewLiveKitClient(url, apiKey, apiSecret string, cfg orchestrator.Config, logger orchestrator.Logger) *LiveKitClient {
	if logger == nil {
		logger = &orchestrator.NoOpLogger{}
	}
	return &LiveKitClient{
		url:          url,
		apiKey:       apiKey,
		apiSecret:    apiSecret,
		cfg:          cfg,
		logger:       logger,
		state:        orchestrator.MediaIdle,
		producers:    make(map[string]context.CancelFunc),
		consumers:    make(map[string]context.CancelFunc),
		remoteTracks: make(map[string]*webrtc.TrackRemote),
	}
}

// Join connects to a LiveKit room as the given peer identity, retrying with
// a bounded linear backoff (spec.md's reconnection policy for the
// Media-Room Client) before surfacing MediaUnrecoverable.
func (c *LiveKitClient) Join(ctx context.Context, room, peerID string) error {
	attempts := c.cfg.MediaReconnectAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		r, err := lksdk.ConnectToRoom(c.url, lksdk.ConnectInfo{
			APIKey:              c.apiKey,
			APISecret:           c.apiSecret,
			RoomName:            room,
			ParticipantIdentity: peerID,
			ParticipantName:     peerID,
		}, &lksdk.RoomCallback{
			ParticipantCallback: lksdk.ParticipantCallback{
				OnTrackSubscribed: c.onTrackSubscribed,
			},
			OnDisconnected: c.onDisconnected,
		})
		if err == nil {
			c.mu.Lock()
			c.room = r
			c.state = orchestrator.MediaActive
			c.mu.Unlock()
			c.logger.Info("media: joined room", "room", room, "peer", peerID, "attempt", attempt)
			return nil
		}

		lastErr = err
		c.logger.Warn("media: join attempt failed", "room", room, "peer", peerID, "attempt", attempt, "err", err)
		select {
		case <-ctx.Done():
			return orchestrator.NewError(orchestrator.KindCancelled, "media.Join", ctx.Err())
		case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
		}
	}

	c.mu.Lock()
	c.state = orchestrator.MediaClosed
	c.mu.Unlock()
	return orchestrator.NewError(orchestrator.KindMediaUnrecoverable, "media.Join", lastErr)
}

func (c *LiveKitClient) onDisconnected() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != orchestrator.MediaClosed {
		c.state = orchestrator.MediaDisconnectedTransient
	}
}

func (c *LiveKitClient) onTrackSubscribed(track *webrtc.TrackRemote, publication *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
	if track.Kind() != webrtc.RTPCodecTypeAudio {
		return
	}
	c.mu.Lock()
	c.remoteTracks[rp.Identity()] = track
	c.remoteTracks[publication.SID()] = track
	c.mu.Unlock()
}

// Leave disconnects from the room. Idempotent.
func (c *LiveKitClient) Leave(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, cancel := range c.producers {
		cancel()
	}
	for _, cancel := range c.consumers {
		cancel()
	}
	c.producers = make(map[string]context.CancelFunc)
	c.consumers = make(map[string]context.CancelFunc)

	if c.room != nil {
		c.room.Disconnect()
		c.room = nil
	}
	c.state = orchestrator.MediaClosed
	return nil
}

// Produce publishes one Opus local track and pumps every chunk read off
// audio into it as a 20ms sample, matching the sample-writing cadence
// Opus framing assumes.
func (c *LiveKitClient) Produce(ctx context.Context, audio <-chan []byte) (string, error) {
	c.mu.Lock()
	room := c.room
	if room == nil {
		c.mu.Unlock()
		return "", orchestrator.NewError(orchestrator.KindInvalidArgument, "media.Produce", fmt.Errorf("not joined to a room"))
	}

	track := c.localTrack
	if track == nil {
		t, err := lksdk.NewLocalTrack(webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypeOpus,
			ClockRate: 48000,
			Channels:  2,
		})
		if err != nil {
			c.mu.Unlock()
			return "", orchestrator.NewError(orchestrator.KindProviderError, "media.Produce", err)
		}
		pub, err := room.LocalParticipant.PublishTrack(t, &lksdk.TrackPublicationOptions{
			Name:   "agent-audio",
			Source: livekitpb.TrackSource_MICROPHONE,
		})
		if err != nil {
			c.mu.Unlock()
			return "", orchestrator.NewError(orchestrator.KindProviderError, "media.Produce", err)
		}
		track = t
		c.localTrack = t
		producerID := pub.SID()
		c.mu.Unlock()

		pCtx, cancel := context.WithCancel(ctx)
		c.mu.Lock()
		c.producers[producerID] = cancel
		c.mu.Unlock()
		go c.pumpSamples(pCtx, track, audio)
		return producerID, nil
	}

	producerID := track.ID()
	c.mu.Unlock()
	pCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.producers[producerID] = cancel
	c.mu.Unlock()
	go c.pumpSamples(pCtx, track, audio)
	return producerID, nil
}

func (c *LiveKitClient) pumpSamples(ctx context.Context, track *lksdk.LocalTrack, audio <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case chunk, ok := <-audio:
			if !ok {
				return
			}
			sample := media.Sample{Data: chunk, Duration: 20 * time.Millisecond}
			if err := track.WriteSample(sample, nil); err != nil {
				c.logger.Warn("media: write sample failed", "err", err)
				return
			}
		}
	}
}

// StopProduce cancels the pump goroutine feeding producerID. The track
// itself stays published — agents normally keep one track for the binding's
// lifetime and simply stop/start feeding it per turn.
func (c *LiveKitClient) StopProduce(ctx context.Context, producerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cancel, ok := c.producers[producerID]
	if !ok {
		return orchestrator.NewError(orchestrator.KindNotFound, "media.StopProduce", fmt.Errorf("producer %s", producerID))
	}
	cancel()
	delete(c.producers, producerID)
	return nil
}

// Consume reads RTP payloads off an already-subscribed remote track
// (delivered via the RoomCallback's OnTrackSubscribed) for up to duration
// seconds, or until the caller stops it.
func (c *LiveKitClient) Consume(ctx context.Context, peerOrProducerID string, duration int) (string, <-chan []byte, error) {
	c.mu.Lock()
	track, ok := c.remoteTracks[peerOrProducerID]
	c.mu.Unlock()
	if !ok {
		return "", nil, orchestrator.NewError(orchestrator.KindNotFound, "media.Consume", fmt.Errorf("no subscribed track for %s", peerOrProducerID))
	}

	consumerID := fmt.Sprintf("%s-%d", peerOrProducerID, time.Now().UnixNano())
	cCtx, cancel := context.WithCancel(ctx)
	if duration > 0 {
		var durCancel context.CancelFunc
		cCtx, durCancel = context.WithTimeout(cCtx, time.Duration(duration)*time.Second)
		prev := cancel
		cancel = func() { durCancel(); prev() }
	}

	c.mu.Lock()
	c.consumers[consumerID] = cancel
	c.mu.Unlock()

	sink := make(chan []byte, c.cfg.EgressBufferSize/256+1)
	go func() {
		defer close(sink)
		for {
			select {
			case <-cCtx.Done():
				return
			default:
				pkt, _, err := track.ReadRTP()
				if err != nil {
					return
				}
				select {
				case sink <- pkt.Payload:
				case <-cCtx.Done():
					return
				}
			}
		}
	}()

	return consumerID, sink, nil
}

// StopConsume cancels the reader goroutine for consumerID.
func (c *LiveKitClient) StopConsume(ctx context.Context, consumerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cancel, ok := c.consumers[consumerID]
	if !ok {
		return orchestrator.NewError(orchestrator.KindNotFound, "media.StopConsume", fmt.Errorf("consumer %s", consumerID))
	}
	cancel()
	delete(c.consumers, consumerID)
	return nil
}

// ListParticipants reports every other identity currently in the room.
func (c *LiveKitClient) ListParticipants(ctx context.Context) ([]orchestrator.Participant, error) {
	c.mu.RLock()
	room := c.room
	c.mu.RUnlock()
	if room == nil {
		return nil, orchestrator.NewError(orchestrator.KindInvalidArgument, "media.ListParticipants", fmt.Errorf("not joined to a room"))
	}

	var out []orchestrator.Participant
	for _, rp := range room.GetRemoteParticipants() {
		out = append(out, orchestrator.Participant{ID: rp.Identity(), Kind: "peer"})
	}
	return out, nil
}

// State implements orchestrator.MediaRoomClient.
func (c *LiveKitClient) State() orchestrator.MediaClientState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}
