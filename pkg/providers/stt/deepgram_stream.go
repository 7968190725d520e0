package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/coder/websocket"

	"github.com/lokutor-ai/roomcast/pkg/orchestrator"
)

// DeepgramStreamSTT implements orchestrator.StreamingSTTProvider over
// Deepgram's live-transcription websocket, reusing DeepgramSTT for the
// batch fallback path. Transport grounded on the `coder/websocket` client
// the teacher already uses for TTS streaming (pkg/providers/tts/lokutor.go)
// — the same library, a different vendor's wire protocol.
type DeepgramStreamSTT struct {
	*DeepgramSTT
	wsHost string
}

func NewDeepgramStreamSTT(apiKey string) *DeepgramStreamSTT {
	return &DeepgramStreamSTT{
		DeepgramSTT: NewDeepgramSTT(apiKey),
		wsHost:      "api.deepgram.com",
	}
}

type deepgramStreamMsg struct {
	IsFinal bool `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// Open dials Deepgram's streaming endpoint and pumps audio written to the
// returned channel out as binary websocket frames, delivering each partial
// or final transcript to onTranscript as it arrives. Closing the returned
// channel or canceling ctx tears the session down.
func (s *DeepgramStreamSTT) Open(ctx context.Context, sessionID string, lang orchestrator.Language, onTranscript func(orchestrator.TranscriptResult, bool)) (chan<- []byte, error) {
	u := url.URL{Scheme: "wss", Host: s.wsHost, Path: "/v1/listen"}
	q := u.Query()
	q.Set("model", "nova-2")
	q.Set("smart_format", "true")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", fmt.Sprintf("%d", s.sampleRate))
	if lang != "" {
		q.Set("language", string(lang))
	}
	u.RawQuery = q.Encode()

	conn, _, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		HTTPHeader: map[string][]string{"Authorization": {"Token " + s.apiKey}},
	})
	if err != nil {
		return nil, fmt.Errorf("deepgram stream dial failed for session %s: %w", sessionID, err)
	}

	audioIn := make(chan []byte, 32)

	go func() {
		defer conn.Close(websocket.StatusNormalClosure, "")
		for {
			select {
			case <-ctx.Done():
				return
			case chunk, ok := <-audioIn:
				if !ok {
					_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`))
					return
				}
				if err := conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
					return
				}
			}
		}
	}()

	go func() {
		for {
			_, payload, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var msg deepgramStreamMsg
			if err := json.Unmarshal(payload, &msg); err != nil {
				continue
			}
			if len(msg.Channel.Alternatives) == 0 {
				continue
			}
			alt := msg.Channel.Alternatives[0]
			if alt.Transcript == "" {
				continue
			}
			onTranscript(orchestrator.TranscriptResult{Text: alt.Transcript, Confidence: alt.Confidence}, msg.IsFinal)
		}
	}()

	return audioIn, nil
}
