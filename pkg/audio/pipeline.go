// Package audio implements the two per-binding conversion pipelines
// spec.md §4.3 describes: Egress (TTS output toward the media client) and
// Ingress (consumed media audio toward STT), plus WAV framing for batch
// transcription calls.
//
// Format conversion is real on both sides: opus.go encodes/decodes Opus via
// layeh.com/gopus (grounded on the retrieval pack's Discord voice adapter),
// and resample.go rate-converts and channel-mixes PCM16 with the standard
// library's encoding/binary primitives, since no resampling library appears
// anywhere in the pack (see DESIGN.md). Egress turns a TTS adapter's native
// PCM into the 48 kHz stereo Opus the media room's local track publishes;
// Ingress turns the media room's subscribed Opus back into the 16 kHz mono
// PCM the VAD and STT adapters expect.
package audio

import (
	"strings"
	"sync"
	"time"

	"github.com/lokutor-ai/roomcast/pkg/orchestrator"
)

// egressFrameBytes is the PCM16 byte size of one 20ms Opus frame at
// OpusSampleRate/OpusChannels (960 samples/channel * 2 channels * 2 bytes).
const egressFrameBytes = OpusFrameSize * OpusChannels * 2

// EgressPipeline resamples synthesized audio to the media room's Opus
// format and chunks it into one-frame-per-packet output for a
// MediaRoomClient producer channel (spec.md §4.3 "Egress"). Chunk buffers
// for the plain-byte fallback path are pooled to avoid per-turn allocation
// churn across many short replies.
type EgressPipeline struct {
	pool    sync.Pool
	encoder *OpusEncoder

	mu         sync.Mutex
	chunkCount int64
	byteCount  int64
	latencies  []time.Duration
}

// NewEgressPipeline constructs a pipeline with its own Opus encoder. Encoder
// construction failure degrades Chunk to its raw-byte fallback rather than
// panicking, since one process may run many bindings off one pipeline.
func NewEgressPipeline() *EgressPipeline {
	enc, _ := NewOpusEncoder()
	return &EgressPipeline{
		pool:    sync.Pool{New: func() interface{} { return make([]byte, 0, 4096) }},
		encoder: enc,
	}
}

// Chunk satisfies orchestrator.EgressChunker. For PCM16 audio it resamples
// to 48 kHz stereo and Opus-encodes one frame per Opus packet (spec.md
// §4.3's "Format conversion" responsibility feeding the media client's
// Opus-typed local track). Audio already in another format, or arriving
// when the encoder could not be constructed, falls back to splitting
// audio.Data into frameBytes-sized frames (spec.md §4.3 "Input is chunked
// when it exceeds the egress buffer threshold").
func (p *EgressPipeline) Chunk(audio orchestrator.AudioBytes, frameBytes int) [][]byte {
	if len(audio.Data) == 0 {
		return nil
	}
	if p.encoder != nil && strings.HasPrefix(audio.Format, "pcm16") && audio.Channels == 1 && audio.SampleRate > 0 {
		return p.chunkOpus(audio)
	}
	return p.chunkRaw(audio.Data, frameBytes)
}

func (p *EgressPipeline) chunkOpus(audio orchestrator.AudioBytes) [][]byte {
	stereo48k := UpsampleMonoToStereo48k(audio.Data, audio.SampleRate)
	if len(stereo48k)%egressFrameBytes != 0 {
		pad := make([]byte, egressFrameBytes-len(stereo48k)%egressFrameBytes)
		stereo48k = append(stereo48k, pad...)
	}

	var frames [][]byte
	for off := 0; off < len(stereo48k); off += egressFrameBytes {
		opusFrame, err := p.encoder.Encode(stereo48k[off : off+egressFrameBytes])
		if err != nil {
			continue
		}
		frames = append(frames, opusFrame)
	}

	p.mu.Lock()
	p.chunkCount += int64(len(frames))
	p.byteCount += int64(len(audio.Data))
	p.mu.Unlock()
	return frames
}

func (p *EgressPipeline) chunkRaw(data []byte, frameBytes int) [][]byte {
	if frameBytes <= 0 || frameBytes >= len(data) {
		return [][]byte{data}
	}

	var frames [][]byte
	for off := 0; off < len(data); off += frameBytes {
		end := off + frameBytes
		if end > len(data) {
			end = len(data)
		}
		buf := p.pool.Get().([]byte)[:0]
		buf = append(buf, data[off:end]...)
		frames = append(frames, buf)
	}

	p.mu.Lock()
	p.chunkCount += int64(len(frames))
	p.byteCount += int64(len(data))
	p.mu.Unlock()
	return frames
}

// Release returns a frame buffer produced by Chunk to the pool once the
// caller has finished writing it to the media client.
func (p *EgressPipeline) Release(buf []byte) {
	p.pool.Put(buf[:0]) //nolint:staticcheck // pool element type is []byte
}

// RecordLatency appends one TTS-call-to-first-frame latency sample to a
// rolling window of the most recent 100 (spec.md §4.3 observability note).
func (p *EgressPipeline) RecordLatency(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.latencies = append(p.latencies, d)
	if len(p.latencies) > 100 {
		p.latencies = p.latencies[len(p.latencies)-100:]
	}
}

// Stats returns the pipeline's cumulative chunk/byte counters.
func (p *EgressPipeline) Stats() (chunks, bytesOut int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.chunkCount, p.byteCount
}

// IngressBucket is one fixed-duration slice of consumed audio, labeled by
// the voice-activity detector (spec.md §4.3 "Ingress").
type IngressBucket struct {
	Data    []byte
	IsVoice bool
	At      time.Time
}

// IngressPipeline buckets consumed PCM16 audio into fixed-duration frames
// and labels each with the VAD's current speaking state, handing labeled
// buckets to onBucket as they complete.
type IngressPipeline struct {
	vad        orchestrator.VADProvider
	bucketSize int
	onBucket   func(IngressBucket)

	mu         sync.Mutex
	buf        []byte
	chunkCount int64
	byteCount  int64
}

// NewIngressPipeline constructs a pipeline bucketing 16-bit mono PCM at
// sampleRate into bucketDuration-sized frames (spec.md defaults: 16 kHz,
// 1000 ms). onBucket is invoked synchronously from Write for each completed
// bucket; it must not block.
func NewIngressPipeline(vad orchestrator.VADProvider, sampleRate int, bucketDuration time.Duration, onBucket func(IngressBucket)) *IngressPipeline {
	bytesPerMs := (sampleRate * 2) / 1000
	size := bytesPerMs * int(bucketDuration.Milliseconds())
	if size <= 0 {
		size = 3200 // 16 kHz * 2 bytes * 100ms fallback
	}
	return &IngressPipeline{vad: vad, bucketSize: size, onBucket: onBucket}
}

// Write appends newly consumed PCM16 audio, emitting one IngressBucket per
// complete bucket-duration of audio accumulated so far.
func (p *IngressPipeline) Write(pcm []byte) {
	p.mu.Lock()
	p.buf = append(p.buf, pcm...)
	var ready [][]byte
	for len(p.buf) >= p.bucketSize {
		ready = append(ready, append([]byte(nil), p.buf[:p.bucketSize]...))
		p.buf = p.buf[p.bucketSize:]
	}
	p.chunkCount += int64(len(ready))
	p.byteCount += int64(len(pcm))
	p.mu.Unlock()

	for _, chunk := range ready {
		if _, err := p.vad.Process(chunk); err != nil {
			continue
		}
		p.onBucket(IngressBucket{Data: chunk, IsVoice: p.vad.IsSpeaking(), At: time.Now()})
	}
}

// Stats returns the pipeline's cumulative chunk/byte counters.
func (p *IngressPipeline) Stats() (chunks, bytesIn int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.chunkCount, p.byteCount
}

// VoiceAccumulator concatenates consecutive voiced buckets into one
// transcribe-sized buffer, flushing on the transition back to silence —
// the glue between IngressPipeline's labeled buckets and a batch
// STTProvider.Transcribe call.
type VoiceAccumulator struct {
	mu      sync.Mutex
	voicing bool
	buf     []byte
}

// Feed consumes one labeled bucket. It returns a non-nil buffer exactly
// when a voiced run just ended (the bucket that completes a speech
// segment), ready to hand to an STTProvider.
func (v *VoiceAccumulator) Feed(b IngressBucket) []byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	if b.IsVoice {
		v.voicing = true
		v.buf = append(v.buf, b.Data...)
		return nil
	}
	if v.voicing {
		v.voicing = false
		out := v.buf
		v.buf = nil
		return out
	}
	return nil
}

// ingressSampleRate is the rate every STT adapter and orchestrator.VADProvider
// in this codebase expects (spec.md defaults: 16 kHz mono).
const ingressSampleRate = 16000

// RoomIngressChain is one consumed peer's full ingestion chain: Opus decode,
// downsample/downmix to 16 kHz mono, VAD bucketing, and voiced-run
// accumulation, ending in onSegment for each finalized segment (spec.md
// §4.3's ingress data-flow: consumer -> audio pipeline -> STT). It
// implements orchestrator.IngressChain's Write(payload []byte) by structural
// typing, so the orchestrator package can drive it without importing this
// package (pkg/audio already imports pkg/orchestrator for shared types, so
// the dependency can't run the other way without a cycle).
type RoomIngressChain struct {
	decoder     *OpusDecoder
	pipeline    *IngressPipeline
	accumulator *VoiceAccumulator
	onSegment   func([]byte)
}

// NewRoomIngressChain constructs a chain for one consumed peer. vad should
// be a fresh instance (see orchestrator.VADProvider.Clone) so concurrently
// consumed peers don't share voice-activity state.
func NewRoomIngressChain(vad orchestrator.VADProvider, bucketDuration time.Duration, onSegment func([]byte)) (*RoomIngressChain, error) {
	decoder, err := NewOpusDecoder()
	if err != nil {
		return nil, err
	}
	c := &RoomIngressChain{decoder: decoder, accumulator: &VoiceAccumulator{}, onSegment: onSegment}
	c.pipeline = NewIngressPipeline(vad, ingressSampleRate, bucketDuration, c.onBucket)
	return c, nil
}

func (c *RoomIngressChain) onBucket(b IngressBucket) {
	if segment := c.accumulator.Feed(b); segment != nil {
		c.onSegment(segment)
	}
}

// Write decodes one Opus RTP payload and feeds the resulting PCM into the
// bucketing/accumulation pipeline. Decode failures (e.g. a malformed or
// lost packet) are skipped rather than propagated, matching the ingress
// pipeline's existing VAD-error handling in Write above.
func (c *RoomIngressChain) Write(payload []byte) {
	pcm, err := c.decoder.Decode(payload)
	if err != nil {
		return
	}
	c.pipeline.Write(DownsampleStereoToMono16k(pcm))
}
