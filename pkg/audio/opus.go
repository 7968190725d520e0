package audio

import (
	"encoding/binary"
	"fmt"

	"layeh.com/gopus"
)

// Opus framing for the media room's local/remote tracks (pkg/providers/media
// publishes and subscribes Opus at this clock rate and channel count).
// Grounded on the retrieval pack's Discord voice adapter
// (MrWong99-glyphoxa/pkg/audio/discord/opus.go), which drives the same
// layeh.com/gopus codec at the same 20ms framing.
const (
	OpusSampleRate = 48000
	OpusChannels   = 2
	opusFrameMs    = 20
	OpusFrameSize  = OpusSampleRate * opusFrameMs / 1000 // 960 samples/channel
)

// OpusDecoder turns one Opus-encoded RTP payload into 16-bit little-endian
// PCM at OpusSampleRate/OpusChannels.
type OpusDecoder struct {
	dec *gopus.Decoder
}

// NewOpusDecoder constructs a decoder bound to the media room's Opus format.
func NewOpusDecoder() (*OpusDecoder, error) {
	dec, err := gopus.NewDecoder(OpusSampleRate, OpusChannels)
	if err != nil {
		return nil, fmt.Errorf("audio: create opus decoder: %w", err)
	}
	return &OpusDecoder{dec: dec}, nil
}

// Decode converts one Opus packet into PCM16LE bytes.
func (d *OpusDecoder) Decode(payload []byte) ([]byte, error) {
	pcm, err := d.dec.Decode(payload, OpusFrameSize, false)
	if err != nil {
		return nil, fmt.Errorf("audio: opus decode: %w", err)
	}
	return int16sToBytes(pcm), nil
}

// OpusEncoder turns 16-bit little-endian PCM at OpusSampleRate/OpusChannels
// into Opus packets sized for a MediaRoomClient producer track.
type OpusEncoder struct {
	enc *gopus.Encoder
}

// NewOpusEncoder constructs an encoder bound to the media room's Opus format.
func NewOpusEncoder() (*OpusEncoder, error) {
	enc, err := gopus.NewEncoder(OpusSampleRate, OpusChannels, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("audio: create opus encoder: %w", err)
	}
	return &OpusEncoder{enc: enc}, nil
}

// Encode converts one OpusFrameSize-sample PCM16LE frame into an Opus packet.
func (e *OpusEncoder) Encode(pcm []byte) ([]byte, error) {
	samples := bytesToInt16s(pcm)
	opus, err := e.enc.Encode(samples, OpusFrameSize, len(pcm))
	if err != nil {
		return nil, fmt.Errorf("audio: opus encode: %w", err)
	}
	return opus, nil
}

func int16sToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func bytesToInt16s(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}
