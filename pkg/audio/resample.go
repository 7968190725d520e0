package audio

import "encoding/binary"

// Sample-rate and channel-count conversion between the media room's Opus
// format (48 kHz stereo) and the ingress/egress PCM rates the rest of the
// pipeline works in (16 kHz mono for STT, whatever a TTS adapter returns for
// egress). No resampling library appears anywhere in the retrieval pack (see
// DESIGN.md): every adapter either ships audio already at its target rate or
// leaves conversion to the caller, so this is linear interpolation over the
// standard library's encoding/binary primitives, not a borrowed DSP routine.

// DownmixStereoToMono averages interleaved 16-bit stereo PCM into mono.
func DownmixStereoToMono(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := 0; i < frames; i++ {
		l := int16(binary.LittleEndian.Uint16(pcm[i*4:]))
		r := int16(binary.LittleEndian.Uint16(pcm[i*4+2:]))
		mixed := int16((int32(l) + int32(r)) / 2)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(mixed))
	}
	return out
}

// UpmixMonoToStereo duplicates each mono sample onto both channels.
func UpmixMonoToStereo(pcm []byte) []byte {
	frames := len(pcm) / 2
	out := make([]byte, frames*4)
	for i := 0; i < frames; i++ {
		s := pcm[i*2 : i*2+2]
		copy(out[i*4:], s)
		copy(out[i*4+2:], s)
	}
	return out
}

// Resample16 linearly resamples 16-bit mono PCM from inRate to outRate.
func Resample16(pcm []byte, inRate, outRate int) []byte {
	if inRate == outRate || len(pcm) < 4 {
		return pcm
	}
	in := bytesToInt16s(pcm)
	outLen := len(in) * outRate / inRate
	if outLen < 1 {
		return nil
	}
	out := make([]int16, outLen)
	ratio := float64(len(in)-1) / float64(outLen-1)
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)
		if idx+1 >= len(in) {
			out[i] = in[len(in)-1]
			continue
		}
		a, b := float64(in[idx]), float64(in[idx+1])
		out[i] = int16(a + (b-a)*frac)
	}
	return int16sToBytes(out)
}

// DownsampleStereoToMono16k converts 48 kHz stereo PCM16 (the media room's
// decoded Opus output) into 16 kHz mono PCM16 (the ingress pipeline's and
// every STT adapter's expected input).
func DownsampleStereoToMono16k(pcm48kStereo []byte) []byte {
	return Resample16(DownmixStereoToMono(pcm48kStereo), OpusSampleRate, 16000)
}

// UpsampleMonoToStereo48k converts PCM16 mono at sourceRate (a TTS adapter's
// native output rate) into 48 kHz stereo PCM16 ready for Opus encoding onto
// the media room's local track.
func UpsampleMonoToStereo48k(pcmMono []byte, sourceRate int) []byte {
	return UpmixMonoToStereo(Resample16(pcmMono, sourceRate, OpusSampleRate))
}
