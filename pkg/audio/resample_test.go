package audio

import (
	"encoding/binary"
	"testing"
)

func int16sToPCM(t *testing.T, samples []int16) []byte {
	t.Helper()
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func TestDownmixStereoToMono_AveragesChannels(t *testing.T) {
	pcm := int16sToPCM(t, []int16{100, 200, -50, 50})
	mono := DownmixStereoToMono(pcm)

	samples := bytesToInt16s(mono)
	if len(samples) != 2 {
		t.Fatalf("expected 2 mono samples, got %d", len(samples))
	}
	if samples[0] != 150 {
		t.Errorf("expected (100+200)/2=150, got %d", samples[0])
	}
	if samples[1] != 0 {
		t.Errorf("expected (-50+50)/2=0, got %d", samples[1])
	}
}

func TestUpmixMonoToStereo_DuplicatesSample(t *testing.T) {
	pcm := int16sToPCM(t, []int16{42})
	stereo := bytesToInt16s(UpmixMonoToStereo(pcm))
	if len(stereo) != 2 || stereo[0] != 42 || stereo[1] != 42 {
		t.Errorf("expected [42 42], got %v", stereo)
	}
}

func TestResample16_SameRateIsNoOp(t *testing.T) {
	pcm := int16sToPCM(t, []int16{1, 2, 3})
	out := Resample16(pcm, 16000, 16000)
	if string(out) != string(pcm) {
		t.Errorf("expected identical PCM for equal rates")
	}
}

func TestResample16_UpsampleDoublesLength(t *testing.T) {
	pcm := int16sToPCM(t, []int16{0, 1000, 2000, 3000})
	out := Resample16(pcm, 8000, 16000)
	samples := bytesToInt16s(out)
	if len(samples) != 8 {
		t.Fatalf("expected 8 samples upsampling 4 at 2x, got %d", len(samples))
	}
	if samples[0] != 0 || samples[len(samples)-1] != 3000 {
		t.Errorf("expected endpoints preserved, got first=%d last=%d", samples[0], samples[len(samples)-1])
	}
}

func TestDownsampleStereoToMono16k_ProducesExpectedRate(t *testing.T) {
	frames := OpusSampleRate / 100 // 10ms of 48kHz stereo
	samples := make([]int16, frames*2)
	pcm := int16sToPCM(t, samples)

	mono16k := DownsampleStereoToMono16k(pcm)
	gotFrames := len(mono16k) / 2
	wantFrames := frames * 16000 / OpusSampleRate
	if gotFrames != wantFrames {
		t.Errorf("expected %d mono 16kHz samples for 10ms of 48kHz stereo, got %d", wantFrames, gotFrames)
	}
}

func TestUpsampleMonoToStereo48k_ProducesExpectedRate(t *testing.T) {
	frames := 240 // 10ms at 24kHz
	samples := make([]int16, frames)
	pcm := int16sToPCM(t, samples)

	stereo48k := UpsampleMonoToStereo48k(pcm, 24000)
	gotFrames := len(stereo48k) / 4
	wantFrames := frames * OpusSampleRate / 24000
	if gotFrames != wantFrames {
		t.Errorf("expected %d stereo 48kHz frames for 10ms at 24kHz, got %d", wantFrames, gotFrames)
	}
}
