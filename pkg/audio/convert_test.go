package audio_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/MrWong99/nutrivision/pkg/audio"
)

func pcm16(samples ...int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func samples(t *testing.T, pcm []byte) []int16 {
	t.Helper()
	if len(pcm)%2 != 0 {
		t.Fatalf("odd PCM length %d", len(pcm))
	}
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}

func TestChannels(t *testing.T) {
	t.Parallel()
	tests := []struct {
		mime string
		want int
	}{
		{"audio/pcm;rate=16000", 1},
		{"audio/pcm;rate=48000;channels=2", 2},
		{"audio/L16; Channels=2", 2},
		{"audio/pcm;channels=0", 1},
	}
	for _, tt := range tests {
		if got := audio.Channels(tt.mime); got != tt.want {
			t.Errorf("Channels(%q) = %d, want %d", tt.mime, got, tt.want)
		}
	}
}

func TestStereoToMono(t *testing.T) {
	t.Parallel()
	got := samples(t, audio.StereoToMono(pcm16(100, 300, -32768, -32768, 32767, 32767, 7)))
	want := []int16{200, -32768, 32767}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestResampleMono16(t *testing.T) {
	t.Parallel()

	in := pcm16(0, 300, 600, 900, 1200, 1500)
	if got := audio.ResampleMono16(in, 16000, 16000); !bytes.Equal(got, in) {
		t.Error("equal rates must return input unchanged")
	}

	down := samples(t, audio.ResampleMono16(in, 48000, 16000))
	if want := []int16{0, 900}; len(down) != 2 || down[0] != want[0] || down[1] != want[1] {
		t.Errorf("48k->16k = %v, want %v", down, want)
	}

	up := samples(t, audio.ResampleMono16(pcm16(0, 100), 8000, 16000))
	if len(up) != 4 || up[1] != 50 {
		t.Errorf("8k->16k = %v, want interpolated midpoint 50", up)
	}
}

func TestToLiveInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		in       audio.Chunk
		wantOK   bool
		wantMIME string
		wantLen  int
	}{
		{
			name:     "compressed passes through",
			in:       audio.Chunk{MIMEType: "audio/webm", Data: []byte{1, 2, 3}},
			wantOK:   true,
			wantMIME: "audio/webm",
			wantLen:  3,
		},
		{
			name:     "pcm without rate is relabelled",
			in:       audio.Chunk{MIMEType: "audio/pcm", Data: pcm16(1, 2, 3, 4)},
			wantOK:   true,
			wantMIME: "audio/pcm;rate=16000",
			wantLen:  8,
		},
		{
			name:     "48k stereo is downmixed and resampled",
			in:       audio.Chunk{MIMEType: "audio/pcm;rate=48000;channels=2", Data: pcm16(make([]int16, 12)...)},
			wantOK:   true,
			wantMIME: "audio/pcm;rate=16000",
			wantLen:  4,
		},
		{
			name: "odd byte count dropped",
			in:   audio.Chunk{MIMEType: "audio/pcm;rate=16000", Data: []byte{1, 2, 3}},
		},
		{
			name: "surround dropped",
			in:   audio.Chunk{MIMEType: "audio/pcm;rate=16000;channels=6", Data: pcm16(1, 2, 3, 4, 5, 6)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := audio.ToLiveInput(tt.in)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if got.MIMEType != tt.wantMIME || len(got.Data) != tt.wantLen {
				t.Errorf("got %s with %d bytes, want %s with %d", got.MIMEType, len(got.Data), tt.wantMIME, tt.wantLen)
			}
		})
	}
}
