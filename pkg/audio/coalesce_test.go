package audio_test

import (
	"bytes"
	"testing"

	"github.com/MrWong99/nutrivision/pkg/audio"
)

func TestCoalesce_AllPCMConcatenates(t *testing.T) {
	t.Parallel()

	a := samplesToBytes([]int16{1, 2, 3})
	b := samplesToBytes([]int16{4, 5})
	got := audio.Coalesce([]audio.Chunk{
		{MIMEType: "audio/pcm;rate=16000", Data: a},
		{MIMEType: "audio/pcm;rate=24000", Data: b},
	})
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].MIMEType != "audio/wav" {
		t.Errorf("MIMEType = %q, want audio/wav", got[0].MIMEType)
	}
	info, err := audio.DecodeWAV(got[0].Data)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if info.SampleRate != 16000 {
		t.Errorf("SampleRate = %d, want rate of first chunk (16000)", info.SampleRate)
	}
	if want := append(append([]byte{}, a...), b...); !bytes.Equal(info.PCM, want) {
		t.Errorf("PCM not concatenated in order")
	}
}

func TestCoalesce_MixedKeepsLargest(t *testing.T) {
	t.Parallel()

	got := audio.Coalesce([]audio.Chunk{
		{MIMEType: "audio/ogg", Data: make([]byte, 10)},
		{MIMEType: "audio/pcm", Data: make([]byte, 4)},
		{MIMEType: "audio/mpeg", Data: make([]byte, 30)},
	})
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	// The PCM chunk grows to 48 bytes once wrapped, beating the 30-byte mp3.
	if got[0].MIMEType != "audio/wav" || len(got[0].Data) != 48 {
		t.Errorf("got %s (%d bytes), want audio/wav (48 bytes)", got[0].MIMEType, len(got[0].Data))
	}
}

func TestCoalesce_Empty(t *testing.T) {
	t.Parallel()

	if got := audio.Coalesce(nil); got != nil {
		t.Errorf("Coalesce(nil) = %v, want nil", got)
	}
	if got := audio.Coalesce([]audio.Chunk{{MIMEType: "audio/pcm"}}); got != nil {
		t.Errorf("Coalesce(empty pcm) = %v, want nil", got)
	}
}
