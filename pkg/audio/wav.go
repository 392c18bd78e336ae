package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	wavHeaderSize    = 44
	wavBitsPerSample = 16
	wavChannels      = 1
)

var rateParam = regexp.MustCompile(`rate=(\d+)`)

// SampleRate extracts the "rate=" parameter from a PCM MIME type. Missing,
// malformed or non-positive values yield [DefaultSampleRate].
func SampleRate(mimeType string) int {
	m := rateParam.FindStringSubmatch(strings.ToLower(mimeType))
	if m == nil {
		return DefaultSampleRate
	}
	rate, err := strconv.Atoi(m[1])
	if err != nil || rate <= 0 {
		return DefaultSampleRate
	}
	return rate
}

// PCMToWAV wraps little-endian 16-bit mono PCM samples in a canonical RIFF/WAVE
// container at the given sample rate.
func PCMToWAV(pcm []byte, sampleRate int) []byte {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	blockAlign := wavChannels * wavBitsPerSample / 8
	byteRate := sampleRate * blockAlign

	buf := make([]byte, wavHeaderSize+len(pcm))
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+len(pcm)))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], wavChannels)
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], wavBitsPerSample)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(len(pcm)))
	copy(buf[wavHeaderSize:], pcm)
	return buf
}

// ErrNotWAV is returned by [DecodeWAV] when the input is not a RIFF/WAVE
// container with a PCM data chunk.
var ErrNotWAV = errors.New("audio: not a PCM wav container")

// WAVInfo describes a decoded WAV payload.
type WAVInfo struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	PCM           []byte
}

// DecodeWAV walks the RIFF chunks of data and returns the format parameters
// together with the raw sample bytes of the "data" chunk.
func DecodeWAV(data []byte) (WAVInfo, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return WAVInfo{}, ErrNotWAV
	}
	var (
		info    WAVInfo
		haveFmt bool
	)
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if size < 0 || body+size > len(data) {
			return WAVInfo{}, fmt.Errorf("%w: chunk %q overruns buffer", ErrNotWAV, id)
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return WAVInfo{}, fmt.Errorf("%w: short fmt chunk", ErrNotWAV)
			}
			info.Channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			info.SampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			info.BitsPerSample = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
			haveFmt = true
		case "data":
			if !haveFmt {
				return WAVInfo{}, fmt.Errorf("%w: data before fmt", ErrNotWAV)
			}
			info.PCM = data[body : body+size]
			return info, nil
		}
		off = body + size + size%2
	}
	return WAVInfo{}, fmt.Errorf("%w: missing data chunk", ErrNotWAV)
}
