package audio

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// LiveInputRate is the PCM sample rate realtime models accept for
// microphone input.
const LiveInputRate = 16000

var channelsParam = regexp.MustCompile(`channels=(\d+)`)

// Channels extracts the "channels=" parameter of a PCM MIME type. Missing or
// malformed values mean mono.
func Channels(mimeType string) int {
	m := channelsParam.FindStringSubmatch(strings.ToLower(mimeType))
	if m == nil {
		return 1
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// LiveInputMIME is the MIME type of a chunk produced by [ToLiveInput].
func LiveInputMIME() string {
	return fmt.Sprintf("audio/pcm;rate=%d", LiveInputRate)
}

// ToLiveInput converts a microphone chunk to 16 kHz mono PCM. Stereo input
// is downmixed before resampling. PCM without a rate parameter is assumed to
// already be at [LiveInputRate]. Non-PCM chunks are returned unchanged.
//
// ok is false for PCM with an odd byte count or more than two channels;
// such chunks cannot be interpreted as 16-bit samples and should be dropped.
func ToLiveInput(c Chunk) (out Chunk, ok bool) {
	if !IsPCM(c.MIMEType) {
		return c, true
	}
	if len(c.Data)%2 != 0 {
		return Chunk{}, false
	}

	pcm := c.Data
	switch Channels(c.MIMEType) {
	case 1:
	case 2:
		pcm = StereoToMono(pcm)
	default:
		return Chunk{}, false
	}

	rate := LiveInputRate
	if rateParam.MatchString(strings.ToLower(c.MIMEType)) {
		rate = SampleRate(c.MIMEType)
	}
	return Chunk{MIMEType: LiveInputMIME(), Data: ResampleMono16(pcm, rate, LiveInputRate)}, true
}

// StereoToMono averages each interleaved L/R frame of 16-bit little-endian
// PCM. A trailing partial frame is dropped.
func StereoToMono(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		l := int32(sample(pcm, i*2))
		r := int32(sample(pcm, i*2+1))
		putSample(out, i, int16((l+r)/2))
	}
	return out
}

// ResampleMono16 resamples 16-bit mono PCM from srcRate to dstRate with
// linear interpolation. Equal or non-positive rates return pcm unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dstSamples {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)

		s0 := sample(pcm, idx)
		s1 := s0
		if idx+1 < srcSamples {
			s1 = sample(pcm, idx+1)
		}
		putSample(out, i, int16(float64(s0)*(1-frac)+float64(s1)*frac))
	}
	return out
}

func sample(pcm []byte, i int) int16 {
	return int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
}

func putSample(pcm []byte, i int, v int16) {
	pcm[i*2] = byte(v)
	pcm[i*2+1] = byte(v >> 8)
}
