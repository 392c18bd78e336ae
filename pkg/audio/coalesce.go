package audio

// Normalize converts a raw PCM chunk into a WAV chunk. Other encodings are
// returned unchanged.
func Normalize(c Chunk) Chunk {
	if IsPCM(c.MIMEType) {
		return Chunk{MIMEType: "audio/wav", Data: PCMToWAV(c.Data, SampleRate(c.MIMEType))}
	}
	if c.MIMEType == "" {
		c.MIMEType = defaultMIME
	}
	return c
}

// Coalesce merges model speech output into at most one playable chunk.
//
// When every chunk is raw PCM the payloads are concatenated in order and
// wrapped as a single mono 16-bit WAV using the sample rate of the first
// chunk. Otherwise each chunk is normalized and only the largest one is kept,
// since mixed containers cannot be joined byte-wise.
func Coalesce(chunks []Chunk) []Chunk {
	if len(chunks) == 0 {
		return nil
	}

	allPCM := true
	for _, c := range chunks {
		if !IsPCM(c.MIMEType) {
			allPCM = false
			break
		}
	}
	if allPCM {
		var size int
		for _, c := range chunks {
			size += len(c.Data)
		}
		if size == 0 {
			return nil
		}
		merged := make([]byte, 0, size)
		for _, c := range chunks {
			merged = append(merged, c.Data...)
		}
		return []Chunk{{MIMEType: "audio/wav", Data: PCMToWAV(merged, SampleRate(chunks[0].MIMEType))}}
	}

	var largest Chunk
	found := false
	for _, c := range chunks {
		if len(c.Data) == 0 {
			continue
		}
		n := Normalize(c)
		if !found || len(n.Data) > len(largest.Data) {
			largest = n
			found = true
		}
	}
	if !found {
		return nil
	}
	return []Chunk{largest}
}
