package transfer

// Chunk is a half-open byte range [Start, End) of a file, assigned to one
// worker.
type Chunk struct {
	Index int
	Start int64
	End   int64

	// Downloaded tracks how much of this chunk is already durable,
	// used when reconstructing chunk state on resume.
	Downloaded int64
}

// Size returns the chunk's byte length.
func (c Chunk) Size() int64 {
	return c.End - c.Start
}

// PlanChunks splits a file of size bytes into up to k chunks:
// chunkSize = ceil(size/k), ranges [i*chunkSize, min((i+1)*chunkSize, size)).
// Empty trailing chunks are dropped. k <= 0 or size <= 0 yields a single
// chunk spanning the whole file (size 0 yields one empty chunk, matching
// the zero-byte-file boundary case).
func PlanChunks(size int64, k int) []Chunk {
	if k <= 0 {
		k = 1
	}

	if size <= 0 {
		return []Chunk{{Index: 0, Start: 0, End: 0}}
	}

	chunkSize := (size + int64(k) - 1) / int64(k)

	chunks := make([]Chunk, 0, k)

	for i := 0; i < k; i++ {
		start := int64(i) * chunkSize
		if start >= size {
			break
		}

		end := start + chunkSize
		if end > size {
			end = size
		}

		chunks = append(chunks, Chunk{Index: len(chunks), Start: start, End: end})
	}

	return chunks
}

// OptimalDownloadChunks implements the download chunk-count heuristic,
// clamped by the user-configured maxChunks.
func OptimalDownloadChunks(size int64, maxChunks int) int {
	const (
		mib5   = 5 * 1024 * 1024
		mib50  = 50 * 1024 * 1024
		mib200 = 200 * 1024 * 1024
	)

	var k int

	switch {
	case size < mib5:
		k = 1
	case size < mib50:
		k = 8
	case size < mib200:
		k = 12
	default:
		k = 30
	}

	if maxChunks > 0 && k > maxChunks {
		k = maxChunks
	}

	return k
}

// ApplyResumePosition marks chunks wholly below resumePosition as fully
// downloaded and sets the straddling chunk's partial progress, per the
// documented resume semantics for parallel downloads.
func ApplyResumePosition(chunks []Chunk, resumePosition int64) []Chunk {
	result := make([]Chunk, len(chunks))

	for i, c := range chunks {
		switch {
		case c.End <= resumePosition:
			c.Downloaded = c.Size()
		case c.Start < resumePosition && resumePosition < c.End:
			c.Downloaded = resumePosition - c.Start
		default:
			c.Downloaded = 0
		}

		result[i] = c
	}

	return result
}
