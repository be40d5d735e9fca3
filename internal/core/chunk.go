package core

// Chunk is an immutable byte-range view into a larger file: part Number is
// 1-based and matches the chunk's position in the source. Keeping offsets
// instead of re-sliced buffers avoids aliasing surprises when a chunk is
// re-read for a retry.
type Chunk struct {
	Number int   // 1-based part number
	Offset int64 // byte offset of the chunk within the file
	Length int64 // chunk length in bytes (last chunk may be short)
}

// End returns the inclusive end offset of the chunk.
func (c Chunk) End() int64 {
	return c.Offset + c.Length - 1
}

// ChunkCount returns ceil(totalSize / chunkSize).
func ChunkCount(totalSize, chunkSize int64) int {
	if totalSize <= 0 || chunkSize <= 0 {
		return 0
	}
	return int((totalSize + chunkSize - 1) / chunkSize)
}

// PartitionChunks splits totalSize into contiguous fixed-size chunks.
// Reassembling the spans in Number order reproduces the original byte range
// exactly.
func PartitionChunks(totalSize, chunkSize int64) []Chunk {
	count := ChunkCount(totalSize, chunkSize)
	chunks := make([]Chunk, 0, count)
	for i := 0; i < count; i++ {
		offset := int64(i) * chunkSize
		length := chunkSize
		if offset+length > totalSize {
			length = totalSize - offset
		}
		chunks = append(chunks, Chunk{Number: i + 1, Offset: offset, Length: length})
	}
	return chunks
}

// ChunkIndex maps a byte offset to its 0-based chunk index.
func ChunkIndex(offset, chunkSize int64) int {
	if chunkSize <= 0 {
		return 0
	}
	return int(offset / chunkSize)
}

// ChunkSlice computes the local [lo, hi) slice of chunk index that overlaps
// the inclusive byte range [start, end]. chunkLength is the actual stored
// length of the chunk, which may be shorter than chunkSize for the final
// chunk.
func ChunkSlice(index int, chunkSize, chunkLength, start, end int64) (lo, hi int64) {
	chunkStart := int64(index) * chunkSize

	lo = start - chunkStart
	if lo < 0 {
		lo = 0
	}
	hi = end - chunkStart + 1
	if hi > chunkLength {
		hi = chunkLength
	}
	if hi < lo {
		hi = lo
	}
	return lo, hi
}
