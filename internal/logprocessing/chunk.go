package logprocessing

import "strings"

// DefaultChunkLines is the chunk size used when indexing excerpts.
const DefaultChunkLines = 20

// ChunkLines splits text into chunks of at most n lines. Blank chunks are dropped.
func ChunkLines(text string, n int) []string {
	if n <= 0 {
		n = DefaultChunkLines
	}
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")

	var chunks []string
	for start := 0; start < len(lines); start += n {
		end := min(start+n, len(lines))
		chunk := strings.Join(lines[start:end], "\n")
		if strings.TrimSpace(chunk) != "" {
			chunks = append(chunks, chunk)
		}
	}
	return chunks
}
