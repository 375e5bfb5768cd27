// Package splitter chunks documents with langchaingo's recursive character
// splitter.
package splitter

import (
	"github.com/tmc/langchaingo/textsplitter"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// New returns a recursive character splitter. Non-positive sizes fall back to
// DefaultChunkSize; a negative overlap or one not smaller than the chunk size
// falls back to DefaultChunkOverlap (or zero when that is still too large).
func New(chunkSize, chunkOverlap int) textsplitter.RecursiveCharacter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = DefaultChunkOverlap
		if chunkOverlap >= chunkSize {
			chunkOverlap = 0
		}
	}

	return textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(chunkOverlap),
		textsplitter.WithSeparators([]string{"\n\n", "\n", " ", ""}),
	)
}
