package chunker

import "strings"

// DefaultWordsPerChunk keeps each chunk well inside the input window of
// small sentence-embedding models.
const DefaultWordsPerChunk = 100

// WordChunker splits text into whitespace-delimited word windows with
// optional overlap.
type WordChunker struct {
	wordsPerChunk int
	overlapWords  int
}

func NewWordChunker(wordsPerChunk, overlapWords int) *WordChunker {
	if wordsPerChunk <= 0 {
		wordsPerChunk = DefaultWordsPerChunk
	}
	if overlapWords < 0 || overlapWords >= wordsPerChunk {
		overlapWords = 0
	}
	return &WordChunker{wordsPerChunk: wordsPerChunk, overlapWords: overlapWords}
}

// Chunk returns the chunks of text in order; blank text yields none.
func (c *WordChunker) Chunk(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	var chunks []string
	i := 0
	for i < len(words) {
		end := min(i+c.wordsPerChunk, len(words))
		chunks = append(chunks, strings.Join(words[i:end], " "))
		if end == len(words) {
			break
		}
		i = end - c.overlapWords
	}
	return chunks
}
