package tts

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultChunkSize keeps each piece under the backend's 1000 character limit.
const DefaultChunkSize = 995

// Split points in order of preference. Sentence ends split after the match,
// phrase boundaries before it.
var (
	sentenceEnds = []*regexp.Regexp{
		regexp.MustCompile(`[.!?]+\s+`),
		regexp.MustCompile(`[.!?]+$`),
		regexp.MustCompile(`;\s+`),
		regexp.MustCompile(`:\s+`),
		regexp.MustCompile(`,\s+`),
	}

	phraseBounds = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\s+(?:and|but|or|so|yet|for|nor|because|since|although|though|while|whereas|however|nevertheless|furthermore|moreover|therefore|thus|consequently|meanwhile|subsequently|finally|ultimately|in conclusion|in summary|additionally)\s+`),
		regexp.MustCompile(`(?i)\s+(?:first|second|third|next|then|after|before|during|meanwhile|finally|lastly)\s+`),
		regexp.MustCompile(`(?i)\s+(?:for example|for instance|such as|including|like|namely|specifically|particularly)\s+`),
		regexp.MustCompile(`(?i)\s+(?:in other words|that is|i\.e\.|e\.g\.)\s+`),
	}

	wordBound = regexp.MustCompile(`\s+`)
)

// Chunk is one piece of a split text.
type Chunk struct {
	Text  string
	Index int
	Final bool
}

// Chunker splits long text at natural speech boundaries. Sizes count runes.
type Chunker struct {
	MaxSize int
}

// NewChunker creates a chunker; maxSize <= 0 uses DefaultChunkSize.
func NewChunker(maxSize int) *Chunker {
	if maxSize <= 0 {
		maxSize = DefaultChunkSize
	}
	return &Chunker{MaxSize: maxSize}
}

// Split returns the chunks of text. Empty text yields no chunks.
func (c *Chunker) Split(text string) []Chunk {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var chunks []Chunk
	remaining := text
	for remaining != "" {
		if utf8.RuneCountInString(remaining) <= c.MaxSize {
			chunks = append(chunks, Chunk{Text: strings.TrimSpace(remaining), Index: len(chunks)})
			break
		}
		at := c.splitPoint(remaining)
		chunks = append(chunks, Chunk{Text: strings.TrimSpace(remaining[:at]), Index: len(chunks)})
		remaining = strings.TrimSpace(remaining[at:])
	}

	chunks[len(chunks)-1].Final = true
	return chunks
}

// splitPoint returns the byte offset at which to cut text, which is longer
// than MaxSize runes.
func (c *Chunker) splitPoint(text string) int {
	limit := runeOffset(text, c.MaxSize)
	half := runeOffset(text, c.MaxSize/2)
	window := text[half:runeOffset(text, c.MaxSize+100)]

	for _, re := range sentenceEnds {
		matches := re.FindAllStringIndex(window, -1)
		for i := len(matches) - 1; i >= 0; i-- {
			if at := half + matches[i][1]; at <= limit {
				return at
			}
		}
	}

	for _, re := range phraseBounds {
		matches := re.FindAllStringIndex(window, -1)
		for i := len(matches) - 1; i >= 0; i-- {
			if at := half + matches[i][0]; at <= limit && at > half {
				return at
			}
		}
	}

	if matches := wordBound.FindAllStringIndex(text[:limit], -1); len(matches) > 0 {
		if at := matches[len(matches)-1][0]; at > half {
			return at
		}
	}

	return limit
}

// runeOffset returns the byte offset of the n-th rune, clamped to len(s).
func runeOffset(s string, n int) int {
	if n <= 0 {
		return 0
	}
	count := 0
	for i := range s {
		if count == n {
			return i
		}
		count++
	}
	return len(s)
}

// ChunkingInfo describes how a text would be split.
type ChunkingInfo struct {
	OriginalLength int
	ChunkCount     int
	AvgChunkSize   float64
	MaxChunkUsed   int
	Chunks         []ChunkSummary
}

// ChunkSummary previews one chunk.
type ChunkSummary struct {
	Index   int
	Length  int
	Preview string
	Final   bool
}

// Info reports chunking statistics for text.
func (c *Chunker) Info(text string) ChunkingInfo {
	chunks := c.Split(text)
	info := ChunkingInfo{
		OriginalLength: utf8.RuneCountInString(text),
		ChunkCount:     len(chunks),
	}
	total := 0
	for _, ch := range chunks {
		n := utf8.RuneCountInString(ch.Text)
		total += n
		if n > info.MaxChunkUsed {
			info.MaxChunkUsed = n
		}
		preview := ch.Text
		if n > 50 {
			preview = string([]rune(ch.Text)[:50]) + "..."
		}
		info.Chunks = append(info.Chunks, ChunkSummary{
			Index:   ch.Index,
			Length:  n,
			Preview: preview,
			Final:   ch.Final,
		})
	}
	if len(chunks) > 0 {
		info.AvgChunkSize = float64(total) / float64(len(chunks))
	}
	return info
}
