// Package chunker splits document text into overlapping, paragraph/
// sentence-aware chunks annotated with neighbor-context metadata.
package chunker

import (
	"regexp"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/kestrelai/localrag/store"
)

// Config controls the chunking behaviour (spec §4.2).
type Config struct {
	ChunkSize int // target chunk size in characters (S)
	MinSize   int // minimum chunk size in characters (M, default S/2)
}

// Chunk is a chunker-produced fragment, ready to be attached to a
// document id and inserted via store.InsertChunks.
type Chunk struct {
	Content     string
	Index       int
	Tokens      int
	StartChar   int
	EndChar     int
	Type        store.ChunkType
	PrevContext string
	NextContext string
	TotalChunks int
}

// Chunker converts a text blob into Chunks per the greedy paragraph/
// sentence accumulation algorithm.
type Chunker struct {
	cfg Config
	enc *tiktoken.Tiktoken
}

// New returns a Chunker with the given configuration. Zero-value fields
// fall back to the spec defaults (ChunkSize=800, MinSize=ChunkSize/2).
func New(cfg Config) *Chunker {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 800
	}
	if cfg.MinSize <= 0 {
		cfg.MinSize = cfg.ChunkSize / 2
	}
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		enc = nil
	}
	return &Chunker{cfg: cfg, enc: enc}
}

type paragraph struct {
	text  string
	start int
	end   int
}

var (
	bulletPattern  = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s+`)
	terminalPunct  = regexp.MustCompile(`[.!?]\s*$`)
	sentenceSplit  = regexp.MustCompile(`([.!?])(\s+)`)
)

// Chunk splits text into chunks following spec §4.2: normalize line
// endings, split into paragraphs on blank lines, classify each
// paragraph, greedily accumulate up to ChunkSize with one paragraph of
// carry-forward overlap, fall back to sentence splitting for any single
// paragraph exceeding 1.5*ChunkSize, then annotate prev/next context.
func (c *Chunker) Chunk(text string) []Chunk {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")

	paragraphs := splitParagraphs(normalized)
	if len(paragraphs) == 0 {
		return nil
	}

	var chunks []Chunk
	var acc []paragraph
	onlyCarried := false // true iff acc is exactly the carry-forward paragraph from the last flush, untouched since
	overflow := 1.5 * float64(c.cfg.ChunkSize)

	flush := func() {
		if len(acc) == 0 {
			return
		}
		chunks = append(chunks, c.buildChunk(acc))
		// carry the last paragraph of the just-emitted chunk forward
		acc = []paragraph{acc[len(acc)-1]}
		onlyCarried = true
	}

	for _, p := range paragraphs {
		if float64(len(p.text)) > overflow {
			// flush whatever is accumulated, dropping a bare carry-forward
			// paragraph since it was already emitted in the prior chunk
			if len(acc) > 0 && !onlyCarried {
				chunks = append(chunks, c.buildChunk(acc))
			}
			acc = nil
			onlyCarried = false
			chunks = append(chunks, c.splitOversizedParagraph(p)...)
			continue
		}

		candidateLen := accLen(acc) + len(p.text)
		if candidateLen > c.cfg.ChunkSize && accLen(acc) > 0 {
			flush()
		}
		acc = append(acc, p)
		onlyCarried = false
	}
	if accLen(acc) > 0 && !onlyCarried {
		chunks = append(chunks, c.buildChunk(acc))
	}

	for i := range chunks {
		chunks[i].Index = i
		chunks[i].TotalChunks = len(chunks)
		if i > 0 {
			chunks[i].PrevContext = lastSentence(chunks[i-1].Content)
		}
		if i < len(chunks)-1 {
			chunks[i].NextContext = firstSentence(chunks[i+1].Content)
		}
	}
	return chunks
}

func accLen(acc []paragraph) int {
	n := 0
	for i, p := range acc {
		n += len(p.text)
		if i > 0 {
			n += 2 // the blank-line separator we rejoin with
		}
	}
	return n
}

func (c *Chunker) buildChunk(acc []paragraph) Chunk {
	texts := make([]string, len(acc))
	for i, p := range acc {
		texts[i] = p.text
	}
	content := strings.Join(texts, "\n\n")
	return Chunk{
		Content:   content,
		Tokens:    c.countTokens(content),
		StartChar: acc[0].start,
		EndChar:   acc[len(acc)-1].end,
		Type:      classifyParagraphs(acc),
	}
}

// splitOversizedParagraph applies the same greedy accumulation policy at
// sentence granularity to a paragraph exceeding 1.5*ChunkSize (spec §4.2
// step 4).
func (c *Chunker) splitOversizedParagraph(p paragraph) []Chunk {
	sentences := splitSentences(p.text, p.start)
	if len(sentences) == 0 {
		return []Chunk{{
			Content:   p.text,
			Tokens:    c.countTokens(p.text),
			StartChar: p.start,
			EndChar:   p.end,
			Type:      classifyParagraphs([]paragraph{p}),
		}}
	}

	var out []Chunk
	var acc []paragraph // reuse paragraph struct to track text+offsets per sentence

	flush := func() {
		if len(acc) == 0 {
			return
		}
		texts := make([]string, len(acc))
		for i, s := range acc {
			texts[i] = s.text
		}
		content := strings.Join(texts, " ")
		out = append(out, Chunk{
			Content:   content,
			Tokens:    c.countTokens(content),
			StartChar: acc[0].start,
			EndChar:   acc[len(acc)-1].end,
			Type:      classifyParagraphs([]paragraph{p}),
		})
		acc = []paragraph{acc[len(acc)-1]}
	}

	for _, s := range sentences {
		candidateLen := accLen(acc) + len(s.text)
		if candidateLen > c.cfg.ChunkSize && accLen(acc) > 0 {
			flush()
		}
		acc = append(acc, s)
	}
	if accLen(acc) > 0 {
		texts := make([]string, len(acc))
		for i, s := range acc {
			texts[i] = s.text
		}
		content := strings.Join(texts, " ")
		out = append(out, Chunk{
			Content:   content,
			Tokens:    c.countTokens(content),
			StartChar: acc[0].start,
			EndChar:   acc[len(acc)-1].end,
			Type:      classifyParagraphs([]paragraph{p}),
		})
	}
	return out
}

func (c *Chunker) countTokens(text string) int {
	if c.enc == nil {
		// No tokenizer available — fall back to a word-count estimate.
		return len(strings.Fields(text))
	}
	return len(c.enc.Encode(text, nil, nil))
}

// splitParagraphs splits text on blank-line boundaries, preserving the
// original character offsets of each surviving paragraph.
func splitParagraphs(text string) []paragraph {
	var out []paragraph
	offset := 0
	for _, raw := range strings.Split(text, "\n\n") {
		start := offset
		offset += len(raw) + 2 // account for the removed separator
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		leading := strings.Index(raw, trimmed)
		if leading < 0 {
			leading = 0
		}
		out = append(out, paragraph{
			text:  trimmed,
			start: start + leading,
			end:   start + leading + len(trimmed),
		})
	}
	return out
}

// splitSentences splits text on `[.!?]` followed by whitespace,
// preserving character offsets relative to baseOffset.
func splitSentences(text string, baseOffset int) []paragraph {
	var out []paragraph
	last := 0
	locs := sentenceSplit.FindAllStringIndex(text, -1)
	for _, loc := range locs {
		end := loc[1]
		sentence := strings.TrimSpace(text[last:end])
		if sentence != "" {
			out = append(out, paragraph{
				text:  sentence,
				start: baseOffset + last,
				end:   baseOffset + end,
			})
		}
		last = end
	}
	if last < len(text) {
		sentence := strings.TrimSpace(text[last:])
		if sentence != "" {
			out = append(out, paragraph{
				text:  sentence,
				start: baseOffset + last,
				end:   baseOffset + len(text),
			})
		}
	}
	return out
}

// classifyParagraphs classifies a run of source paragraphs per spec
// §4.2 step 2: heading (single paragraph, single line, <100 chars, no
// terminal punctuation), list (every paragraph is bullet/numbered),
// mixed (some but not all), else paragraph.
func classifyParagraphs(acc []paragraph) store.ChunkType {
	if len(acc) == 1 && isHeading(acc[0].text) {
		return store.ChunkHeading
	}

	listCount := 0
	for _, p := range acc {
		if isListParagraph(p.text) {
			listCount++
		}
	}
	switch {
	case listCount == len(acc):
		return store.ChunkList
	case listCount > 0:
		return store.ChunkMixed
	default:
		return store.ChunkParagraph
	}
}

func isHeading(text string) bool {
	if strings.Contains(text, "\n") {
		return false
	}
	if len(text) >= 100 {
		return false
	}
	return !terminalPunct.MatchString(text)
}

func isListParagraph(text string) bool {
	lines := strings.Split(text, "\n")
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if !bulletPattern.MatchString(line) {
			return false
		}
	}
	return true
}

func lastSentence(text string) string {
	sentences := splitSentences(text, 0)
	if len(sentences) == 0 {
		return ""
	}
	return sentences[len(sentences)-1].text
}

func firstSentence(text string) string {
	sentences := splitSentences(text, 0)
	if len(sentences) == 0 {
		return ""
	}
	return sentences[0].text
}
