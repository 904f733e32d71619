package sequence

import (
	"strings"
	"unicode/utf8"

	"github.com/lxfight/astrbot-plugin-live2d-adapter/pkg/protocol"
)

// DefaultMinFlushRunes is the buffered length at which a partial flush
// happens even without a sentence boundary.
const DefaultMinFlushRunes = 10

// sentence-terminating runes that force a flush.
var flushRunes = map[rune]struct{}{
	'。': {}, '！': {}, '？': {}, '\n': {},
	'.': {}, '!': {}, '?': {},
}

// StreamBuffer accumulates incrementally arriving text and decides when
// a partial segment is worth sending: either the buffer reached the
// minimum length or it ends on a sentence boundary. Not safe for
// concurrent use; each streaming reply owns its own buffer.
type StreamBuffer struct {
	minRunes int
	buf      strings.Builder
	total    strings.Builder
}

// NewStreamBuffer returns a buffer flushing at minRunes, or
// DefaultMinFlushRunes when minRunes is not positive.
func NewStreamBuffer(minRunes int) *StreamBuffer {
	if minRunes <= 0 {
		minRunes = DefaultMinFlushRunes
	}
	return &StreamBuffer{minRunes: minRunes}
}

// Add appends a chunk and returns a segment ready to send, if any.
func (b *StreamBuffer) Add(chunk string) (segment string, ok bool) {
	if chunk == "" {
		return "", false
	}
	b.buf.WriteString(chunk)
	b.total.WriteString(chunk)

	s := b.buf.String()
	last, _ := utf8.DecodeLastRuneInString(s)
	_, boundary := flushRunes[last]
	if !boundary && utf8.RuneCountInString(s) < b.minRunes {
		return "", false
	}
	b.buf.Reset()
	return s, true
}

// Flush returns any buffered remainder.
func (b *StreamBuffer) Flush() (segment string, ok bool) {
	s := b.buf.String()
	b.buf.Reset()
	return s, s != ""
}

// Accumulated returns the full text seen so far, for end-of-stream
// motion inference.
func (b *StreamBuffer) Accumulated() string {
	return b.total.String()
}

// NewStream returns a stream buffer using the compiler's configured
// flush threshold. Each streaming reply gets its own buffer.
func (c *Compiler) NewStream() *StreamBuffer {
	return NewStreamBuffer(c.cfg.MinFlushRunes)
}

// CompilePartial turns one streamed text segment into a minimal partial
// sequence: a single persistent text bubble. Partial sequences are sent
// non-interrupting so earlier segments keep playing. With streaming
// disabled nothing is emitted; the reply arrives whole at the end.
func (c *Compiler) CompilePartial(segment string) []protocol.Element {
	if segment == "" || c.cfg.DisableStreaming {
		return nil
	}
	return []protocol.Element{protocol.NewTextElement(segment)}
}

// CompileFinal closes a streamed reply: the remaining segment (possibly
// empty) plus the motion/expression placeholders inferred from the whole
// accumulated text.
func (c *Compiler) CompileFinal(remainder, fullText string) []protocol.Element {
	var seq []protocol.Element
	if remainder != "" {
		seq = append(seq, protocol.NewTextElement(remainder))
	}
	if fullText != "" {
		seq = append(seq, c.emotionElements(fullText)...)
	}
	return seq
}
