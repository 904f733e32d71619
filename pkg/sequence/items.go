package sequence

import "strings"

// Item is one piece of outbound content handed to the compiler. The
// concrete variants are Text, Media, MotionDirective,
// ExpressionDirective, and Wait.
type Item interface {
	isItem()
}

// Text is a plain text run.
type Text struct {
	Content string
}

func (Text) isItem() {}

// Media kinds accepted by the compiler.
const (
	KindImage = "image"
	KindAudio = "audio"
	KindVideo = "video"
	KindFile  = "file"
)

// Media references an image, audio clip, video, or file by local path,
// URL, or the id of an object already resident in a store. Unresolvable
// media is dropped from the sequence; the running text summary still
// notes its kind.
type Media struct {
	Kind string
	Path string
	RID  string
}

func (Media) isItem() {}

// MotionDirective requests a concrete motion, bypassing type inference.
// Group and index are validated against the client's declared catalog
// when one is known.
type MotionDirective struct {
	Group    string
	Index    int
	Priority int
}

func (MotionDirective) isItem() {}

// ExpressionDirective requests a concrete expression, bypassing type
// inference.
type ExpressionDirective struct {
	ID   string
	Fade int
}

func (ExpressionDirective) isItem() {}

// Wait pauses sequence playback for Millis milliseconds.
type Wait struct {
	Millis int
}

func (Wait) isItem() {}

// Catalog is the client's declared model asset catalog, used to validate
// explicit directives. MotionGroups maps group name to motion count.
type Catalog struct {
	MotionGroups map[string]int
	Expressions  []string
}

// HasMotion reports whether group/index exists, matching the group name
// case-insensitively. A nil catalog accepts everything.
func (c *Catalog) HasMotion(group string, index int) bool {
	if c == nil || len(c.MotionGroups) == 0 {
		return true
	}
	for name, count := range c.MotionGroups {
		if strings.EqualFold(name, group) {
			return index >= 0 && index < count
		}
	}
	return false
}

// HasExpression reports whether the expression id is declared. A nil
// catalog accepts everything.
func (c *Catalog) HasExpression(id string) bool {
	if c == nil || len(c.Expressions) == 0 {
		return true
	}
	for _, e := range c.Expressions {
		if strings.EqualFold(e, id) {
			return true
		}
	}
	return false
}
