package protocol

import "encoding/json"

// Element is one entry of a performance sequence. The concrete variants
// are closed: Text, TTS, Image, Video, Motion, Expression, and Wait.
// Sequence order is playback order and is preserved end to end.
type Element interface {
	// ElementType returns the wire "type" tag of the element.
	ElementType() string
}

// Size is a width/height pair in pixels.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// TextElement shows a text bubble. Duration 0 means persistent display.
type TextElement struct {
	Content  string
	Duration int
	Position string
	Style    map[string]any
}

func (TextElement) ElementType() string { return "text" }

// NewTextElement builds a persistent centered text bubble.
func NewTextElement(content string) *TextElement {
	return &TextElement{Content: content, Duration: 0, Position: "center"}
}

func (e *TextElement) MarshalJSON() ([]byte, error) {
	m := map[string]any{
		"type":     "text",
		"content":  e.Content,
		"duration": e.Duration,
		"position": e.Position,
	}
	if len(e.Style) > 0 {
		m["style"] = e.Style
	}
	return json.Marshal(m)
}

// TTSMode selects where speech audio is synthesized.
const (
	TTSModeRemote = "remote" // server supplies the audio (url/rid/inline)
	TTSModeLocal  = "local"  // client synthesizes with its own voice
)

// TTSElement plays speech audio alongside the text it voices. Exactly one
// of URL, RID, or Inline is set for remote audio; local mode carries a
// voice name instead.
type TTSElement struct {
	Text    string
	URL     string
	RID     string
	Inline  string
	TTSMode string
	Voice   string
	Volume  float64
	Speed   float64
}

func (TTSElement) ElementType() string { return "tts" }

// NewRemoteTTSElement builds a TTS element referencing pre-synthesized
// audio by url, rid, or inline payload (whichever is non-empty).
func NewRemoteTTSElement(text, url, rid, inline string) *TTSElement {
	return &TTSElement{
		Text: text, URL: url, RID: rid, Inline: inline,
		TTSMode: TTSModeRemote, Volume: 1.0, Speed: 1.0,
	}
}

// NewLocalTTSElement builds a TTS element asking the client to synthesize
// the text with the given voice.
func NewLocalTTSElement(text, voice string) *TTSElement {
	return &TTSElement{Text: text, TTSMode: TTSModeLocal, Voice: voice, Volume: 1.0, Speed: 1.0}
}

func (e *TTSElement) MarshalJSON() ([]byte, error) {
	m := map[string]any{
		"type":   "tts",
		"text":   e.Text,
		"volume": e.Volume,
		"speed":  e.Speed,
	}
	switch {
	case e.URL != "":
		m["url"] = e.URL
		m["ttsMode"] = TTSModeRemote
	case e.RID != "":
		m["rid"] = e.RID
		m["ttsMode"] = TTSModeRemote
	case e.Inline != "":
		m["inline"] = e.Inline
		m["ttsMode"] = TTSModeRemote
	case e.TTSMode == TTSModeLocal && e.Voice != "":
		m["ttsMode"] = TTSModeLocal
		m["voice"] = e.Voice
	}
	return json.Marshal(m)
}

// ImageElement shows an image referenced by url, rid, or inline payload.
type ImageElement struct {
	URL      string
	RID      string
	Inline   string
	Duration int
	Position string
	Size     *Size
}

func (ImageElement) ElementType() string { return "image" }

// NewImageElement builds a centered image shown for five seconds.
func NewImageElement(url, rid, inline string) *ImageElement {
	return &ImageElement{URL: url, RID: rid, Inline: inline, Duration: 5000, Position: "center"}
}

func (e *ImageElement) MarshalJSON() ([]byte, error) {
	m := map[string]any{
		"type":     "image",
		"duration": e.Duration,
		"position": e.Position,
	}
	addRef(m, e.URL, e.RID, e.Inline)
	if e.Size != nil {
		m["size"] = e.Size
	}
	return json.Marshal(m)
}

// VideoElement plays a video clip.
type VideoElement struct {
	URL      string
	RID      string
	Inline   string
	Duration int
	Position string
	Size     *Size
	Autoplay bool
	Loop     bool
}

func (VideoElement) ElementType() string { return "video" }

// NewVideoElement builds an autoplaying centered video.
func NewVideoElement(url, rid, inline string) *VideoElement {
	return &VideoElement{URL: url, RID: rid, Inline: inline, Position: "center", Autoplay: true}
}

func (e *VideoElement) MarshalJSON() ([]byte, error) {
	m := map[string]any{
		"type":     "video",
		"duration": e.Duration,
		"position": e.Position,
		"autoplay": e.Autoplay,
		"loop":     e.Loop,
	}
	addRef(m, e.URL, e.RID, e.Inline)
	if e.Size != nil {
		m["size"] = e.Size
	}
	return json.Marshal(m)
}

// MotionElement plays a motion from the client's catalog. When MotionType
// is set the group/index pair is a placeholder: the client picks a
// concrete motion of that type from its local assignment, falling back to
// its idle set when the type has no assets.
type MotionElement struct {
	Group      string
	Index      int
	Priority   int
	Loop       bool
	FadeIn     int
	FadeOut    int
	MotionType string
}

func (MotionElement) ElementType() string { return "motion" }

// NewMotionElement builds a motion element with the default priority and
// fade times.
func NewMotionElement(group string, index int) *MotionElement {
	return &MotionElement{Group: group, Index: index, Priority: 2, FadeIn: 300, FadeOut: 300}
}

func (e *MotionElement) MarshalJSON() ([]byte, error) {
	m := map[string]any{
		"type":     "motion",
		"group":    e.Group,
		"index":    e.Index,
		"priority": e.Priority,
		"loop":     e.Loop,
		"fadeIn":   e.FadeIn,
		"fadeOut":  e.FadeOut,
	}
	if e.MotionType != "" {
		m["motionType"] = e.MotionType
	}
	return json.Marshal(m)
}

// ExpressionElement sets a facial expression. An empty ID with a
// MotionType tag delegates the concrete choice to the client.
type ExpressionElement struct {
	ID         string
	Fade       int
	MotionType string
}

func (ExpressionElement) ElementType() string { return "expression" }

// NewExpressionElement builds an expression element with the default fade.
func NewExpressionElement(id string) *ExpressionElement {
	return &ExpressionElement{ID: id, Fade: 300}
}

func (e *ExpressionElement) MarshalJSON() ([]byte, error) {
	m := map[string]any{
		"type": "expression",
		"id":   e.ID,
		"fade": e.Fade,
	}
	if e.MotionType != "" {
		m["motionType"] = e.MotionType
	}
	return json.Marshal(m)
}

// WaitElement pauses playback for Duration milliseconds.
type WaitElement struct {
	Duration int
}

func (WaitElement) ElementType() string { return "wait" }

func (e *WaitElement) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{"type": "wait", "duration": e.Duration})
}

func addRef(m map[string]any, url, rid, inline string) {
	if url != "" {
		m["url"] = url
	}
	if rid != "" {
		m["rid"] = rid
	}
	if inline != "" {
		m["inline"] = inline
	}
}
