package sequence

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"github.com/lxfight/astrbot-plugin-live2d-adapter/pkg/protocol"
	"github.com/lxfight/astrbot-plugin-live2d-adapter/pkg/resource"
)

// Config controls compiler behavior.
type Config struct {
	// EnableTTS emits a tts element alongside every text element.
	EnableTTS bool

	// TTSMode selects protocol.TTSModeRemote or protocol.TTSModeLocal
	// when no pre-synthesized audio URL accompanies the text.
	TTSMode string

	// Voice is the client-side voice used in local TTS mode.
	Voice string

	// EnableAutoEmotion appends inferred motion/expression placeholders
	// when the input carries no explicit directive.
	EnableAutoEmotion bool

	// DisableStreaming suppresses partial sequences: CompilePartial
	// returns nil and callers fall back to whole-reply performs.
	DisableStreaming bool

	// MinFlushRunes is the stream buffer flush threshold handed out by
	// NewStream. Defaults to DefaultMinFlushRunes.
	MinFlushRunes int

	// Logger for compile events. Defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns compiler defaults: TTS and auto emotion on,
// remote synthesis, the stock voice.
func DefaultConfig() Config {
	return Config{
		EnableTTS:         true,
		TTSMode:           protocol.TTSModeRemote,
		Voice:             "zh-CN-XiaoxiaoNeural",
		EnableAutoEmotion: true,
		MinFlushRunes:     DefaultMinFlushRunes,
	}
}

// Compiler turns ordered content items into performance sequences. A nil
// store disables resource ingestion; local media then falls back to
// file:// URLs.
type Compiler struct {
	cfg     Config
	store   *resource.Store
	matcher *Matcher
	logger  *slog.Logger
}

// NewCompiler builds a compiler over the given resource store (may be
// nil) using the default motion taxonomy.
func NewCompiler(store *resource.Store, cfg Config) *Compiler {
	if cfg.TTSMode == "" {
		cfg.TTSMode = protocol.TTSModeRemote
	}
	if cfg.MinFlushRunes <= 0 {
		cfg.MinFlushRunes = DefaultMinFlushRunes
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Compiler{
		cfg:     cfg,
		store:   store,
		matcher: NewMatcher(),
		logger:  cfg.Logger.With("component", "sequence_compiler"),
	}
}

// Matcher exposes the compiler's motion type matcher.
func (c *Compiler) Matcher() *Matcher { return c.matcher }

// Compile converts items into a performance sequence. ttsURL, when
// non-empty, is pre-synthesized audio attached to text runs. catalog,
// when non-nil, validates explicit directives; invalid directives are
// dropped rather than sent. Explicit directives suppress the inferred
// motion/expression placeholders.
func (c *Compiler) Compile(ctx context.Context, items []Item, ttsURL string, catalog *Catalog) []protocol.Element {
	var (
		seq      []protocol.Element
		fullText strings.Builder
		explicit bool
	)

	for _, item := range items {
		switch it := item.(type) {
		case Text:
			if it.Content == "" {
				continue
			}
			fullText.WriteString(it.Content)
			seq = append(seq, protocol.NewTextElement(it.Content))
			if tts := c.buildTTS(ctx, it.Content, ttsURL); tts != nil {
				seq = append(seq, tts)
			}

		case Media:
			if el := c.buildMedia(ctx, it); el != nil {
				seq = append(seq, el)
			} else {
				// Dropped media still shows up in the text summary so
				// inference sees that something was attached.
				fullText.WriteString("[" + it.Kind + "]")
				c.logger.Debug("dropped unresolvable media", "kind", it.Kind, "path", it.Path)
			}

		case MotionDirective:
			if !catalog.HasMotion(it.Group, it.Index) {
				c.logger.Debug("dropped motion outside catalog", "group", it.Group, "index", it.Index)
				continue
			}
			el := protocol.NewMotionElement(it.Group, it.Index)
			if it.Priority > 0 {
				el.Priority = it.Priority
			}
			seq = append(seq, el)
			explicit = true

		case ExpressionDirective:
			if !catalog.HasExpression(it.ID) {
				c.logger.Debug("dropped expression outside catalog", "id", it.ID)
				continue
			}
			el := protocol.NewExpressionElement(it.ID)
			if it.Fade > 0 {
				el.Fade = it.Fade
			}
			seq = append(seq, el)
			explicit = true

		case Wait:
			if it.Millis > 0 {
				seq = append(seq, &protocol.WaitElement{Duration: it.Millis})
			}
		}
	}

	text := fullText.String()
	if text != "" && !explicit {
		seq = append(seq, c.emotionElements(text)...)
	}
	return seq
}

// emotionElements builds the typed expression/motion placeholders for
// the inferred motion type. Concrete asset ids stay unset: the client
// picks from its local assignment for the type, falling back to its idle
// set.
func (c *Compiler) emotionElements(text string) []protocol.Element {
	motionType := c.matcher.Match(text)
	if !c.cfg.EnableAutoEmotion {
		motion := protocol.NewMotionElement("Idle", 0)
		motion.MotionType = motionType
		return []protocol.Element{motion}
	}

	expr := protocol.NewExpressionElement("")
	expr.MotionType = motionType
	motion := protocol.NewMotionElement("Idle", 0)
	motion.MotionType = motionType
	return []protocol.Element{expr, motion}
}

func (c *Compiler) buildTTS(ctx context.Context, text, ttsURL string) protocol.Element {
	if !c.cfg.EnableTTS {
		return nil
	}
	if ttsURL != "" {
		ref := c.resolveRef(ctx, ttsURL, KindAudio)
		if ref == nil {
			return nil
		}
		return protocol.NewRemoteTTSElement(text, ref.URL, ref.RID, ref.Inline)
	}
	if c.cfg.TTSMode == protocol.TTSModeLocal {
		return protocol.NewLocalTTSElement(text, c.cfg.Voice)
	}
	return nil
}

func (c *Compiler) buildMedia(ctx context.Context, m Media) protocol.Element {
	var ref *resource.Reference
	if m.RID != "" && c.store != nil {
		var err error
		if ref, err = c.store.Get(ctx, m.RID); err != nil {
			c.logger.Warn("unknown media rid", "rid", m.RID, "error", err)
			return nil
		}
	} else {
		ref = c.resolveRef(ctx, m.Path, m.Kind)
	}
	if ref == nil {
		return nil
	}
	switch m.Kind {
	case KindImage:
		return protocol.NewImageElement(ref.URL, ref.RID, ref.Inline)
	case KindAudio:
		return protocol.NewRemoteTTSElement("", ref.URL, ref.RID, ref.Inline)
	case KindVideo:
		return protocol.NewVideoElement(ref.URL, ref.RID, ref.Inline)
	default:
		return nil
	}
}

// resolveRef turns a path or URL into a resource reference. Remote URLs
// pass through untouched, local files are ingested into the store when
// one is configured, and a file:// URL is the last resort.
func (c *Compiler) resolveRef(ctx context.Context, path, kind string) *resource.Reference {
	if path == "" {
		return nil
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return &resource.Reference{URL: path, Kind: kind}
	}
	if strings.HasPrefix(path, "file://") {
		path = strings.TrimPrefix(path, "file://")
		path = strings.TrimPrefix(path, "/")
		if runtime.GOOS != "windows" {
			path = "/" + path
		}
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if c.store == nil {
		return &resource.Reference{URL: fileURL(path), Kind: kind}
	}
	ref, err := c.store.BuildReferenceFromFile(ctx, path, kind)
	if err != nil {
		c.logger.Warn("resource ingest failed", "path", path, "error", err)
		return nil
	}
	return ref
}

func fileURL(path string) string {
	if runtime.GOOS == "windows" {
		return "file:///" + path
	}
	return fmt.Sprintf("file://%s", path)
}
