package sequence

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/lxfight/astrbot-plugin-live2d-adapter/pkg/protocol"
	"github.com/lxfight/astrbot-plugin-live2d-adapter/pkg/resource"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCompiler(t *testing.T, cfg Config) *Compiler {
	t.Helper()
	cfg.Logger = testLogger()
	return NewCompiler(nil, cfg)
}

func elementTypes(seq []protocol.Element) []string {
	types := make([]string, len(seq))
	for i, e := range seq {
		types[i] = e.ElementType()
	}
	return types
}

func TestCompileTextOnlyTTSDisabled(t *testing.T) {
	c := newTestCompiler(t, Config{EnableTTS: false, EnableAutoEmotion: true})
	seq := c.Compile(context.Background(), []Item{Text{Content: "你好"}}, "", nil)

	if len(seq) == 0 {
		t.Fatal("sequence empty for non-empty text")
	}
	got := elementTypes(seq)
	want := []string{"text", "expression", "motion"}
	if len(got) != len(want) {
		t.Fatalf("types = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("types[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestCompileAttachesInferredMotionType(t *testing.T) {
	c := newTestCompiler(t, Config{EnableAutoEmotion: true})
	seq := c.Compile(context.Background(), []Item{Text{Content: "太开心了，哈哈"}}, "", nil)

	var motion *protocol.MotionElement
	for _, e := range seq {
		if m, ok := e.(*protocol.MotionElement); ok {
			motion = m
		}
	}
	if motion == nil {
		t.Fatal("no motion element in sequence")
	}
	if motion.MotionType != "happy" {
		t.Errorf("motionType = %q, want happy", motion.MotionType)
	}
}

func TestCompileLocalTTS(t *testing.T) {
	c := newTestCompiler(t, Config{
		EnableTTS: true,
		TTSMode:   protocol.TTSModeLocal,
		Voice:     "zh-CN-XiaoxiaoNeural",
	})
	seq := c.Compile(context.Background(), []Item{Text{Content: "hello"}}, "", nil)

	var tts *protocol.TTSElement
	for _, e := range seq {
		if el, ok := e.(*protocol.TTSElement); ok {
			tts = el
		}
	}
	if tts == nil {
		t.Fatal("no tts element in sequence")
	}
	if tts.TTSMode != protocol.TTSModeLocal || tts.Voice != "zh-CN-XiaoxiaoNeural" {
		t.Errorf("tts = %+v, want local mode with configured voice", tts)
	}
}

func TestCompileRemoteTTSURL(t *testing.T) {
	c := newTestCompiler(t, Config{EnableTTS: true})
	seq := c.Compile(context.Background(), []Item{Text{Content: "hi"}}, "https://tts.example/a.mp3", nil)

	var tts *protocol.TTSElement
	for _, e := range seq {
		if el, ok := e.(*protocol.TTSElement); ok {
			tts = el
		}
	}
	if tts == nil {
		t.Fatal("no tts element in sequence")
	}
	if tts.URL != "https://tts.example/a.mp3" {
		t.Errorf("tts url = %q, want passthrough", tts.URL)
	}
}

func TestCompileDropsUnresolvableMedia(t *testing.T) {
	c := newTestCompiler(t, Config{})
	seq := c.Compile(context.Background(), []Item{
		Media{Kind: KindImage, Path: "/definitely/not/here.png"},
	}, "", nil)

	for _, e := range seq {
		if e.ElementType() == "image" {
			t.Error("image element emitted for missing file")
		}
	}
	// The text summary still carries the media marker, so inference runs
	// and the sequence is non-empty.
	if len(seq) == 0 {
		t.Error("sequence empty, want inferred placeholders from media marker")
	}
}

func TestCompileMediaFileFallback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pic.png")
	if err := os.WriteFile(path, []byte("png"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	c := newTestCompiler(t, Config{})
	seq := c.Compile(context.Background(), []Item{Media{Kind: KindImage, Path: path}}, "", nil)

	var img *protocol.ImageElement
	for _, e := range seq {
		if el, ok := e.(*protocol.ImageElement); ok {
			img = el
		}
	}
	if img == nil {
		t.Fatal("no image element in sequence")
	}
	if img.URL != "file://"+path {
		t.Errorf("image url = %q, want file://%s", img.URL, path)
	}
}

func TestCompileMediaThroughStore(t *testing.T) {
	blob, err := resource.NewDiskBlob(t.TempDir())
	if err != nil {
		t.Fatalf("NewDiskBlob() error = %v", err)
	}
	store := resource.NewStore(blob, resource.Config{Logger: testLogger()})
	c := NewCompiler(store, Config{Logger: testLogger()})

	path := filepath.Join(t.TempDir(), "pic.png")
	if err := os.WriteFile(path, []byte("png bytes"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	seq := c.Compile(context.Background(), []Item{Media{Kind: KindImage, Path: path}}, "", nil)

	var img *protocol.ImageElement
	for _, e := range seq {
		if el, ok := e.(*protocol.ImageElement); ok {
			img = el
		}
	}
	if img == nil {
		t.Fatal("no image element in sequence")
	}
	if img.Inline == "" {
		t.Error("small ingested image not inlined")
	}
}

func TestCompileExplicitDirectiveSuppressesInference(t *testing.T) {
	c := newTestCompiler(t, Config{EnableAutoEmotion: true})
	seq := c.Compile(context.Background(), []Item{
		Text{Content: "太开心了"},
		MotionDirective{Group: "TapBody", Index: 1},
	}, "", nil)

	motions := 0
	for _, e := range seq {
		if m, ok := e.(*protocol.MotionElement); ok {
			motions++
			if m.Group != "TapBody" || m.MotionType != "" {
				t.Errorf("motion = %+v, want explicit TapBody without inferred type", m)
			}
		}
		if e.ElementType() == "expression" {
			t.Error("inferred expression emitted alongside explicit directive")
		}
	}
	if motions != 1 {
		t.Errorf("motion elements = %d, want 1", motions)
	}
}

func TestCompileValidatesDirectivesAgainstCatalog(t *testing.T) {
	catalog := &Catalog{
		MotionGroups: map[string]int{"TapBody": 2},
		Expressions:  []string{"smile"},
	}
	c := newTestCompiler(t, Config{})

	cases := []struct {
		name string
		item Item
		kept bool
	}{
		{"known group case-insensitive", MotionDirective{Group: "tapbody", Index: 1}, true},
		{"index out of range", MotionDirective{Group: "TapBody", Index: 5}, false},
		{"unknown group", MotionDirective{Group: "Dance", Index: 0}, false},
		{"known expression", ExpressionDirective{ID: "smile"}, true},
		{"unknown expression", ExpressionDirective{ID: "frown"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			seq := c.Compile(context.Background(), []Item{tc.item}, "", catalog)
			if kept := len(seq) > 0; kept != tc.kept {
				t.Errorf("kept = %v, want %v", kept, tc.kept)
			}
		})
	}
}

func TestCompileEmptyInput(t *testing.T) {
	c := newTestCompiler(t, Config{EnableAutoEmotion: true})
	if seq := c.Compile(context.Background(), nil, "", nil); len(seq) != 0 {
		t.Errorf("sequence = %v, want empty", elementTypes(seq))
	}
}

func TestCompileWaitItem(t *testing.T) {
	c := NewCompiler(nil, Config{EnableTTS: false, EnableAutoEmotion: false, Logger: testLogger()})

	seq := c.Compile(context.Background(), []Item{
		Text{Content: "稍等"},
		Wait{Millis: 1500},
		Text{Content: "好了"},
	}, "", nil)

	// Text still yields the trailing motion element even with auto
	// emotion off, so the sequence is text, wait, text, motion.
	if len(seq) != 4 {
		t.Fatalf("sequence length = %d, want 4", len(seq))
	}
	wait, ok := seq[1].(*protocol.WaitElement)
	if !ok {
		t.Fatalf("element 1 = %T, want wait", seq[1])
	}
	if wait.Duration != 1500 {
		t.Errorf("duration = %d, want 1500", wait.Duration)
	}
	if _, ok := seq[3].(*protocol.MotionElement); !ok {
		t.Errorf("element 3 = %T, want trailing motion", seq[3])
	}

	// Non-positive waits are dropped.
	seq = c.Compile(context.Background(), []Item{Wait{Millis: 0}}, "", nil)
	if len(seq) != 0 {
		t.Errorf("sequence length = %d, want 0 for zero wait", len(seq))
	}
}
