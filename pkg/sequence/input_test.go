package sequence

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/lxfight/astrbot-plugin-live2d-adapter/pkg/resource"
)

func newScratchStore(t *testing.T) *resource.Store {
	t.Helper()
	blob, err := resource.NewDiskBlob(t.TempDir())
	if err != nil {
		t.Fatalf("NewDiskBlob() error = %v", err)
	}
	return resource.NewStore(blob, resource.Config{Logger: testLogger()})
}

func TestConvertTextOnly(t *testing.T) {
	ic := NewInputConverter(nil, testLogger())

	items, text := ic.Convert([]any{
		map[string]any{"type": "text", "text": "你好"},
		map[string]any{"type": "text", "text": "世界"},
	})
	if text != "你好世界" {
		t.Errorf("transcript = %q, want 你好世界", text)
	}
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}
	if got, ok := items[0].(Text); !ok || got.Content != "你好" {
		t.Errorf("item 0 = %v", items[0])
	}
}

func TestConvertInlineImageGoesToStore(t *testing.T) {
	store := newScratchStore(t)
	ic := NewInputConverter(store, testLogger())

	data := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("png bytes"))
	items, text := ic.Convert([]any{
		map[string]any{"type": "image", "data": data},
	})
	if text != "[图片]" {
		t.Errorf("transcript = %q, want [图片]", text)
	}
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}
	m, ok := items[0].(Media)
	if !ok || m.Kind != KindImage || m.RID == "" {
		t.Fatalf("item = %#v, want stored image media", items[0])
	}

	// The stored bytes survive the round trip.
	rc, entry, err := store.Open(m.RID)
	if err != nil {
		t.Fatalf("Open(%s) error = %v", m.RID, err)
	}
	rc.Close()
	if entry.MIME != "image/png" {
		t.Errorf("mime = %q, want image/png", entry.MIME)
	}
}

func TestConvertImageByURL(t *testing.T) {
	ic := NewInputConverter(nil, testLogger())

	items, _ := ic.Convert([]any{
		map[string]any{"type": "image", "url": "https://cdn.example.com/a.png"},
	})
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}
	if m := items[0].(Media); m.Path != "https://cdn.example.com/a.png" {
		t.Errorf("path = %q", m.Path)
	}
}

func TestConvertLocalSTTVoiceBecomesText(t *testing.T) {
	ic := NewInputConverter(nil, testLogger())

	items, text := ic.Convert([]any{
		map[string]any{"type": "voice", "sttMode": "local", "text": "帮我查天气"},
	})
	if text != "帮我查天气" {
		t.Errorf("transcript = %q", text)
	}
	if got, ok := items[0].(Text); !ok || got.Content != "帮我查天气" {
		t.Errorf("item = %v, want recognized text", items[0])
	}
}

func TestConvertRemoteVoiceAudioWithCodecParams(t *testing.T) {
	store := newScratchStore(t)
	ic := NewInputConverter(store, testLogger())

	data := "data:audio/webm;codecs=opus;base64," +
		base64.StdEncoding.EncodeToString([]byte("audio bytes"))
	items, text := ic.Convert([]any{
		map[string]any{"type": "voice", "data": data},
	})
	if text != "[语音]" {
		t.Errorf("transcript = %q, want [语音]", text)
	}
	m, ok := items[0].(Media)
	if !ok || m.Kind != KindAudio || m.RID == "" {
		t.Fatalf("item = %#v, want stored audio media", items[0])
	}
	rc, entry, err := store.Open(m.RID)
	if err != nil {
		t.Fatalf("Open(%s) error = %v", m.RID, err)
	}
	rc.Close()
	if entry.MIME != "audio/webm" {
		t.Errorf("mime = %q, want audio/webm stripped of codec params", entry.MIME)
	}
}

func TestConvertDropsGarbageEntries(t *testing.T) {
	ic := NewInputConverter(nil, testLogger())

	items, text := ic.Convert([]any{
		"not a map",
		map[string]any{"type": "image", "data": "data:image/png;base64,!!!not-base64!!!"},
		map[string]any{"type": "hologram"},
		map[string]any{"type": "text", "text": "ok"},
	})
	if len(items) != 1 {
		t.Fatalf("items = %d, want only the text item", len(items))
	}
	if !strings.Contains(text, "ok") {
		t.Errorf("transcript = %q", text)
	}
}
