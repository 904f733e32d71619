package sequence

import (
	"bytes"
	"encoding/base64"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/lxfight/astrbot-plugin-live2d-adapter/pkg/resource"
)

var (
	dataImagePattern = regexp.MustCompile(`^data:image/(\w+);base64,(.+)$`)
	dataAudioPattern = regexp.MustCompile(`^data:audio/([^;,]+)(?:[^,]*)?;base64,(.+)$`)
)

// audioExtensions maps data URI audio formats to file extensions.
var audioExtensions = map[string]string{
	"webm": "webm",
	"ogg":  "ogg",
	"opus": "opus",
	"mp4":  "m4a",
	"mpeg": "mp3",
	"wav":  "wav",
}

// InputConverter turns an input.message content array into normalized
// items plus the plain-text transcript of the message. Inline base64
// media is decoded into the scratch store so the chat backend receives
// stable references instead of megabyte payloads.
type InputConverter struct {
	store  *resource.Store
	logger *slog.Logger
}

// NewInputConverter builds a converter backed by the scratch store.
// store may be nil; decoded media then lands in the OS temp directory.
func NewInputConverter(store *resource.Store, logger *slog.Logger) *InputConverter {
	if logger == nil {
		logger = slog.Default()
	}
	return &InputConverter{
		store:  store,
		logger: logger.With("component", "input_converter"),
	}
}

// Convert walks the content array of an input.message payload. Each
// entry is a map with a "type" discriminator: text entries keep their
// text, image and voice entries yield Media items. Entries that cannot
// be resolved are dropped with a log line; the transcript still marks
// them so downstream text processing sees an attachment happened.
func (ic *InputConverter) Convert(content []any) ([]Item, string) {
	var (
		items []Item
		text  strings.Builder
	)

	for _, raw := range content {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		switch entry["type"] {
		case "text":
			s, _ := entry["text"].(string)
			if s == "" {
				continue
			}
			items = append(items, Text{Content: s})
			text.WriteString(s)

		case "image":
			if m, ok := ic.convertImage(entry); ok {
				items = append(items, m)
				text.WriteString("[图片]")
			}

		case "voice":
			item, transcript, ok := ic.convertVoice(entry)
			if ok {
				items = append(items, item)
			}
			text.WriteString(transcript)
		}
	}

	return items, text.String()
}

func (ic *InputConverter) convertImage(entry map[string]any) (Media, bool) {
	data, _ := entry["data"].(string)
	if match := dataImagePattern.FindStringSubmatch(data); match != nil {
		raw, err := base64.StdEncoding.DecodeString(match[2])
		if err != nil {
			ic.logger.Warn("bad base64 image payload", "error", err)
			return Media{}, false
		}
		return ic.ingest(KindImage, "image/"+match[1], match[1], raw)
	}

	url, _ := entry["url"].(string)
	switch {
	case strings.HasPrefix(url, "http://"), strings.HasPrefix(url, "https://"),
		strings.HasPrefix(url, "file://"):
		return Media{Kind: KindImage, Path: url}, true
	}
	return Media{}, false
}

// convertVoice handles the two speech transports: local STT sends the
// recognized text directly, remote STT sends the raw audio for the
// backend to transcribe.
func (ic *InputConverter) convertVoice(entry map[string]any) (Item, string, bool) {
	if mode, _ := entry["sttMode"].(string); mode == "local" {
		s, _ := entry["text"].(string)
		if s == "" {
			return nil, "", false
		}
		return Text{Content: s}, s, true
	}

	data, _ := entry["data"].(string)
	if match := dataAudioPattern.FindStringSubmatch(data); match != nil {
		raw, err := base64.StdEncoding.DecodeString(match[2])
		if err != nil {
			ic.logger.Warn("bad base64 audio payload", "error", err)
			return nil, "", false
		}
		format := strings.ToLower(match[1])
		ext, ok := audioExtensions[format]
		if !ok {
			ext = format
		}
		if m, ok := ic.ingest(KindAudio, "audio/"+format, ext, raw); ok {
			return m, "[语音]", true
		}
		return nil, "", false
	}

	url, _ := entry["url"].(string)
	switch {
	case strings.HasPrefix(url, "http://"), strings.HasPrefix(url, "https://"),
		strings.HasPrefix(url, "file://"):
		return Media{Kind: KindAudio, Path: url}, "[语音]", true
	}
	return nil, "", false
}

// ingest runs decoded bytes through the scratch store's upload
// lifecycle so they count against its quota and TTL. Without a store
// the bytes land in a plain temp file.
func (ic *InputConverter) ingest(kind, mimeType, ext string, data []byte) (Media, bool) {
	if ic.store != nil {
		rid, err := ic.storeBytes(kind, mimeType, data)
		if err == nil {
			return Media{Kind: kind, RID: rid}, true
		}
		ic.logger.Warn("scratch store ingest failed", "kind", kind, "error", err)
	}

	path := filepath.Join(os.TempDir(), "live2d_input_"+uuid.NewString()+"."+ext)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		ic.logger.Warn("temp file write failed", "error", err)
		return Media{}, false
	}
	return Media{Kind: kind, Path: path}, true
}

func (ic *InputConverter) storeBytes(kind, mimeType string, data []byte) (string, error) {
	ticket, err := ic.store.Prepare(kind, mimeType, int64(len(data)), "")
	if err != nil {
		return "", err
	}
	if _, _, err := ic.store.Upload(ticket.RID, bytes.NewReader(data)); err != nil {
		return "", err
	}
	if _, err := ic.store.Commit(ticket.RID, int64(len(data))); err != nil {
		return "", err
	}
	return ticket.RID, nil
}
