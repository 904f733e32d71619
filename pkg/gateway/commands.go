package gateway

import (
	"context"

	"github.com/lxfight/astrbot-plugin-live2d-adapter/pkg/protocol"
)

// Typed wrappers over the server-issued model.* and desktop.* commands.
// Each sends through the correlator and returns the client's reply
// payload, or fire-and-forgets where no answer is expected.

func (s *Server) command(ctx context.Context, op protocol.Op, payload map[string]any) (map[string]any, error) {
	client, ok := s.registry.First()
	if !ok {
		return nil, ErrNoClient
	}
	timeout := s.cfg.RequestTimeout
	if op == protocol.OpDesktopCaptureScreenshot {
		timeout = s.cfg.ScreenshotTimeout
	}
	return s.correlator.Request(ctx, client, protocol.NewPacket(op, payload), timeout)
}

func (s *Server) notify(op protocol.Op, payload map[string]any) error {
	client, ok := s.registry.First()
	if !ok {
		return ErrNoClient
	}
	return client.Send(protocol.NewPacket(op, payload))
}

// ListModels asks the client for its available model list.
func (s *Server) ListModels(ctx context.Context) (map[string]any, error) {
	return s.command(ctx, protocol.OpModelList, nil)
}

// LoadModel asks the client to load the named model.
func (s *Server) LoadModel(ctx context.Context, name string) (map[string]any, error) {
	return s.command(ctx, protocol.OpModelLoad, map[string]any{"name": name})
}

// UnloadModel asks the client to unload the current model.
func (s *Server) UnloadModel(ctx context.Context) (map[string]any, error) {
	return s.command(ctx, protocol.OpModelUnload, nil)
}

// ModelState queries the client's current model state.
func (s *Server) ModelState(ctx context.Context) (map[string]any, error) {
	return s.command(ctx, protocol.OpModelState, nil)
}

// SetExpression applies an expression immediately, outside a sequence.
func (s *Server) SetExpression(ctx context.Context, id string) (map[string]any, error) {
	return s.command(ctx, protocol.OpModelSetExpression, map[string]any{"id": id})
}

// PlayMotion plays a concrete motion immediately, outside a sequence.
func (s *Server) PlayMotion(ctx context.Context, group string, index, priority int) (map[string]any, error) {
	return s.command(ctx, protocol.OpModelPlayMotion, map[string]any{
		"group":    group,
		"index":    index,
		"priority": priority,
	})
}

// SetParameter sets a model parameter value with optional weight.
func (s *Server) SetParameter(ctx context.Context, id string, value, weight float64) (map[string]any, error) {
	return s.command(ctx, protocol.OpModelSetParameter, map[string]any{
		"id":     id,
		"value":  value,
		"weight": weight,
	})
}

// LookAt points the model's gaze at screen coordinates.
func (s *Server) LookAt(x, y float64) error {
	return s.notify(protocol.OpModelLookAt, map[string]any{"x": x, "y": y})
}

// Speak drives lip sync from an audio reference.
func (s *Server) Speak(ctx context.Context, audioURL, text string) (map[string]any, error) {
	return s.command(ctx, protocol.OpModelSpeak, map[string]any{
		"url":  audioURL,
		"text": text,
	})
}

// StopSpeaking stops lip sync playback.
func (s *Server) StopSpeaking() error {
	return s.notify(protocol.OpModelStop, nil)
}

// ShowWindow makes the desktop window visible.
func (s *Server) ShowWindow() error {
	return s.notify(protocol.OpDesktopWindowShow, nil)
}

// HideWindow hides the desktop window.
func (s *Server) HideWindow() error {
	return s.notify(protocol.OpDesktopWindowHide, nil)
}

// MoveWindow repositions the desktop window.
func (s *Server) MoveWindow(x, y int) error {
	return s.notify(protocol.OpDesktopWindowMove, map[string]any{"x": x, "y": y})
}

// ResizeWindow resizes the desktop window.
func (s *Server) ResizeWindow(width, height int) error {
	return s.notify(protocol.OpDesktopWindowResize, map[string]any{
		"width":  width,
		"height": height,
	})
}

// SetOpacity sets window opacity in [0,1].
func (s *Server) SetOpacity(opacity float64) error {
	return s.notify(protocol.OpDesktopWindowSetOpacity, map[string]any{"opacity": opacity})
}

// SetTopmost toggles the always-on-top flag.
func (s *Server) SetTopmost(topmost bool) error {
	return s.notify(protocol.OpDesktopWindowSetTopmost, map[string]any{"topmost": topmost})
}

// SetClickThrough toggles mouse click-through.
func (s *Server) SetClickThrough(enabled bool) error {
	return s.notify(protocol.OpDesktopWindowSetClickThrough, map[string]any{"enabled": enabled})
}

// NotifyTray shows a tray notification on the client host.
func (s *Server) NotifyTray(title, message string) error {
	return s.notify(protocol.OpDesktopTrayNotify, map[string]any{
		"title":   title,
		"message": message,
	})
}

// OpenURL opens a URL in the client host's browser.
func (s *Server) OpenURL(url string) error {
	return s.notify(protocol.OpDesktopOpenURL, map[string]any{"url": url})
}

// CaptureScreenshot asks the client for a screenshot, waiting with the
// longer screenshot deadline. The reply payload carries the image as a
// resource reference or inline data.
func (s *Server) CaptureScreenshot(ctx context.Context) (map[string]any, error) {
	return s.command(ctx, protocol.OpDesktopCaptureScreenshot, nil)
}
