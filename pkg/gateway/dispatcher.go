package gateway

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/lxfight/astrbot-plugin-live2d-adapter/pkg/protocol"
	"github.com/lxfight/astrbot-plugin-live2d-adapter/pkg/resource"
	"github.com/lxfight/astrbot-plugin-live2d-adapter/pkg/sequence"
)

const tracerName = "live2d-gateway"

// InputMessage is an input.message payload after conversion: the
// ordered content items with media ingested into the scratch store,
// plus a plain-text transcript of the whole message.
type InputMessage struct {
	Items []sequence.Item
	Text  string
	Raw   map[string]any
}

// Hooks hand user input outward to the chat collaborator. With a nil
// hook the gateway runs headless and answers with a small built-in
// performance instead, so a bare client still gets visible feedback.
type Hooks struct {
	// OnMessage receives converted input.message payloads (text or
	// voice).
	OnMessage func(ctx context.Context, c *Client, msg *InputMessage)

	// OnTouch receives input.touch payloads (hit area, coordinates).
	OnTouch func(ctx context.Context, c *Client, payload map[string]any)

	// OnShortcut receives input.shortcut payloads.
	OnShortcut func(ctx context.Context, c *Client, payload map[string]any)
}

// Dispatcher routes decoded packets from active connections to their
// handlers.
type Dispatcher struct {
	store      *resource.Store
	correlator *Correlator
	hooks      Hooks
	input      *sequence.InputConverter
	logger     *slog.Logger
	tracer     trace.Tracer
}

// NewDispatcher builds a dispatcher. store may be nil; resource.* ops
// then answer with a resource I/O error. input may be nil; inbound
// media then passes through unstored.
func NewDispatcher(store *resource.Store, correlator *Correlator, hooks Hooks, input *sequence.InputConverter, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if input == nil {
		input = sequence.NewInputConverter(nil, logger)
	}
	return &Dispatcher{
		store:      store,
		correlator: correlator,
		hooks:      hooks,
		input:      input,
		logger:     logger.With("component", "dispatcher"),
		tracer:     otel.Tracer(tracerName),
	}
}

// Dispatch decodes one inbound frame and routes it. Per-packet failures
// are converted to error packets; nothing here may take down the read
// loop, so handler panics are recovered and reported to the client.
func (d *Dispatcher) Dispatch(ctx context.Context, c *Client, data []byte) {
	c.Touch()

	p, err := protocol.Decode(data)
	if err != nil {
		d.logger.Warn("malformed packet", "client_id", c.ID, "error", err)
		c.SendError(protocol.CodeInvalidPayload, "malformed packet", "")
		return
	}

	ns := p.Op.Namespace()
	packetsReceived.WithLabelValues(ns).Inc()
	start := time.Now()

	ctx, span := d.tracer.Start(ctx, "gateway.dispatch",
		trace.WithAttributes(
			attribute.String("packet.op", p.Op.String()),
			attribute.String("client.id", c.ID),
		))
	defer func() {
		if r := recover(); r != nil {
			dispatchPanics.Inc()
			d.logger.Error("handler panic", "op", p.Op, "client_id", c.ID,
				"panic", r, "stack", string(debug.Stack()))
			span.SetStatus(codes.Error, "handler panic")
			c.SendError(protocol.CodeInvalidPayload, "internal handler failure", p.ID)
		}
		span.End()
		dispatchDuration.WithLabelValues(ns).Observe(time.Since(start).Seconds())
	}()

	d.route(ctx, c, p)
}

func (d *Dispatcher) route(ctx context.Context, c *Client, p *protocol.Packet) {
	// Replies to server-issued commands carry the command's op; they go
	// to the correlator, not to a handler.
	if p.Op.IsClientCommand() {
		payload := p.Payload
		if p.IsError() {
			payload = map[string]any{
				"error": map[string]any{"code": p.Error.Code, "message": p.Error.Message},
			}
		}
		if !d.correlator.Resolve(p.ID, payload) {
			d.logger.Debug("late or unmatched reply", "op", p.Op, "id", p.ID)
		}
		return
	}

	switch p.Op {
	case protocol.OpPing:
		if err := c.Send(protocol.NewPong(p.ID)); err != nil {
			d.logger.Warn("pong failed", "client_id", c.ID, "error", err)
		}

	case protocol.OpPong:
		// Latency bookkeeping only; Touch already ran.

	case protocol.OpError:
		code := 0
		if p.Error != nil {
			code = p.Error.Code
		}
		d.logger.Warn("client error packet", "client_id", c.ID, "code", code)

	case protocol.OpHandshake:
		// Out of phase: the connection already completed its handshake.
		c.SendError(protocol.CodeInvalidPayload, "handshake already completed", p.ID)

	case protocol.OpInputMessage:
		content, _ := p.Payload["content"].([]any)
		items, text := d.input.Convert(content)
		if d.hooks.OnMessage != nil {
			d.hooks.OnMessage(ctx, c, &InputMessage{Items: items, Text: text, Raw: p.Payload})
			return
		}
		d.echoMessage(c, p, text)

	case protocol.OpInputTouch:
		if d.hooks.OnTouch != nil {
			d.hooks.OnTouch(ctx, c, p.Payload)
			return
		}
		d.reactToTouch(c, p)

	case protocol.OpInputShortcut:
		if d.hooks.OnShortcut != nil {
			d.hooks.OnShortcut(ctx, c, p.Payload)
			return
		}
		d.reactToShortcut(c, p)

	case protocol.OpStateReady:
		c.SetReady(true)
		d.logger.Info("client ready", "client_id", c.ID)

	case protocol.OpStatePlaying:
		playing, _ := p.Payload["isPlaying"].(bool)
		c.SetPlaying(playing)

	case protocol.OpStateConfig:
		c.MergeConfig(p.Payload)

	case protocol.OpStateModel:
		d.handleStateModel(c, p)

	case protocol.OpResourcePrepare:
		d.handleResourcePrepare(c, p)

	case protocol.OpResourceCommit:
		d.handleResourceCommit(c, p)

	case protocol.OpResourceGet:
		d.handleResourceGet(ctx, c, p)

	case protocol.OpResourceRelease:
		d.handleResourceRelease(c, p)

	case protocol.OpResourceProgress:
		d.logger.Debug("resource progress", "client_id", c.ID, "payload", p.Payload)

	default:
		// Unknown ops are expected as the protocol evolves.
		d.logger.Warn("unknown op", "op", p.Op, "client_id", c.ID)
	}
}

// echoMessage answers input.message in headless mode with a plain text
// echo of the message transcript. The echo reuses the inbound packet id
// so the client can pair it with the message it sent.
func (d *Dispatcher) echoMessage(c *Client, p *protocol.Packet, text string) {
	d.logger.Info("no message hook, echoing", "client_id", c.ID)

	echo := protocol.NewTextElement("收到了消息：" + text)
	echo.Duration = 3000
	show := protocol.NewPerformShow([]protocol.Element{echo}, true)
	if p.ID != "" {
		show.ID = p.ID
	}
	c.Send(show)
}

// reactToTouch plays the head-pat demo reaction in headless mode.
func (d *Dispatcher) reactToTouch(c *Client, p *protocol.Packet) {
	part, _ := p.Payload["part"].(string)
	action, _ := p.Payload["action"].(string)
	d.logger.Info("touch input", "client_id", c.ID, "part", part, "action", action)

	if part != "Head" {
		return
	}
	text := protocol.NewTextElement("别摸我的头啦~")
	text.Duration = 2000
	motion := protocol.NewMotionElement("TapHead", 0)
	motion.Priority = 3
	c.Send(protocol.NewPerformShow([]protocol.Element{
		text,
		protocol.NewExpressionElement("happy"),
		motion,
	}, true))
}

// reactToShortcut handles the built-in shortcut keys in headless mode.
func (d *Dispatcher) reactToShortcut(c *Client, p *protocol.Packet) {
	key, _ := p.Payload["key"].(string)
	d.logger.Info("shortcut input", "client_id", c.ID, "key", key)

	if key != "random_action" {
		return
	}
	text := protocol.NewTextElement("随机动作！")
	text.Duration = 2000
	c.Send(protocol.NewPerformShow([]protocol.Element{
		text,
		protocol.NewMotionElement("Idle", 0),
	}, true))
}

func (d *Dispatcher) handleStateModel(c *Client, p *protocol.Packet) {
	info := &ModelInfo{MotionGroups: make(map[string][]string)}
	info.Name, _ = p.Payload["name"].(string)

	if groups, ok := p.Payload["motionGroups"].(map[string]any); ok {
		for group, raw := range groups {
			motions, ok := raw.([]any)
			if !ok {
				continue
			}
			names := make([]string, 0, len(motions))
			for _, m := range motions {
				if s, ok := m.(string); ok {
					names = append(names, s)
				}
			}
			info.MotionGroups[group] = names
		}
	}
	if exprs, ok := p.Payload["expressions"].([]any); ok {
		for _, e := range exprs {
			if s, ok := e.(string); ok {
				info.Expressions = append(info.Expressions, s)
			}
		}
	}

	c.SetModel(info)
	d.logger.Info("model declared", "client_id", c.ID, "model", info.Name,
		"motion_groups", len(info.MotionGroups), "expressions", len(info.Expressions))
}

func (d *Dispatcher) handleResourcePrepare(c *Client, p *protocol.Packet) {
	if d.store == nil {
		c.SendError(protocol.CodeResourceIO, "resource store not configured", p.ID)
		return
	}
	kind, _ := p.Payload["kind"].(string)
	mimeType, _ := p.Payload["mime"].(string)
	size, _ := p.Payload["size"].(float64)
	sha, _ := p.Payload["sha256"].(string)

	ticket, err := d.store.Prepare(kind, mimeType, int64(size), sha)
	if err != nil {
		d.logger.Warn("prepare failed", "client_id", c.ID, "error", err)
		c.SendError(protocol.CodeUploadFailed, err.Error(), p.ID)
		return
	}
	c.Send(protocol.NewReply(protocol.OpResourcePrepare, p.ID, map[string]any{
		"rid":    ticket.RID,
		"ticket": ticket,
	}))
}

func (d *Dispatcher) handleResourceCommit(c *Client, p *protocol.Packet) {
	if d.store == nil {
		c.SendError(protocol.CodeResourceIO, "resource store not configured", p.ID)
		return
	}
	rid, _ := p.Payload["rid"].(string)
	size, _ := p.Payload["size"].(float64)

	status, err := d.store.Commit(rid, int64(size))
	switch {
	case err == nil:
		c.Send(protocol.NewReply(protocol.OpResourceCommit, p.ID, map[string]any{
			"rid":    rid,
			"status": string(status),
		}))
	case errors.Is(err, resource.ErrNotFound), errors.Is(err, resource.ErrSizeMismatch):
		// A size mismatch evicts the entry, so from the client's view
		// the resource no longer exists.
		c.SendError(protocol.CodeResourceNotFound, err.Error(), p.ID)
	default:
		c.SendError(protocol.CodeUploadFailed, err.Error(), p.ID)
	}
}

func (d *Dispatcher) handleResourceGet(ctx context.Context, c *Client, p *protocol.Packet) {
	if d.store == nil {
		c.SendError(protocol.CodeResourceIO, "resource store not configured", p.ID)
		return
	}
	rid, _ := p.Payload["rid"].(string)

	ref, err := d.store.Get(ctx, rid)
	switch {
	case err == nil:
		c.Send(protocol.NewReply(protocol.OpResourceGet, p.ID, map[string]any{
			"rid":    ref.RID,
			"url":    ref.URL,
			"inline": ref.Inline,
			"mime":   ref.MIME,
			"kind":   ref.Kind,
			"size":   ref.Size,
		}))
	case errors.Is(err, resource.ErrNotFound):
		c.SendError(protocol.CodeResourceNotFound, "unknown rid", p.ID)
	default:
		c.SendError(protocol.CodeResourceIO, err.Error(), p.ID)
	}
}

func (d *Dispatcher) handleResourceRelease(c *Client, p *protocol.Packet) {
	if d.store == nil {
		c.SendError(protocol.CodeResourceIO, "resource store not configured", p.ID)
		return
	}
	rid, _ := p.Payload["rid"].(string)

	if err := d.store.Release(rid); err != nil {
		c.SendError(protocol.CodeResourceNotFound, "unknown rid", p.ID)
		return
	}
	c.Send(protocol.NewReply(protocol.OpResourceRelease, p.ID, map[string]any{
		"rid":      rid,
		"released": true,
	}))
}
