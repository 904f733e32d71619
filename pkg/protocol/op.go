package protocol

import "strings"

// Op identifies a packet's purpose within the protocol namespace.
type Op string

// System ops.
const (
	OpHandshake    Op = "sys.handshake"
	OpHandshakeAck Op = "sys.handshake_ack"
	OpPing         Op = "sys.ping"
	OpPong         Op = "sys.pong"
	OpError        Op = "sys.error"
)

// User input ops (client → server).
const (
	OpInputMessage  Op = "input.message"
	OpInputTouch    Op = "input.touch"
	OpInputShortcut Op = "input.shortcut"
)

// Performance control ops (server → client).
const (
	OpPerformShow      Op = "perform.show"
	OpPerformInterrupt Op = "perform.interrupt"
)

// State synchronization ops (client → server).
const (
	OpStateReady   Op = "state.ready"
	OpStatePlaying Op = "state.playing"
	OpStateConfig  Op = "state.config"
	OpStateModel   Op = "state.model"
)

// Resource ops.
const (
	OpResourcePrepare  Op = "resource.prepare"
	OpResourceCommit   Op = "resource.commit"
	OpResourceGet      Op = "resource.get"
	OpResourceRelease  Op = "resource.release"
	OpResourceProgress Op = "resource.progress"
)

// Model control ops (server → client, some correlated).
const (
	OpModelList          Op = "model.list"
	OpModelLoad          Op = "model.load"
	OpModelUnload        Op = "model.unload"
	OpModelState         Op = "model.state"
	OpModelSetExpression Op = "model.setExpression"
	OpModelPlayMotion    Op = "model.playMotion"
	OpModelSetParameter  Op = "model.setParameter"
	OpModelLookAt        Op = "model.lookAt"
	OpModelSpeak         Op = "model.speak"
	OpModelStop          Op = "model.stop"
)

// Desktop control ops (server → client, some correlated).
const (
	OpDesktopWindowShow            Op = "desktop.window.show"
	OpDesktopWindowHide            Op = "desktop.window.hide"
	OpDesktopWindowMove            Op = "desktop.window.move"
	OpDesktopWindowResize          Op = "desktop.window.resize"
	OpDesktopWindowSetOpacity      Op = "desktop.window.setOpacity"
	OpDesktopWindowSetTopmost      Op = "desktop.window.setTopmost"
	OpDesktopWindowSetClickThrough Op = "desktop.window.setClickThrough"
	OpDesktopTrayNotify            Op = "desktop.tray.notify"
	OpDesktopOpenURL               Op = "desktop.openUrl"
	OpDesktopCaptureScreenshot     Op = "desktop.capture.screenshot"
)

// allOps is the closed set of known ops.
var allOps = map[Op]struct{}{
	OpHandshake: {}, OpHandshakeAck: {}, OpPing: {}, OpPong: {}, OpError: {},
	OpInputMessage: {}, OpInputTouch: {}, OpInputShortcut: {},
	OpPerformShow: {}, OpPerformInterrupt: {},
	OpStateReady: {}, OpStatePlaying: {}, OpStateConfig: {}, OpStateModel: {},
	OpResourcePrepare: {}, OpResourceCommit: {}, OpResourceGet: {},
	OpResourceRelease: {}, OpResourceProgress: {},
	OpModelList: {}, OpModelLoad: {}, OpModelUnload: {}, OpModelState: {},
	OpModelSetExpression: {}, OpModelPlayMotion: {}, OpModelSetParameter: {},
	OpModelLookAt: {}, OpModelSpeak: {}, OpModelStop: {},
	OpDesktopWindowShow: {}, OpDesktopWindowHide: {}, OpDesktopWindowMove: {},
	OpDesktopWindowResize: {}, OpDesktopWindowSetOpacity: {},
	OpDesktopWindowSetTopmost: {}, OpDesktopWindowSetClickThrough: {},
	OpDesktopTrayNotify: {}, OpDesktopOpenURL: {}, OpDesktopCaptureScreenshot: {},
}

// Valid reports whether op belongs to the closed protocol op set.
// Unknown ops are expected as the protocol evolves; callers log and skip
// them rather than raising errors.
func (op Op) Valid() bool {
	_, ok := allOps[op]
	return ok
}

// Namespace returns the op's namespace (the part before the first dot),
// e.g. "sys", "input", "resource".
func (op Op) Namespace() string {
	s := string(op)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return s[:i]
	}
	return s
}

// IsClientCommand reports whether the op is a server-issued command the
// client answers (model.* and desktop.* namespaces). Inbound packets with
// these ops are replies and are routed to the request correlator.
func (op Op) IsClientCommand() bool {
	ns := op.Namespace()
	return ns == "model" || ns == "desktop"
}

func (op Op) String() string { return string(op) }
