package protocol

import "testing"

func TestOpNamespace(t *testing.T) {
	cases := []struct {
		op   Op
		want string
	}{
		{OpHandshake, "sys"},
		{OpInputMessage, "input"},
		{OpPerformShow, "perform"},
		{OpResourcePrepare, "resource"},
		{OpDesktopWindowMove, "desktop"},
		{Op("nodot"), "nodot"},
	}
	for _, tc := range cases {
		if got := tc.op.Namespace(); got != tc.want {
			t.Errorf("Namespace(%q) = %q, want %q", tc.op, got, tc.want)
		}
	}
}

func TestOpIsClientCommand(t *testing.T) {
	for _, op := range []Op{OpModelPlayMotion, OpModelList, OpDesktopCaptureScreenshot, OpDesktopTrayNotify} {
		if !op.IsClientCommand() {
			t.Errorf("IsClientCommand(%q) = false, want true", op)
		}
	}
	for _, op := range []Op{OpPing, OpInputMessage, OpPerformShow, OpStateReady, OpResourceGet} {
		if op.IsClientCommand() {
			t.Errorf("IsClientCommand(%q) = true, want false", op)
		}
	}
}

func TestOpValid(t *testing.T) {
	if !OpHandshake.Valid() {
		t.Error("Valid(sys.handshake) = false, want true")
	}
	if Op("sys.selfdestruct").Valid() {
		t.Error("Valid(sys.selfdestruct) = true, want false")
	}
}
