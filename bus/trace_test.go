package bus

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/ardnew/sdspi/pkg"
)

// recorder is a Bus that records every call it receives.
type recorder struct {
	calls    []string
	sent     []byte
	next     byte
	selected bool
	waited   uint32
}

func (r *recorder) Select()   { r.calls = append(r.calls, "select"); r.selected = true }
func (r *recorder) Deselect() { r.calls = append(r.calls, "deselect"); r.selected = false }

func (r *recorder) Transmit(data []byte) {
	r.calls = append(r.calls, "transmit")
	r.sent = append(r.sent, data...)
}

func (r *recorder) Receive(buf []byte) {
	r.calls = append(r.calls, "receive")
	for i := range buf {
		buf[i] = r.next
	}
}

func (r *recorder) Send(b byte) {
	r.calls = append(r.calls, "send")
	r.sent = append(r.sent, b)
}

func (r *recorder) Recv() byte {
	r.calls = append(r.calls, "recv")
	return r.next
}

func (r *recorder) Delay(us uint32) {
	r.calls = append(r.calls, "delay")
	r.waited += us
}

var _ Bus = (*recorder)(nil)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	original := pkg.DefaultLogger
	t.Cleanup(func() { pkg.SetLogger(original) })
	pkg.SetLogger(pkg.NewLogger(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return &buf
}

// =============================================================================
// Tracer
// =============================================================================

func TestTracer_Forwards(t *testing.T) {
	captureLogs(t)

	r := &recorder{next: 0xA5}
	tr := Trace(r)

	tr.Select()
	if !r.selected {
		t.Error("Select not forwarded")
	}
	tr.Transmit([]byte{0x40, 0x00})
	tr.Send(0x95)

	buf := make([]byte, 3)
	tr.Receive(buf)
	if !bytes.Equal(buf, []byte{0xA5, 0xA5, 0xA5}) {
		t.Errorf("Receive = %x, want a5a5a5", buf)
	}
	if got := tr.Recv(); got != 0xA5 {
		t.Errorf("Recv() = 0x%02X, want 0xA5", got)
	}
	tr.Delay(100)
	tr.Deselect()

	want := []string{"select", "transmit", "send", "receive", "recv", "delay", "deselect"}
	if strings.Join(r.calls, ",") != strings.Join(want, ",") {
		t.Errorf("calls = %v, want %v", r.calls, want)
	}
	if !bytes.Equal(r.sent, []byte{0x40, 0x00, 0x95}) {
		t.Errorf("sent = %x, want 400095", r.sent)
	}
	if r.waited != 100 {
		t.Errorf("waited = %d, want 100", r.waited)
	}
}

func TestTracer_Logs(t *testing.T) {
	logs := captureLogs(t)

	tr := Trace(&recorder{next: 0xFF})
	tr.Select()
	tr.Transmit([]byte{0x51, 0x00, 0x00, 0x00, 0x01, 0x01})
	tr.Delay(10)

	output := logs.String()
	for _, want := range []string{"component=bus", "msg=select", "msg=transmit", "data=510000000101"} {
		if !strings.Contains(output, want) {
			t.Errorf("log output missing %q: %s", want, output)
		}
	}
	if strings.Contains(output, "delay") {
		t.Errorf("delay should not be logged: %s", output)
	}
}

func TestTracer_QuietAboveDebug(t *testing.T) {
	var buf bytes.Buffer
	original := pkg.DefaultLogger
	t.Cleanup(func() { pkg.SetLogger(original) })
	pkg.SetLogger(pkg.NewLogger(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	tr := Trace(&recorder{})
	tr.Transmit(make([]byte, 512))
	tr.Recv()

	if buf.Len() != 0 {
		t.Errorf("expected no output at info level, got: %s", buf.String())
	}
}

func TestDump(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"empty", nil, ""},
		{"short", []byte{0xDE, 0xAD}, "dead"},
		{"truncated", bytes.Repeat([]byte{0x11}, 20), strings.Repeat("11", 16) + "..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := dump(tt.data); got != tt.want {
				t.Errorf("dump() = %q, want %q", got, tt.want)
			}
		})
	}
}
