package display

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"rubberweigh/shared/types"
)

func ptr(v float64) *float64 { return &v }

func TestShow_KindLabels(t *testing.T) {
	tests := []struct {
		name  string
		kind  types.Kind
		panel Panel
		want  []string
	}{
		{
			name:  "raw material",
			kind:  types.KindRawMaterial,
			panel: Panel{Name: "Nguyen Van A", TagID: "04A1B2C3", Payload: "12.5"},
			want:  []string{"Nguyen Van A", "ID: 04A1B2C3", "KL: 12.5 Kg"},
		},
		{
			name:  "net vehicle weight",
			kind:  types.KindNetVehicleWeight,
			panel: Panel{TagID: "DEADBEEF", First: ptr(1500), Second: ptr(1200.5), Payload: "299.50"},
			want:  []string{"KL1: 1500.00 Kg", "KL2: 1200.50 Kg", "KL: 299.50 Kg"},
		},
		{
			name:  "moisture ratio",
			kind:  types.KindMoistureRatio,
			panel: Panel{TagID: "DEADBEEF", First: ptr(200), Second: ptr(70), Payload: "0.35"},
			want:  []string{"KL1: 200.00 g", "KL2: 70.00 g", "TSC: 0.35"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			p := New(&buf, tt.kind, time.Second)
			p.Show(tt.panel)
			out := buf.String()
			if !strings.HasPrefix(out, clearScreen) {
				t.Errorf("output does not start by clearing the screen: %q", out)
			}
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("output missing %q:\n%s", w, out)
				}
			}
		})
	}
}

func TestShow_PendingReadingsAreBlank(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf, types.KindMoistureRatio, time.Second)
	p.Show(Panel{Name: "B", TagID: "01020304"})
	if strings.Contains(buf.String(), " g") {
		t.Fatalf("unit printed for a reading not yet taken:\n%s", buf.String())
	}
}

func TestShowLinkError(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf, types.KindRawMaterial, time.Second)
	p.ShowLinkError()
	if !strings.Contains(buf.String(), "LINK !") {
		t.Fatalf("output = %q, want link error indicator", buf.String())
	}
}

func TestTick_ClearsAfterTimeout(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf, types.KindRawMaterial, 20*time.Second)
	start := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return start }

	if p.Tick(start.Add(time.Hour)) {
		t.Fatal("Tick cleared a screen that was never drawn")
	}

	p.Show(Panel{TagID: "AA"})
	buf.Reset()

	if p.Tick(start.Add(20 * time.Second)) {
		t.Fatal("cleared before the timeout elapsed")
	}
	if !p.Tick(start.Add(21 * time.Second)) {
		t.Fatal("did not clear after the timeout")
	}
	if buf.String() != clearScreen {
		t.Fatalf("Tick wrote %q, want clear sequence", buf.String())
	}
	if p.Tick(start.Add(time.Minute)) {
		t.Fatal("cleared twice for one render")
	}
}

func TestOpenOutput_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "panel")
	out, err := OpenOutput(path)
	if err != nil {
		t.Fatalf("OpenOutput: %v", err)
	}
	New(out, types.KindRawMaterial, time.Minute).Show(Panel{Name: "Somchai", TagID: "04A10BFF"})
	if err := out.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(got), "Somchai") {
		t.Errorf("panel not written to %s: %q", path, got)
	}
}

func TestOpenOutput_DefaultIsStdout(t *testing.T) {
	out, err := OpenOutput("")
	if err != nil {
		t.Fatalf("OpenOutput: %v", err)
	}
	if err := out.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if nc, ok := out.(nopCloser); !ok || nc.Writer != os.Stdout {
		t.Errorf("OpenOutput(\"\") = %T, want stdout", out)
	}
}

func TestOpenOutput_MissingDirectory(t *testing.T) {
	if _, err := OpenOutput(filepath.Join(t.TempDir(), "missing", "tty")); err == nil {
		t.Fatal("expected error")
	}
}
