package lcscmd

import (
	"errors"
	"testing"

	"github.com/ampiolux/lcs-gateway/internal/lcsframe"
)

func TestDimLampRange(t *testing.T) {
	cases := []struct {
		name                          string
		master, cu, lampNo, bright    int
		wantErr                       bool
	}{
		{"valid", 1, 1, 5, 80, false},
		{"brightness too high", 1, 1, 5, 101, true},
		{"lamp too low", 1, 1, 0, 50, true},
		{"lamp too high", 1, 1, 65, 50, true},
		{"master zero", 0, 1, 5, 50, true},
		{"cu too high", 1, 256, 5, 50, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := DimLamp(c.master, c.cu, c.lampNo, c.bright)
			if c.wantErr && err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !c.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if c.wantErr {
				var iae *InvalidArgumentError
				if !errors.As(err, &iae) {
					t.Fatalf("expected *InvalidArgumentError, got %T", err)
				}
			}
		})
	}
}

func TestDimLampWireShape(t *testing.T) {
	wire, err := DimLamp(1, 1, 5, 80)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(wire) != 22 {
		t.Fatalf("len = %d, want 22", len(wire))
	}
	if wire[13] != 0x92 || wire[14] != 0x00 {
		t.Fatalf("op1/op2 = %x/%x", wire[13], wire[14])
	}
	wantData := []byte{1, 5, 0, 80}
	for i, b := range wantData {
		if wire[15+i] != b {
			t.Fatalf("data[%d] = %x, want %x", i, wire[15+i], b)
		}
	}
}

func TestGetLampBrightnessRejectsUnknownDeviceType(t *testing.T) {
	_, err := GetLampBrightness(lcsframe.DeviceType(0x99), 1, 1)
	if err == nil {
		t.Fatalf("expected error for unknown device type")
	}
}

func TestBlockLampControlLayout(t *testing.T) {
	wire, err := BlockLampControl(1, 2, []int{3, 4, 5}, 60)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []byte{2, 3, 3, 4, 5, 60}
	for i, b := range want {
		if wire[15+i] != b {
			t.Fatalf("data[%d] = %x, want %x", i, wire[15+i], b)
		}
	}
}

func TestGetDeviceNameIsBroadcast(t *testing.T) {
	wire, err := GetDeviceName()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if wire[4] != 0 || wire[5] != 0 {
		t.Fatalf("expected master=cu=0 broadcast, got %d/%d", wire[4], wire[5])
	}
	if wire[13] != 0xA2 || wire[14] != 0x05 {
		t.Fatalf("op1/op2 = %x/%x", wire[13], wire[14])
	}
}
