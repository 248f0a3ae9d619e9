package response

import (
	"testing"

	"github.com/ampiolux/lcs-gateway/internal/lcsframe"
)

func frame(op1, op2 byte, data []byte) lcsframe.Frame {
	return lcsframe.Frame{
		Src:  lcsframe.Addr{DeviceType: lcsframe.DeviceLCS, Master: 1, CU: 2},
		OP1:  op1,
		OP2:  op2,
		Data: data,
	}
}

func TestInterpretLampBrightness(t *testing.T) {
	got := Interpret(frame(0x16, 0x00, []byte{10, 20, 30}))
	if got.Kind != KindLampBrightness {
		t.Fatalf("kind = %v, want KindLampBrightness", got.Kind)
	}
	if len(got.Values) != 3 || got.Values[1] != 20 {
		t.Fatalf("values = %v", got.Values)
	}
	if got.Source.Master != 1 || got.Source.CU != 2 {
		t.Fatalf("source = %+v", got.Source)
	}
}

func TestInterpretColorTemperature(t *testing.T) {
	got := Interpret(frame(0x16, 0x06, []byte{50}))
	if got.Kind != KindColorTemperature {
		t.Fatalf("kind = %v", got.Kind)
	}
}

func TestInterpretAckSuccess(t *testing.T) {
	got := Interpret(frame(0x10, 0x00, []byte{0x00}))
	if got.Kind != KindLampControlAck || !got.OK {
		t.Fatalf("got = %+v", got)
	}
}

func TestInterpretAckFailure(t *testing.T) {
	got := Interpret(frame(0x10, 0x00, []byte{0x01}))
	if got.Kind != KindLampControlAck || got.OK {
		t.Fatalf("got = %+v", got)
	}
}

func TestInterpretDeviceName(t *testing.T) {
	got := Interpret(frame(0x22, 0x05, []byte("Kitchen\x00\x00")))
	if got.Kind != KindDeviceName || got.Name != "Kitchen" {
		t.Fatalf("got = %+v", got)
	}
}

func TestInterpretUnknown(t *testing.T) {
	got := Interpret(frame(0xFF, 0xEE, []byte{1, 2, 3}))
	if got.Kind != KindUnknown {
		t.Fatalf("kind = %v, want KindUnknown", got.Kind)
	}
	if len(got.Raw) != 3 {
		t.Fatalf("raw = %v", got.Raw)
	}
}
