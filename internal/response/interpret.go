// Package response maps a decoded LCS frame's opcode and payload to a typed
// response value.
package response

import (
	"strings"
	"time"

	"github.com/ampiolux/lcs-gateway/internal/lcsframe"
)

const (
	opLampBrightness    = 0x1600
	opColorTemperature  = 0x1606
	opLampControlAck    = 0x1000
	opDeviceName        = 0x2205
)

// SourceDevice identifies which physical device emitted a response.
type SourceDevice struct {
	DeviceType lcsframe.DeviceType
	Master     byte
	CU         byte
}

// Kind tags the concrete type carried by a Typed value.
type Kind int

const (
	KindLampBrightness Kind = iota
	KindColorTemperature
	KindLampControlAck
	KindDeviceName
	KindUnknown
)

// Typed is the interpreted form of one response frame. Exactly one of the
// payload fields is meaningful, selected by Kind.
type Typed struct {
	Kind      Kind
	Source    SourceDevice
	Opcode    uint16
	Timestamp time.Time

	Values []byte // KindLampBrightness / KindColorTemperature: one byte per lamp slot, each in [0,100]
	OK     bool   // KindLampControlAck
	Name   string // KindDeviceName
	Raw    []byte // KindUnknown: raw data bytes
}

// nowFn is overridable in tests so timestamps are deterministic.
var nowFn = time.Now

// Interpret classifies a decoded frame's OP1/OP2/Data/Src into a Typed
// response.
func Interpret(f lcsframe.Frame) Typed {
	t := Typed{
		Source: SourceDevice{
			DeviceType: f.Src.DeviceType,
			Master:     f.Src.Master,
			CU:         f.Src.CU,
		},
		Opcode:    f.Opcode(),
		Timestamp: nowFn(),
	}
	switch t.Opcode {
	case opLampBrightness:
		t.Kind = KindLampBrightness
		t.Values = cloneBytes(f.Data)
	case opColorTemperature:
		t.Kind = KindColorTemperature
		t.Values = cloneBytes(f.Data)
	case opLampControlAck:
		t.Kind = KindLampControlAck
		t.OK = len(f.Data) > 0 && f.Data[0] == 0x00
	case opDeviceName:
		t.Kind = KindDeviceName
		t.Name = strings.TrimRight(string(f.Data), "\x00")
	default:
		t.Kind = KindUnknown
		t.Raw = cloneBytes(f.Data)
	}
	return t
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
