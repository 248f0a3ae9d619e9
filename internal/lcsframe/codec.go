package lcsframe

import "encoding/binary"

// Encode builds a complete LCS wire frame for dest, carrying op1/op2/data as
// the command payload. The host source address is stamped automatically.
// Length is big-endian; BCC is little-endian (asymmetry is deliberate, and
// must match an Agent's firmware byte for byte).
func Encode(dest Addr, op1, op2 byte, data []byte) []byte {
	n := len(data)
	total := minFrameLen + n
	buf := make([]byte, total)

	buf[0] = stx
	binary.BigEndian.PutUint16(buf[1:3], uint16(total))

	buf[3] = byte(dest.DeviceType)
	buf[4] = dest.Master
	buf[5] = dest.CU
	buf[6] = 0
	buf[7] = 0

	buf[8] = byte(hostAddr.DeviceType)
	buf[9] = hostAddr.Master
	buf[10] = hostAddr.CU
	buf[11] = 0
	buf[12] = 0

	buf[13] = op1
	buf[14] = op2
	copy(buf[15:15+n], data)

	bccOffset := 15 + n
	bcc := computeBCC(buf[3:bccOffset])
	binary.LittleEndian.PutUint16(buf[bccOffset:bccOffset+2], bcc)
	buf[bccOffset+2] = etx
	return buf
}

// computeBCC folds the byte range into 16-bit big-endian words (the final
// word's low byte is zero when the range has odd length), sums mod 2^32,
// folds the carry back in until it settles, then takes the one's complement.
func computeBCC(b []byte) uint16 {
	var sum uint32
	for i := 0; i < len(b); i += 2 {
		hi := uint32(b[i])
		var lo uint32
		if i+1 < len(b) {
			lo = uint32(b[i+1])
		}
		sum += hi<<8 | lo
	}
	for sum>>16 != 0 {
		sum = sum&0xFFFF + sum>>16
	}
	return ^uint16(sum)
}

// Result is the outcome of one tryDecode attempt against a byte buffer.
type Result struct {
	// Complete is true iff a well-formed frame was fully decoded.
	Complete bool
	// Consumed is the number of leading bytes the caller should drop from
	// its buffer: the frame length when Complete, or a single resync byte
	// when a framing/BCC error was found. Zero means "wait for more data".
	Consumed int
	// Frame holds the decoded frame when Complete is true.
	Frame Frame
	// FrameCorrupt is true when Consumed==1 because of a BCC mismatch
	// specifically (as opposed to a bad STX or ETX), useful for metrics.
	FrameCorrupt bool
}

// tryDecode inspects buf for one complete frame. It never reads past the
// frame's own Length field and never blocks; it is the sole primitive the
// stream reassembler (see Reassembler) builds on.
func tryDecode(buf []byte) Result {
	if len(buf) < 3 {
		return Result{}
	}
	if buf[0] != stx {
		return Result{Consumed: 1}
	}
	length := int(binary.BigEndian.Uint16(buf[1:3]))
	if length < minFrameLen {
		return Result{Consumed: 1}
	}
	if len(buf) < length {
		return Result{}
	}
	if buf[length-1] != etx {
		return Result{Consumed: 1}
	}

	n := length - minFrameLen
	bccOffset := 15 + n
	want := binary.LittleEndian.Uint16(buf[bccOffset : bccOffset+2])
	got := computeBCC(buf[3:bccOffset])
	if got != want {
		return Result{Consumed: 1, FrameCorrupt: true}
	}

	data := make([]byte, n)
	copy(data, buf[15:15+n])
	fr := Frame{
		Dest: Addr{DeviceType: DeviceType(buf[3]), Master: buf[4], CU: buf[5]},
		Src:  Addr{DeviceType: DeviceType(buf[8]), Master: buf[9], CU: buf[10]},
		OP1:  buf[13],
		OP2:  buf[14],
		Data: data,
	}
	return Result{Complete: true, Consumed: length, Frame: fr}
}
