// Package enttec builds Enttec DMX USB Pro "Send DMX" frames, the wire
// format the serial transmitter writes to a USB-DMX adapter at 40 Hz.
// It has no frame parser.
package enttec

import "encoding/binary"

const (
	// StartByte begins every Enttec frame.
	StartByte = 0x7E
	// EndByte terminates every Enttec frame.
	EndByte = 0xE7
	// LabelSendDMX is the "Send DMX Packet Request" message label.
	LabelSendDMX = 0x06
	// DMXStartCode is always the first payload byte (null start code).
	DMXStartCode = 0x00
	// ChannelCount is the number of DMX channels in a universe.
	ChannelCount = 512
	// PayloadLength is the start code byte plus 512 channel bytes.
	PayloadLength = 1 + ChannelCount
	// FrameSize is the total size of an encoded Send DMX frame.
	FrameSize = 5 + ChannelCount + 1 // header(4) + start-code(1) + 512 channels + end byte(1)
)

// BuildFrame encodes a 512-byte channel snapshot into an Enttec "Send
// DMX" frame:
//
//	[0x7E][0x06][len_lsb][len_msb][0x00][ch1]...[ch512][0xE7]
//
// channels shorter than 512 bytes are zero-padded; longer slices are truncated.
func BuildFrame(channels []byte) []byte {
	frame := make([]byte, FrameSize)

	frame[0] = StartByte
	frame[1] = LabelSendDMX
	binary.LittleEndian.PutUint16(frame[2:4], uint16(PayloadLength))
	frame[4] = DMXStartCode

	n := len(channels)
	if n > ChannelCount {
		n = ChannelCount
	}
	copy(frame[5:5+n], channels[:n])
	// Remaining bytes (if channels was short) are already zero from make().

	frame[FrameSize-1] = EndByte
	return frame
}
