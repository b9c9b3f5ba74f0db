// Package orbus provides the host side of the ORBUS serial protocol.
package orbus

// ORBUS is communicated between a host process and a motor controller
// board over a point-to-point link (usually a serial port).
//
// Each physical frame carries one or more self-describing sub-packets:
//
//	frame      = [marker][length][sub-packet]+[checksum]
//	sub-packet = [self-length][category][option][command][payload]
//
// The host drives the link: it writes one frame and waits for exactly
// one reply frame before it may write the next. There is no request id,
// replies are matched purely by arrival order. The board may also push
// frames on its own, marked with the async start marker.
//
// The checksum is an 8-bit additive sum of the body, it only detects
// gross corruption. The decoder resynchronizes on the next start marker.
