package wavelane

import "unsafe"

// Lease is a live, exclusive claim on a span of the device ring buffer,
// issued by Session.Acquire. Write samples through Samples or Bytes, then
// call Finish exactly once to commit the claimed frames to the device.
//
// A lease that is dropped without Finish keeps the session's render path
// blocked: the next Acquire fails with ErrLeaseOutstanding. Frames committed
// by successive finished leases play back in commit order.
type Lease struct {
	session *Session
	render  RenderClient
	raw     []byte
	frames  uint32

	finished bool
}

// FrameCount returns the number of frames this lease claims. Always
// strictly positive.
func (l *Lease) FrameCount() uint32 {
	return l.frames
}

// Bytes returns the claimed region as raw bytes, sized frame count x bytes
// per frame. The view is only valid until Finish.
func (l *Lease) Bytes() []byte {
	return l.raw
}

// Samples returns the claimed region as interleaved signed 16-bit samples.
// The view aliases the device buffer, so writes land directly in it; any
// element left unwritten plays whatever the buffer previously held, so
// callers producing less than a full lease must zero the remainder
// themselves. Only valid until Finish.
func (l *Lease) Samples() []int16 {
	if len(l.raw) == 0 {
		return nil
	}

	return unsafe.Slice((*int16)(unsafe.Pointer(&l.raw[0])), len(l.raw)/2)
}

// Finish commits the claimed frames back to the device and releases the
// claim, allowing the session to issue the next lease. It must be called
// exactly once; a second call fails with ErrLeaseFinished. A device failure
// here is fatal: it means protocol misuse or a driver fault, not transient
// unavailability.
func (l *Lease) Finish() error {
	if l.finished {
		return ErrLeaseFinished
	}

	// The claim is spent either way: a failed commit leaves the render path
	// in an undefined state that re-committing cannot repair.
	l.finished = true
	l.session.lease = nil
	l.raw = nil

	if err := l.render.CommitBuffer(l.frames); err != nil {
		return &FatalError{Op: "commit render buffer", Err: err}
	}

	return nil
}
