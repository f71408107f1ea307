package slink

// ringBuffer is the fixed-size buffer the Connection Loop reads
// transport bytes into before handing them to the Receive Pipeline. A
// fixed fixed-capacity buffer (rather than a caller-owned growing one)
// bounds memory and removes the shared-pointer hazard between caller
// and library, per the design's cyclic-buffering note; unlike a true
// circular buffer it compacts on demand rather than wrapping indices,
// which is simpler and cheap at this size (16 KiB, compacted at most
// once per read).
type ringBuffer struct {
	buf        []byte
	start, end int
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{buf: make([]byte, capacity)}
}

// Len returns the number of unconsumed bytes currently buffered.
func (r *ringBuffer) Len() int { return r.end - r.start }

// Bytes returns the unconsumed bytes; callers must not retain this
// slice past the next mutating call.
func (r *ringBuffer) Bytes() []byte { return r.buf[r.start:r.end] }

// Consume advances past n already-examined bytes.
func (r *ringBuffer) Consume(n int) {
	r.start += n
	if r.start == r.end {
		r.start, r.end = 0, 0
	}
}

// Free returns how much capacity remains for a subsequent Fill.
func (r *ringBuffer) Free() int {
	r.compact()
	return len(r.buf) - r.end
}

// compact moves unconsumed bytes to the front of the backing array when
// there is unused space before them, so a subsequent read can use the
// largest possible contiguous span.
func (r *ringBuffer) compact() {
	if r.start == 0 {
		return
	}
	n := copy(r.buf, r.buf[r.start:r.end])
	r.start, r.end = 0, n
}

// Fill appends n freshly-read bytes (already placed at r.buf[r.end:])
// to the buffered region. Callers read into r.buf[r.end:] directly via
// WriteSlice to avoid a copy.
func (r *ringBuffer) Fill(n int) { r.end += n }

// WriteSlice returns the free region a transport read should target.
func (r *ringBuffer) WriteSlice() []byte {
	r.compact()
	return r.buf[r.end:]
}

// Unread pushes data back ahead of any bytes already awaiting
// consumption. Used by the v3 Payload Detector's next-header probe,
// which must speculatively over-read into the following record to
// determine the current one's length; once the length is known, the
// bytes beyond it belong to the next frame and are returned here so
// they are parsed as such instead of being stolen into this payload.
func (r *ringBuffer) Unread(data []byte) {
	if len(data) == 0 {
		return
	}
	remaining := r.Bytes()
	need := len(data) + len(remaining)
	if need > cap(r.buf) {
		nb := make([]byte, need)
		copy(nb, data)
		copy(nb[len(data):], remaining)
		r.buf = nb
		r.start, r.end = 0, need
		return
	}
	nb := make([]byte, need)
	copy(nb, data)
	copy(nb[len(data):], remaining)
	copy(r.buf, nb)
	r.start, r.end = 0, need
}
