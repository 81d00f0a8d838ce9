package tracefmt

import "encoding/binary"

// Encode serializes t in the runtime's on-disk layout. The header's event
// count is taken from len(t.Events), not t.Header.EventCount.
func Encode(t *Trace) []byte {
	buf := make([]byte, ExpectedSize(int32(len(t.Events))))
	be := binary.BigEndian

	h := t.Header
	be.PutUint64(buf[0:], h.Version)
	be.PutUint64(buf[8:], h.SessionID)
	be.PutUint64(buf[16:], uint64(h.ProcessID))
	be.PutUint64(buf[24:], h.ThreadID)
	be.PutUint64(buf[32:], h.SystemClockTimestampNanoseconds)
	be.PutUint64(buf[40:], h.SteadyClockTimestampNanoseconds)
	be.PutUint32(buf[48:], uint32(len(t.Events)))

	off := HeaderSizeBytes
	for _, e := range t.Events {
		packed := e.SteadyClockTimestampNanoseconds & timestampMask
		if e.Type == FunctionEntry {
			packed |= entryBit
		}
		be.PutUint64(buf[off:], e.FunctionID)
		be.PutUint64(buf[off+8:], packed)
		off += EventSizeBytes
	}

	copy(buf[off:], t.Footer.Reserved)
	return buf
}
