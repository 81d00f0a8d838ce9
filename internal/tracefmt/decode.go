package tracefmt

import "fmt"

// Decode parses a complete binary trace. The only validation is size: the
// buffer must hold exactly the header, event_count records, and the footer.
func Decode(data []byte) (*Trace, error) {
	size := int64(len(data))
	if size < MinSizeBytes {
		return nil, &TruncatedInputError{Expected: MinSizeBytes, Actual: size}
	}

	r := newReader(data)
	hdr, err := readHeader(r)
	if err != nil {
		return nil, fmt.Errorf("tracefmt: header: %w", err)
	}

	if want := ExpectedSize(hdr.EventCount); size != want {
		return nil, &SizeMismatchError{Expected: want, Actual: size}
	}

	events := make([]Event, hdr.EventCount)
	for i := range events {
		fid, err := r.ReadUint64()
		if err != nil {
			return nil, fmt.Errorf("tracefmt: event %d at offset %d: %w", i, r.Position(), err)
		}
		packed, err := r.ReadUint64()
		if err != nil {
			return nil, fmt.Errorf("tracefmt: event %d at offset %d: %w", i, r.Position(), err)
		}
		events[i] = Event{
			Type:                            EventType(packed >> 63),
			FunctionID:                      fid,
			SteadyClockTimestampNanoseconds: packed & timestampMask,
		}
	}

	reserved, err := r.ReadBytes(FooterSizeBytes)
	if err != nil {
		return nil, fmt.Errorf("tracefmt: footer: %w", err)
	}

	return &Trace{
		Header: hdr,
		Events: events,
		Footer: Footer{Reserved: reserved},
	}, nil
}

func readHeader(r *reader) (Header, error) {
	var h Header
	var err error
	if h.Version, err = r.ReadUint64(); err != nil {
		return h, err
	}
	if h.SessionID, err = r.ReadUint64(); err != nil {
		return h, err
	}
	if h.ProcessID, err = r.ReadInt64(); err != nil {
		return h, err
	}
	if h.ThreadID, err = r.ReadUint64(); err != nil {
		return h, err
	}
	if h.SystemClockTimestampNanoseconds, err = r.ReadUint64(); err != nil {
		return h, err
	}
	if h.SteadyClockTimestampNanoseconds, err = r.ReadUint64(); err != nil {
		return h, err
	}
	if h.EventCount, err = r.ReadInt32(); err != nil {
		return h, err
	}
	return h, r.Skip(headerPaddingBytes)
}
