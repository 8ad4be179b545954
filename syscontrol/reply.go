package syscontrol

import "syscontrol/parcel"

// Flag is the leading int32 of a flagged reply. Zero means the remote reported
// failure; every other value means success. A failed flag is not followed by a
// value the client may rely on.
type Flag int32

const (
	FlagFailure Flag = 0
	FlagSuccess Flag = 1
)

// FlagOf converts a handler's boolean outcome to its wire flag.
func FlagOf(ok bool) Flag {
	if ok {
		return FlagSuccess
	}
	return FlagFailure
}

// OK reports whether the flag signals success.
func (f Flag) OK() bool {
	return f != FlagFailure
}

// FlaggedString is the (flag, string) reply of GetProperty, GetPropertyString
// and GetBootEnv.
type FlaggedString struct {
	Flag  Flag
	Value string
}

// Encode appends the reply to p. The value is always written, even on failure,
// so the frame shape never depends on the outcome.
func (r FlaggedString) Encode(p *parcel.Parcel) {
	p.WriteInt32(int32(r.Flag))
	p.WriteString16(r.Value)
}

// DecodeFlaggedString reads a flagged reply. When the flag reports failure the
// value is left unread.
func DecodeFlaggedString(p *parcel.Parcel) (FlaggedString, error) {
	flag, err := p.ReadInt32()
	if err != nil {
		return FlaggedString{}, err
	}
	r := FlaggedString{Flag: Flag(flag)}
	if !r.Flag.OK() {
		return r, nil
	}
	r.Value, err = p.ReadString16()
	return r, err
}
