package stream

// Event is one decoded data frame of an upstream stream.
type Event struct {
	Type string
	Raw  []byte
}

// Decode unmarshals the frame into v.
func (e *Event) Decode(v any) error {
	return unmarshal(e.Raw, v)
}
