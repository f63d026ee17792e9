package codecs

// Selector orders codecs for the startup cascade, dropping encoders a
// previous validation run marked broken.
type Selector struct {
	validated *ValidationResults
}

// NewSelector creates a selector. validated may be nil (no validation
// file present), in which case the full cascade is used.
func NewSelector(validated *ValidationResults) *Selector {
	return &Selector{validated: validated}
}

// Cascade returns the codecs to try for a stream, preferred format
// first. Encoders that failed validation are filtered out unless that
// would leave nothing to try.
func (s *Selector) Cascade(preferred Format) []Codec {
	full := CascadeFrom(preferred)
	if s == nil || s.validated == nil {
		return full
	}

	filtered := make([]Codec, 0, len(full))
	for _, c := range full {
		if s.validated.IsWorking(c.Encoder) {
			filtered = append(filtered, c)
		}
	}
	if len(filtered) == 0 {
		return full
	}
	return filtered
}
