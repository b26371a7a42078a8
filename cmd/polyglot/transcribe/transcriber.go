package transcribe

// Info carries what the transcription engine learned about the audio
// before producing segments.
type Info struct {
	// Language is the detected (or forced) source language code, e.g. "he".
	// Empty if the engine could not tell.
	Language string
}

// Segments is a lazy, single pass sequence of recognized segments.
// It is not re-entrant: once exhausted or closed it cannot be restarted.
type Segments interface {
	// Next blocks until the next segment is available. It returns false once
	// the sequence is exhausted.
	Next() (Segment, bool, error)
	Close() error
}

// Transcriber turns an audio file into a lazy sequence of timed segments.
type Transcriber interface {
	Transcribe(audioPath string) (Segments, Info, error)
	Destroy() error
}

type Translation struct {
	ChainID string
	Text    string
}

// Translations keeps chain results in the order the chains were requested.
type Translations []Translation

func (t Translations) Get(chainID string) (string, bool) {
	for _, tr := range t {
		if tr.ChainID == chainID {
			return tr.Text, true
		}
	}
	return "", false
}

func (t Translations) Map() map[string]string {
	m := make(map[string]string, len(t))
	for _, tr := range t {
		m[tr.ChainID] = tr.Text
	}
	return m
}

// Segment is one recognized speech interval. Start and End are in seconds.
type Segment struct {
	Start        float64
	End          float64
	Text         string
	Translations Translations
}

type Transcription []Segment

// sliceSegments adapts an already materialized list of segments to the
// Segments interface.
type sliceSegments struct {
	segments []Segment
	pos      int
}

func NewSliceSegments(segments []Segment) Segments {
	return &sliceSegments{segments: segments}
}

func (s *sliceSegments) Next() (Segment, bool, error) {
	if s.pos >= len(s.segments) {
		return Segment{}, false, nil
	}
	seg := s.segments[s.pos]
	s.pos++
	return seg, true, nil
}

func (s *sliceSegments) Close() error {
	s.pos = len(s.segments)
	return nil
}
