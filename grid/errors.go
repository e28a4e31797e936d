package grid

import "errors"

var (
	// ErrConfiguration is returned by New for an unusable configuration.
	// It is never retried.
	ErrConfiguration = errors.New("grid: configuration error")
	// ErrFetch is returned when the data source cannot be loaded.
	ErrFetch = errors.New("grid: fetch failed")
	// ErrParse is returned when the payload is not JSON or no item
	// sequence can be derived from it.
	ErrParse = errors.New("grid: parse failed")
	// ErrExport is returned for empty result sets and unknown formats.
	ErrExport = errors.New("grid: export failed")
)

// DefaultLoadMessage is shown when a load failure carries no safe message.
const DefaultLoadMessage = "Unable to retrieve data. Please try again later."

// LoadError is a load failure carrying a message that is safe to show to
// end users. Loaders that talk to untrusted upstreams return it so that
// raw transport detail never reaches the rendered error panel.
type LoadError struct {
	Message string
	Err     error
}

func (e *LoadError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Err.Error()
}

func (e *LoadError) Unwrap() error { return e.Err }

// UserMessage returns the end-user message for a load failure.
func UserMessage(err error) string {
	var le *LoadError
	if errors.As(err, &le) && le.Message != "" {
		return le.Message
	}
	if errors.Is(err, ErrParse) {
		return "The data source returned data that could not be displayed."
	}
	return DefaultLoadMessage
}
