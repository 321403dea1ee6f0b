package core

import "errors"

var (
	// ErrNoAPIKey means no generation credential is configured. Surfaced to
	// the user as a prompt to configure one; never retried.
	ErrNoAPIKey = errors.New("no Gemini API key is configured; set one in the settings or via GEMINI_API_KEY")

	// ErrTimeout means the generation call exceeded its deadline.
	ErrTimeout = errors.New("generation request timed out")

	// ErrTransport means the request never reached the generation endpoint
	// or the connection failed mid-flight. UpstreamError, by contrast,
	// carries a failure the endpoint itself reported.
	ErrTransport = errors.New("generation request failed in transport")

	// ErrMalformedResponse means every extraction strategy failed on the
	// model's response text. Distinct from upstream failures: the call
	// itself succeeded.
	ErrMalformedResponse = errors.New("could not extract structured data from the model response")

	// Import validation failures. Both are detected before any store
	// mutation happens.
	ErrInvalidFormat   = errors.New("invalid import file: missing or malformed data field")
	ErrNoValidEntries  = errors.New("no valid API entries found in import file")
	ErrUnknownStrategy = errors.New("unknown merge strategy")
)

// UpstreamError carries a message reported by the generation endpoint or the
// transport underneath it.
type UpstreamError struct {
	Message string
	Err     error
}

func (e *UpstreamError) Error() string {
	if e.Message != "" {
		return "generation request failed: " + e.Message
	}
	return "generation request failed"
}

func (e *UpstreamError) Unwrap() error { return e.Err }
