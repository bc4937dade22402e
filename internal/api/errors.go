package api

import "errors"

// Error taxonomy. Handlers map these onto HTTP status codes; anything not
// covered by a sentinel is a ComputationFailure and takes the endpoint's
// default status (400 for input-driven endpoints, 500 for /explain/global).
var (
	// ErrModelUnavailable means the model, scaler or feature schema was not
	// loaded at startup. Always a 500.
	ErrModelUnavailable = errors.New("Model not loaded")

	// ErrAttributionUnavailable means the attribution method cannot be built
	// for the loaded model (no linear coefficients exposed). Always a 500.
	ErrAttributionUnavailable = errors.New("Failed to create SHAP explainer")

	// ErrMissingInput means the request body had no "input" field. Always a 400.
	ErrMissingInput = errors.New(`Missing "input" field in request`)
)

// RequestError marks a client-side failure (400) with a caller-visible message.
type RequestError struct {
	Message string
}

func (e *RequestError) Error() string {
	return e.Message
}

// IsClientError reports whether err should surface as a 400.
func IsClientError(err error) bool {
	var re *RequestError
	return errors.Is(err, ErrMissingInput) || errors.As(err, &re)
}
