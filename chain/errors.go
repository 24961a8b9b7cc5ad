package chain

import "errors"

// Upstream failure categories. The texts double as markers for substring-based
// retry classification.
var (
	// ErrRateLimited is returned by generators when the provider throttles the caller.
	ErrRateLimited = errors.New("rate_limit: provider rate limit exceeded")
	// ErrTimeout is returned when a generation call exceeds its deadline.
	ErrTimeout = errors.New("timeout: generation call timed out")
	// ErrOverloaded is returned when the provider reports it is overloaded.
	ErrOverloaded = errors.New("overloaded: provider overloaded")
	// ErrUpstreamAPI is returned for other provider-side API failures.
	ErrUpstreamAPI = errors.New("api_error: provider api error")
)

var (
	// ErrContextNil is returned when a nil context reaches a blocking boundary.
	ErrContextNil = errors.New("context is nil")
	// ErrMissingGenerator is returned by NewRunner without a generator.
	ErrMissingGenerator = errors.New("missing generator")
	// ErrMissingRouter is returned by NewRunner without a router.
	ErrMissingRouter = errors.New("missing router")
	// ErrMissingStateStore is returned by NewRunner without a state store.
	ErrMissingStateStore = errors.New("missing state store")
	// ErrMissingContextWindow is returned by NewRunner without a context window.
	ErrMissingContextWindow = errors.New("missing context window")

	// ErrTemplateUnknownKey is returned when a prompt references an undeclared input.
	ErrTemplateUnknownKey = errors.New("prompt template references undeclared input")
	// ErrTemplateMalformed is returned when a prompt placeholder is not terminated.
	ErrTemplateMalformed = errors.New("prompt template is malformed")

	// ErrStepInvalid is returned by ValidateSteps for unusable step definitions.
	ErrStepInvalid = errors.New("step is invalid")
)
