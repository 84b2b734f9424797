package flowmiddleware

// Priority fixes a middleware's position in the chain. Lower values run
// first (closer to the caller); Custom middlewares sort after every
// built-in stage.
type Priority int

const (
	Authentication Priority = iota
	Validation
	RateLimit
	Resilience
	PreProcessing
	Processing
	ErrorHandling
	PostProcessing
	Custom
)

func (p Priority) String() string {
	switch p {
	case Authentication:
		return "authentication"
	case Validation:
		return "validation"
	case RateLimit:
		return "rateLimit"
	case Resilience:
		return "resilience"
	case PreProcessing:
		return "preProcessing"
	case Processing:
		return "processing"
	case ErrorHandling:
		return "errorHandling"
	case PostProcessing:
		return "postProcessing"
	case Custom:
		return "custom"
	default:
		return "unknown"
	}
}
