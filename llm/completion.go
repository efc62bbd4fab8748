package llm

// CompletionRequest is one chat completion call.
type CompletionRequest struct {
	// Model overrides the provider's configured model when set.
	Model    string
	Messages []Message

	// Temperature is sent only when set, so a zero value reaches the
	// endpoint explicitly. Query generation always sets 0.
	Temperature *float64
	MaxTokens   *int
}

// CompletionResponse is the first choice of a completion.
type CompletionResponse struct {
	Content string
	// Model is the model that served the call, as the endpoint reports it.
	Model        string
	FinishReason string
	Usage        TokenUsage
}

// Truncated reports whether generation hit the token limit. A truncated
// query rarely survives validation.
func (r *CompletionResponse) Truncated() bool {
	return r.FinishReason == "length"
}

// TokenUsage counts tokens for one call or an accumulated total.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Add returns the field-wise sum of u and o.
func (u TokenUsage) Add(o TokenUsage) TokenUsage {
	u.InputTokens += o.InputTokens
	u.OutputTokens += o.OutputTokens
	u.TotalTokens += o.TotalTokens
	return u
}

// CompletionOption sets one request field.
type CompletionOption func(*CompletionRequest)

// WithModel selects the model for this request.
func WithModel(model string) CompletionOption {
	return func(r *CompletionRequest) { r.Model = model }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) CompletionOption {
	return func(r *CompletionRequest) { r.Temperature = &t }
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) CompletionOption {
	return func(r *CompletionRequest) { r.MaxTokens = &n }
}

// NewCompletionRequest builds a request for messages.
func NewCompletionRequest(messages []Message, opts ...CompletionOption) *CompletionRequest {
	r := &CompletionRequest{Messages: messages}
	for _, opt := range opts {
		opt(r)
	}
	return r
}
