package ai

import "context"

// Adapter translates a Request into one provider call and the reply into a
// Result. Adapters do not select providers, cache or retry.
type Adapter interface {
	ID() ProviderID
	// Model is the fixed model the adapter calls. It is part of the
	// response cache key.
	Model() string
	Capabilities() []Kind
	Analyze(ctx context.Context, req *Request) (*Result, error)
}

// Completion is the raw text reply of a provider together with its usage.
type Completion struct {
	Text   string
	Model  string
	Tokens int
}

// ToResult parses a completion into a Result for req, keeping the raw text
// for audit.
func (c Completion) ToResult(provider ProviderID, req *Request) (*Result, error) {
	res, err := ParseResponse(provider, req.Kind, c.Text)
	if err != nil {
		return nil, err
	}
	res.Model = c.Model
	res.TokensUsed = c.Tokens
	res.RawResponse = c.Text
	return res, nil
}
