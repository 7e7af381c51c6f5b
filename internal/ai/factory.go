package ai

import "fmt"

// NewProvider creates the provider variant registered under name.
func NewProvider(name string, cfg ProviderConfig) (Provider, error) {
	switch name {
	case "openai":
		return NewOpenAIProvider(cfg)
	case "compat":
		return NewCompatProvider(cfg)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
}
