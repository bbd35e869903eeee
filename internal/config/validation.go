package config

import "fmt"

// Validate checks the fields every run mode needs.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	switch c.Provider {
	case ProviderOpenAI, ProviderAzure:
	default:
		return fmt.Errorf("%w: %q (expected %q or %q)",
			ErrInvalidProvider, c.Provider, ProviderOpenAI, ProviderAzure)
	}

	if c.MaxToolIterations <= 0 || c.MaxToolIterations > MaxAllowedToolIterations {
		return fmt.Errorf("%w: %d (must be 1..%d)",
			ErrInvalidToolIterations, c.MaxToolIterations, MaxAllowedToolIterations)
	}

	return nil
}

// ValidateServe checks everything the gateway server requires before it can
// accept chat traffic.
func (c *Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.APIKey == "" {
		return fmt.Errorf("%w: set NVIV_API_KEY", ErrMissingAPIKey)
	}
	if c.Provider == ProviderAzure {
		if c.AzureEndpoint == "" {
			return fmt.Errorf("%w: set NVIV_AZURE_ENDPOINT", ErrMissingAzureEndpoint)
		}
		if c.AzureDeployment == "" {
			return fmt.Errorf("%w: set NVIV_AZURE_DEPLOYMENT", ErrMissingDeployment)
		}
	}
	if c.ToolServerCommand == "" {
		return ErrMissingToolServer
	}
	if c.StorePath == "" {
		return ErrInvalidStorePath
	}

	return nil
}
