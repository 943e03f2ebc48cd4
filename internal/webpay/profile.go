package webpay

import "fmt"

const (
	EnvIntegration = "integration"
	EnvProduction  = "production"

	IntegrationHost = "https://webpay3gint.transbank.cl"
	ProductionHost  = "https://webpay3g.transbank.cl"

	// Public Webpay Plus test commerce published by Transbank.
	IntegrationCommerceCode = "597055555532"
	IntegrationAPIKey       = "579B532A7440BB0C9079DED94D31EA1615BACEB56610332264630D42D0A36B1C"
)

// Profile is one fixed set of gateway credentials.
type Profile struct {
	Environment  string
	Host         string
	CommerceCode string
	APIKey       string
}

// SelectProfile picks the credential profile for env. The integration profile always uses the public
// test commerce; production requires both commerceCode and apiKey.
func SelectProfile(env, commerceCode, apiKey string) (Profile, error) {
	switch env {
	case "", EnvIntegration:
		return Profile{
			Environment:  EnvIntegration,
			Host:         IntegrationHost,
			CommerceCode: IntegrationCommerceCode,
			APIKey:       IntegrationAPIKey,
		}, nil
	case EnvProduction:
		if commerceCode == "" || apiKey == "" {
			return Profile{}, fmt.Errorf("webpay: production profile needs commerce code and api key")
		}
		return Profile{
			Environment:  EnvProduction,
			Host:         ProductionHost,
			CommerceCode: commerceCode,
			APIKey:       apiKey,
		}, nil
	default:
		return Profile{}, fmt.Errorf("webpay: unknown environment %q", env)
	}
}

// WithHost returns a copy of p talking to host instead.
func (p Profile) WithHost(host string) Profile {
	if host != "" {
		p.Host = host
	}
	return p
}
