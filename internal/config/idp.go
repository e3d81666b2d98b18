package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// IdentityProvider is the static SAML identity-provider configuration.
//
// Example:
//
//	issuer: https://www.proto.utwente.nl
//	certificate: /etc/proto/saml/idp.crt
//	private_key: /etc/proto/saml/idp.key
//	service_providers:
//	  aHR0cHM6Ly93aWtpLnByb3RvLnV0d2VudGUubmwvc2FtbC9hY3M=:
//	    audience: https://wiki.proto.utwente.nl
type IdentityProvider struct {
	Issuer           string                     `yaml:"issuer"`
	Certificate      string                     `yaml:"certificate"`
	PrivateKey       string                     `yaml:"private_key"`
	ServiceProviders map[string]ServiceProvider `yaml:"service_providers"`
}

// ServiceProvider is one allow-listed relying party, keyed in the file by the
// base64 encoding of its assertion consumer service URL.
type ServiceProvider struct {
	Audience string `yaml:"audience"`
}

func LoadIdentityProvider(path string) (*IdentityProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read identity provider config: %w", err)
	}
	return ParseIdentityProvider(data)
}

func ParseIdentityProvider(data []byte) (*IdentityProvider, error) {
	var cfg IdentityProvider
	err := yaml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse identity provider config: %w", err)
	}

	if cfg.Issuer == "" {
		return nil, errors.New("identity provider config: issuer is required")
	}

	for key, sp := range cfg.ServiceProviders {
		_, err := base64.StdEncoding.DecodeString(key)
		if err != nil {
			return nil, fmt.Errorf("identity provider config: service provider key %q is not base64: %w", key, err)
		}
		if sp.Audience == "" {
			return nil, fmt.Errorf("identity provider config: service provider %q has no audience", key)
		}
	}

	return &cfg, nil
}
