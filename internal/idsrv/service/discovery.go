package service

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/aussiebroadwan/idsrv/internal/idsrv/domain"
)

// Endpoint paths advertised in the discovery document.
const (
	PathDiscovery  = "/.well-known/openid-configuration"
	PathJWKS       = "/.well-known/jwks.json"
	PathToken      = "/connect/token"
	PathIntrospect = "/connect/introspect"
	PathRevoke     = "/connect/revoke"
	PathUserinfo   = "/connect/userinfo"
)

// DiscoveryConfig describes what the server offers.
type DiscoveryConfig struct {
	// Issuer is the absolute http(s) base URL of the server.
	Issuer            string
	GrantTypes        []string
	Scopes            []string
	SigningAlgorithms []string
}

// DiscoveryPublisher holds the metadata document built at startup.
type DiscoveryPublisher struct {
	doc domain.DiscoveryDocument
}

// NewDiscoveryPublisher validates cfg and builds the document.
func NewDiscoveryPublisher(cfg DiscoveryConfig) (*DiscoveryPublisher, error) {
	u, err := url.Parse(cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("discovery: issuer: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("discovery: issuer %q is not an absolute http(s) URL", cfg.Issuer)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return nil, fmt.Errorf("discovery: issuer %q must not carry a query or fragment", cfg.Issuer)
	}
	if len(cfg.GrantTypes) == 0 {
		return nil, errors.New("discovery: no grant types configured")
	}

	base := strings.TrimRight(cfg.Issuer, "/")
	return &DiscoveryPublisher{doc: domain.DiscoveryDocument{
		Issuer:                            cfg.Issuer,
		TokenEndpoint:                     base + PathToken,
		IntrospectionEndpoint:             base + PathIntrospect,
		RevocationEndpoint:                base + PathRevoke,
		UserinfoEndpoint:                  base + PathUserinfo,
		JWKSURI:                           base + PathJWKS,
		GrantTypesSupported:               slices.Clone(cfg.GrantTypes),
		ScopesSupported:                   slices.Clone(cfg.Scopes),
		ClaimsSupported:                   append([]string{"sub"}, domain.SupportedClaims()...),
		TokenEndpointAuthMethodsSupported: []string{"client_secret_basic", "client_secret_post"},
		IDTokenSigningAlgValuesSupported:  slices.Clone(cfg.SigningAlgorithms),
	}}, nil
}

// Document returns a copy of the metadata document.
func (p *DiscoveryPublisher) Document() domain.DiscoveryDocument {
	doc := p.doc
	doc.GrantTypesSupported = slices.Clone(doc.GrantTypesSupported)
	doc.ScopesSupported = slices.Clone(doc.ScopesSupported)
	doc.ClaimsSupported = slices.Clone(doc.ClaimsSupported)
	doc.TokenEndpointAuthMethodsSupported = slices.Clone(doc.TokenEndpointAuthMethodsSupported)
	doc.IDTokenSigningAlgValuesSupported = slices.Clone(doc.IDTokenSigningAlgValuesSupported)
	return doc
}
