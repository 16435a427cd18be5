package iam

import (
	"context"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
)

// DiscoverIntrospectionEndpoint reads the issuer's OpenID Connect discovery
// document and returns its introspection_endpoint.
func DiscoverIntrospectionEndpoint(ctx context.Context, issuer string) (string, error) {
	provider, err := oidc.NewProvider(ctx, strings.TrimSpace(issuer))
	if err != nil {
		return "", fmt.Errorf("oidc discovery: %w", err)
	}
	var meta struct {
		IntrospectionEndpoint string `json:"introspection_endpoint"`
	}
	if err := provider.Claims(&meta); err != nil {
		return "", fmt.Errorf("decode discovery document: %w", err)
	}
	if strings.TrimSpace(meta.IntrospectionEndpoint) == "" {
		return "", fmt.Errorf("issuer %s does not advertise an introspection endpoint", issuer)
	}
	return meta.IntrospectionEndpoint, nil
}
