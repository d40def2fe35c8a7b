package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// ClaimValueType tags how a claim value is interpreted when it is embedded
// in a token.
type ClaimValueType string

const (
	ClaimString  ClaimValueType = "string"
	ClaimBoolean ClaimValueType = "boolean"
	ClaimJSON    ClaimValueType = "json"
)

// Claim is one attribute asserted about a user. A user's claims keep the
// order they were added in.
type Claim struct {
	Type      string
	Value     string
	ValueType ClaimValueType
}

// Validate checks that Value parses as ValueType. An empty ValueType means
// string.
func (c Claim) Validate() error {
	if c.Type == "" {
		return fmt.Errorf("claim type is empty")
	}
	switch c.ValueType {
	case "", ClaimString:
	case ClaimBoolean:
		if _, err := strconv.ParseBool(c.Value); err != nil {
			return fmt.Errorf("claim %q: %q is not a boolean", c.Type, c.Value)
		}
	case ClaimJSON:
		if !json.Valid([]byte(c.Value)) {
			return fmt.Errorf("claim %q: value is not valid json", c.Type)
		}
	default:
		return fmt.Errorf("claim %q: unknown value type %q", c.Type, c.ValueType)
	}
	return nil
}

// Normalized returns c with an explicit value type.
func (c Claim) Normalized() Claim {
	if c.ValueType == "" {
		c.ValueType = ClaimString
	}
	return c
}

// TypedValue returns the value as it should appear in JSON output. It
// assumes Validate has passed.
func (c Claim) TypedValue() any {
	switch c.ValueType {
	case ClaimBoolean:
		b, _ := strconv.ParseBool(c.Value)
		return b
	case ClaimJSON:
		return json.RawMessage(c.Value)
	}
	return c.Value
}

// Standard OpenID Connect identity scopes and the claims each one releases.
var identityScopeClaims = map[string][]string{
	"profile": {"name", "family_name", "given_name", "middle_name", "nickname",
		"preferred_username", "profile", "picture", "website", "gender",
		"birthdate", "zoneinfo", "locale", "updated_at"},
	"email":   {"email", "email_verified"},
	"address": {"address"},
	"phone":   {"phone_number", "phone_number_verified"},
}

// ReleasedClaims selects the claims that the granted scopes allow into a
// token. Later claims of the same type override earlier ones.
func ReleasedClaims(claims []Claim, scopes []string) map[string]any {
	allowed := make(map[string]struct{})
	for _, s := range scopes {
		for _, name := range identityScopeClaims[s] {
			allowed[name] = struct{}{}
		}
	}
	if len(allowed) == 0 {
		return nil
	}

	out := make(map[string]any)
	for _, c := range claims {
		if _, ok := allowed[c.Type]; ok {
			out[c.Type] = c.TypedValue()
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// SupportedClaims lists every claim name an identity scope can release.
func SupportedClaims() []string {
	var out []string
	for _, scope := range []string{"profile", "email", "address", "phone"} {
		out = append(out, identityScopeClaims[scope]...)
	}
	return out
}
