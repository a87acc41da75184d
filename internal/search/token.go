package search

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"substream/subtitleservice/internal/domain"
)

// EncodeToken packs a resolution payload into an opaque URL-safe string.
// The JSON field order is fixed by the payload struct, so equal payloads
// always encode to the same token.
func EncodeToken(payload domain.TokenPayload) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("token encode: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// DecodeToken reverses EncodeToken. Every failure mode maps to
// domain.ErrTokenDecode so callers can translate corrupt client input
// uniformly.
func DecodeToken(token string) (domain.TokenPayload, error) {
	var payload domain.TokenPayload
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return payload, fmt.Errorf("%w: %v", domain.ErrTokenDecode, err)
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return payload, fmt.Errorf("%w: %v", domain.ErrTokenDecode, err)
	}
	if payload.Provider == "" || payload.SourceRef == "" {
		return payload, fmt.Errorf("%w: missing provider or source reference", domain.ErrTokenDecode)
	}
	return payload, nil
}
