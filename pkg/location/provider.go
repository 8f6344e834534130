package location

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrFixUnavailable is returned when no position could be obtained.
	ErrFixUnavailable = errors.New("location fix unavailable")
	// ErrPermissionDenied is returned by GetCurrentFix when access to the location source is not held.
	ErrPermissionDenied = errors.New("location permission denied")
)

// Permission is the outcome of a permission check or request.
type Permission string

const (
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// Provider interface defines the methods for location providers
type Provider interface {
	// RequestPermission asks for access to the location source. It may prompt.
	RequestPermission(ctx context.Context) (Permission, error)
	// PermissionStatus reports whether access is currently held, without prompting.
	PermissionStatus(ctx context.Context) (Permission, error)
	// GetCurrentFix returns a single best-effort fix.
	GetCurrentFix(ctx context.Context) (Sample, error)
	Close() error
}

// PermissionMode is the operator override applied on top of any provider.
type PermissionMode string

const (
	// PermissionModePrompt defers to the provider.
	PermissionModePrompt  PermissionMode = "prompt"
	PermissionModeGranted PermissionMode = "granted"
	PermissionModeDenied  PermissionMode = "denied"
)

// ParsePermissionMode maps a config value to a PermissionMode. Empty means prompt.
func ParsePermissionMode(s string) (PermissionMode, error) {
	switch PermissionMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", PermissionModePrompt:
		return PermissionModePrompt, nil
	case PermissionModeGranted:
		return PermissionModeGranted, nil
	case PermissionModeDenied:
		return PermissionModeDenied, nil
	default:
		return "", fmt.Errorf("unknown location permission mode %q", s)
	}
}

// gatedProvider applies a PermissionMode to an underlying provider.
type gatedProvider struct {
	Provider
	mode PermissionMode
}

// WithPermissionMode wraps p so that the operator override decides permission.
// PermissionModePrompt returns p unchanged.
func WithPermissionMode(p Provider, mode PermissionMode) Provider {
	if mode == PermissionModePrompt || mode == "" {
		return p
	}
	return &gatedProvider{Provider: p, mode: mode}
}

func (g *gatedProvider) RequestPermission(ctx context.Context) (Permission, error) {
	return g.PermissionStatus(ctx)
}

func (g *gatedProvider) PermissionStatus(ctx context.Context) (Permission, error) {
	if g.mode == PermissionModeDenied {
		return PermissionDenied, nil
	}
	return PermissionGranted, nil
}

func (g *gatedProvider) GetCurrentFix(ctx context.Context) (Sample, error) {
	if g.mode == PermissionModeDenied {
		return Sample{}, ErrPermissionDenied
	}
	return g.Provider.GetCurrentFix(ctx)
}
