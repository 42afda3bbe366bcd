package scheduler

import (
	"context"
	"os"

	"plexanibridge/internal/domain"
	"plexanibridge/internal/mapping"
)

// RemoteMappingSource is the concrete MappingSource wired into the real
// database-sync job: authoritative is the Fribb/anime-lists-style
// document URL from global config, overridePath an optional local
// file ($includes-capable) holding user-maintained custom mappings.
type RemoteMappingSource struct {
	AuthoritativeURL string
	OverridePath     string
	Fetcher          mapping.Fetcher
}

// NewRemoteMappingSource builds a source backed by mapping.DefaultFetcher.
func NewRemoteMappingSource(authoritativeURL, overridePath string) *RemoteMappingSource {
	return &RemoteMappingSource{
		AuthoritativeURL: authoritativeURL,
		OverridePath:     overridePath,
		Fetcher:          &mapping.DefaultFetcher{},
	}
}

// FetchAuthoritative resolves the $includes graph rooted at the
// configured authoritative URL.
func (s *RemoteMappingSource) FetchAuthoritative(ctx context.Context) ([]domain.Mapping, error) {
	if s.AuthoritativeURL == "" {
		return nil, nil
	}
	return mapping.ResolveIncludes(ctx, s.Fetcher, s.AuthoritativeURL)
}

// FetchOverrides resolves the $includes graph rooted at the local
// override file, if configured. A missing file is not an error: most
// profiles never define custom overrides.
func (s *RemoteMappingSource) FetchOverrides(ctx context.Context) ([]domain.Mapping, error) {
	if s.OverridePath == "" {
		return nil, nil
	}
	if _, err := os.Stat(s.OverridePath); os.IsNotExist(err) {
		return nil, nil
	}
	return mapping.ResolveIncludes(ctx, s.Fetcher, s.OverridePath)
}
