// Package identity resolves the human-readable name shown next to a message.
package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/educhat/internal/store"
)

// Unknown is used when no source yields a name.
const Unknown = "Unknown"

// UserLookup reads identity provider user records.
type UserLookup interface {
	LookupUser(ctx context.Context, uid string) (*store.IdentityUser, error)
}

// Request is the input handed to every source.
type Request struct {
	UID  string
	Hint string
}

// Source yields a name for a request, or "" to defer to the next source.
type Source struct {
	Name   string
	Lookup func(ctx context.Context, req Request) (string, error)
}

// Resolver tries each source in order and never fails.
type Resolver struct {
	sources []Source
	log     *zerolog.Logger
}

// NewResolver builds the standard chain: profile record, identity provider record, client hint.
// Either store may be nil, in which case that source is skipped.
func NewResolver(profiles store.ProfileStore, users UserLookup, logger *zerolog.Logger) *Resolver {
	var sources []Source
	if profiles != nil {
		sources = append(sources, ProfileSource(profiles))
	}
	if users != nil {
		sources = append(sources, ProviderSource(users))
	}
	sources = append(sources, HintSource())
	return NewChain(logger, sources...)
}

// NewChain builds a resolver over an explicit list of sources.
func NewChain(logger *zerolog.Logger, sources ...Source) *Resolver {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Resolver{sources: sources, log: logger}
}

// Resolve returns the first non-empty name among the sources, or Unknown.
// Source errors are logged and treated as a miss.
func (r *Resolver) Resolve(ctx context.Context, uid, hint string) string {
	req := Request{UID: uid, Hint: hint}
	for _, src := range r.sources {
		name, err := src.Lookup(ctx, req)
		if err != nil {
			r.log.Debug().Err(err).Str("source", src.Name).Str("uid", uid).Msg("name lookup failed")
			continue
		}
		if name = strings.TrimSpace(name); name != "" {
			return name
		}
	}
	return Unknown
}

// ProfileSource reads the application profile, preferring name over displayName.
func ProfileSource(profiles store.ProfileStore) Source {
	return Source{
		Name: "profile",
		Lookup: func(ctx context.Context, req Request) (string, error) {
			if req.UID == "" {
				return "", nil
			}
			p, err := profiles.GetProfile(ctx, req.UID)
			if err != nil {
				return "", fmt.Errorf("profile %s: %w", req.UID, err)
			}
			if n := strings.TrimSpace(p.Name); n != "" {
				return n, nil
			}
			return p.DisplayName, nil
		},
	}
}

// ProviderSource reads the identity provider's display name for the uid.
func ProviderSource(users UserLookup) Source {
	return Source{
		Name: "provider",
		Lookup: func(ctx context.Context, req Request) (string, error) {
			if req.UID == "" {
				return "", nil
			}
			u, err := users.LookupUser(ctx, req.UID)
			if err != nil {
				return "", fmt.Errorf("identity user %s: %w", req.UID, err)
			}
			return u.DisplayName, nil
		},
	}
}

// HintSource returns the client-supplied display name.
func HintSource() Source {
	return Source{
		Name: "hint",
		Lookup: func(_ context.Context, req Request) (string, error) {
			return req.Hint, nil
		},
	}
}
