package config

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/pcristin/zeroland-landing/internal/chain"
	"github.com/pcristin/zeroland-landing/internal/secrets"
)

// Settings holds the secrets resolved from the config references. It is
// never logged or written to disk.
type Settings struct {
	// PrivateKey is a hex key; empty when KeystorePath is set.
	PrivateKey   string
	KeystorePath string
	Proxy        *url.URL
}

type SecretResolver interface {
	PrivateKey(ctx context.Context, v string) (string, error)
	Proxy(ctx context.Context, v string) (string, error)
}

// SecretResolver builds the resolver described by the secrets section.
func (c *Config) SecretResolver() *secrets.Resolver {
	return &secrets.Resolver{
		PrivateKeys: secrets.NewEnvMap(c.Secrets.PrivateKeysEnv),
		Proxies:     secrets.NewEnvMap(c.Secrets.ProxiesEnv),
		AWSRegion:   c.Secrets.AWSRegion,
	}
}

// Resolve expands ENV:/AWS: references and validates the results. KEYSTORE:
// references are returned as a path for the caller to decrypt.
func (c *Config) Resolve(ctx context.Context, r SecretResolver) (Settings, error) {
	var out Settings
	key := strings.TrimSpace(c.PrivateKey)
	if strings.HasPrefix(key, secrets.PrefixKeystore) {
		out.KeystorePath = strings.TrimSpace(strings.TrimPrefix(key, secrets.PrefixKeystore))
		if out.KeystorePath == "" {
			return Settings{}, fmt.Errorf("%w: empty keystore path", ErrInvalidConfig)
		}
	} else {
		v, err := r.PrivateKey(ctx, key)
		if err != nil {
			return Settings{}, fmt.Errorf("private_key: %w", err)
		}
		if !isHexKey(v) {
			return Settings{}, fmt.Errorf("%w: resolved private_key is not a 32-byte hex key", ErrInvalidConfig)
		}
		out.PrivateKey = v
	}

	if p := strings.TrimSpace(c.Proxy); p != "" {
		v, err := r.Proxy(ctx, p)
		if err != nil {
			return Settings{}, fmt.Errorf("proxy: %w", err)
		}
		u, err := chain.ParseProxy(v)
		if err != nil {
			return Settings{}, fmt.Errorf("%w: proxy: %v", ErrInvalidConfig, err)
		}
		out.Proxy = u
	}
	return out, nil
}
