// Package secrets resolves private keys and proxy credentials referenced
// from the config file. Returned errors name the reference, never the value.
package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/subosito/gotenv"
)

var (
	ErrInvalidConfig = errors.New("secrets: invalid config")
	ErrNotFound      = errors.New("secrets: not found")
)

const (
	PrefixEnv      = "ENV:"
	PrefixAWS      = "AWS:"
	PrefixKeystore = "KEYSTORE:"
)

// IsReference reports whether v points at a secret instead of holding it.
func IsReference(v string) bool {
	v = strings.TrimSpace(v)
	return strings.HasPrefix(v, PrefixEnv) || strings.HasPrefix(v, PrefixAWS) || strings.HasPrefix(v, PrefixKeystore)
}

type Provider interface {
	Get(ctx context.Context, key string) (string, error)
}

// EnvMapProvider reads a JSON object such as {"main": "0x..."} from one
// environment variable and returns the entry named by key.
type EnvMapProvider struct {
	Var    string
	lookup func(string) (string, bool)
}

func NewEnvMap(envVar string) *EnvMapProvider {
	return &EnvMapProvider{Var: envVar, lookup: os.LookupEnv}
}

func (p *EnvMapProvider) Get(_ context.Context, key string) (string, error) {
	if p == nil || p.Var == "" {
		return "", fmt.Errorf("%w: env map variable not set", ErrInvalidConfig)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("%w: empty key for %s", ErrInvalidConfig, p.Var)
	}
	raw, ok := p.lookup(p.Var)
	if !ok || strings.TrimSpace(raw) == "" {
		return "", fmt.Errorf("%w: environment variable %s", ErrNotFound, p.Var)
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return "", fmt.Errorf("%w: %s is not a JSON object of strings", ErrInvalidConfig, p.Var)
	}
	v, ok := m[key]
	if !ok || strings.TrimSpace(v) == "" {
		return "", fmt.Errorf("%w: key %q in %s", ErrNotFound, key, p.Var)
	}
	return strings.TrimSpace(v), nil
}

type awsClient interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

type AWSProvider struct {
	client awsClient
}

func NewAWS(ctx context.Context, region string) (*AWSProvider, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: load aws config: %v", ErrInvalidConfig, err)
	}
	return NewAWSWithClient(secretsmanager.NewFromConfig(cfg))
}

func NewAWSWithClient(client awsClient) (*AWSProvider, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: nil secretsmanager client", ErrInvalidConfig)
	}
	return &AWSProvider{client: client}, nil
}

// Get accepts "secret-id" or "secret-id#field"; the latter reads one field
// of a JSON secret.
func (p *AWSProvider) Get(ctx context.Context, key string) (string, error) {
	if p == nil || p.client == nil {
		return "", fmt.Errorf("%w: nil aws provider", ErrInvalidConfig)
	}
	key = strings.TrimSpace(key)
	id, field, _ := strings.Cut(key, "#")
	if id == "" {
		return "", fmt.Errorf("%w: empty secret key", ErrInvalidConfig)
	}
	out, err := p.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: &id,
	})
	if err != nil {
		return "", fmt.Errorf("secrets: get secret %q: %w", id, err)
	}
	var v string
	switch {
	case out.SecretString != nil && strings.TrimSpace(*out.SecretString) != "":
		v = strings.TrimSpace(*out.SecretString)
	case len(out.SecretBinary) > 0:
		v = string(out.SecretBinary)
	default:
		return "", fmt.Errorf("%w: secret %q has no value", ErrNotFound, id)
	}
	if field == "" {
		return v, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(v), &m); err != nil {
		return "", fmt.Errorf("%w: secret %q is not a JSON object", ErrInvalidConfig, id)
	}
	fv, ok := m[field]
	if !ok || strings.TrimSpace(fv) == "" {
		return "", fmt.Errorf("%w: field %q in secret %q", ErrNotFound, field, id)
	}
	return strings.TrimSpace(fv), nil
}

// Resolver expands ENV: and AWS: references. Plain values pass through.
type Resolver struct {
	PrivateKeys Provider
	Proxies     Provider
	// AWS is built on first use when nil.
	AWS       Provider
	AWSRegion string
}

func (r *Resolver) PrivateKey(ctx context.Context, v string) (string, error) {
	return r.resolve(ctx, v, r.PrivateKeys)
}

func (r *Resolver) Proxy(ctx context.Context, v string) (string, error) {
	return r.resolve(ctx, v, r.Proxies)
}

func (r *Resolver) resolve(ctx context.Context, v string, envMap Provider) (string, error) {
	v = strings.TrimSpace(v)
	switch {
	case strings.HasPrefix(v, PrefixEnv):
		if envMap == nil {
			return "", fmt.Errorf("%w: no environment map for %s references", ErrInvalidConfig, PrefixEnv)
		}
		return envMap.Get(ctx, strings.TrimPrefix(v, PrefixEnv))
	case strings.HasPrefix(v, PrefixAWS):
		if r.AWS == nil {
			p, err := NewAWS(ctx, r.AWSRegion)
			if err != nil {
				return "", err
			}
			r.AWS = p
		}
		return r.AWS.Get(ctx, strings.TrimPrefix(v, PrefixAWS))
	default:
		return v, nil
	}
}

// LoadEnvFile loads KEY=VALUE pairs without overriding the real
// environment. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := gotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%w: load %s: %v", ErrInvalidConfig, path, err)
	}
	return nil
}
