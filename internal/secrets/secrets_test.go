package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/require"
)

type fakeAWSClient struct {
	out *secretsmanager.GetSecretValueOutput
	err error
	ids []string
}

func (c *fakeAWSClient) GetSecretValue(_ context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	c.ids = append(c.ids, *in.SecretId)
	if c.err != nil {
		return nil, c.err
	}
	return c.out, nil
}

func TestEnvMapProvider(t *testing.T) {
	const envVar = "LANDING_TEST_PRIVATE_KEYS"
	t.Setenv(envVar, `{"main": " 0xabc ", "empty": ""}`)
	p := NewEnvMap(envVar)

	got, err := p.Get(context.Background(), "main")
	require.NoError(t, err)
	require.Equal(t, "0xabc", got)

	_, err = p.Get(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = p.Get(context.Background(), "empty")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestEnvMapProviderBadJSONDoesNotLeak(t *testing.T) {
	const envVar = "LANDING_TEST_PROXIES"
	t.Setenv(envVar, `user:hunter2@host:1`)
	_, err := NewEnvMap(envVar).Get(context.Background(), "main")
	require.ErrorIs(t, err, ErrInvalidConfig)
	require.NotContains(t, err.Error(), "hunter2")
}

func TestEnvMapProviderMissingVariable(t *testing.T) {
	_, err := NewEnvMap("LANDING_TEST_UNSET_VARIABLE_XYZ").Get(context.Background(), "main")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAWSProvider(t *testing.T) {
	t.Parallel()

	p, err := NewAWSWithClient(&fakeAWSClient{
		out: &secretsmanager.GetSecretValueOutput{SecretString: strPtr(" secret ")},
	})
	require.NoError(t, err)
	got, err := p.Get(context.Background(), "arn:aws:secretsmanager:us-east-1:123:secret:test")
	require.NoError(t, err)
	require.Equal(t, "secret", got)
}

func TestAWSProviderJSONField(t *testing.T) {
	t.Parallel()

	client := &fakeAWSClient{
		out: &secretsmanager.GetSecretValueOutput{SecretString: strPtr(`{"main":"0xdef","alt":"0x123"}`)},
	}
	p, err := NewAWSWithClient(client)
	require.NoError(t, err)

	got, err := p.Get(context.Background(), "landing/keys#alt")
	require.NoError(t, err)
	require.Equal(t, "0x123", got)
	require.Equal(t, []string{"landing/keys"}, client.ids)

	_, err = p.Get(context.Background(), "landing/keys#nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAWSProviderError(t *testing.T) {
	t.Parallel()

	boom := errors.New("access denied")
	p, err := NewAWSWithClient(&fakeAWSClient{err: boom})
	require.NoError(t, err)
	_, err = p.Get(context.Background(), "landing/keys")
	require.ErrorIs(t, err, boom)
}

func TestResolver(t *testing.T) {
	t.Setenv("LANDING_TEST_KEYS", `{"main":"0xkey"}`)
	t.Setenv("LANDING_TEST_PROXY_MAP", `{"main":"u:p@h:1"}`)
	aws, err := NewAWSWithClient(&fakeAWSClient{
		out: &secretsmanager.GetSecretValueOutput{SecretString: strPtr("0xfromaws")},
	})
	require.NoError(t, err)

	r := &Resolver{
		PrivateKeys: NewEnvMap("LANDING_TEST_KEYS"),
		Proxies:     NewEnvMap("LANDING_TEST_PROXY_MAP"),
		AWS:         aws,
	}
	ctx := context.Background()

	got, err := r.PrivateKey(ctx, "ENV:main")
	require.NoError(t, err)
	require.Equal(t, "0xkey", got)

	got, err = r.Proxy(ctx, "ENV:main")
	require.NoError(t, err)
	require.Equal(t, "u:p@h:1", got)

	got, err = r.PrivateKey(ctx, "AWS:landing/keys")
	require.NoError(t, err)
	require.Equal(t, "0xfromaws", got)

	got, err = r.Proxy(ctx, "u:p@h:2")
	require.NoError(t, err)
	require.Equal(t, "u:p@h:2", got)
}

func TestIsReference(t *testing.T) {
	require.True(t, IsReference("ENV:main"))
	require.True(t, IsReference(" AWS:landing/keys"))
	require.True(t, IsReference("KEYSTORE:/tmp/key.json"))
	require.False(t, IsReference("0xabc"))
	require.False(t, IsReference("env:main"))
}

func TestLoadEnvFileDoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := strings.Join([]string{
		`LANDING_TEST_DOTENV_NEW=from-file`,
		`LANDING_TEST_DOTENV_SET=from-file`,
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("LANDING_TEST_DOTENV_SET", "from-env")
	t.Setenv("LANDING_TEST_DOTENV_NEW", "")
	require.NoError(t, os.Unsetenv("LANDING_TEST_DOTENV_NEW"))

	require.NoError(t, LoadEnvFile(path))
	require.Equal(t, "from-file", os.Getenv("LANDING_TEST_DOTENV_NEW"))
	require.Equal(t, "from-env", os.Getenv("LANDING_TEST_DOTENV_SET"))

	require.NoError(t, LoadEnvFile(filepath.Join(dir, "missing.env")))
}

func strPtr(v string) *string { return &v }
