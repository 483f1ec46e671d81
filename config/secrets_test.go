package config

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvSecretManager_GetSecret(t *testing.T) {
	t.Setenv("CIPHERD_SOME_KEY", "value")

	m := &EnvSecretManager{}
	v, err := m.GetSecret("some_key")
	require.NoError(t, err)
	assert.Equal(t, "value", v)

	_, err = m.GetSecret("missing_key")
	assert.ErrorContains(t, err, "CIPHERD_MISSING_KEY")
}

func TestEnvSecretManager_GetDatabasePassword(t *testing.T) {
	t.Setenv("CIPHERD_STORAGE_POSTGRES_PASSWORD", "pg-secret")

	v, err := (&EnvSecretManager{}).GetDatabasePassword()
	require.NoError(t, err)
	assert.Equal(t, "pg-secret", v)
}

func TestNewSecretManager_Providers(t *testing.T) {
	cfg := &Config{}

	m, err := NewSecretManager(cfg)
	require.NoError(t, err)
	assert.IsType(t, &EnvSecretManager{}, m)

	cfg.Secrets.Provider = "vault"
	cfg.Secrets.Vault.Address = "http://127.0.0.1:8200"
	m, err = NewSecretManager(cfg)
	require.NoError(t, err)
	assert.IsType(t, &VaultSecretManager{}, m)

	cfg.Secrets.Provider = "aws"
	cfg.Secrets.AWS.Region = "eu-west-1"
	m, err = NewSecretManager(cfg)
	require.NoError(t, err)
	assert.IsType(t, &AWSSecretManager{}, m)

	cfg.Secrets.Provider = "azure"
	_, err = NewSecretManager(cfg)
	assert.ErrorContains(t, err, "unsupported secret provider")
}

func newVaultServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/secret/cipherd" {
			http.NotFound(w, r)
			return
		}
		assert.Equal(t, "test-token", r.Header.Get("X-Vault-Token"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func vaultConfig(addr string) *Config {
	cfg := &Config{}
	cfg.Secrets.Provider = "vault"
	cfg.Secrets.Vault.Address = addr
	cfg.Secrets.Vault.Token = "test-token"
	cfg.Secrets.Vault.Path = "secret/cipherd"
	cfg.Storage.Driver = "postgres"
	return cfg
}

func TestVaultSecretManager_KVv1(t *testing.T) {
	srv := newVaultServer(t, `{"data": {"db_password": "vault-pass"}}`)
	cfg := vaultConfig(srv.URL)

	require.NoError(t, LoadSecrets(cfg))
	assert.Equal(t, "vault-pass", cfg.Storage.Postgres.Password)
}

func TestVaultSecretManager_KVv2(t *testing.T) {
	srv := newVaultServer(t, `{"data": {"data": {"db_password": "nested"}, "metadata": {"version": 3}}}`)

	m, err := NewVaultSecretManager(vaultConfig(srv.URL))
	require.NoError(t, err)
	v, err := m.GetDatabasePassword()
	require.NoError(t, err)
	assert.Equal(t, "nested", v)
}

func TestVaultSecretManager_Errors(t *testing.T) {
	srv := newVaultServer(t, `{"data": {"other": "x", "number": 5}}`)
	m, err := NewVaultSecretManager(vaultConfig(srv.URL))
	require.NoError(t, err)

	_, err = m.GetSecret("db_password")
	assert.ErrorContains(t, err, "not found")

	_, err = m.GetSecret("number")
	assert.ErrorContains(t, err, "not a string")

	cfg := vaultConfig(srv.URL)
	cfg.Secrets.Vault.Path = "secret/elsewhere"
	m, err = NewVaultSecretManager(cfg)
	require.NoError(t, err)
	_, err = m.GetSecret("db_password")
	assert.Error(t, err)
}

func TestAWSSecretManager_GetDatabasePassword(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secretsmanager.GetSecretValue", r.Header.Get("X-Amz-Target"))
		w.Header().Set("Content-Type", "application/x-amz-json-1.1")
		_, _ = w.Write([]byte(`{"Name": "cipherd/secrets", "SecretString": "{\"db_password\": \"aws-pass\"}"}`))
	}))
	defer srv.Close()

	cfg := &Config{}
	cfg.Secrets.Provider = "aws"
	cfg.Secrets.AWS.Region = "us-east-1"
	cfg.Secrets.AWS.AccessKey = "AKIDEXAMPLE"
	cfg.Secrets.AWS.SecretKey = "secret"
	cfg.Secrets.AWS.Endpoint = srv.URL
	cfg.Storage.Driver = "postgres"

	require.NoError(t, LoadSecrets(cfg))
	assert.Equal(t, "aws-pass", cfg.Storage.Postgres.Password)
}

func TestLoadSecrets_SkipsWhenNotNeeded(t *testing.T) {
	cfg := &Config{}
	cfg.Storage.Driver = "postgres"
	cfg.Storage.Postgres.Password = "kept"
	require.NoError(t, LoadSecrets(cfg), "env provider is a no-op")
	assert.Equal(t, "kept", cfg.Storage.Postgres.Password)

	cfg.Secrets.Provider = "vault"
	cfg.Secrets.Vault.Address = "http://127.0.0.1:1"
	cfg.Storage.Driver = "sqlite"
	assert.NoError(t, LoadSecrets(cfg), "sqlite needs no database password")
}

func TestLoadSecrets_ProviderFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"errors":["permission denied"]}`, http.StatusForbidden)
	}))
	defer srv.Close()

	err := LoadSecrets(vaultConfig(srv.URL))
	assert.ErrorContains(t, err, "failed to load database password")
}
