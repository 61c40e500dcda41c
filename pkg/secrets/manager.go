package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/richxcame/giftcard-checkout/pkg/logger"
	"go.uber.org/zap"
)

// ProviderType enumerates supported secret backends.
type ProviderType string

const (
	ProviderNone  ProviderType = ""
	ProviderEnv   ProviderType = "env"
	ProviderVault ProviderType = "vault"
	ProviderAWS   ProviderType = "aws"
)

// SecretType classifies a secret for audit logs.
type SecretType string

const (
	SecretLedgerAPIKey SecretType = "ledger_api_key"
	SecretDatabase     SecretType = "database_credentials"
	SecretJWT          SecretType = "jwt_secret"
	SecretCustom       SecretType = "custom"
)

var (
	ErrProviderNotConfigured = errors.New("secrets: provider not configured")
	ErrInvalidReference      = errors.New("secrets: invalid reference")
	ErrKeyNotFound           = errors.New("secrets: key not found")
)

// Reference locates a secret within a provider.
// Syntax: [provider://][mount::]path[@version][#key]
type Reference struct {
	Name     string
	Path     string
	Mount    string
	Key      string
	Version  string
	Provider ProviderType
	Type     SecretType
}

// CacheKey returns the cache identifier for the reference.
func (r Reference) CacheKey() string {
	key := r.Path
	if r.Mount != "" {
		key = r.Mount + "|" + key
	}
	if r.Version != "" {
		key += "@" + r.Version
	}
	if r.Key != "" {
		key += "#" + r.Key
	}
	return key
}

// ParseReference converts a raw reference string into a Reference.
func ParseReference(name string, secretType SecretType, raw string) (Reference, error) {
	ref := Reference{Name: name, Type: secretType}

	rest := strings.TrimSpace(raw)
	if rest == "" {
		return ref, ErrInvalidReference
	}

	if provider, remainder, ok := strings.Cut(rest, "://"); ok && provider != "" {
		ref.Provider = ProviderType(provider)
		rest = remainder
	}
	if remainder, key, ok := strings.Cut(rest, "#"); ok {
		ref.Key = strings.TrimSpace(key)
		rest = remainder
	}
	if remainder, version, ok := strings.Cut(rest, "@"); ok {
		ref.Version = strings.TrimSpace(version)
		rest = remainder
	}
	if mount, path, ok := strings.Cut(rest, "::"); ok {
		ref.Mount = strings.Trim(strings.TrimSpace(mount), "/")
		rest = path
	}

	ref.Path = strings.Trim(strings.TrimSpace(rest), "/")
	if ref.Path == "" {
		return ref, ErrInvalidReference
	}
	return ref, nil
}

// Metadata carries provider-specific metadata about a secret.
type Metadata struct {
	Version     string
	CreatedAt   time.Time
	RetrievedAt time.Time
}

// Secret represents a resolved secret payload.
type Secret struct {
	Data     map[string]string
	Metadata Metadata
}

// Value returns a single non-empty entry from the secret payload.
func (s Secret) Value(key string) (string, bool) {
	val, ok := s.Data[key]
	return val, ok && val != ""
}

// Config represents the runtime configuration for a Manager.
type Config struct {
	Provider     ProviderType
	CacheTTL     time.Duration
	AuditEnabled bool
	Vault        VaultConfig
	AWS          AWSConfig
}

// Manager resolves secrets from the configured backend with caching.
type Manager interface {
	GetSecret(ctx context.Context, ref Reference) (Secret, error)
	GetString(ctx context.Context, ref Reference) (string, error)
	Close() error
}

type provider interface {
	Name() ProviderType
	Fetch(ctx context.Context, ref Reference) (Secret, error)
	Close() error
}

type manager struct {
	provider     provider
	cacheTTL     time.Duration
	auditEnabled bool

	mu    sync.RWMutex
	cache map[string]cachedSecret
}

type cachedSecret struct {
	secret    Secret
	expiresAt time.Time
}

// NewManager creates a Manager for the configured provider.
func NewManager(ctx context.Context, cfg Config) (Manager, error) {
	var (
		prov provider
		err  error
	)

	switch cfg.Provider {
	case ProviderNone:
		return nil, ErrProviderNotConfigured
	case ProviderEnv:
		prov = envProvider{}
	case ProviderVault:
		prov, err = newVaultProvider(cfg.Vault)
	case ProviderAWS:
		prov, err = newAWSProvider(ctx, cfg.AWS)
	default:
		err = fmt.Errorf("secrets: unsupported provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	return newManager(prov, cfg.CacheTTL, cfg.AuditEnabled), nil
}

func newManager(prov provider, cacheTTL time.Duration, audit bool) *manager {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &manager{
		provider:     prov,
		cacheTTL:     cacheTTL,
		auditEnabled: audit,
		cache:        make(map[string]cachedSecret),
	}
}

func (m *manager) Close() error {
	return m.provider.Close()
}

// GetSecret resolves the full secret payload for ref.
func (m *manager) GetSecret(ctx context.Context, ref Reference) (Secret, error) {
	if ref.Path == "" {
		return Secret{}, ErrInvalidReference
	}
	if ref.Provider != ProviderNone && ref.Provider != m.provider.Name() {
		return Secret{}, fmt.Errorf("secrets: reference provider %q does not match manager provider %q", ref.Provider, m.provider.Name())
	}

	m.mu.RLock()
	entry, ok := m.cache[ref.CacheKey()]
	m.mu.RUnlock()
	if ok && time.Now().Before(entry.expiresAt) {
		return cloneSecret(entry.secret), nil
	}

	secret, err := m.provider.Fetch(ctx, ref)
	if err != nil {
		m.audit(ref, err)
		return Secret{}, err
	}
	secret.Metadata.RetrievedAt = time.Now().UTC()

	m.mu.Lock()
	m.cache[ref.CacheKey()] = cachedSecret{secret: cloneSecret(secret), expiresAt: time.Now().Add(m.cacheTTL)}
	m.mu.Unlock()

	m.audit(ref, nil)
	return secret, nil
}

// GetString returns the value stored under ref.Key, or "value" when no key is given.
func (m *manager) GetString(ctx context.Context, ref Reference) (string, error) {
	key := ref.Key
	if key == "" {
		key = "value"
	}

	secret, err := m.GetSecret(ctx, ref)
	if err != nil {
		return "", err
	}
	if value, ok := secret.Value(key); ok {
		return value, nil
	}
	return "", fmt.Errorf("%w: %s in %s", ErrKeyNotFound, key, ref.Name)
}

func (m *manager) audit(ref Reference, err error) {
	if !m.auditEnabled {
		return
	}
	fields := []zap.Field{
		zap.String("secret_name", ref.Name),
		zap.String("secret_type", string(ref.Type)),
		zap.String("provider", string(m.provider.Name())),
	}
	if err != nil {
		logger.Warn("secret fetch failed", append(fields, zap.Error(err))...)
		return
	}
	logger.Info("secret fetched", fields...)
}

func cloneSecret(src Secret) Secret {
	dst := Secret{Data: make(map[string]string, len(src.Data)), Metadata: src.Metadata}
	for k, v := range src.Data {
		dst.Data[k] = v
	}
	return dst
}
