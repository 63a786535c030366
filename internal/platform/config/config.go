package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultEnvFile             = ".env"
	defaultPort                = "8080"
	defaultReadTimeout         = 15 * time.Second
	defaultWriteTimeout        = 30 * time.Second
	defaultIdleTimeout         = 120 * time.Second
	defaultSecurityEnvironment = "local"
	defaultBackend             = BackendFirestore
	defaultConfirmToken        = "CONFIRM"
	defaultPageSize            = 20
	defaultMaxPageSize         = 100
	defaultBulkPerMinute       = 30
	defaultBulkBurst           = 5
	defaultBulkTimeout         = 20 * time.Second
	defaultOrderEventsTopic    = "order-mutations"
	defaultArchivePrefix       = "audit"
)

// Order store backends.
const (
	BackendFirestore = "firestore"
	BackendMemory    = "memory"
)

// Config aggregates runtime configuration for the admin order service.
type Config struct {
	Server    ServerConfig
	Firebase  FirebaseConfig
	Firestore FirestoreConfig
	PubSub    PubSubConfig
	Storage   StorageConfig
	Postgres  PostgresConfig
	Orders    OrdersConfig
	Audit     AuditConfig
	Security  SecurityConfig
}

// ServerConfig controls HTTP server behaviour.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirebaseConfig configures ID token verification.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// PubSubConfig names the topic that receives order mutation events. An empty topic disables
// publishing.
type PubSubConfig struct {
	ProjectID        string
	OrderEventsTopic string
	EmulatorHost     string
}

// StorageConfig names the bucket that archives audit entries. Empty disables the archive sink.
type StorageConfig struct {
	AuditBucket   string
	ArchivePrefix string
}

// PostgresConfig enables the relational audit sink when AuditDSN is set.
type PostgresConfig struct {
	AuditDSN        string
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// OrdersConfig tunes the order engine and the bulk endpoint.
type OrdersConfig struct {
	Backend          string
	ConfirmToken     string
	DefaultPageSize  int
	MaxPageSize      int
	BulkPerMinute    int
	BulkBurst        int
	BulkTimeout      time.Duration
	MaxBulkSelection int
}

// AuditConfig controls audit entry hashing.
type AuditConfig struct {
	HashSalt string
}

// SecurityConfig captures environment specific auth switches.
type SecurityConfig struct {
	Environment string
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	return append([]string(nil), e.fields...)
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError indicates that one or more required secrets resolved to nothing. Only hashed
// names are printed.
type MissingSecretsError struct {
	names []string
}

func (e *MissingSecretsError) Error() string {
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(e.RedactedNames(), ", "))
}

// RedactedNames returns the hashed secret identifiers, sorted.
func (e *MissingSecretsError) RedactedNames() []string {
	if e == nil {
		return nil
	}
	out := make([]string, 0, len(e.names))
	for _, name := range e.names {
		out = append(out, redactSecretName(name))
	}
	sort.Strings(out)
	return out
}

// Names returns the underlying secret identifiers, sorted.
func (e *MissingSecretsError) Names() []string {
	if e == nil {
		return nil
	}
	out := append([]string(nil), e.names...)
	sort.Strings(out)
	return out
}

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile         string
	envMap          map[string]string
	useSystemEnv    bool
	secret          SecretResolver
	requiredSecrets []string
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects explicit values. They take precedence over the system environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets the resolver used for secret:// and sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// WithRequiredSecrets marks secret fields (e.g. "Audit.HashSalt") as mandatory.
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) {
		o.requiredSecrets = append(o.requiredSecrets, names...)
	}
}

// Load assembles the configuration from defaults, the .env file, the process environment and an
// explicit map, in increasing order of precedence, then resolves secret references.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{envFile: defaultEnvFile, useSystemEnv: true}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnv, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}
	lookup := func(key string) (string, bool) {
		if value, ok := options.envMap[key]; ok {
			return value, true
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		value, ok := dotEnv[key]
		return value, ok
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "API_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Firebase: FirebaseConfig{
			ProjectID:       stringWithDefault(lookup, "API_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: stringWithDefault(lookup, "API_FIREBASE_CREDENTIALS_FILE", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "API_FIRESTORE_EMULATOR_HOST", ""),
		},
		PubSub: PubSubConfig{
			ProjectID:        stringWithDefault(lookup, "API_PUBSUB_PROJECT_ID", ""),
			OrderEventsTopic: stringWithDefault(lookup, "API_PUBSUB_ORDER_EVENTS_TOPIC", defaultOrderEventsTopic),
			EmulatorHost:     stringWithDefault(lookup, "API_PUBSUB_EMULATOR_HOST", ""),
		},
		Storage: StorageConfig{
			AuditBucket:   stringWithDefault(lookup, "API_STORAGE_AUDIT_BUCKET", ""),
			ArchivePrefix: strings.Trim(stringWithDefault(lookup, "API_STORAGE_AUDIT_PREFIX", defaultArchivePrefix), "/"),
		},
		Postgres: PostgresConfig{
			AuditDSN:        stringWithDefault(lookup, "API_POSTGRES_AUDIT_DSN", ""),
			MaxOpenConns:    intWithDefault(lookup, "API_POSTGRES_MAX_OPEN_CONNS", 5),
			ConnMaxLifetime: durationWithDefault(lookup, "API_POSTGRES_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Orders: OrdersConfig{
			Backend:          strings.ToLower(stringWithDefault(lookup, "API_ORDERS_BACKEND", defaultBackend)),
			ConfirmToken:     stringWithDefault(lookup, "API_ORDERS_CONFIRM_TOKEN", defaultConfirmToken),
			DefaultPageSize:  intWithDefault(lookup, "API_ORDERS_DEFAULT_PAGE_SIZE", defaultPageSize),
			MaxPageSize:      intWithDefault(lookup, "API_ORDERS_MAX_PAGE_SIZE", defaultMaxPageSize),
			BulkPerMinute:    intWithDefault(lookup, "API_ORDERS_BULK_PER_MIN", defaultBulkPerMinute),
			BulkBurst:        intWithDefault(lookup, "API_ORDERS_BULK_BURST", defaultBulkBurst),
			BulkTimeout:      durationWithDefault(lookup, "API_ORDERS_BULK_TIMEOUT", defaultBulkTimeout),
			MaxBulkSelection: intWithDefault(lookup, "API_ORDERS_MAX_BULK_SELECTION", 1000),
		},
		Audit: AuditConfig{
			HashSalt: stringWithDefault(lookup, "API_AUDIT_HASH_SALT", ""),
		},
		Security: SecurityConfig{
			Environment: strings.ToLower(stringWithDefault(lookup, "API_SECURITY_ENVIRONMENT", defaultSecurityEnvironment)),
		},
	}

	// Firestore and Pub/Sub default to the Firebase project.
	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firestore.ProjectID
	}

	resolved := make(map[string]string)
	secretFields := []struct {
		name  string
		field *string
	}{
		{"Audit.HashSalt", &cfg.Audit.HashSalt},
		{"Postgres.AuditDSN", &cfg.Postgres.AuditDSN},
	}
	for _, target := range secretFields {
		value, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = value
		resolved[target.name] = strings.TrimSpace(value)
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	if missing := findMissingSecrets(options.requiredSecrets, resolved); missing != nil {
		return Config{}, missing
	}
	return cfg, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if value == "" || !isSecretReference(value) {
		return value, nil
	}
	ref := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, ref)
	if err != nil {
		return "", &SecretError{Ref: ref, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config) error {
	var invalid []string

	if cfg.Server.Port == "" {
		invalid = append(invalid, "Server.Port")
	}
	switch cfg.Orders.Backend {
	case BackendFirestore:
		if cfg.Firestore.ProjectID == "" {
			invalid = append(invalid, "Firestore.ProjectID")
		}
	case BackendMemory:
	default:
		invalid = append(invalid, "Orders.Backend")
	}
	if strings.TrimSpace(cfg.Orders.ConfirmToken) == "" {
		invalid = append(invalid, "Orders.ConfirmToken")
	}
	if cfg.Orders.DefaultPageSize <= 0 || cfg.Orders.DefaultPageSize > cfg.Orders.MaxPageSize {
		invalid = append(invalid, "Orders.DefaultPageSize")
	}
	if cfg.Orders.MaxPageSize <= 0 {
		invalid = append(invalid, "Orders.MaxPageSize")
	}
	if cfg.Orders.BulkPerMinute <= 0 {
		invalid = append(invalid, "Orders.BulkPerMinute")
	}
	if cfg.Orders.BulkBurst <= 0 {
		invalid = append(invalid, "Orders.BulkBurst")
	}
	// A bulk call must finish before the server abandons the response.
	if cfg.Orders.BulkTimeout <= 0 || (cfg.Server.WriteTimeout > 0 && cfg.Orders.BulkTimeout >= cfg.Server.WriteTimeout) {
		invalid = append(invalid, "Orders.BulkTimeout")
	}
	if cfg.Orders.MaxBulkSelection <= 0 {
		invalid = append(invalid, "Orders.MaxBulkSelection")
	}

	if len(invalid) > 0 {
		return &ValidationError{fields: invalid}
	}
	return nil
}

func findMissingSecrets(required []string, resolved map[string]string) *MissingSecretsError {
	var missing []string
	seen := make(map[string]struct{}, len(required))
	for _, name := range required {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		if resolved[name] == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &MissingSecretsError{names: missing}
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if rest, ok := strings.CutPrefix(trimmed, "sm://"); ok {
		return "secret://" + rest
	}
	return trimmed
}

func redactSecretName(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:8])
}

// EnvironmentValues merges the default .env file with the process environment, the latter winning.
// It serves bootstrap values needed before Load, such as the secret fetcher settings.
func EnvironmentValues() (map[string]string, error) {
	values, err := loadDotEnv(defaultEnvFile)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(values))
	for key, value := range values {
		out[key] = value
	}
	for _, kv := range os.Environ() {
		if key, value, ok := strings.Cut(kv, "="); ok {
			out[key] = value
		}
	}
	return out, nil
}

// loadDotEnv parses the optional .env file. A missing file is not an error.
func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	if _, err := os.Stat(absPath); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	values, err := godotenv.Read(absPath)
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	return values, nil
}

type lookupFunc func(string) (string, bool)

func stringWithDefault(lookup lookupFunc, key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup lookupFunc, key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup lookupFunc, key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}
