package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the complete chatmydocs configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	DataDir    string           `yaml:"data_dir" json:"data_dir"`
	Chunking   ChunkingConfig   `yaml:"chunking" json:"chunking"`
	Retrieval  RetrievalConfig  `yaml:"retrieval" json:"retrieval"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Generation GenerationConfig `yaml:"generation" json:"generation"`
	Store      StoreConfig      `yaml:"store" json:"store"`
	Ingestion  IngestionConfig  `yaml:"ingestion" json:"ingestion"`
	Blob       BlobConfig       `yaml:"blob" json:"blob"`
	Auth       AuthConfig       `yaml:"auth" json:"auth"`
	Sessions   SessionsConfig   `yaml:"sessions" json:"sessions"`
	Telemetry  TelemetryConfig  `yaml:"telemetry" json:"telemetry"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// ChunkingConfig sizes the sliding window, in characters.
type ChunkingConfig struct {
	Size    int `yaml:"size" json:"size"`
	Overlap int `yaml:"overlap" json:"overlap"`
}

// RetrievalConfig controls how many chunks reach the prompt.
type RetrievalConfig struct {
	// K is the number of chunks placed in the prompt.
	K int `yaml:"k" json:"k"`

	// FetchK bounds the candidate pool for MMR re-ranking.
	FetchK int `yaml:"fetch_k" json:"fetch_k"`

	// MMRLambda trades relevance (1.0) against diversity (0.0).
	MMRLambda float64 `yaml:"mmr_lambda" json:"mmr_lambda"`

	// HistoryWindow is how many prior chat messages are sent to the model.
	HistoryWindow int `yaml:"history_window" json:"history_window"`
}

// EmbeddingsConfig selects the embedding provider.
type EmbeddingsConfig struct {
	// Provider is one of ollama, openai, static.
	Provider string `yaml:"provider" json:"provider"`
	Model    string `yaml:"model" json:"model"`

	// Host is the Ollama base URL.
	Host string `yaml:"host,omitempty" json:"host,omitempty"`

	APIKey  string `yaml:"api_key,omitempty" json:"-"`
	BaseURL string `yaml:"base_url,omitempty" json:"base_url,omitempty"`

	// CacheSize is the LRU capacity for query embeddings; 0 disables it.
	CacheSize int `yaml:"cache_size" json:"cache_size"`

	BatchSize int `yaml:"batch_size" json:"batch_size"`
}

// GenerationConfig selects the text-generation provider.
type GenerationConfig struct {
	// Provider is one of ollama, openai.
	Provider    string        `yaml:"provider" json:"provider"`
	Model       string        `yaml:"model" json:"model"`
	Host        string        `yaml:"host,omitempty" json:"host,omitempty"`
	APIKey      string        `yaml:"api_key,omitempty" json:"-"`
	BaseURL     string        `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	Temperature float64       `yaml:"temperature" json:"temperature"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
}

// StoreConfig selects and configures the vector store strategy.
type StoreConfig struct {
	// Backend is one of local, cluster, hosted.
	Backend string             `yaml:"backend" json:"backend"`
	Local   LocalStoreConfig   `yaml:"local" json:"local"`
	Cluster ClusterStoreConfig `yaml:"cluster" json:"cluster"`
	Hosted  HostedStoreConfig  `yaml:"hosted" json:"hosted"`
}

// LocalStoreConfig configures the per-knowledge-base on-disk indexes.
type LocalStoreConfig struct {
	Root string `yaml:"root,omitempty" json:"root,omitempty"`
}

// ClusterStoreConfig configures the shared search index.
type ClusterStoreConfig struct {
	Root  string `yaml:"root,omitempty" json:"root,omitempty"`
	Index string `yaml:"index" json:"index"`
}

// HostedStoreConfig configures the hosted vector database.
type HostedStoreConfig struct {
	// Host is the index data-plane URL.
	Host    string        `yaml:"host" json:"host"`
	APIKey  string        `yaml:"api_key,omitempty" json:"-"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// IngestionConfig controls extraction behavior.
type IngestionConfig struct {
	// Policy is abort (stop at the first bad file) or skip.
	Policy string `yaml:"policy" json:"policy"`

	// OCRURL is the text-recognition service endpoint; empty disables OCR.
	OCRURL string `yaml:"ocr_url,omitempty" json:"ocr_url,omitempty"`

	// MaxFileSizeMB rejects larger uploads before extraction.
	MaxFileSizeMB int `yaml:"max_file_size_mb" json:"max_file_size_mb"`
}

// BlobConfig selects the blob store holding raw files, manifests and history.
type BlobConfig struct {
	// Backend is fs or s3.
	Backend  string `yaml:"backend" json:"backend"`
	Root     string `yaml:"root,omitempty" json:"root,omitempty"`
	Bucket   string `yaml:"bucket,omitempty" json:"bucket,omitempty"`
	Region   string `yaml:"region,omitempty" json:"region,omitempty"`
	Endpoint string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
}

// AuthConfig locates the credential store.
type AuthConfig struct {
	DBPath string `yaml:"db_path,omitempty" json:"db_path,omitempty"`
}

// SessionsConfig locates saved wizard sessions.
type SessionsConfig struct {
	Dir         string `yaml:"dir,omitempty" json:"dir,omitempty"`
	MaxSessions int    `yaml:"max_sessions" json:"max_sessions"`
}

// TelemetryConfig controls local answer statistics.
type TelemetryConfig struct {
	Disabled bool   `yaml:"disabled,omitempty" json:"disabled,omitempty"`
	DBPath   string `yaml:"db_path,omitempty" json:"db_path,omitempty"`
}

// LoggingConfig configures file logging.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
}

// Backends and providers accepted by Validate.
const (
	BackendLocal   = "local"
	BackendCluster = "cluster"
	BackendHosted  = "hosted"

	PolicyAbort = "abort"
	PolicySkip  = "skip"
)

// NewConfig returns a configuration populated with defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		DataDir: defaultDataDir(),
		Chunking: ChunkingConfig{
			Size:    1000,
			Overlap: 200,
		},
		Retrieval: RetrievalConfig{
			K:             5,
			FetchK:        50,
			MMRLambda:     0.5,
			HistoryWindow: 6,
		},
		Embeddings: EmbeddingsConfig{
			Provider:  "ollama",
			Model:     "nomic-embed-text",
			Host:      "http://localhost:11434",
			CacheSize: 1000,
			BatchSize: 32,
		},
		Generation: GenerationConfig{
			Provider:    "ollama",
			Model:       "llama3.1",
			Host:        "http://localhost:11434",
			Temperature: 0,
			Timeout:     2 * time.Minute,
		},
		Store: StoreConfig{
			Backend: BackendLocal,
			Cluster: ClusterStoreConfig{Index: "chatmydocs"},
			Hosted:  HostedStoreConfig{Timeout: 30 * time.Second},
		},
		Ingestion: IngestionConfig{
			Policy:        PolicyAbort,
			MaxFileSizeMB: 50,
		},
		Blob: BlobConfig{
			Backend: "fs",
		},
		Sessions: SessionsConfig{
			MaxSessions: 20,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

// defaultDataDir returns ~/.chatmydocs, falling back to the temp dir.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".chatmydocs")
	}
	return filepath.Join(home, ".chatmydocs")
}

// GetUserConfigPath returns the user configuration file path:
//   - $XDG_CONFIG_HOME/chatmydocs/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/chatmydocs/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "chatmydocs", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "chatmydocs", "config.yaml")
	}
	return filepath.Join(home, ".config", "chatmydocs", "config.yaml")
}

// Load loads configuration for the working directory dir.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User config (~/.config/chatmydocs/config.yaml)
//  3. Project config (.chatmydocs.yaml in dir)
//  4. .env file in dir (only fills variables not already set)
//  5. Environment variables (CHATMYDOCS_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if path := GetUserConfigPath(); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	if envPath := filepath.Join(dir, ".env"); fileExists(envPath) {
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", envPath, err)
		}
	}

	cfg.applyEnvOverrides()
	cfg.resolvePaths()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile loads .chatmydocs.yaml or .chatmydocs.yml if present.
func (c *Config) loadFromFile(dir string) error {
	for _, name := range []string{".chatmydocs.yaml", ".chatmydocs.yml"} {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			return c.loadYAML(path)
		}
	}
	return nil
}

// loadYAML merges the non-zero values of a YAML file into c.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith copies non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	setInt(&c.Version, other.Version)
	setString(&c.DataDir, other.DataDir)

	setInt(&c.Chunking.Size, other.Chunking.Size)
	setInt(&c.Chunking.Overlap, other.Chunking.Overlap)

	setInt(&c.Retrieval.K, other.Retrieval.K)
	setInt(&c.Retrieval.FetchK, other.Retrieval.FetchK)
	setFloat(&c.Retrieval.MMRLambda, other.Retrieval.MMRLambda)
	setInt(&c.Retrieval.HistoryWindow, other.Retrieval.HistoryWindow)

	setString(&c.Embeddings.Provider, other.Embeddings.Provider)
	setString(&c.Embeddings.Model, other.Embeddings.Model)
	setString(&c.Embeddings.Host, other.Embeddings.Host)
	setString(&c.Embeddings.APIKey, other.Embeddings.APIKey)
	setString(&c.Embeddings.BaseURL, other.Embeddings.BaseURL)
	setInt(&c.Embeddings.CacheSize, other.Embeddings.CacheSize)
	setInt(&c.Embeddings.BatchSize, other.Embeddings.BatchSize)

	setString(&c.Generation.Provider, other.Generation.Provider)
	setString(&c.Generation.Model, other.Generation.Model)
	setString(&c.Generation.Host, other.Generation.Host)
	setString(&c.Generation.APIKey, other.Generation.APIKey)
	setString(&c.Generation.BaseURL, other.Generation.BaseURL)
	setFloat(&c.Generation.Temperature, other.Generation.Temperature)
	if other.Generation.Timeout > 0 {
		c.Generation.Timeout = other.Generation.Timeout
	}

	setString(&c.Store.Backend, other.Store.Backend)
	setString(&c.Store.Local.Root, other.Store.Local.Root)
	setString(&c.Store.Cluster.Root, other.Store.Cluster.Root)
	setString(&c.Store.Cluster.Index, other.Store.Cluster.Index)
	setString(&c.Store.Hosted.Host, other.Store.Hosted.Host)
	setString(&c.Store.Hosted.APIKey, other.Store.Hosted.APIKey)
	if other.Store.Hosted.Timeout > 0 {
		c.Store.Hosted.Timeout = other.Store.Hosted.Timeout
	}

	setString(&c.Ingestion.Policy, other.Ingestion.Policy)
	setString(&c.Ingestion.OCRURL, other.Ingestion.OCRURL)
	setInt(&c.Ingestion.MaxFileSizeMB, other.Ingestion.MaxFileSizeMB)

	setString(&c.Blob.Backend, other.Blob.Backend)
	setString(&c.Blob.Root, other.Blob.Root)
	setString(&c.Blob.Bucket, other.Blob.Bucket)
	setString(&c.Blob.Region, other.Blob.Region)
	setString(&c.Blob.Endpoint, other.Blob.Endpoint)

	setString(&c.Auth.DBPath, other.Auth.DBPath)

	setString(&c.Sessions.Dir, other.Sessions.Dir)
	setInt(&c.Sessions.MaxSessions, other.Sessions.MaxSessions)
	setString(&c.Telemetry.DBPath, other.Telemetry.DBPath)
	if other.Telemetry.Disabled {
		c.Telemetry.Disabled = true
	}

	setString(&c.Logging.Level, other.Logging.Level)
	setInt(&c.Logging.MaxSizeMB, other.Logging.MaxSizeMB)
	setInt(&c.Logging.MaxFiles, other.Logging.MaxFiles)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setFloat(dst *float64, v float64) {
	if v != 0 {
		*dst = v
	}
}

// applyEnvOverrides applies CHATMYDOCS_* variables. Provider API keys also
// fall back to the conventional OPENAI_API_KEY and PINECONE_API_KEY.
func (c *Config) applyEnvOverrides() {
	envString := map[string]*string{
		"CHATMYDOCS_DATA_DIR":            &c.DataDir,
		"CHATMYDOCS_EMBEDDINGS_PROVIDER": &c.Embeddings.Provider,
		"CHATMYDOCS_EMBEDDINGS_MODEL":    &c.Embeddings.Model,
		"CHATMYDOCS_EMBEDDINGS_BASE_URL": &c.Embeddings.BaseURL,
		"CHATMYDOCS_OLLAMA_HOST":         &c.Embeddings.Host,
		"CHATMYDOCS_GENERATION_PROVIDER": &c.Generation.Provider,
		"CHATMYDOCS_GENERATION_MODEL":    &c.Generation.Model,
		"CHATMYDOCS_GENERATION_BASE_URL": &c.Generation.BaseURL,
		"CHATMYDOCS_STORE_BACKEND":       &c.Store.Backend,
		"CHATMYDOCS_CLUSTER_INDEX":       &c.Store.Cluster.Index,
		"CHATMYDOCS_HOSTED_HOST":         &c.Store.Hosted.Host,
		"CHATMYDOCS_INGESTION_POLICY":    &c.Ingestion.Policy,
		"CHATMYDOCS_OCR_URL":             &c.Ingestion.OCRURL,
		"CHATMYDOCS_BLOB_BACKEND":        &c.Blob.Backend,
		"CHATMYDOCS_S3_BUCKET":           &c.Blob.Bucket,
		"CHATMYDOCS_S3_REGION":           &c.Blob.Region,
		"CHATMYDOCS_S3_ENDPOINT":         &c.Blob.Endpoint,
		"CHATMYDOCS_AUTH_DB":             &c.Auth.DBPath,
		"CHATMYDOCS_LOG_LEVEL":           &c.Logging.Level,
	}
	for key, dst := range envString {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	// The Ollama host is shared by both providers unless set separately.
	if v := os.Getenv("CHATMYDOCS_OLLAMA_HOST"); v != "" {
		c.Generation.Host = v
	}

	for _, key := range []string{"CHATMYDOCS_OPENAI_API_KEY", "OPENAI_API_KEY"} {
		if v := os.Getenv(key); v != "" {
			c.Embeddings.APIKey = v
			c.Generation.APIKey = v
			break
		}
	}
	for _, key := range []string{"CHATMYDOCS_HOSTED_API_KEY", "PINECONE_API_KEY"} {
		if v := os.Getenv(key); v != "" {
			c.Store.Hosted.APIKey = v
			break
		}
	}

	if v := os.Getenv("CHATMYDOCS_TELEMETRY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Telemetry.Disabled = !b
		}
	}

	if v := os.Getenv("CHATMYDOCS_RETRIEVAL_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Retrieval.K = n
		}
	}
	if v := os.Getenv("CHATMYDOCS_RETRIEVAL_FETCH_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Retrieval.FetchK = n
		}
	}
}

// resolvePaths fills every storage location not set explicitly from DataDir.
func (c *Config) resolvePaths() {
	if c.Store.Local.Root == "" {
		c.Store.Local.Root = filepath.Join(c.DataDir, "indexes")
	}
	if c.Store.Cluster.Root == "" {
		c.Store.Cluster.Root = filepath.Join(c.DataDir, "cluster")
	}
	if c.Blob.Root == "" {
		c.Blob.Root = filepath.Join(c.DataDir, "blobs")
	}
	if c.Auth.DBPath == "" {
		c.Auth.DBPath = filepath.Join(c.DataDir, "users.db")
	}
	if c.Sessions.Dir == "" {
		c.Sessions.Dir = filepath.Join(c.DataDir, "sessions")
	}
	if c.Telemetry.DBPath == "" {
		c.Telemetry.DBPath = filepath.Join(c.DataDir, "telemetry.db")
	}
}

// Validate returns an error describing the first invalid setting.
func (c *Config) Validate() error {
	if c.Chunking.Size <= 0 {
		return fmt.Errorf("chunking.size must be positive, got %d", c.Chunking.Size)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("chunking.overlap must be in [0, size), got %d", c.Chunking.Overlap)
	}

	if c.Retrieval.K <= 0 {
		return fmt.Errorf("retrieval.k must be positive, got %d", c.Retrieval.K)
	}
	if c.Retrieval.FetchK < c.Retrieval.K {
		return fmt.Errorf("retrieval.fetch_k (%d) must be >= retrieval.k (%d)", c.Retrieval.FetchK, c.Retrieval.K)
	}
	if c.Retrieval.MMRLambda < 0 || c.Retrieval.MMRLambda > 1 {
		return fmt.Errorf("retrieval.mmr_lambda must be between 0 and 1, got %f", c.Retrieval.MMRLambda)
	}

	if err := oneOf("embeddings.provider", c.Embeddings.Provider, "ollama", "openai", "static"); err != nil {
		return err
	}
	if err := oneOf("generation.provider", c.Generation.Provider, "ollama", "openai"); err != nil {
		return err
	}
	if err := oneOf("store.backend", c.Store.Backend, BackendLocal, BackendCluster, BackendHosted); err != nil {
		return err
	}
	if strings.EqualFold(c.Store.Backend, BackendHosted) && c.Store.Hosted.Host == "" {
		return fmt.Errorf("store.hosted.host is required for the hosted backend")
	}
	if err := oneOf("ingestion.policy", c.Ingestion.Policy, PolicyAbort, PolicySkip); err != nil {
		return err
	}
	if err := oneOf("blob.backend", c.Blob.Backend, "fs", "s3"); err != nil {
		return err
	}
	if strings.EqualFold(c.Blob.Backend, "s3") && c.Blob.Bucket == "" {
		return fmt.Errorf("blob.bucket is required for the s3 blob backend")
	}
	if err := oneOf("logging.level", c.Logging.Level, "debug", "info", "warn", "error"); err != nil {
		return err
	}

	return nil
}

func oneOf(field, value string, allowed ...string) error {
	for _, a := range allowed {
		if strings.EqualFold(value, a) {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s, got %q", field, strings.Join(allowed, ", "), value)
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
