// Package config loads FleetOps core's runtime configuration: bus
// connection, columnar store, vector store, LLM providers, cache, policy
// file location, and per-component server ports.
package config

// Config is the root configuration object shared by all five cmd/ binaries.
// Each binary only reads the sections relevant to it.
type Config struct {
	Environment string `mapstructure:"environment" yaml:"environment"`
	LogLevel    string `mapstructure:"log_level" yaml:"log_level"`

	Bus            BusConfig            `mapstructure:"bus" yaml:"bus"`
	ColumnarStore  ColumnarStoreConfig  `mapstructure:"columnar_store" yaml:"columnar_store"`
	VectorStore    VectorStoreConfig    `mapstructure:"vector_store" yaml:"vector_store"`
	LLM            LLMConfig            `mapstructure:"llm" yaml:"llm"`
	Cache          CacheConfig          `mapstructure:"cache" yaml:"cache"`
	Policy         PolicyConfig         `mapstructure:"policy" yaml:"policy"`
	WorkerPool     WorkerPoolConfig     `mapstructure:"worker_pool" yaml:"worker_pool"`
	Tracing        TracingConfig        `mapstructure:"tracing" yaml:"tracing"`
	Detector       ServerConfig         `mapstructure:"detector" yaml:"detector"`
	FastEnricher   ServerConfig         `mapstructure:"fast_enricher" yaml:"fast_enricher"`
	Correlator     ServerConfig         `mapstructure:"correlator" yaml:"correlator"`
	InsightEnricher ServerConfig        `mapstructure:"insight_enricher" yaml:"insight_enricher"`
	IncidentAPI    IncidentAPIConfig    `mapstructure:"incident_api" yaml:"incident_api"`
}

// BusConfig configures the NATS pub/sub connection (§4).
type BusConfig struct {
	URL            string `mapstructure:"url" yaml:"url"`
	MaxReconnects  int    `mapstructure:"max_reconnects" yaml:"max_reconnects"`
	ReconnectWaitMS int   `mapstructure:"reconnect_wait_ms" yaml:"reconnect_wait_ms"`
	DLQSubjectPrefix string `mapstructure:"dlq_subject_prefix" yaml:"dlq_subject_prefix"`
}

// ColumnarStoreConfig configures the HTTP client to the external columnar
// analytics store used by E1's context lookups (§4.2, §6).
type ColumnarStoreConfig struct {
	Endpoints         []string `mapstructure:"endpoints" yaml:"endpoints"`
	Username          string   `mapstructure:"username" yaml:"username"`
	Password          string   `mapstructure:"password" yaml:"password"`
	PerQueryTimeoutMS int      `mapstructure:"per_query_timeout_ms" yaml:"per_query_timeout_ms"`
	OverallBudgetMS   int      `mapstructure:"overall_budget_ms" yaml:"overall_budget_ms"`
}

// VectorStoreConfig configures the weaviate client used by E2's RAG lookup
// (§4.4).
type VectorStoreConfig struct {
	Endpoint   string `mapstructure:"endpoint" yaml:"endpoint"`
	Scheme     string `mapstructure:"scheme" yaml:"scheme"`
	APIKey     string `mapstructure:"api_key" yaml:"api_key"`
	ClassName  string `mapstructure:"class_name" yaml:"class_name"`
	TimeoutMS  int    `mapstructure:"timeout_ms" yaml:"timeout_ms"`
	TopK       int    `mapstructure:"top_k" yaml:"top_k"`
}

// LLMConfig configures the pluggable LLM provider used by E2 (§4.4).
type LLMConfig struct {
	Provider  string          `mapstructure:"provider" yaml:"provider"` // "anthropic" | "openai"
	Anthropic AnthropicConfig `mapstructure:"anthropic" yaml:"anthropic"`
	OpenAI    OpenAIConfig    `mapstructure:"openai" yaml:"openai"`
	TimeoutMS int             `mapstructure:"timeout_ms" yaml:"timeout_ms"`
}

// AnthropicConfig configures the Anthropic HTTP provider.
type AnthropicConfig struct {
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
	APIKey   string `mapstructure:"api_key" yaml:"api_key"`
	Model    string `mapstructure:"model" yaml:"model"`
}

// OpenAIConfig configures the OpenAI-compatible HTTP provider.
type OpenAIConfig struct {
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
	APIKey   string `mapstructure:"api_key" yaml:"api_key"`
	Model    string `mapstructure:"model" yaml:"model"`
}

// CacheConfig configures the Valkey/Redis-compatible cache used by E2's LLM
// response cache and optionally by C's dedup backend (§4.3, §4.4).
type CacheConfig struct {
	Backend  string   `mapstructure:"backend" yaml:"backend"` // "memory" | "redis"
	Nodes    []string `mapstructure:"nodes" yaml:"nodes"`
	Password string   `mapstructure:"password" yaml:"password"`
	DB       int      `mapstructure:"db" yaml:"db"`
}

// PolicyConfig points at the hot-reloadable policy document (§3).
type PolicyConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// WorkerPoolConfig bounds every component's internal worker pool (§5).
type WorkerPoolConfig struct {
	Workers   int `mapstructure:"workers" yaml:"workers"`
	QueueSize int `mapstructure:"queue_size" yaml:"queue_size"`
}

// TracingConfig configures the OTel exporter used to reconstruct
// cross-stage traces for the `/api/v3/trace` endpoint (§4.5).
type TracingConfig struct {
	Enabled        bool   `mapstructure:"enabled" yaml:"enabled"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint" yaml:"otlp_endpoint"`
	ServiceName    string `mapstructure:"service_name" yaml:"service_name"`
}

// ServerConfig is the generic per-component health/metrics listener.
type ServerConfig struct {
	Port int `mapstructure:"port" yaml:"port"`
}

// IncidentAPIConfig configures the Incident API (A) HTTP surface (§4.5).
type IncidentAPIConfig struct {
	Port          int      `mapstructure:"port" yaml:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	BleveIndexPath string  `mapstructure:"bleve_index_path" yaml:"bleve_index_path"`
}
