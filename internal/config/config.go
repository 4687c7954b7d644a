package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/opendate-cli/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Store          StoreConfig          `yaml:"store" mapstructure:"store"`
	KnowledgeGraph KnowledgeGraphConfig `yaml:"knowledge_graph" mapstructure:"knowledge_graph"`
	Sources        SourcesConfig        `yaml:"sources" mapstructure:"sources"`
	Priority       []string             `yaml:"priority" mapstructure:"priority"`
	PriorityFile   string               `yaml:"priority_file" mapstructure:"priority_file"`
	Spatial        SpatialConfig        `yaml:"spatial" mapstructure:"spatial"`
	Join           JoinConfig           `yaml:"join" mapstructure:"join"`
	Batch          BatchConfig          `yaml:"batch" mapstructure:"batch"`
	Breaker        BreakerConfig        `yaml:"breaker" mapstructure:"breaker"`
	Fetch          FetchConfig          `yaml:"fetch" mapstructure:"fetch"`
	Server         ServerConfig         `yaml:"server" mapstructure:"server"`
	Log            LogConfig            `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// KnowledgeGraphConfig configures the SPARQL lookup.
type KnowledgeGraphConfig struct {
	Enabled     bool          `yaml:"enabled" mapstructure:"enabled"`
	Endpoint    string        `yaml:"endpoint" mapstructure:"endpoint"`
	UserAgent   string        `yaml:"user_agent" mapstructure:"user_agent"`
	LocalityQID string        `yaml:"locality_qid" mapstructure:"locality_qid"`
	Language    string        `yaml:"language" mapstructure:"language"`
	MinInterval time.Duration `yaml:"min_interval" mapstructure:"min_interval"`
	MaxAttempts int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	BaseBackoff time.Duration `yaml:"base_backoff" mapstructure:"base_backoff"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// SourceConfig locates one local registry extract.
type SourceConfig struct {
	Path    string `yaml:"path" mapstructure:"path"`
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	// Sheet selects a worksheet when Path is an .xlsx file.
	Sheet   string              `yaml:"sheet" mapstructure:"sheet"`
	Columns map[string][]string `yaml:"columns" mapstructure:"columns"`
	// Link enables reference linking for entities without a property
	// reference: "spatial", "fuzzy" or empty.
	Link string `yaml:"link" mapstructure:"link"`
}

// SourcesConfig holds every local source plus the load failure policy.
type SourcesConfig struct {
	BusinessRegistry    SourceConfig `yaml:"business_registry" mapstructure:"business_registry"`
	PlanningRegistry    SourceConfig `yaml:"planning_registry" mapstructure:"planning_registry"`
	TransactionRegistry SourceConfig `yaml:"transaction_registry" mapstructure:"transaction_registry"`
	CadastralAge        SourceConfig `yaml:"cadastral_age" mapstructure:"cadastral_age"`
	RefinementRegistry  SourceConfig `yaml:"refinement_registry" mapstructure:"refinement_registry"`
	HeritageRegistry    SourceConfig `yaml:"heritage_registry" mapstructure:"heritage_registry"`
	// OnLoadError is "abort" or "disable".
	OnLoadError string `yaml:"on_load_error" mapstructure:"on_load_error"`
}

// ByName returns the config for a local source, or nil.
func (s *SourcesConfig) ByName(name string) *SourceConfig {
	switch name {
	case model.SourceBusinessRegistry:
		return &s.BusinessRegistry
	case model.SourcePlanningRegistry:
		return &s.PlanningRegistry
	case model.SourceTransactionRegistry:
		return &s.TransactionRegistry
	case model.SourceCadastralAge:
		return &s.CadastralAge
	case model.SourceRefinementRegistry:
		return &s.RefinementRegistry
	case model.SourceHeritageRegistry:
		return &s.HeritageRegistry
	default:
		return nil
	}
}

// SpatialConfig configures the nearest-reference matcher.
type SpatialConfig struct {
	MaxDistance    float64 `yaml:"max_distance" mapstructure:"max_distance"`
	ReferencesPath string  `yaml:"references_path" mapstructure:"references_path"`
}

// JoinConfig configures fuzzy reference linking.
type JoinConfig struct {
	ReferencesPath string            `yaml:"references_path" mapstructure:"references_path"`
	Columns        map[string]string `yaml:"columns" mapstructure:"columns"`
	MinMatched     int               `yaml:"min_matched" mapstructure:"min_matched"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	CheckpointInterval int    `yaml:"checkpoint_interval" mapstructure:"checkpoint_interval"`
	Concurrency        int    `yaml:"concurrency" mapstructure:"concurrency"`
	CheckpointPath     string `yaml:"checkpoint_path" mapstructure:"checkpoint_path"`
	Resume             bool   `yaml:"resume" mapstructure:"resume"`
	Checkpoints        bool   `yaml:"checkpoints" mapstructure:"checkpoints"`
}

// BreakerConfig configures per-source circuit breakers.
type BreakerConfig struct {
	Threshold int           `yaml:"threshold" mapstructure:"threshold"`
	Cooldown  time.Duration `yaml:"cooldown" mapstructure:"cooldown"`
}

// FetchConfig configures remote data file downloads.
type FetchConfig struct {
	TempDir   string        `yaml:"temp_dir" mapstructure:"temp_dir"`
	UserAgent string        `yaml:"user_agent" mapstructure:"user_agent"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.opendate")

	v.SetEnvPrefix("OPENDATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	if len(cfg.Priority) == 0 {
		cfg.Priority = append([]string(nil), model.DefaultPriority...)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "opendate.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)

	v.SetDefault("knowledge_graph.enabled", true)
	v.SetDefault("knowledge_graph.endpoint", "https://query.wikidata.org/sparql")
	v.SetDefault("knowledge_graph.user_agent", "opendate-cli/1.0 (opening date enrichment)")
	v.SetDefault("knowledge_graph.locality_qid", "Q84")
	v.SetDefault("knowledge_graph.language", "en")
	v.SetDefault("knowledge_graph.min_interval", time.Second)
	v.SetDefault("knowledge_graph.max_attempts", 3)
	v.SetDefault("knowledge_graph.base_backoff", time.Second)
	v.SetDefault("knowledge_graph.timeout", 30*time.Second)

	for _, name := range model.DefaultPriority {
		if name == model.SourceKnowledgeGraph {
			continue
		}
		v.SetDefault("sources."+name+".enabled", true)
	}
	v.SetDefault("sources.on_load_error", "abort")

	v.SetDefault("spatial.max_distance", 15.0)
	v.SetDefault("join.min_matched", 1)

	v.SetDefault("batch.checkpoint_interval", 100)
	v.SetDefault("batch.concurrency", 4)
	v.SetDefault("batch.checkpoint_path", "opendate.checkpoint.json")
	v.SetDefault("batch.resume", true)
	v.SetDefault("batch.checkpoints", true)

	v.SetDefault("breaker.threshold", 10)
	v.SetDefault("breaker.cooldown", time.Minute)

	v.SetDefault("fetch.temp_dir", "/tmp/opendate")
	v.SetDefault("fetch.timeout", 5*time.Minute)
}

// Validate checks values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	if c.KnowledgeGraph.Enabled {
		if strings.TrimSpace(c.KnowledgeGraph.UserAgent) == "" {
			return eris.New("config: knowledge_graph.user_agent is required when the knowledge graph is enabled")
		}
		if c.KnowledgeGraph.Endpoint == "" {
			return eris.New("config: knowledge_graph.endpoint is empty")
		}
		if c.KnowledgeGraph.MinInterval < 0 {
			return eris.Errorf("config: knowledge_graph.min_interval must not be negative, got %s", c.KnowledgeGraph.MinInterval)
		}
	}
	switch c.Sources.OnLoadError {
	case "abort", "disable":
	default:
		return eris.Errorf("config: sources.on_load_error must be abort or disable, got %q", c.Sources.OnLoadError)
	}
	if c.Batch.CheckpointInterval <= 0 {
		return eris.Errorf("config: batch.checkpoint_interval must be positive, got %d", c.Batch.CheckpointInterval)
	}
	if c.Batch.Concurrency <= 0 {
		return eris.Errorf("config: batch.concurrency must be positive, got %d", c.Batch.Concurrency)
	}
	if c.Spatial.MaxDistance <= 0 {
		return eris.Errorf("config: spatial.max_distance must be positive, got %g", c.Spatial.MaxDistance)
	}
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return eris.Errorf("config: store.driver must be sqlite or postgres, got %q", c.Store.Driver)
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
