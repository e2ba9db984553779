package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	APIPort  string
	LogLevel string

	// PostgresDSN is optional. Without it the API runs stateless and
	// conversation history lives only in the caller's session payload.
	PostgresDSN string

	// NATSURL is optional. Without it completed-query events are not published.
	NATSURL     string
	NATSSubject string

	OllamaURL        string
	OllamaGenModel   string
	OllamaEmbedModel string
	OllamaRPS        float64
	OllamaBurst      int

	// QdrantURL empty selects the in-memory lexical store, which keeps the
	// service bootable for local development without a vector database. In
	// that mode TranscriptsDir seeds the store from .txt transcripts.
	QdrantURL        string
	QdrantCollection string
	TranscriptsDir   string

	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string
	Neo4jDatabase string

	FusionStrategy string
	FusionRRFK     int
	MMRLambda      float64
	MMRWindow      int

	RetrievalWorkers  int
	RetrievalTopK     int
	KGLimit           int
	KGMaxHops         int
	ExpansionQueries  int
	ExpansionPerQuery int

	// Synthesis buckets are separate from retrieval top-k so tuning recall
	// does not silently change how much evidence reaches the generator.
	SynthesisRAGLimit int
	SynthesisKGLimit  int

	GraderConfidence float64
}

// Load reads configuration from the environment, then overlays values from
// the YAML file named by CONFIG_FILE when that variable is set. File values
// win for keys the file provides.
func Load() (Config, error) {
	cfg := Config{
		APIPort:  mustEnv("API_PORT", "8080"),
		LogLevel: mustEnv("LOG_LEVEL", "info"),

		PostgresDSN: mustEnv("POSTGRES_DSN", ""),

		NATSURL:     mustEnv("NATS_URL", ""),
		NATSSubject: mustEnv("NATS_SUBJECT", "queries.completed"),

		OllamaURL:        mustEnv("OLLAMA_URL", "http://localhost:11434"),
		OllamaGenModel:   mustEnv("OLLAMA_GEN_MODEL", "llama3.1:8b"),
		OllamaEmbedModel: mustEnv("OLLAMA_EMBED_MODEL", "nomic-embed-text"),
		OllamaRPS:        mustEnvFloat("OLLAMA_RPS", 4),
		OllamaBurst:      mustEnvInt("OLLAMA_BURST", 2),

		QdrantURL:        mustEnv("QDRANT_URL", ""),
		QdrantCollection: mustEnv("QDRANT_COLLECTION", "episode_chunks"),
		TranscriptsDir:   mustEnv("TRANSCRIPTS_DIR", ""),

		Neo4jURI:      mustEnv("NEO4J_URI", "neo4j://localhost:7687"),
		Neo4jUser:     mustEnv("NEO4J_USER", "neo4j"),
		Neo4jPassword: mustEnv("NEO4J_PASSWORD", ""),
		Neo4jDatabase: mustEnv("NEO4J_DATABASE", "neo4j"),

		FusionStrategy: mustEnv("FUSION_STRATEGY", "rrf"),
		FusionRRFK:     mustEnvInt("FUSION_RRF_K", 60),
		MMRLambda:      mustEnvFloat("MMR_LAMBDA", 0.5),
		MMRWindow:      mustEnvInt("MMR_WINDOW", 20),

		RetrievalWorkers:  mustEnvInt("RETRIEVAL_WORKERS", 4),
		RetrievalTopK:     mustEnvInt("RETRIEVAL_TOP_K", 5),
		KGLimit:           mustEnvInt("KG_LIMIT", 10),
		KGMaxHops:         mustEnvInt("KG_MAX_HOPS", 3),
		ExpansionQueries:  mustEnvInt("EXPANSION_QUERIES", 2),
		ExpansionPerQuery: mustEnvInt("EXPANSION_PER_QUERY", 3),

		SynthesisRAGLimit: mustEnvInt("SYNTHESIS_RAG_LIMIT", 5),
		SynthesisKGLimit:  mustEnvInt("SYNTHESIS_KG_LIMIT", 10),

		GraderConfidence: mustEnvFloat("GRADER_CONFIDENCE", 0.7),
	}

	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		return cfg, nil
	}
	if err := overlayFile(&cfg, path); err != nil {
		return Config{}, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// fileConfig mirrors the overridable subset of Config. Pointer fields
// distinguish "absent" from a zero value the operator actually wants.
type fileConfig struct {
	APIPort  *string `yaml:"api_port"`
	LogLevel *string `yaml:"log_level"`

	PostgresDSN *string `yaml:"postgres_dsn"`

	NATSURL     *string `yaml:"nats_url"`
	NATSSubject *string `yaml:"nats_subject"`

	Ollama *struct {
		URL        *string  `yaml:"url"`
		GenModel   *string  `yaml:"gen_model"`
		EmbedModel *string  `yaml:"embed_model"`
		RPS        *float64 `yaml:"rps"`
		Burst      *int     `yaml:"burst"`
	} `yaml:"ollama"`

	Qdrant *struct {
		URL            *string `yaml:"url"`
		Collection     *string `yaml:"collection"`
		TranscriptsDir *string `yaml:"transcripts_dir"`
	} `yaml:"qdrant"`

	Neo4j *struct {
		URI      *string `yaml:"uri"`
		User     *string `yaml:"user"`
		Password *string `yaml:"password"`
		Database *string `yaml:"database"`
	} `yaml:"neo4j"`

	Fusion *struct {
		Strategy   *string  `yaml:"strategy"`
		RRFK       *int     `yaml:"rrf_k"`
		MMRLambda  *float64 `yaml:"mmr_lambda"`
		MMRWindow  *int     `yaml:"mmr_window"`
	} `yaml:"fusion"`

	Retrieval *struct {
		Workers           *int `yaml:"workers"`
		TopK              *int `yaml:"top_k"`
		KGLimit           *int `yaml:"kg_limit"`
		KGMaxHops         *int `yaml:"kg_max_hops"`
		ExpansionQueries  *int `yaml:"expansion_queries"`
		ExpansionPerQuery *int `yaml:"expansion_per_query"`
	} `yaml:"retrieval"`

	Synthesis *struct {
		RAGLimit *int `yaml:"rag_limit"`
		KGLimit  *int `yaml:"kg_limit"`
	} `yaml:"synthesis"`

	GraderConfidence *float64 `yaml:"grader_confidence"`
}

func overlayFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var file fileConfig
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return err
	}

	setString(&cfg.APIPort, file.APIPort)
	setString(&cfg.LogLevel, file.LogLevel)
	setString(&cfg.PostgresDSN, file.PostgresDSN)
	setString(&cfg.NATSURL, file.NATSURL)
	setString(&cfg.NATSSubject, file.NATSSubject)
	if file.Ollama != nil {
		setString(&cfg.OllamaURL, file.Ollama.URL)
		setString(&cfg.OllamaGenModel, file.Ollama.GenModel)
		setString(&cfg.OllamaEmbedModel, file.Ollama.EmbedModel)
		setFloat(&cfg.OllamaRPS, file.Ollama.RPS)
		setInt(&cfg.OllamaBurst, file.Ollama.Burst)
	}
	if file.Qdrant != nil {
		setString(&cfg.QdrantURL, file.Qdrant.URL)
		setString(&cfg.QdrantCollection, file.Qdrant.Collection)
		setString(&cfg.TranscriptsDir, file.Qdrant.TranscriptsDir)
	}
	if file.Neo4j != nil {
		setString(&cfg.Neo4jURI, file.Neo4j.URI)
		setString(&cfg.Neo4jUser, file.Neo4j.User)
		setString(&cfg.Neo4jPassword, file.Neo4j.Password)
		setString(&cfg.Neo4jDatabase, file.Neo4j.Database)
	}
	if file.Fusion != nil {
		setString(&cfg.FusionStrategy, file.Fusion.Strategy)
		setInt(&cfg.FusionRRFK, file.Fusion.RRFK)
		setFloat(&cfg.MMRLambda, file.Fusion.MMRLambda)
		setInt(&cfg.MMRWindow, file.Fusion.MMRWindow)
	}
	if file.Retrieval != nil {
		setInt(&cfg.RetrievalWorkers, file.Retrieval.Workers)
		setInt(&cfg.RetrievalTopK, file.Retrieval.TopK)
		setInt(&cfg.KGLimit, file.Retrieval.KGLimit)
		setInt(&cfg.KGMaxHops, file.Retrieval.KGMaxHops)
		setInt(&cfg.ExpansionQueries, file.Retrieval.ExpansionQueries)
		setInt(&cfg.ExpansionPerQuery, file.Retrieval.ExpansionPerQuery)
	}
	if file.Synthesis != nil {
		setInt(&cfg.SynthesisRAGLimit, file.Synthesis.RAGLimit)
		setInt(&cfg.SynthesisKGLimit, file.Synthesis.KGLimit)
	}
	setFloat(&cfg.GraderConfidence, file.GraderConfidence)
	return nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setFloat(dst *float64, src *float64) {
	if src != nil {
		*dst = *src
	}
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
