package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/time/rate"

	"github.com/wardenai/warden/db"
	"github.com/wardenai/warden/internal/agent"
	"github.com/wardenai/warden/internal/classify"
	"github.com/wardenai/warden/internal/config"
	"github.com/wardenai/warden/internal/gap"
	"github.com/wardenai/warden/internal/knowledge"
	"github.com/wardenai/warden/internal/llm"
	"github.com/wardenai/warden/internal/memory"
	"github.com/wardenai/warden/internal/orchestrator"
	"github.com/wardenai/warden/internal/rag"
)

// Setup builds the application from configuration. On any failure the
// components initialized so far are torn down before the error is returned.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, retErr error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	pool, err := providePool(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Pool = pool

	g, err := provideGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	client, err := llm.NewClient(llm.Config{
		Genkit:        g,
		Logger:        logger.With("component", "llm"),
		PrimaryModel:  qualifiedModel(cfg.Provider, cfg.ModelName),
		FallbackModel: qualifiedFallback(cfg),
	})
	if err != nil {
		return nil, fmt.Errorf("creating completion client: %w", err)
	}
	a.LLM = client

	embedder, err := provideEmbedder(g, cfg, logger)
	if err != nil {
		return nil, err
	}

	a.Knowledge, err = knowledge.NewStore(pool, embedder, logger.With("component", "knowledge"))
	if err != nil {
		return nil, fmt.Errorf("creating knowledge store: %w", err)
	}

	a.Retrieval, err = provideRetrieval(cfg, a, embedder, logger)
	if err != nil {
		return nil, err
	}

	a.Sessions = memory.NewStore(pool, logger.With("component", "memory"))
	a.Memory, err = memory.NewManager(memory.Config{
		Store:       a.Sessions,
		Archiver:    a.Knowledge,
		Logger:      logger.With("component", "memory"),
		Window:      int(cfg.HistoryWindow),
		IdleTimeout: cfg.SessionIdleTimeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("creating memory manager: %w", err)
	}

	a.Gaps = gap.NewStore(pool, logger.With("component", "gaps"))
	a.GapEngine, err = gap.NewEngine(gap.EngineConfig{
		Inventory: a.Knowledge,
		Store:     a.Gaps,
		Generator: client,
		Logger:    logger.With("component", "gaps"),
		Weights: gap.Weights{
			Risk:       cfg.GapRiskWeight,
			Compliance: cfg.GapComplianceWeight,
			Business:   cfg.GapBusinessWeight,
			Effort:     cfg.GapEffortWeight,
			Frequency:  cfg.GapFrequencyWeight,
		},
		Limiter: rate.NewLimiter(rate.Limit(cfg.ProposalsPerMinute)/60, 1),
	})
	if err != nil {
		return nil, fmt.Errorf("creating gap engine: %w", err)
	}

	registry, err := provideAgents(a, logger)
	if err != nil {
		return nil, err
	}

	a.Orchestrator, err = orchestrator.New(orchestrator.Config{
		Classifier:         classify.New(client, logger.With("component", "classify")),
		Registry:           registry,
		Retriever:          a.Retrieval,
		Memory:             a.Memory,
		Generator:          client,
		Logger:             logger.With("component", "orchestrator"),
		TopK:               cfg.TopK,
		ContextTokenBudget: cfg.ContextTokenBudget,
		AgentTimeout:       cfg.AgentTimeout(),
		TurnTimeout:        cfg.TurnTimeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("creating orchestrator: %w", err)
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.cancel = cancel
	a.Memory.StartEvictionLoop(loopCtx, time.Minute)

	return a, nil
}

// providePool runs migrations and opens the connection pool.
func providePool(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresURL())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// provideGenkit initializes Genkit with the configured provider plugin.
// Ollama needs explicit model and embedder registration; Gemini discovers
// models from the plugin.
func provideGenkit(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*genkit.Genkit, error) {
	switch cfg.Provider {
	case config.ProviderOllama:
		plugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g := genkit.Init(ctx, genkit.WithPlugins(plugin))
		if g == nil {
			return nil, errors.New("initializing genkit with ollama provider")
		}
		plugin.DefineModel(g, ollama.ModelDefinition{Name: cfg.ModelName, Type: "chat"}, nil)
		plugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)
		logger.Info("genkit initialized", "provider", cfg.Provider,
			"model", cfg.ModelName, "host", cfg.OllamaHost)
		return g, nil

	default: // gemini
		g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with gemini provider")
		}
		logger.Info("genkit initialized", "provider", cfg.Provider, "model", cfg.ModelName)
		return g, nil
	}
}

// provideEmbedder wires the provider embedder as primary with the local
// hashed embedder as fallback, so retrieval degrades instead of failing
// during a provider outage.
func provideEmbedder(g *genkit.Genkit, cfg *config.Config, logger *slog.Logger) (*knowledge.Embedder, error) {
	var provider ai.Embedder
	switch cfg.Provider {
	case config.ProviderOllama:
		provider = ollama.Embedder(g, cfg.OllamaHost)
	default:
		provider = googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	}
	if provider == nil {
		return nil, fmt.Errorf("embedder %q not found for provider %q", cfg.EmbedderModel, cfg.Provider)
	}

	return knowledge.NewEmbedder(
		knowledge.NewGenkitProvider(provider),
		knowledge.NewLocalEmbedder(knowledge.VectorDimension),
		logger.With("component", "embedder"),
	)
}

func provideRetrieval(cfg *config.Config, a *App, embedder *knowledge.Embedder, logger *slog.Logger) (*rag.Service, error) {
	var reranker *rag.Reranker
	if cfg.Rerank {
		reranker = rag.NewReranker(a.LLM, cfg.RerankVectorWeight, cfg.RerankLLMWeight,
			logger.With("component", "rerank"))
	}
	svc, err := rag.New(rag.Config{
		Embedder:      embedder,
		Index:         a.Knowledge,
		Logger:        logger.With("component", "rag"),
		Reranker:      reranker,
		KeywordFusion: cfg.KeywordFusion,
	})
	if err != nil {
		return nil, fmt.Errorf("creating retrieval service: %w", err)
	}
	return svc, nil
}

// provideAgents builds the five specialists and the registry. All agents
// share the completion client for generation and tool binding; the
// reporting agent additionally reads open gaps.
func provideAgents(a *App, logger *slog.Logger) (*agent.Registry, error) {
	deps := agent.Deps{
		Generator:    a.LLM,
		Retriever:    a.Retrieval,
		Binder:       a.LLM,
		Gaps:         a.Gaps,
		Logger:       logger.With("component", "agent"),
		MaxToolCalls: a.Config.MaxToolCalls,
	}

	general, err := agent.NewGeneral(deps)
	if err != nil {
		return nil, fmt.Errorf("creating general agent: %w", err)
	}
	risk, err := agent.NewRisk(deps)
	if err != nil {
		return nil, fmt.Errorf("creating risk agent: %w", err)
	}
	incident, err := agent.NewIncident(deps)
	if err != nil {
		return nil, fmt.Errorf("creating incident agent: %w", err)
	}
	compliance, err := agent.NewCompliance(deps)
	if err != nil {
		return nil, fmt.Errorf("creating compliance agent: %w", err)
	}
	reporting, err := agent.NewReporting(deps)
	if err != nil {
		return nil, fmt.Errorf("creating reporting agent: %w", err)
	}

	registry, err := agent.NewRegistry(general, risk, incident, compliance, reporting)
	if err != nil {
		return nil, fmt.Errorf("building agent registry: %w", err)
	}
	return registry, nil
}

// qualifiedModel prefixes the model name with its Genkit provider namespace.
func qualifiedModel(provider, model string) string {
	switch provider {
	case config.ProviderOllama:
		return "ollama/" + model
	default:
		return "googleai/" + model
	}
}

func qualifiedFallback(cfg *config.Config) string {
	if cfg.FallbackModelName == "" {
		return ""
	}
	return qualifiedModel(cfg.Provider, cfg.FallbackModelName)
}
