// Package app assembles the application: it initializes Genkit, the
// database pool, the knowledge store, retrieval, memory, the agents, and the
// orchestrator, and owns their shutdown order.
package app

import (
	"context"
	"log/slog"

	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wardenai/warden/internal/config"
	"github.com/wardenai/warden/internal/gap"
	"github.com/wardenai/warden/internal/knowledge"
	"github.com/wardenai/warden/internal/llm"
	"github.com/wardenai/warden/internal/memory"
	"github.com/wardenai/warden/internal/orchestrator"
	"github.com/wardenai/warden/internal/rag"
)

// App is the assembled application container.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Genkit *genkit.Genkit
	Pool   *pgxpool.Pool

	Knowledge    *knowledge.Store
	Retrieval    *rag.Service
	Sessions     *memory.Store
	Memory       *memory.Manager
	Gaps         *gap.Store
	GapEngine    *gap.Engine
	LLM          *llm.Client
	Orchestrator *orchestrator.Orchestrator

	cancel context.CancelFunc
}

// Close releases all resources. Safe to call on a partially built App.
func (a *App) Close() error {
	if a.cancel != nil {
		a.cancel()
	}
	if a.Pool != nil {
		a.Pool.Close()
		a.Logger.Debug("database pool closed")
	}
	return nil
}
