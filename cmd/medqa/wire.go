package main

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"medqa/internal/assets"
	"medqa/internal/common/fsutil"
	"medqa/internal/config"
	"medqa/internal/conversation"
	"medqa/internal/coordinator"
	"medqa/internal/engine"
	"medqa/internal/prompt"
	"medqa/internal/retrieval"
	"medqa/internal/service"
)

// app is a fully wired service plus what it must release on shutdown.
type app struct {
	svc     *service.Service
	closers []func() error
}

func (a *app) Close() error {
	err := a.svc.Close()
	for i := len(a.closers) - 1; i >= 0; i-- {
		err = errors.Join(err, a.closers[i]())
	}
	return err
}

// buildApp resolves assets and wires the llama backend, the embedder, the
// passage index and the conversation store into a Service. Nothing is loaded
// until the first EnsureInit.
func buildApp(cfg config.Config, log zerolog.Logger) (*app, error) {
	paths, err := assets.Resolve(cfg.AssetsDir, assets.Paths{
		Model:    cfg.ModelPath,
		Embedder: cfg.EmbedModelPath,
		Index:    cfg.IndexPath,
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("model", paths.Model).Str("embedder", paths.Embedder).Str("index", paths.Index).Msg("assets")

	params := engine.InferParams{MaxTokens: cfg.MaxTokens, Temperature: cfg.Temperature}
	ecfg := engine.Config{
		ModelPath:   paths.Model,
		ContextSize: cfg.ModelContextSize,
		Threads:     cfg.Threads,
		GPULayers:   cfg.GPULayers,
		Params:      params,
	}
	if rep := engine.SanityCheck(ecfg); rep.Error != "" {
		log.Warn().Str("model", rep.ModelPath).Bool("llama_built", rep.LlamaBuilt).Str("problem", rep.Error).Msg("backend sanity check")
	}
	backend := engine.NewLlamaBackend(ecfg)
	embedder := retrieval.NewLlamaEmbedder(retrieval.EmbedderConfig{
		ModelPath: paths.Embedder,
		Threads:   cfg.Threads,
	})
	index := retrieval.NewSQLiteIndex(paths.Index, embedder, retrieval.Config{
		TopK:   cfg.RetrievalK,
		Cutoff: cfg.SimilarityCutoff,
	})

	a := &app{closers: []func() error{embedder.Close, index.Close}}
	var store conversation.Store
	if !cfg.DisableConversations {
		dbPath, err := fsutil.ResolveUnder(cfg.AssetsDir, cfg.ConversationsDB)
		if err != nil {
			return nil, err
		}
		s, err := conversation.OpenSQLite(dbPath)
		if err != nil {
			return nil, fmt.Errorf("open conversations: %w", err)
		}
		store = s
		a.closers = append(a.closers, s.Close)
	}

	svc, err := service.New(service.Deps{
		Backend:   backend,
		Retriever: index,
		Loaders:   []service.Loader{embedder, index},
		Assets:    paths,
		AssetWait: cfg.AssetWait(),
		Store:     store,
		Budget:    budgetFor(cfg),
		Params:    params,
		Logger:    log,
		Publisher: lifecycleLogger{log: log},
	})
	if err != nil {
		for _, c := range a.closers {
			_ = c()
		}
		return nil, err
	}
	a.svc = svc
	return a, nil
}

// lifecycleLogger forwards coordinator lifecycle notifications to the log at
// debug level.
type lifecycleLogger struct{ log zerolog.Logger }

func (l lifecycleLogger) Publish(ev coordinator.Lifecycle) {
	e := l.log.Debug().Str("event", ev.Name).Uint64("job_id", ev.JobID)
	for k, v := range ev.Fields {
		e = e.Interface(k, v)
	}
	e.Msg("lifecycle")
}

// budgetFor maps the prompt settings. A zero reserve means the default; a
// negative one disables the reserve.
func budgetFor(cfg config.Config) prompt.Budget {
	reserved := cfg.ReservedChars
	if reserved == 0 {
		reserved = prompt.DefaultReservedChars
	}
	return prompt.Budget{
		ContextTokens: cfg.ContextTokens,
		CharsPerToken: cfg.CharsPerToken,
		ReservedChars: reserved,
	}.WithDefaults()
}
