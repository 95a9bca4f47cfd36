package cmd

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Aman-CERP/indexgen/internal/config"
	ierrors "github.com/Aman-CERP/indexgen/internal/errors"
	"github.com/Aman-CERP/indexgen/internal/filter"
	"github.com/Aman-CERP/indexgen/internal/generator"
	"github.com/Aman-CERP/indexgen/internal/localindex"
	"github.com/Aman-CERP/indexgen/internal/metrics"
	"github.com/Aman-CERP/indexgen/internal/server"
	"github.com/Aman-CERP/indexgen/internal/solr"
	"github.com/Aman-CERP/indexgen/internal/store"
	"github.com/Aman-CERP/indexgen/internal/task"
)

// lookupBackend is the index a filter reads from.
type lookupBackend struct {
	lookup filter.Lookup
	name   string
	ready  server.ReadyFunc
	local  *localindex.Index
	close  func() error
}

func openLookup(cfg *config.Config) (*lookupBackend, error) {
	switch cfg.Index.Backend {
	case config.BackendBleve:
		idx, err := localindex.Open(cfg.Index.Path)
		if err != nil {
			return nil, ierrors.New(ierrors.ErrCodeStoreUnavailable, "cannot open local index", err).
				WithDetail("path", cfg.Index.Path)
		}
		return &lookupBackend{
			lookup: idx,
			name:   config.BackendBleve,
			local:  idx,
			close:  idx.Close,
			ready: func(context.Context) error {
				_, err := idx.Count()
				return err
			},
		}, nil
	default:
		c, err := solr.New(solr.Config{
			BaseURL:    cfg.Index.BaseURL,
			Timeout:    cfg.Index.Timeout,
			MaxRetries: cfg.Index.MaxRetries,
		})
		if err != nil {
			return nil, err
		}
		return &lookupBackend{
			lookup: c,
			name:   config.BackendSolr,
			ready:  c.Ping,
			close:  func() error { return nil },
		}, nil
	}
}

// core is the decision and generation pipeline shared by run and enqueue.
type core struct {
	cfg       *config.Config
	metrics   *metrics.Metrics
	store     task.Store
	backend   *lookupBackend
	filter    *filter.Filter
	generator *generator.Generator
}

func buildCore(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (*core, error) {
	st, err := store.Open(ctx, store.Config{
		Driver: cfg.Store.Driver,
		Path:   cfg.Store.Path,
		DSN:    cfg.Store.DSN,
	})
	if err != nil {
		return nil, err
	}

	backend, err := openLookup(cfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	f := filter.New(filter.Config{Enabled: cfg.Filter.Enabled}, backend.lookup,
		filter.WithMetrics(m, backend.name))
	gen := generator.New(generator.Config{IgnorePIDs: cfg.Generator.IgnorePIDs}, st, m)

	slog.Debug("core initialised",
		slog.String("store", cfg.Store.Driver),
		slog.String("index", backend.name),
		slog.Bool("filter", cfg.Filter.Enabled))

	return &core{
		cfg:       cfg,
		metrics:   m,
		store:     st,
		backend:   backend,
		filter:    f,
		generator: gen,
	}, nil
}

func (c *core) Close() error {
	return errors.Join(c.backend.close(), c.store.Close())
}
