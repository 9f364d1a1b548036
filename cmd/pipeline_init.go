package main

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pricing-cli/internal/backup"
	"github.com/sells-group/pricing-cli/internal/fetcher"
	"github.com/sells-group/pricing-cli/internal/mapping"
	"github.com/sells-group/pricing-cli/internal/model"
	"github.com/sells-group/pricing-cli/internal/pipeline"
	"github.com/sells-group/pricing-cli/internal/store"
	"github.com/sells-group/pricing-cli/internal/table"
)

// pipelineEnv holds everything a merge needs. Store may be nil when the
// ledger is disabled or could not be opened.
type pipelineEnv struct {
	Store    store.Store
	Mapper   *mapping.Mapper
	Backups  *backup.Manager
	Resolver *fetcher.Resolver
	Runner   *pipeline.Runner
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline validates the config, opens the ledger and builds the
// Runner. Callers should defer env.Close().
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	mapper, err := initMapper()
	if err != nil {
		return nil, err
	}

	env := &pipelineEnv{
		Mapper:   mapper,
		Backups:  initBackups(),
		Resolver: initResolver(),
	}

	if !cfg.Store.Disabled {
		st, err := initStore(ctx)
		if err != nil {
			zap.L().Warn("run ledger unavailable, continuing without it", zap.Error(err))
		} else {
			env.Store = st
		}
	}

	dateColumns := model.MasterSchema().HeadersOfKind(model.KindDate)
	input := inputCodec(mapper)
	master := table.NewFileCodec(table.Options{
		Sheet:       cfg.Master.Sheet,
		DateColumns: dateColumns,
	})

	opts := []pipeline.Option{
		pipeline.WithMasterReader(master),
		pipeline.WithCreateIfMissing(cfg.Master.CreateIfMissing),
		pipeline.WithBackupAlways(cfg.Backup.Always),
	}
	if env.Store != nil {
		opts = append(opts, pipeline.WithStore(env.Store))
	}
	env.Runner = pipeline.New(input, master, mapper, env.Backups, opts...)
	return env, nil
}

// inputCodec reads vendor files: the configured sheet or the one whose name
// matches input.prefer_sheet, with the header found by rule-set signature.
func inputCodec(m *mapping.Mapper) *table.FileCodec {
	return table.NewFileCodec(table.Options{
		Sheet:       cfg.Input.Sheet,
		PreferSheet: strings.Fields(cfg.Input.PreferSheet),
		SkipRows:    cfg.Input.SkipRows,
		HeaderScore: m.HeaderScore,
		HeaderScan:  cfg.Input.HeaderScan,
	})
}

// initMapper builds the mapper from the built-in rule sets plus the
// configured rules file, if any.
func initMapper() (*mapping.Mapper, error) {
	m := mapping.NewMapper(cfg.Mapping.SimilarityThreshold)
	if cfg.Mapping.RulesFile == "" {
		return m, nil
	}
	sets, err := mapping.LoadFile(cfg.Mapping.RulesFile)
	if err != nil {
		return nil, err
	}
	if err := m.Register(sets...); err != nil {
		return nil, eris.Wrapf(err, "register rules from %s", cfg.Mapping.RulesFile)
	}
	zap.L().Debug("loaded rule sets", zap.String("file", cfg.Mapping.RulesFile), zap.Int("count", len(sets)))
	return m, nil
}

func initBackups() *backup.Manager {
	return backup.NewManager(backup.WithDir(cfg.Backup.Dir))
}

func initResolver() *fetcher.Resolver {
	httpF := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:   cfg.Fetch.UserAgent,
		Timeout:     cfg.Fetch.Timeout(),
		MaxRetries:  cfg.Fetch.MaxRetries,
		RatePerSec:  cfg.Fetch.RatePerSec,
		BearerToken: cfg.Fetch.Token,
	})
	ftpF := fetcher.NewFTPFetcher(fetcher.FTPOptions{
		Timeout:    cfg.Fetch.Timeout(),
		MaxRetries: cfg.Fetch.MaxRetries,
	})
	return fetcher.NewResolver(httpF, ftpF)
}

// initStore opens the configured ledger and applies its migration.
func initStore(ctx context.Context) (store.Store, error) {
	return store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL)
}

// resolveMaster returns the local master path. A configured source is
// downloaded into fetch.dir first and replaces masterPath.
func resolveMaster(ctx context.Context, r *fetcher.Resolver, masterPath, source string) (string, error) {
	if source == "" {
		return masterPath, nil
	}
	path, err := r.Resolve(ctx, source, cfg.Fetch.Dir)
	if err != nil {
		return "", err
	}
	zap.L().Info("resolved master", zap.String("source", source), zap.String("path", path))
	return path, nil
}
