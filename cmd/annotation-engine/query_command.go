package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aleph-Alpha/annotation-engine/v1/logger"
	"github.com/Aleph-Alpha/annotation-engine/v1/models"
	"github.com/Aleph-Alpha/annotation-engine/v1/postgres"
	"github.com/Aleph-Alpha/annotation-engine/v1/query"
	"github.com/Aleph-Alpha/annotation-engine/v1/search"
)

// querier is the part of *query.Engine the command drives.
type querier interface {
	AnnotationIDs(ctx context.Context, projectID int64, kind models.Kind, p query.AnnotationParams) ([]int64, error)
	CountAnnotations(ctx context.Context, projectID int64, kind models.Kind, p query.AnnotationParams) (int64, error)
	LeafIDs(ctx context.Context, projectID int64, p query.LeafParams) ([]int64, error)
	CountLeaves(ctx context.Context, projectID int64, p query.LeafParams) (int64, error)
	FileIDs(ctx context.Context, projectID int64, p query.FileParams) ([]int64, error)
	CountFiles(ctx context.Context, projectID int64, p query.FileParams) (int64, error)
}

type queryOptions struct {
	project int64
	kind    string
	params  string
	count   bool
}

type queryOutput struct {
	Project int64       `json:"project"`
	Kind    models.Kind `json:"kind"`
	IDs     *[]int64    `json:"ids,omitempty"`
	Count   *int64      `json:"count,omitempty"`
}

func newQueryCommand(ctx *commandContext) *cobra.Command {
	var opts queryOptions

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Print the ids (or count) of the annotations, leaves or files matching a parameter file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			raw, err := readParams(cmd.InOrStdin(), opts.params)
			if err != nil {
				return err
			}

			log := logger.NewLoggerClient(cfg.Logger)
			defer func() { _ = log.Zap.Sync() }()

			pg, err := postgres.NewPostgres(cfg.Postgres, log)
			if err != nil {
				return fmt.Errorf("connect to postgres: %w", err)
			}
			defer func() {
				if sqlDB, err := pg.DB().DB(); err == nil {
					_ = sqlDB.Close()
				}
			}()

			engine := query.NewEngine(pg.DB(), search.NewCatalog(pg.DB()), log)
			out, err := runQuery(cmd.Context(), engine, opts, raw)
			if err != nil {
				return err
			}
			return writeJSON(cmd, out)
		},
	}

	cmd.Flags().Int64Var(&opts.project, "project", 0, "Project id")
	cmd.Flags().StringVar(&opts.kind, "kind", string(models.KindLocalization), "One of localization, state, leaf or file")
	cmd.Flags().StringVar(&opts.params, "params", "", "JSON parameter file, - for stdin")
	cmd.Flags().BoolVar(&opts.count, "count", false, "Print the number of matches instead of their ids")
	_ = cmd.MarkFlagRequired("project")

	return cmd
}

func readParams(stdin io.Reader, path string) ([]byte, error) {
	switch path {
	case "":
		return nil, nil
	case "-":
		return io.ReadAll(stdin)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read params: %w", err)
	}
	return raw, nil
}

// decodeParams fills p from raw. Unknown keys are rejected so a misspelled
// filter does not silently widen the result.
func decodeParams(raw []byte, p any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(p); err != nil {
		return fmt.Errorf("decode params: %w", err)
	}
	return nil
}

func runQuery(ctx context.Context, q querier, opts queryOptions, raw []byte) (queryOutput, error) {
	if opts.project <= 0 {
		return queryOutput{}, fmt.Errorf("--project must be positive, got %d", opts.project)
	}
	kind := models.Kind(opts.kind)
	out := queryOutput{Project: opts.project, Kind: kind}

	var (
		ids   []int64
		count int64
		err   error
	)
	switch kind {
	case models.KindLocalization, models.KindState:
		var p query.AnnotationParams
		if err := decodeParams(raw, &p); err != nil {
			return out, err
		}
		if opts.count {
			count, err = q.CountAnnotations(ctx, opts.project, kind, p)
		} else {
			ids, err = q.AnnotationIDs(ctx, opts.project, kind, p)
		}
	case models.KindLeaf:
		var p query.LeafParams
		if err := decodeParams(raw, &p); err != nil {
			return out, err
		}
		if opts.count {
			count, err = q.CountLeaves(ctx, opts.project, p)
		} else {
			ids, err = q.LeafIDs(ctx, opts.project, p)
		}
	case models.KindFile:
		var p query.FileParams
		if err := decodeParams(raw, &p); err != nil {
			return out, err
		}
		if opts.count {
			count, err = q.CountFiles(ctx, opts.project, p)
		} else {
			ids, err = q.FileIDs(ctx, opts.project, p)
		}
	default:
		return out, fmt.Errorf("unsupported kind %q", opts.kind)
	}
	if err != nil {
		return out, err
	}

	if opts.count {
		out.Count = &count
		return out, nil
	}
	if ids == nil {
		ids = []int64{}
	}
	out.IDs = &ids
	return out, nil
}
