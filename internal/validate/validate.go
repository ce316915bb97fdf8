package validate

import (
	"context"
	"fmt"
	"path/filepath"

	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/tallyboard/tally/internal/config"
	"github.com/tallyboard/tally/internal/history"
	"github.com/tallyboard/tally/internal/loader"
	"github.com/tallyboard/tally/internal/result"
	"github.com/tallyboard/tally/internal/schema"
	"github.com/tallyboard/tally/internal/signature"
	"github.com/tallyboard/tally/internal/telemetry"
)

// historyReaders bounds the concurrent history file reads. Reads are
// independent and read-only; everything after them is sequential and
// deterministic.
const historyReaders = 8

// Run performs one full validation pass over the workspace rooted at dir.
// It returns an error only for catastrophic load failures (no schema
// directory, no documents); everything else lands in the Result. A pass
// always re-validates the whole inventory.
func Run(ctx context.Context, dir string, cfg *config.Config) (*result.Result, error) {
	tracer := telemetry.Tracer("")
	ctx, span := tracer.Start(ctx, "validate.run")
	defer span.End()

	registry, err := schema.Cached(filepath.Join(dir, cfg.SchemaDir))
	if err != nil {
		return nil, fmt.Errorf("schema registry: %w", err)
	}
	inv, err := loader.Load(dir, cfg)
	if err != nil {
		return nil, err
	}
	signingKey, err := cfg.SigningKey(dir)
	if err != nil {
		return nil, err
	}

	vctx, dupIssues := Build(inv)

	res := &result.Result{CheckedFiles: inv.CheckedFiles}
	res.Add(inv.Issues...) // load-time issues merge verbatim
	res.Add(dupIssues...)

	for _, doc := range inv.Documents {
		res.Add(registry.Validate(doc.Path, doc.Kind, doc.Raw)...)
		if signature.HasProvenance(doc.Raw) && !signature.HasValidSignature(doc.Raw, signingKey) {
			res.Add(result.Issue{
				File:    doc.Path,
				Rule:    result.RuleSignature,
				Message: "provenance signature is invalid",
			})
		}
	}

	logs := readHistories(ctx, dir, cfg, vctx)
	for i, item := range vctx.Ordered {
		log := logs[i]
		res.CheckedFiles = append(res.CheckedFiles, log.File)
		res.Add(log.Issues...)
		res.Add(history.Verify(log, item, vctx.Graph, cfg.History.StalenessTolerance)...)

		for _, rule := range itemRules {
			res.Add(rule(item, vctx)...)
		}
	}

	res.Add(checkStoryCompletion(vctx)...)
	res.Add(checkScopes(vctx)...)
	res.Add(checkBacklog(vctx)...)

	res.Sort()
	span.SetAttributes(
		attribute.Int("tally.items", len(vctx.Ordered)),
		attribute.Int("tally.issues", len(res.Errors)),
	)
	countIssues(ctx, res)
	return res, nil
}

// countIssues records per-rule issue counts on the meter. A noop when
// telemetry is disabled.
func countIssues(ctx context.Context, res *result.Result) {
	counter, err := telemetry.Meter("").Int64Counter("tally.issues")
	if err != nil {
		return
	}
	byRule := make(map[string]int64)
	for _, iss := range res.Errors {
		byRule[iss.Rule]++
	}
	for rule, n := range byRule {
		counter.Add(ctx, n, otelmetric.WithAttributes(attribute.String("rule", rule)))
	}
}

// readHistories loads every canonical item's event log, fanned out over a
// bounded worker group. Results come back indexed by item position so the
// rest of the pass stays order-stable.
func readHistories(ctx context.Context, dir string, cfg *config.Config, vctx *Context) []*history.Log {
	lim := history.Limits{
		MaxEvents:    cfg.History.MaxEvents,
		MaxLineBytes: cfg.History.MaxLineBytes,
	}

	logs := make([]*history.Log, len(vctx.Ordered))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(historyReaders)
	for i, item := range vctx.Ordered {
		g.Go(func() error {
			rel := filepath.Join(cfg.HistoryDir, item.ID+".jsonl")
			logs[i] = history.Read(filepath.Join(dir, rel), rel, lim)
			return nil
		})
	}
	_ = g.Wait() // readers never return errors; failures degrade to issues
	return logs
}
