package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/ledger"
	"fintrack/internal/metrics"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// defaultSumParallelism bounds concurrent bucket queries per request.
const defaultSumParallelism = 4

// AggregateStore is the subset of the ledger the aggregator reads.
type AggregateStore interface {
	ledger.Summer
	GetOwner(ctx context.Context, id int64) (core.Owner, error)
}

// GraphData carries the two series computed over one bucket schedule.
type GraphData struct {
	Scale   Scale
	Flow    core.Series // per-bucket income minus expense
	Running core.Series // cumulative net income at each bucket end
}

// NetIncomeService computes point and bucketed net income figures.
type NetIncomeService struct {
	store       AggregateStore
	metrics     *metrics.Metrics
	parallelism int
}

func NewNetIncomeService(store AggregateStore, m *metrics.Metrics) *NetIncomeService {
	return &NetIncomeService{store: store, metrics: m, parallelism: defaultSumParallelism}
}

// NetIncome returns income minus expense over every transaction dated on or
// before today.
func (s *NetIncomeService) NetIncome(ctx context.Context, ownerID int64, today core.Date) (decimal.Decimal, error) {
	if _, err := s.store.GetOwner(ctx, ownerID); err != nil {
		return decimal.Zero, fmt.Errorf("get owner: %w", err)
	}
	return s.net(ctx, ownerID, core.Date{}, today)
}

// Graph builds the flow and running series for scale. Both series share the
// same buckets, oldest first.
func (s *NetIncomeService) Graph(ctx context.Context, ownerID int64, scale Scale, today core.Date) (GraphData, error) {
	start := time.Now()
	buckets, err := Schedule(scale, today)
	if err != nil {
		return GraphData{}, err
	}
	if scale == "" {
		scale = DefaultScale
	}
	if _, err := s.store.GetOwner(ctx, ownerID); err != nil {
		return GraphData{}, fmt.Errorf("get owner: %w", err)
	}

	flows := make([]decimal.Decimal, len(buckets))
	var total decimal.Decimal

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	g.Go(func() error {
		var err error
		total, err = s.net(gctx, ownerID, core.Date{}, today)
		return err
	})
	for i, b := range buckets {
		g.Go(func() error {
			net, err := s.net(gctx, ownerID, b.Start, b.End)
			if err != nil {
				return fmt.Errorf("bucket %q: %w", b.Label, err)
			}
			flows[i] = net
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return GraphData{}, err
	}

	data := GraphData{
		Scale:   scale,
		Flow:    make(core.Series, len(buckets)),
		Running: make(core.Series, len(buckets)),
	}
	for i, b := range buckets {
		data.Flow[i] = core.SeriesPoint{Bucket: b, Amount: flows[i]}
	}
	last := len(buckets) - 1
	data.Running[last] = core.SeriesPoint{Bucket: buckets[last], Amount: total}
	for k := last - 1; k >= 0; k-- {
		amount := data.Running[k+1].Amount.Sub(flows[k+1])
		data.Running[k] = core.SeriesPoint{Bucket: buckets[k], Amount: amount}
	}

	s.metrics.RecordAggregation(string(scale), time.Since(start))
	slog.DebugContext(ctx, "Built net income graph",
		"owner_id", ownerID,
		"scale", scale,
		"buckets", len(buckets),
		"duration", time.Since(start))
	return data, nil
}

// net returns income minus expense in [from, to]. Missing sums count as zero.
func (s *NetIncomeService) net(ctx context.Context, ownerID int64, from, to core.Date) (decimal.Decimal, error) {
	income, err := s.store.SumAmount(ctx, ownerID, ledger.Filter{Kind: core.Income, From: from, To: to})
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum income: %w", err)
	}
	expense, err := s.store.SumAmount(ctx, ownerID, ledger.Filter{Kind: core.Expense, From: from, To: to})
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum expense: %w", err)
	}
	return orZero(income).Sub(orZero(expense)), nil
}

func orZero(d decimal.NullDecimal) decimal.Decimal {
	if !d.Valid {
		return decimal.Zero
	}
	return d.Decimal
}
