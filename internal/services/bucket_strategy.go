// Package services provides business logic and orchestration services.
//
// This file implements the Strategy Pattern for bucket scheduling. Each
// aggregation scale (3y, 1y, 6m, 3m, 1m) has its own strategy that
// encapsulates where the newest bucket starts, how far each older bucket
// steps back and how buckets are labelled.

package services

import (
	"errors"
	"fmt"
	"slices"

	"fintrack/internal/core"
)

const (
	Scale3Y Scale = "3y"
	Scale1Y Scale = "1y"
	Scale6M Scale = "6m"
	Scale3M Scale = "3m"
	Scale1M Scale = "1m"

	DefaultScale = Scale6M
)

// Scale selects the bucket granularity of a net income series.
type Scale string

var ErrUnknownScale = errors.New("unknown scale")

// ParseScale maps an empty string to DefaultScale and rejects unknown values.
func ParseScale(s string) (Scale, error) {
	if s == "" {
		return DefaultScale, nil
	}
	scale := Scale(s)
	if _, ok := bucketStrategies[scale]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownScale, s)
	}
	return scale, nil
}

// BucketStrategy is the strategy interface for building the buckets of a scale.
type BucketStrategy interface {
	// AnchorStart returns the start of the bucket that ends on today.
	AnchorStart(today core.Date) core.Date
	// Step moves a bucket start back to the start of the previous bucket.
	Step(start core.Date) core.Date
	// Prior returns how many buckets precede the anchor bucket.
	Prior(today core.Date) int
	// Label names a bucket after its end date.
	Label(end core.Date) string
}

// QuarterStrategy implements BucketStrategy for the 3y scale.
type QuarterStrategy struct{}

func (QuarterStrategy) AnchorStart(today core.Date) core.Date {
	quarter := (today.Month() - 1) / 3
	return core.NewDate(today.Year(), quarter*3+1, 1)
}

func (QuarterStrategy) Step(start core.Date) core.Date { return start.AddMonths(-3) }
func (QuarterStrategy) Prior(core.Date) int            { return 11 }

// Label uses the zero-based quarter index of the end date.
func (QuarterStrategy) Label(end core.Date) string {
	return fmt.Sprintf("%d, %d", (end.Month()-1)/3, end.Year())
}

// BimonthStrategy implements BucketStrategy for the 1y scale. The anchor
// bucket spans the previous and the current month.
type BimonthStrategy struct{}

func (BimonthStrategy) AnchorStart(today core.Date) core.Date { return today.AddMonths(-1) }
func (BimonthStrategy) Step(start core.Date) core.Date        { return start.AddMonths(-2) }
func (BimonthStrategy) Prior(core.Date) int                   { return 5 }
func (BimonthStrategy) Label(end core.Date) string            { return monthLabel(end) }

// MonthStrategy implements BucketStrategy for the 6m scale.
type MonthStrategy struct{}

func (MonthStrategy) AnchorStart(today core.Date) core.Date { return today.FirstOfMonth() }
func (MonthStrategy) Step(start core.Date) core.Date        { return start.AddMonths(-1) }
func (MonthStrategy) Prior(core.Date) int                   { return 5 }
func (MonthStrategy) Label(end core.Date) string            { return monthLabel(end) }

// WeekStrategy implements BucketStrategy for the 3m scale. Weeks start on Monday.
type WeekStrategy struct{}

func (WeekStrategy) AnchorStart(today core.Date) core.Date {
	sinceMonday := (int(today.Weekday()) + 6) % 7
	return today.AddDays(-sinceMonday)
}

func (WeekStrategy) Step(start core.Date) core.Date { return start.AddDays(-7) }
func (WeekStrategy) Prior(core.Date) int            { return 11 }

func (WeekStrategy) Label(end core.Date) string {
	return fmt.Sprintf("%d, %d, %d", end.Day(), end.Month(), end.Year())
}

// DayStrategy implements BucketStrategy for the 1m scale: one bucket per day
// of the current month up to today.
type DayStrategy struct{}

func (DayStrategy) AnchorStart(today core.Date) core.Date { return today }
func (DayStrategy) Step(start core.Date) core.Date        { return start.AddDays(-1) }
func (DayStrategy) Prior(today core.Date) int             { return today.Day() - 1 }

func (DayStrategy) Label(end core.Date) string {
	return fmt.Sprintf("%d, %d", end.Day(), end.Month())
}

func monthLabel(end core.Date) string {
	return fmt.Sprintf("%d, %d", end.Month(), end.Year())
}

// bucketStrategies maps scales to their strategies.
var bucketStrategies = map[Scale]BucketStrategy{
	Scale3Y: QuarterStrategy{},
	Scale1Y: BimonthStrategy{},
	Scale6M: MonthStrategy{},
	Scale3M: WeekStrategy{},
	Scale1M: DayStrategy{},
}

// GetBucketStrategy returns the strategy for a scale.
// Returns an error if the scale is not supported.
func GetBucketStrategy(scale Scale) (BucketStrategy, error) {
	strategy, ok := bucketStrategies[scale]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownScale, scale)
	}
	return strategy, nil
}

// Schedule returns the buckets of scale ending on today, oldest first.
// Consecutive buckets touch without gaps or overlaps.
func Schedule(scale Scale, today core.Date) ([]core.Bucket, error) {
	if scale == "" {
		scale = DefaultScale
	}
	strategy, err := GetBucketStrategy(scale)
	if err != nil {
		return nil, err
	}

	start := strategy.AnchorStart(today)
	prior := strategy.Prior(today)
	buckets := make([]core.Bucket, 0, prior+1)
	buckets = append(buckets, core.Bucket{Label: strategy.Label(today), Start: start, End: today})
	for i := 0; i < prior; i++ {
		prevStart := strategy.Step(start)
		prevEnd := start.AddDays(-1)
		buckets = append(buckets, core.Bucket{Label: strategy.Label(prevEnd), Start: prevStart, End: prevEnd})
		start = prevStart
	}
	slices.Reverse(buckets)
	return buckets, nil
}
