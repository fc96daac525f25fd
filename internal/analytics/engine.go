package analytics

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"analytics-service/internal/keys"
	"analytics-service/internal/model"
	"analytics-service/internal/util"
)

const topN = 5

// Scanner is the read side of the partitioned store the engine folds over.
type Scanner interface {
	ScanFrom(ctx context.Context, startPartition string) ([]*model.Event, error)
	ScanPartition(ctx context.Context, partition string, limit int) ([]*model.Event, error)
}

// Engine computes dashboard statistics with a full range scan and an
// in-memory fold. Nothing is cached or persisted; every call recomputes.
type Engine struct {
	store  Scanner
	keys   *keys.KeyManager
	logger *zap.Logger
}

func NewEngine(store Scanner, keyManager *keys.KeyManager, logger *zap.Logger) *Engine {
	return &Engine{
		store:  store,
		keys:   keyManager,
		logger: logger,
	}
}

// ComputeStats aggregates all events from windowDays ago (inclusive) onward.
func (e *Engine) ComputeStats(ctx context.Context, windowDays int) (*model.DashboardStats, error) {
	startPartition := e.keys.PartitionKeyDaysAgo(windowDays)

	events, err := e.store.ScanFrom(ctx, startPartition)
	if err != nil {
		return nil, fmt.Errorf("failed to scan window starting %s: %w", startPartition, err)
	}

	stats := fold(events)

	util.Debug("Dashboard stats computed",
		zap.String("start_partition", startPartition),
		zap.Int("total_events", stats.TotalEvents))

	return stats, nil
}

// RecentEvents returns up to limit events from today's partition.
func (e *Engine) RecentEvents(ctx context.Context, limit int) ([]*model.Event, error) {
	today := e.keys.PartitionKeyDaysAgo(0)
	events, err := e.store.ScanPartition(ctx, today, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to scan today's partition: %w", err)
	}
	return events, nil
}

func fold(events []*model.Event) *model.DashboardStats {
	users := make(map[string]struct{})
	sessions := make(map[string]struct{})
	pages := newCounter()
	browsers := newCounter()
	cities := newCounter()
	hours := newCounter()

	for _, evt := range events {
		users[evt.UserID] = struct{}{}
		sessions[evt.SessionID] = struct{}{}

		pages.add(orUnknown(evt.Url))
		browsers.add(orUnknown(evt.Browser))
		cities.add(orUnknown(evt.City))
		hours.add(keys.HourBucket(evt.TimestampUtc))
	}

	hourEntries := hours.ascendingByKey()
	eventsByHour := make([]model.HourBucket, 0, len(hourEntries))
	for _, entry := range hourEntries {
		eventsByHour = append(eventsByHour, model.HourBucket{Hour: entry.Value, Count: entry.Count})
	}

	return &model.DashboardStats{
		TotalEvents:    len(events),
		UniqueUsers:    len(users),
		UniqueSessions: len(sessions),
		TopPages:       pages.top(topN),
		TopBrowsers:    browsers.top(topN),
		TopCities:      cities.top(topN),
		EventsByHour:   eventsByHour,
	}
}

func orUnknown(s *string) string {
	if s == nil || *s == "" {
		return "unknown"
	}
	return *s
}

// counter groups values while remembering first-encountered order, which is
// the tie-break for equal counts in the top-N rankings.
type counter struct {
	counts map[string]int
	order  []string
}

func newCounter() *counter {
	return &counter{counts: make(map[string]int)}
}

func (c *counter) add(value string) {
	if _, seen := c.counts[value]; !seen {
		c.order = append(c.order, value)
	}
	c.counts[value]++
}

// top returns the n largest entries, descending by count, ties in insertion
// order.
func (c *counter) top(n int) []model.CountEntry {
	entries := make([]model.CountEntry, 0, len(c.order))
	for _, value := range c.order {
		entries = append(entries, model.CountEntry{Value: value, Count: c.counts[value]})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Count > entries[j].Count
	})

	if len(entries) > n {
		entries = entries[:n]
	}
	return entries
}

// ascendingByKey returns all entries sorted by value label. For HH:00 labels
// lexicographic order is chronological order within a day.
func (c *counter) ascendingByKey() []model.CountEntry {
	entries := make([]model.CountEntry, 0, len(c.order))
	for _, value := range c.order {
		entries = append(entries, model.CountEntry{Value: value, Count: c.counts[value]})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Value < entries[j].Value
	})
	return entries
}
