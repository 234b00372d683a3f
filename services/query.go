package services

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/parolam/breach-checker/config"
	"github.com/parolam/breach-checker/models"
	"github.com/parolam/breach-checker/store"
	"github.com/pkg/errors"
	"github.com/pterm/pterm"
)

var (
	ErrInvalidPrefix = errors.New("prefix must be 6 hexadecimal characters")
	ErrEmptyEmail    = errors.New("email is required")
)

type BreachInfo struct {
	Name string `json:"name"`
	Date string `json:"date"`
}

type EmailResult struct {
	Pwned    bool         `json:"pwned"`
	Breaches []BreachInfo `json:"breaches,omitempty"`
}

// QueryService answers lookups against the store. It holds no per-request
// state; the store's pool hands each call its own connection.
type QueryService struct {
	store store.Store
	cache *store.Cache
}

func NewQueryService(s store.Store, c *store.Cache) *QueryService {
	return &QueryService{store: s, cache: c}
}

// CheckEmail reports every breach the exact email address was seen in.
func (q *QueryService) CheckEmail(ctx context.Context, email string) (EmailResult, error) {
	if email == "" {
		return EmailResult{}, ErrEmptyEmail
	}

	prefix, suffix := SplitHash(email)
	ids, err := q.store.EmailBreachIDs(ctx, prefix, suffix)
	if err != nil {
		return EmailResult{}, err
	}
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return EmailResult{Pwned: false}, nil
	}

	breaches, err := q.store.Breaches(ctx, ids)
	if err != nil {
		return EmailResult{}, err
	}
	sort.Slice(breaches, func(i, j int) bool { return breaches[i].ID < breaches[j].ID })

	res := EmailResult{Pwned: true, Breaches: make([]BreachInfo, 0, len(breaches))}
	for _, b := range breaches {
		res.Breaches = append(res.Breaches, BreachInfo{
			Name: b.Name,
			Date: b.Date.Format(config.DateLayout),
		})
	}
	return res, nil
}

// uniqueIDs collapses email rows the store has not deduplicated yet.
func uniqueIDs(ids []uint32) []uint32 {
	seen := make(map[uint32]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// CheckPasswordPrefix returns the anonymity set for prefix, one entry per
// suffix with its total count, ordered by suffix. The prefix is validated
// before the store is touched.
func (q *QueryService) CheckPasswordPrefix(ctx context.Context, prefix string) ([]models.SuffixCount, error) {
	prefix, ok := ValidPrefix(prefix)
	if !ok {
		return nil, ErrInvalidPrefix
	}

	if rows, ok, err := q.cache.GetRange(ctx, prefix); err != nil {
		pterm.Warning.Printf("range cache read failed: %v\n", err)
	} else if ok {
		return rows, nil
	}

	rows, err := q.store.PasswordRange(ctx, prefix)
	if err != nil {
		return nil, err
	}
	rows = SumBySuffix(rows)

	if err := q.cache.SetRange(ctx, prefix, rows); err != nil {
		pterm.Warning.Printf("range cache write failed: %v\n", err)
	}
	return rows, nil
}

// SumBySuffix merges entries that share a suffix. Stores return unmerged
// parts as separate rows, and no backend guarantees when they collapse, so
// this step is always applied.
func SumBySuffix(rows []models.SuffixCount) []models.SuffixCount {
	totals := make(map[string]uint64, len(rows))
	for _, r := range rows {
		totals[r.Suffix] += r.Count
	}

	out := make([]models.SuffixCount, 0, len(totals))
	for suffix, count := range totals {
		out = append(out, models.SuffixCount{Suffix: suffix, Count: count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Suffix < out[j].Suffix })
	return out
}

// FormatRange renders rows as SUFFIX:COUNT lines joined by CRLF, the format
// range-query clients already parse.
func FormatRange(rows []models.SuffixCount) string {
	var b strings.Builder
	for i, r := range rows {
		if i > 0 {
			b.WriteString("\r\n")
		}
		b.WriteString(r.Suffix)
		b.WriteByte(':')
		b.WriteString(strconv.FormatUint(r.Count, 10))
	}
	return b.String()
}

func (q *QueryService) Stats(ctx context.Context) (models.Stats, error) {
	if s, ok, err := q.cache.GetStats(ctx); err != nil {
		pterm.Warning.Printf("stats cache read failed: %v\n", err)
	} else if ok {
		return s, nil
	}

	s, err := q.store.Stats(ctx)
	if err != nil {
		return models.Stats{}, err
	}
	if err := q.cache.SetStats(ctx, s); err != nil {
		pterm.Warning.Printf("stats cache write failed: %v\n", err)
	}
	return s, nil
}

func (q *QueryService) Ping(ctx context.Context) error {
	return q.store.Ping(ctx)
}
