package partition

import (
	"context"
	"math/rand/v2"
	"path"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/impresso/consolidator/internal/storage"
)

// Order controls how planned partitions are sequenced. Random is the
// default: independent workers racing on the same list naturally diverge
// without any coordination.
type Order string

const (
	OrderRandom        Order = "random"
	OrderChronological Order = "chrono"
	OrderReverse       Order = "reverse"
)

// ParseOrder validates an ordering name.
func ParseOrder(s string) (Order, error) {
	switch Order(s) {
	case OrderRandom, OrderChronological, OrderReverse:
		return Order(s), nil
	case "":
		return OrderRandom, nil
	}
	return "", eris.Errorf("partition: unknown order %q (want random, chrono or reverse)", s)
}

// Filter selects partitions to plan. Pattern is a glob over
// "provider/newspaper" (e.g. "BL/*"); the explicit Provider/Newspaper pair
// takes precedence and matches exactly those across all available years.
// An empty filter selects everything.
type Filter struct {
	Pattern   string
	Provider  string
	Newspaper string
}

func (f Filter) matches(p Partition) (bool, error) {
	if f.Provider != "" || f.Newspaper != "" {
		if f.Provider != "" && p.Provider != f.Provider {
			return false, nil
		}
		if f.Newspaper != "" && p.Newspaper != f.Newspaper {
			return false, nil
		}
		return true, nil
	}
	if f.Pattern == "" {
		return true, nil
	}
	ok, err := path.Match(f.Pattern, p.Provider+"/"+p.Newspaper)
	if err != nil {
		return false, eris.Wrapf(err, "partition: bad filter pattern %q", f.Pattern)
	}
	return ok, nil
}

// Planner enumerates the partitions available in the input store.
type Planner struct {
	store storage.BlobStore
}

// NewPlanner returns a planner reading listings from the given store.
func NewPlanner(store storage.BlobStore) *Planner {
	return &Planner{store: store}
}

// Plan lists the input store, derives the available partitions from issue
// keys, applies the filter and returns them in the requested order.
func (pl *Planner) Plan(ctx context.Context, f Filter, order Order) ([]Partition, error) {
	keys, err := pl.store.List(ctx, "")
	if err != nil {
		return nil, eris.Wrap(err, "partition: list inputs")
	}

	var parts []Partition
	for _, key := range keys {
		p, ok, err := FromIssuesKey(key)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		match, err := f.matches(p)
		if err != nil {
			return nil, err
		}
		if match {
			parts = append(parts, p)
		}
	}

	sortPartitions(parts, order)
	zap.L().Debug("planned partitions",
		zap.Int("count", len(parts)),
		zap.String("order", string(order)),
	)
	return parts, nil
}

func sortPartitions(parts []Partition, order Order) {
	// Chronological baseline first so reverse and random start deterministic.
	sort.Slice(parts, func(i, j int) bool {
		a, b := parts[i], parts[j]
		if a.Provider != b.Provider {
			return a.Provider < b.Provider
		}
		if a.Newspaper != b.Newspaper {
			return a.Newspaper < b.Newspaper
		}
		return a.Year < b.Year
	})

	switch order {
	case OrderReverse:
		for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
			parts[i], parts[j] = parts[j], parts[i]
		}
	case OrderRandom:
		rand.Shuffle(len(parts), func(i, j int) {
			parts[i], parts[j] = parts[j], parts[i]
		})
	}
}
