// Package cursor implements the ordering-gap-tolerant polling loop shared
// by the tag query engine, the all-events query, and persistence_ids.
// ordering is assigned by the database on commit, but a transaction that
// started earlier may commit later than one that started after it, so a
// live reader cannot safely treat "max(ordering) seen so far" as caught
// up — a lower ordering may still be in flight. The safety window trades
// a small amount of staleness for that guarantee.
package cursor

import (
	"context"
	"time"

	"github.com/relaydb/sqljournal/internal/row"
)

// Mode selects when the poll loop stops.
type Mode int

const (
	// ModeCurrent terminates as soon as the cursor catches up to the
	// safety-windowed high watermark.
	ModeCurrent Mode = iota
	// ModeLive keeps polling on RefreshInterval until ctx is cancelled.
	ModeLive
)

// Config parameterizes one poll loop. PageSize bounds rows fetched per
// page, not envelopes emitted. SafetyWindow is subtracted from
// max(ordering) before computing the page's upper bound.
type Config struct {
	PageSize        int
	SafetyWindow    int64
	RefreshInterval time.Duration

	// WakeCh, when non-nil, is selected alongside the refresh timer so a
	// live poll can wake early on an external hint (a NATS commit
	// notification) instead of waiting out a full RefreshInterval. A nil
	// WakeCh is a no-op case in both selects below.
	WakeCh <-chan struct{}
}

// MaxOrderingFunc returns the current max(ordering) across journal_row,
// or 0 if the table is empty.
type MaxOrderingFunc func(ctx context.Context) (int64, error)

// FetchFunc returns up to limit candidate rows with fromOrdering <
// ordering <= toOrdering, ordered by ordering ascending, plus pageMax:
// the highest ordering value the underlying query actually scanned in
// that range (before any caller-side filtering, such as the CSV tag
// engine's false-positive rejection). Poll advances its cursor to
// pageMax, not to the last row returned in rows, so a page that is
// entirely filtered away by the caller still makes progress instead of
// being re-fetched forever. pageMax is 0 when nothing was scanned.
type FetchFunc func(ctx context.Context, fromOrdering, toOrdering int64, limit int) (rows []row.EventRow, pageMax int64, err error)

// EmitFunc is called once per EventRow in ordering order. Implementations
// typically run the row through a Serializer.DeserializeRow and forward
// each resulting envelope to the caller's stream.
type EmitFunc func(ctx context.Context, r row.EventRow) error

// Poll drives one full run of the gap-tolerant polling protocol: compute
// the safety-windowed high watermark, fetch and emit a page at a time,
// and either return (ModeCurrent, once caught up) or keep polling on
// RefreshInterval (ModeLive, until ctx is cancelled).
//
// startOffset is the caller's last consumed ordering (an opaque cursor);
// Poll resumes strictly after it. The returned int64 is the cursor value
// to resume from on a later call — always advanced, even across pages
// that produced zero envelopes, so a run of tag/adapter misses can never
// stall progress.
func Poll(ctx context.Context, mode Mode, cfg Config, startOffset int64, maxFn MaxOrderingFunc, fetchFn FetchFunc, emit EmitFunc) (int64, error) {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 1000
	}

	lastEmitted := startOffset
	var timer *time.Timer
	if mode == ModeLive {
		timer = time.NewTimer(cfg.RefreshInterval)
		defer timer.Stop()
	}

	for {
		maxInDB, err := maxFn(ctx)
		if err != nil {
			return lastEmitted, err
		}
		cutoff := maxInDB - cfg.SafetyWindow

		if cutoff <= lastEmitted {
			if mode == ModeCurrent {
				return lastEmitted, nil
			}
			select {
			case <-ctx.Done():
				return lastEmitted, ctx.Err()
			case <-timer.C:
				timer.Reset(cfg.RefreshInterval)
				continue
			case <-cfg.WakeCh:
				continue
			}
		}

		rows, pageMax, err := fetchFn(ctx, lastEmitted, cutoff, cfg.PageSize)
		if err != nil {
			return lastEmitted, err
		}

		for _, r := range rows {
			if err := emit(ctx, r); err != nil {
				return lastEmitted, err
			}
		}

		if pageMax > lastEmitted {
			lastEmitted = pageMax
		} else if len(rows) == 0 {
			// Nothing at all was scanned in (lastEmitted, cutoff]; there is
			// no point re-issuing the same range next poll, so the cursor
			// advances to cutoff directly.
			lastEmitted = cutoff
		}

		if mode == ModeCurrent {
			if lastEmitted >= cutoff {
				return lastEmitted, nil
			}
			continue
		}
		select {
		case <-ctx.Done():
			return lastEmitted, ctx.Err()
		case <-timer.C:
			timer.Reset(cfg.RefreshInterval)
		case <-cfg.WakeCh:
		default:
			// Still catching up within the same live run: don't wait out
			// a full refresh_interval between pages of backlog.
		}
	}
}
