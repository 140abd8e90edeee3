// Package scheduler drives every schedulable component of a machine on its
// own goroutine, ticking it at its declared frequency until the caller's
// context is cancelled.
package scheduler

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/lambdadelta-communism/multiemu/internal/component"
)

// Run starts one goroutine per schedulable component in store and blocks
// until ctx is cancelled, at which point every goroutine has exited.
//
// Two schedulables sharing the same frequency have no ordering guarantee
// relative to each other: each runs on an independent goroutine and an
// independent ticker, so which one observes a given wall-clock tick first
// is unspecified. Callers that need strict ordering between components must
// enforce it themselves, e.g. by combining them into a single schedulable.
func Run(ctx context.Context, store *component.Store) {
	schedulables := store.Schedulables()
	var wg sync.WaitGroup
	wg.Add(len(schedulables))
	for _, rec := range schedulables {
		rec := rec
		go func() {
			defer wg.Done()
			runOne(ctx, rec)
		}()
	}
	wg.Wait()
}

func runOne(ctx context.Context, rec component.Record) {
	freq := rec.Schedulable.Frequency()
	periodNs := ratPeriodNs(&freq)
	if periodNs == 0 {
		return
	}

	ticker := time.NewTicker(time.Duration(periodNs))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rec.Schedulable.Run(periodNs)
		}
	}
}

// ratPeriodNs converts a Hz frequency expressed as an exact rational into a
// nanosecond tick period, rounding down: period = 1e9 * Denom(hz) /
// Num(hz). A zero or negative frequency yields 0, meaning "never tick".
func ratPeriodNs(hz *big.Rat) uint64 {
	if hz.Sign() <= 0 {
		return 0
	}
	period := new(big.Rat).SetFrac(hz.Denom(), hz.Num())
	ns := new(big.Rat).Mul(period, big.NewRat(1_000_000_000, 1))
	quotient := new(big.Int).Quo(ns.Num(), ns.Denom())
	return quotient.Uint64()
}
