package annotation

import (
	"context"
	"sort"

	"shotreview/pkg/domain"
)

// persistOp is the backend work of one mutation, captured under the session
// lock and applied after it is released.
type persistOp struct {
	version    uint64
	writeCache bool
	dropCache  bool
	cache      []domain.Screenshot
	saves      []domain.Screenshot
	deletes    []int64
	dropJob    bool
}

// persister serializes backend writes of one session. Whoever finds it idle
// drains the queue; concurrent writers only enqueue. Stale operations, by
// version, are skipped so an older snapshot never overwrites a newer one.
type persister struct {
	pending  []persistOp
	flushing bool

	cacheVersion   uint64
	clearedVersion uint64
	recordMax      uint64
	recordVersions map[int64]uint64
}

// commitLocked bumps the session version and snapshots the cache state plus
// the changed screenshots. Callers hold s.mu.
func (s *Store) commitLocked(changed ...domain.Screenshot) persistOp {
	s.version++
	op := persistOp{version: s.version}
	if s.deps.Cache != nil {
		op.writeCache = true
		op.cache = make([]domain.Screenshot, len(s.shots))
		for i, shot := range s.shots {
			op.cache[i] = shot.Clone()
		}
	}
	if s.deps.Records != nil {
		for _, shot := range changed {
			op.saves = append(op.saves, shot.Clone())
		}
	}
	return op
}

// flush hands op to the persister and, when no other writer is draining,
// applies every pending operation before returning.
func (s *Store) flush(ctx context.Context, op persistOp) {
	s.pmu.Lock()
	s.persist.pending = append(s.persist.pending, op)
	if s.persist.flushing {
		s.pmu.Unlock()
		return
	}
	s.persist.flushing = true
	for len(s.persist.pending) > 0 {
		batch := s.persist.pending
		s.persist.pending = nil
		s.pmu.Unlock()
		s.apply(ctx, batch)
		s.pmu.Lock()
	}
	s.persist.flushing = false
	s.pmu.Unlock()
}

// apply runs outside s.pmu; only the draining writer calls it.
func (s *Store) apply(ctx context.Context, batch []persistOp) {
	p := &s.persist
	sort.SliceStable(batch, func(i, j int) bool { return batch[i].version < batch[j].version })

	if s.deps.Cache != nil {
		var latest *persistOp
		for i := range batch {
			op := &batch[i]
			if (op.writeCache || op.dropCache) && op.version > p.cacheVersion {
				latest = op
			}
		}
		if latest != nil {
			if latest.dropCache {
				_ = s.deps.remote(ctx, "cache", func(ctx context.Context) error {
					return s.deps.Cache.Remove(ctx, sessionCacheKey(s.jobID))
				})
			} else {
				_ = s.deps.remote(ctx, "cache", func(ctx context.Context) error {
					return setSessionCache(ctx, s.deps, s.jobID, latest.cache)
				})
			}
			p.cacheVersion = latest.version
		}
	}

	if s.deps.Records == nil {
		return
	}
	if p.recordVersions == nil {
		p.recordVersions = make(map[int64]uint64)
	}
	for _, op := range batch {
		if op.version <= p.clearedVersion {
			continue
		}
		if op.dropJob && op.version > p.recordMax {
			_ = s.deps.remote(ctx, "records", func(ctx context.Context) error {
				return s.deps.Records.DeleteJob(ctx, s.jobID)
			})
			p.clearedVersion = op.version
			p.recordMax = op.version
			clear(p.recordVersions)
			continue
		}
		// A clear overtaken by newer writes falls back to op.deletes.
		for _, id := range op.deletes {
			if op.version <= p.recordVersions[id] {
				continue
			}
			_ = s.deps.remote(ctx, "records", func(ctx context.Context) error {
				return s.deps.Records.DeleteScreenshot(ctx, s.jobID, id)
			})
			p.recordVersions[id] = op.version
			p.recordMax = max(p.recordMax, op.version)
		}
		for _, shot := range op.saves {
			if op.version <= p.recordVersions[shot.ID] {
				continue
			}
			_ = s.deps.remote(ctx, "records", func(ctx context.Context) error {
				return s.deps.Records.SaveScreenshot(ctx, shot)
			})
			p.recordVersions[shot.ID] = op.version
			p.recordMax = max(p.recordMax, op.version)
		}
	}
}
