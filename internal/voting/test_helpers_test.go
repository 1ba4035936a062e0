package voting

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

// seqIDProvider issues deterministic identifiers for tests.
type seqIDProvider struct {
	next int
}

func (p *seqIDProvider) NewID() (string, error) {
	p.next++
	return fmt.Sprintf("vote-%d", p.next), nil
}

type testEnv struct {
	t       *testing.T
	service *Service
	store   *FileStore
	now     time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := NewFileStore(filepath.Join(t.TempDir(), "votes.json"), zap.NewNop())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	env := &testEnv{
		t:     t,
		store: store,
		now:   time.Date(2024, time.June, 15, 12, 0, 0, 0, time.UTC),
	}
	service, err := NewService(ServiceConfig{
		Store:      store,
		Clock:      func() time.Time { return env.now },
		IDProvider: &seqIDProvider{},
		Logger:     zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	env.service = service
	return env
}

// seedDocument persists a pre-built document so tests can start from
// migrated or historical state.
func (e *testEnv) seedDocument(doc *Document) {
	e.t.Helper()
	if err := e.store.Save(doc); err != nil {
		e.t.Fatalf("failed to seed document: %v", err)
	}
}

func (e *testEnv) setNow(year int, month time.Month, day int) {
	e.now = time.Date(year, month, day, 12, 0, 0, 0, time.UTC)
}

func (e *testEnv) setQuota(n int) {
	e.t.Helper()
	if err := e.service.SetVotesPerUser(context.Background(), n); err != nil {
		e.t.Fatalf("failed to set quota: %v", err)
	}
}

func (e *testEnv) mustCast(userID, slug string, weight int) CastResult {
	e.t.Helper()
	result, err := e.service.Cast(context.Background(), CastRequest{
		UserID:      userID,
		Username:    userID + "-name",
		AvatarRef:   userID + "-avatar",
		ProjectSlug: slug,
		ProjectName: slug + " project",
		Weight:      weight,
	})
	if err != nil {
		e.t.Fatalf("cast for %s/%s failed: %v", userID, slug, err)
	}
	return result
}

// checkInvariants verifies that every aggregate is exactly the sum of the
// live records it derives from.
func (e *testEnv) checkInvariants() {
	e.t.Helper()
	doc := e.store.Load()

	recordWeight := map[string]map[string]int{}
	userWeight := map[string]map[string]map[string]int{}
	for _, record := range doc.Votes {
		if recordWeight[record.Period] == nil {
			recordWeight[record.Period] = map[string]int{}
			userWeight[record.Period] = map[string]map[string]int{}
		}
		if userWeight[record.Period][record.ProjectSlug] == nil {
			userWeight[record.Period][record.ProjectSlug] = map[string]int{}
		}
		recordWeight[record.Period][record.ProjectSlug] += record.Weight
		userWeight[record.Period][record.ProjectSlug][record.UserID] += record.Weight
	}

	for period, bucket := range doc.Totals {
		for slug, agg := range bucket {
			want := recordWeight[period][slug]
			if agg.TotalWeight != want {
				e.t.Fatalf("aggregate %s/%s total %d does not match record sum %d", period, slug, agg.TotalWeight, want)
			}
			voterSum := 0
			seen := map[string]bool{}
			for _, voter := range agg.Voters {
				if seen[voter.UserID] {
					e.t.Fatalf("aggregate %s/%s has duplicate voter %s", period, slug, voter.UserID)
				}
				seen[voter.UserID] = true
				voterSum += voter.Weight
				if got := userWeight[period][slug][voter.UserID]; got != voter.Weight {
					e.t.Fatalf("voter %s weight %d in %s/%s does not match record sum %d", voter.UserID, voter.Weight, period, slug, got)
				}
			}
			if voterSum != agg.TotalWeight {
				e.t.Fatalf("aggregate %s/%s voter sum %d does not match total %d", period, slug, voterSum, agg.TotalWeight)
			}
		}
	}

	// No aggregate may exist without live records behind it.
	for period, bucket := range doc.Totals {
		for slug := range bucket {
			if recordWeight[period][slug] == 0 {
				e.t.Fatalf("aggregate %s/%s survives with no live records", period, slug)
			}
		}
	}
}
