package voting

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	errMissingStore      = errors.New("voting: file store is required")
	errMissingIDProvider = errors.New("voting: id provider is required")
)

// ServiceConfig bundles the collaborators a Service needs.
type ServiceConfig struct {
	Store      *FileStore
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service is the vote ledger and its derived aggregates. Every operation is a
// full read-modify-write of the persisted document, so a single mutex
// serializes all of them; two concurrent casts would otherwise silently lose
// one update. Nothing inside the critical section performs network I/O.
type Service struct {
	store  *FileStore
	clock  func() time.Time
	ids    IDProvider
	logger *zap.Logger

	mu sync.Mutex
}

// NewService constructs a Service with sane defaults.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	if cfg.IDProvider == nil {
		return nil, errMissingIDProvider
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:  cfg.Store,
		clock:  clock,
		ids:    cfg.IDProvider,
		logger: logger,
	}, nil
}

// periodKey formats a point in time as the calendar-month period key.
func periodKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// CurrentPeriod returns the calendar-month key for "now".
func (s *Service) CurrentPeriod() string {
	return periodKey(s.clock())
}

// activePeriod resolves which period mutations and quota checks apply to:
// the frozen period while voting is disabled, the calendar month otherwise.
func (s *Service) activePeriod(doc *Document) string {
	if !doc.VotingEnabled && doc.FrozenPeriod != "" {
		return doc.FrozenPeriod
	}
	return s.CurrentPeriod()
}

// ActivePeriod resolves the active period against the persisted settings.
func (s *Service) ActivePeriod() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activePeriod(s.store.Load())
}

// CastRequest carries one vote cast. Username and AvatarRef are display
// snapshots supplied by the access boundary.
type CastRequest struct {
	UserID      string
	Username    string
	AvatarRef   string
	ProjectSlug string
	ProjectName string
	Weight      int
}

// CastResult reports a successful cast.
type CastResult struct {
	Record         VoteRecord
	RemainingVotes int
}

// Cast appends a vote record for the active period and folds it into the
// matching project aggregate. Preconditions are checked in order: disabled
// project, weight, quota. A failed cast leaves the document untouched.
func (s *Service) Cast(ctx context.Context, req CastRequest) (CastResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.store.Load()
	period := s.activePeriod(doc)

	if doc.projectDisabled(req.ProjectSlug) {
		return CastResult{}, errProjectDisabled()
	}
	if req.Weight < 1 {
		return CastResult{}, errInvalidWeight()
	}
	remaining := doc.remainingVotes(req.UserID, period)
	if req.Weight > remaining {
		return CastResult{}, errQuotaExceeded(remaining)
	}

	id, err := s.ids.NewID()
	if err != nil {
		return CastResult{}, fmt.Errorf("generate vote id: %w", err)
	}

	record := VoteRecord{
		ID:          id,
		UserID:      req.UserID,
		Username:    req.Username,
		AvatarRef:   req.AvatarRef,
		ProjectSlug: req.ProjectSlug,
		ProjectName: req.ProjectName,
		Weight:      req.Weight,
		Period:      period,
		CastAt:      s.clock().UTC(),
	}
	doc.Votes = append(doc.Votes, record)
	addToAggregate(doc, record)

	if err := s.store.Save(doc); err != nil {
		return CastResult{}, err
	}

	s.logger.Info("vote cast",
		zap.String("user_id", req.UserID),
		zap.String("project", req.ProjectSlug),
		zap.Int("weight", req.Weight),
		zap.String("period", period))

	return CastResult{
		Record:         record,
		RemainingVotes: doc.remainingVotes(req.UserID, period),
	}, nil
}

// RetractResult reports a successful retraction.
type RetractResult struct {
	RemovedRecords []VoteRecord
	RemainingVotes int
}

// Retract removes the user's active-period records, scoped to one project
// when projectSlug is non-empty, and repairs the affected aggregates. The
// document is persisted once after all removals.
func (s *Service) Retract(ctx context.Context, userID, projectSlug string) (RetractResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.store.Load()
	period := s.activePeriod(doc)

	kept := doc.Votes[:0]
	var removed []VoteRecord
	for _, record := range doc.Votes {
		matches := record.UserID == userID && record.Period == period
		if matches && projectSlug != "" {
			matches = record.ProjectSlug == projectSlug
		}
		if matches {
			removed = append(removed, record)
		} else {
			kept = append(kept, record)
		}
	}
	if len(removed) == 0 {
		return RetractResult{}, errNothingToRemove()
	}
	doc.Votes = kept

	for _, record := range removed {
		removeFromAggregate(doc, record)
	}

	if err := s.store.Save(doc); err != nil {
		return RetractResult{}, err
	}

	s.logger.Info("vote retracted",
		zap.String("user_id", userID),
		zap.String("project", projectSlug),
		zap.Int("records", len(removed)),
		zap.String("period", period))

	return RetractResult{
		RemovedRecords: removed,
		RemainingVotes: doc.remainingVotes(userID, period),
	}, nil
}

// AdminRemove deletes a single record by id regardless of owner and repairs
// the aggregate for the record's own stored period, which may not be the
// active one.
func (s *Service) AdminRemove(ctx context.Context, voteID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.store.Load()

	index := -1
	for i, record := range doc.Votes {
		if record.ID == voteID {
			index = i
			break
		}
	}
	if index == -1 {
		return errVoteNotFound()
	}

	record := doc.Votes[index]
	doc.Votes = append(doc.Votes[:index], doc.Votes[index+1:]...)
	removeFromAggregate(doc, record)

	if err := s.store.Save(doc); err != nil {
		return err
	}

	s.logger.Info("vote removed by admin",
		zap.String("vote_id", voteID),
		zap.String("user_id", record.UserID),
		zap.String("period", record.Period))
	return nil
}

// ClearPeriod drops every record belonging to the given period along with its
// aggregate bucket. Clearing a period with no data is a no-op.
func (s *Service) ClearPeriod(ctx context.Context, period string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clearPeriodLocked(period)
}

// ClearCurrent clears whichever calendar month is current, independent of any
// frozen period.
func (s *Service) ClearCurrent(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clearPeriodLocked(s.CurrentPeriod())
}

func (s *Service) clearPeriodLocked(period string) error {
	doc := s.store.Load()

	kept := doc.Votes[:0]
	for _, record := range doc.Votes {
		if record.Period != period {
			kept = append(kept, record)
		}
	}
	doc.Votes = kept
	delete(doc.Totals, period)

	if err := s.store.Save(doc); err != nil {
		return err
	}
	s.logger.Info("period cleared", zap.String("period", period))
	return nil
}

// addToAggregate folds a freshly appended record into its period's aggregate,
// creating the bucket lazily and upserting the voter's standing.
func addToAggregate(doc *Document, record VoteRecord) {
	bucket := doc.Totals[record.Period]
	if bucket == nil {
		bucket = map[string]*ProjectAggregate{}
		doc.Totals[record.Period] = bucket
	}
	agg := bucket[record.ProjectSlug]
	if agg == nil {
		agg = &ProjectAggregate{ProjectName: record.ProjectName}
		bucket[record.ProjectSlug] = agg
	}
	agg.ProjectName = record.ProjectName
	agg.TotalWeight += record.Weight

	if i := voterIndex(agg, record.UserID); i >= 0 {
		agg.Voters[i].Weight += record.Weight
	} else {
		agg.Voters = append(agg.Voters, VoterStanding{
			UserID:    record.UserID,
			Username:  record.Username,
			AvatarRef: record.AvatarRef,
			Weight:    record.Weight,
		})
	}
}

// removeFromAggregate reverses a record's contribution to its period's
// aggregate, dropping the voter entry at zero weight and the whole bucket at
// zero total.
func removeFromAggregate(doc *Document, record VoteRecord) {
	bucket := doc.Totals[record.Period]
	if bucket == nil {
		return
	}
	agg := bucket[record.ProjectSlug]
	if agg == nil {
		return
	}

	agg.TotalWeight -= record.Weight
	if i := legacyVoterIndex(agg, record); i >= 0 {
		if agg.Voters[i].Weight > record.Weight {
			agg.Voters[i].Weight -= record.Weight
		} else {
			agg.Voters = append(agg.Voters[:i], agg.Voters[i+1:]...)
		}
	}
	if agg.TotalWeight <= 0 {
		delete(bucket, record.ProjectSlug)
	}
}

// voterIndex locates a voter's standing by user id alone. Casts merge only
// through this strict match: an entry migrated from a legacy document carries
// no user id, and a new cast must never fold into an entry it cannot prove
// belongs to the same user.
func voterIndex(agg *ProjectAggregate, userID string) int {
	for i, voter := range agg.Voters {
		if voter.UserID != "" && voter.UserID == userID {
			return i
		}
	}
	return -1
}

// legacyVoterIndex additionally matches migrated entries by username.
// Removal uses it so retracting a pre-migration record still repairs the
// standing its weight lives in.
func legacyVoterIndex(agg *ProjectAggregate, record VoteRecord) int {
	for i, voter := range agg.Voters {
		if voter.UserID != "" {
			if voter.UserID == record.UserID {
				return i
			}
			continue
		}
		if voter.Username == record.Username {
			return i
		}
	}
	return -1
}

// RecordsFor returns the user's live records for a period, ordered by cast
// time.
func (s *Service) RecordsFor(userID, period string) []VoteRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.store.Load()
	records := make([]VoteRecord, 0)
	for _, record := range doc.Votes {
		if record.UserID == userID && record.Period == period {
			records = append(records, record)
		}
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CastAt.Before(records[j].CastAt)
	})
	return records
}

// PeriodRecords returns every live record for the given period, ordered by
// cast time. Used by the admin vote listing.
func (s *Service) PeriodRecords(period string) []VoteRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.store.Load()
	records := make([]VoteRecord, 0)
	for _, record := range doc.Votes {
		if record.Period == period {
			records = append(records, record)
		}
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CastAt.Before(records[j].CastAt)
	})
	return records
}

// ResultsSnapshot is the public tally for the active period.
type ResultsSnapshot struct {
	Period        string
	VotingEnabled bool
	Results       map[string]*ProjectAggregate
}

// Results returns the active period's aggregates. The map may be empty but is
// never nil.
func (s *Service) Results() ResultsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.store.Load()
	period := s.activePeriod(doc)
	results := doc.Totals[period]
	if results == nil {
		results = map[string]*ProjectAggregate{}
	}
	return ResultsSnapshot{
		Period:        period,
		VotingEnabled: doc.VotingEnabled,
		Results:       results,
	}
}

// AllResults returns the aggregates for every period on record.
func (s *Service) AllResults() map[string]map[string]*ProjectAggregate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Load().Totals
}

// Used reports the total weight the user has cast in the active period.
func (s *Service) Used(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.store.Load()
	return doc.usedWeight(userID, s.activePeriod(doc))
}

// Remaining reports the user's unspent quota for the active period.
func (s *Service) Remaining(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.store.Load()
	return doc.remainingVotes(userID, s.activePeriod(doc))
}

// SettingsSnapshot is the read-only view of the persisted settings plus the
// resolved active period.
type SettingsSnapshot struct {
	VotingEnabled        bool
	VotingPeriod         string
	VotesPerUser         int
	DisabledProjects     []string
	DistributionAmount   *float64
	DistributionCurrency string
}

// SettingsSnapshot returns the current settings and the effective period.
func (s *Service) SettingsSnapshot() SettingsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.store.Load()
	return SettingsSnapshot{
		VotingEnabled:        doc.VotingEnabled,
		VotingPeriod:         s.activePeriod(doc),
		VotesPerUser:         doc.VotesPerUser,
		DisabledProjects:     doc.DisabledProjects,
		DistributionAmount:   doc.DistributionAmount,
		DistributionCurrency: doc.DistributionCurrency,
	}
}

// UserStatus is the per-user quota view for the active period.
type UserStatus struct {
	VotesUsed      int
	RemainingVotes int
	Records        []VoteRecord
}

// UserStatus reports the user's quota consumption and live records for the
// active period in one consistent read.
func (s *Service) UserStatus(userID string) UserStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.store.Load()
	period := s.activePeriod(doc)

	records := make([]VoteRecord, 0)
	for _, record := range doc.Votes {
		if record.UserID == userID && record.Period == period {
			records = append(records, record)
		}
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CastAt.Before(records[j].CastAt)
	})

	return UserStatus{
		VotesUsed:      doc.usedWeight(userID, period),
		RemainingVotes: doc.remainingVotes(userID, period),
		Records:        records,
	}
}
