package voting

import (
	"encoding/json"
	"time"
)

const (
	// MinVotesPerUser and MaxVotesPerUser bound the per-user monthly quota.
	MinVotesPerUser = 1
	MaxVotesPerUser = 10

	defaultDistributionCurrency = "USD"
)

// VoteRecord is one cast of votes by one user for one project in one period.
// Username and AvatarRef are point-in-time display snapshots taken at cast
// time; they are not refreshed if the user later renames.
type VoteRecord struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Username    string    `json:"username"`
	AvatarRef   string    `json:"avatar"`
	ProjectSlug string    `json:"projectSlug"`
	ProjectName string    `json:"projectName"`
	Weight      int       `json:"voteCount"`
	Period      string    `json:"month"`
	CastAt      time.Time `json:"timestamp"`
}

// VoterStanding is one user's summed contribution to a project within a
// period, kept inside the project aggregate.
type VoterStanding struct {
	UserID    string `json:"odId"`
	Username  string `json:"username"`
	AvatarRef string `json:"odAvatar"`
	Weight    int    `json:"voteCount"`
}

// UnmarshalJSON accepts both the structured voter entry and the bare username
// string written by early documents. Decoding a document is the only place
// voter entries are unmarshalled, so this doubles as the one-time migration
// for legacy state.
func (v *VoterStanding) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var username string
		if err := json.Unmarshal(data, &username); err != nil {
			return err
		}
		*v = VoterStanding{Username: username, Weight: 1}
		return nil
	}

	type standing VoterStanding
	var decoded standing
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	if decoded.Weight < 1 {
		decoded.Weight = 1
	}
	*v = VoterStanding(decoded)
	return nil
}

// ProjectAggregate is the derived tally for one (period, project) pair. It is
// never mutated independently of the vote records; every ledger mutation
// repairs the matching aggregate before the document is persisted.
type ProjectAggregate struct {
	ProjectName string          `json:"projectName"`
	TotalWeight int             `json:"count"`
	Voters      []VoterStanding `json:"voters"`
}

// Settings holds the persisted process-wide voting configuration. It is
// mutated only through the admin operations on Service.
type Settings struct {
	VotingEnabled        bool     `json:"votingEnabled"`
	FrozenPeriod         string   `json:"votingPeriod,omitempty"`
	VotesPerUser         int      `json:"votesPerUser"`
	DisabledProjects     []string `json:"disabledProjects"`
	DistributionAmount   *float64 `json:"distributionAmount"`
	DistributionCurrency string   `json:"distributionCurrency"`
}

// Document is the whole persisted voting state and the unit of durability:
// every mutation reads the full document, applies one logical change, and
// writes the full document back.
type Document struct {
	Votes  []VoteRecord                            `json:"votes"`
	Totals map[string]map[string]*ProjectAggregate `json:"monthlyTotals"`
	Settings
}

// DefaultDocument returns the well-defined empty state used for fresh
// installs and as the fallback when the stored document is unreadable.
func DefaultDocument() *Document {
	return &Document{
		Votes:  []VoteRecord{},
		Totals: map[string]map[string]*ProjectAggregate{},
		Settings: Settings{
			VotingEnabled:        true,
			VotesPerUser:         1,
			DisabledProjects:     []string{},
			DistributionCurrency: defaultDistributionCurrency,
		},
	}
}

// normalize backfills fields that older documents may omit. Decoding happens
// on top of DefaultDocument, so absent booleans keep their defaults; this
// covers values that can round-trip as JSON zero values.
func (d *Document) normalize() {
	if d.Votes == nil {
		d.Votes = []VoteRecord{}
	}
	if d.Totals == nil {
		d.Totals = map[string]map[string]*ProjectAggregate{}
	}
	if d.DisabledProjects == nil {
		d.DisabledProjects = []string{}
	}
	if d.VotesPerUser < MinVotesPerUser {
		d.VotesPerUser = 1
	}
	if d.DistributionCurrency == "" {
		d.DistributionCurrency = defaultDistributionCurrency
	}
}

func (d *Document) projectDisabled(slug string) bool {
	for _, disabled := range d.DisabledProjects {
		if disabled == slug {
			return true
		}
	}
	return false
}

// usedWeight sums the live record weights for a user within a period.
func (d *Document) usedWeight(userID, period string) int {
	used := 0
	for _, record := range d.Votes {
		if record.UserID == userID && record.Period == period {
			used += record.Weight
		}
	}
	return used
}

func (d *Document) remainingVotes(userID, period string) int {
	remaining := d.VotesPerUser - d.usedWeight(userID, period)
	if remaining < 0 {
		return 0
	}
	return remaining
}
