package voting

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "votes.json"), zap.NewNop())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	doc := store.Load()
	if !doc.VotingEnabled {
		t.Fatalf("voting must default to enabled")
	}
	if doc.VotesPerUser != 1 {
		t.Fatalf("expected default quota 1, got %d", doc.VotesPerUser)
	}
	if len(doc.Votes) != 0 || len(doc.Totals) != 0 {
		t.Fatalf("fresh document must be empty")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "votes.json"), zap.NewNop())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	doc := DefaultDocument()
	doc.VotesPerUser = 3
	doc.Votes = append(doc.Votes, VoteRecord{
		ID:          "vote-1",
		UserID:      "u1",
		Username:    "alice",
		ProjectSlug: "alpha",
		ProjectName: "Alpha",
		Weight:      2,
		Period:      "2024-06",
		CastAt:      time.Date(2024, time.June, 15, 12, 0, 0, 0, time.UTC),
	})
	if err := store.Save(doc); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded := store.Load()
	if loaded.VotesPerUser != 3 {
		t.Fatalf("expected quota 3, got %d", loaded.VotesPerUser)
	}
	if len(loaded.Votes) != 1 || loaded.Votes[0].ID != "vote-1" || loaded.Votes[0].Weight != 2 {
		t.Fatalf("unexpected votes after round trip: %+v", loaded.Votes)
	}
	if !loaded.Votes[0].CastAt.Equal(doc.Votes[0].CastAt) {
		t.Fatalf("cast time not preserved")
	}
}

func TestLoadCorruptFileFallsBackAndWarns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "votes.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("failed to seed corrupt file: %v", err)
	}

	core, logs := observer.New(zap.WarnLevel)
	store, err := NewFileStore(path, zap.New(core))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	doc := store.Load()
	if !doc.VotingEnabled || len(doc.Votes) != 0 {
		t.Fatalf("corrupt file must yield the default document")
	}
	if logs.FilterMessage("vote document corrupt, starting from defaults").Len() != 1 {
		t.Fatalf("expected a corruption warning, got %v", logs.All())
	}
}

func TestLoadVotingEnabledDefaulting(t *testing.T) {
	dir := t.TempDir()

	// Absent flag keeps the enabled default.
	absent := filepath.Join(dir, "absent.json")
	if err := os.WriteFile(absent, []byte(`{"votes": [], "monthlyTotals": {}}`), 0o644); err != nil {
		t.Fatalf("failed to seed file: %v", err)
	}
	store, err := NewFileStore(absent, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if !store.Load().VotingEnabled {
		t.Fatalf("absent votingEnabled must default to true")
	}

	// An explicit false survives the defaulting.
	explicit := filepath.Join(dir, "explicit.json")
	if err := os.WriteFile(explicit, []byte(`{"votes": [], "monthlyTotals": {}, "votingEnabled": false}`), 0o644); err != nil {
		t.Fatalf("failed to seed file: %v", err)
	}
	store, err = NewFileStore(explicit, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if store.Load().VotingEnabled {
		t.Fatalf("explicit votingEnabled=false must be honored")
	}
}

func TestLoadMigratesLegacyVoterStrings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "votes.json")
	legacy := `{
		"votes": [],
		"monthlyTotals": {
			"2024-05": {
				"alpha": {"projectName": "Alpha", "count": 2, "voters": ["alice", "bob"]}
			}
		}
	}`
	if err := os.WriteFile(path, []byte(legacy), 0o644); err != nil {
		t.Fatalf("failed to seed file: %v", err)
	}
	store, err := NewFileStore(path, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	agg := store.Load().Totals["2024-05"]["alpha"]
	if agg == nil || len(agg.Voters) != 2 {
		t.Fatalf("legacy aggregate missing: %+v", agg)
	}
	for i, name := range []string{"alice", "bob"} {
		voter := agg.Voters[i]
		if voter.Username != name || voter.Weight != 1 || voter.UserID != "" {
			t.Fatalf("legacy voter %d not migrated: %+v", i, voter)
		}
	}
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(filepath.Join(dir, "votes.json"), zap.NewNop())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if err := store.Save(DefaultDocument()); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to read dir: %v", err)
	}
	for _, entry := range entries {
		if strings.Contains(entry.Name(), ".tmp-") {
			t.Fatalf("temp file left behind: %s", entry.Name())
		}
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the document, found %d entries", len(entries))
	}
}

func TestNewFileStoreRequiresPath(t *testing.T) {
	if _, err := NewFileStore("", zap.NewNop()); err == nil {
		t.Fatalf("empty path must be rejected")
	}
}
