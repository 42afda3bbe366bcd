// Package domain holds the plain value types shared by the sync engine:
// profiles, mappings, Plex items, AniList list entries, plans, history
// events, backups and pins. None of these types touch I/O.
package domain

import "time"

// SyncMode is one of the triggers a Profile can enable.
type SyncMode string

const (
	SyncModePeriodic SyncMode = "periodic"
	SyncModePoll     SyncMode = "poll"
	SyncModeWebhook  SyncMode = "webhook"
)

// Profile is a named (Plex user, AniList user) pair and its configuration.
// Immutable for the lifetime of a run; changing it requires a restart.
type Profile struct {
	Name string

	PlexURL          string
	PlexToken        string
	PlexUser         string // optional home user name, checked by plexclient's ResolveHomeUser
	PlexSections     []string
	PlexClientID     string
	PlexOnlineMeta   bool

	AniListToken string

	SyncModes           map[SyncMode]bool
	ScanIntervalSeconds  int // -1 disables periodic
	PollIntervalSeconds  int
	FullScan             bool
	DestructiveSync      bool
	DryRun               bool
	BatchRequests        bool
	ExcludedSyncFields   map[string]bool
	FuzzyThreshold       int // 0-100

	WebhookSecret string
}

func (p Profile) HasMode(m SyncMode) bool { return p.SyncModes[m] }

// Mapping links one AniList anime entry to external identifiers and,
// for shows, per-season episode-range tables.
type Mapping struct {
	AniListID int

	AniDBID       *int
	TVDBID        *int
	TMDBMovieIDs  []int
	TMDBShowIDs   []int
	IMDBIDs       []string
	MALIDs        []int

	// TVDBSeasonRanges/TMDBSeasonRanges map a season key (e.g. "s1", "s0"
	// for specials) to an episode-range expression string.
	TVDBSeasonRanges map[string]string
	TMDBSeasonRanges map[string]string

	Sources []string
	Custom  bool
	Notes   string

	Title string
	Year  int
}

// ItemType is the granularity of a resolvable Plex item.
type ItemType string

const (
	ItemMovie   ItemType = "movie"
	ItemShow    ItemType = "show"
	ItemSeason  ItemType = "season"
	ItemEpisode ItemType = "episode"
)

// Guid is a single external identifier attached to a Plex item, e.g.
// "tvdb://81797" or "tmdb://1396".
type Guid struct {
	Provider string // tvdb, tmdb, imdb, anidb, mal, plex
	ID       string
}

// PlexItem is a resolved unit of work handed from the Plex client to the
// resolver/reconciler.
type PlexItem struct {
	SectionKey      string
	RatingKey       string
	ParentRatingKey string
	Guid            string
	Guids           []Guid
	Type            ItemType

	Title string
	Year  int

	SeasonIndex int // only meaningful for Type == ItemSeason/ItemEpisode
	EpisodeIndex int // only meaningful for Type == ItemEpisode

	AddedAt     time.Time
	UpdatedAt   time.Time
	LastViewedAt *time.Time

	UserRating *float64 // 0-10, Plex scale
	ViewCount  int
	ViewOffsetMs int64
	DurationMs   int64

	InWatchlist        bool
	InContinueWatching bool

	ReviewText string

	Children []PlexItem // populated for show/season fetches
}

// AniListStatus is the AniList list-entry status enum.
type AniListStatus string

const (
	StatusCurrent   AniListStatus = "CURRENT"
	StatusPlanning  AniListStatus = "PLANNING"
	StatusCompleted AniListStatus = "COMPLETED"
	StatusDropped   AniListStatus = "DROPPED"
	StatusPaused    AniListStatus = "PAUSED"
	StatusRepeating AniListStatus = "REPEATING"
)

// AniListListEntry is the AniList-side list entry for one media ID.
// Pointer fields distinguish "absent"/null from the zero value.
type AniListListEntry struct {
	MediaID int

	Status   AniListStatus
	Progress int
	Repeat   int
	Score    *float64
	Notes    *string

	StartedAt   *time.Time
	CompletedAt *time.Time
}

// Clone returns a deep copy so callers can mutate freely while comparing
// against the original (used heavily by the reconciler's diff step).
func (e AniListListEntry) Clone() AniListListEntry {
	out := e
	if e.Score != nil {
		s := *e.Score
		out.Score = &s
	}
	if e.Notes != nil {
		n := *e.Notes
		out.Notes = &n
	}
	if e.StartedAt != nil {
		t := *e.StartedAt
		out.StartedAt = &t
	}
	if e.CompletedAt != nil {
		t := *e.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

// PlanKind is the action a PlanOp represents.
type PlanKind string

const (
	PlanCreate PlanKind = "create"
	PlanUpdate PlanKind = "update"
	PlanDelete PlanKind = "delete"
	PlanNoop   PlanKind = "noop"
)

// PlanOp is a pure description of a pending AniList mutation for one
// media ID, computed by the reconciler and applied by the AniList client.
type PlanOp struct {
	MediaID int
	Before  *AniListListEntry
	After   *AniListListEntry
	Kind    PlanKind

	PinsApplied []string
	ReasonTags  []string
}

// Outcome is the terminal state recorded for a HistoryEvent.
type Outcome string

const (
	OutcomeSynced   Outcome = "synced"
	OutcomeFailed   Outcome = "failed"
	OutcomeNotFound Outcome = "not_found"
	OutcomeDeleted  Outcome = "deleted"
	OutcomeSkipped  Outcome = "skipped"
	OutcomePending  Outcome = "pending"
)

// HistoryEvent is one append-only record of a sync decision.
type HistoryEvent struct {
	ID      int64
	Profile string

	Timestamp time.Time

	PlexRatingKey      string
	PlexChildRatingKey string
	PlexGuid           string
	PlexType           ItemType

	AniListID *int

	Outcome      Outcome
	BeforeState  *AniListListEntry
	AfterState   *AniListListEntry
	ErrorMessage string

	Undone          bool
	UndoesEventID   *int64 // set on the counter-event an undo appends
}

// Backup is the in-memory representation of a full-list snapshot; the
// on-disk form is the JSON document internal/backup writes and reads.
type Backup struct {
	Profile   string
	CreatedAt time.Time
	User      string
	Version   string
	Entries   []AniListListEntry
}

// RestoreSummary reports the per-entry outcome of a backup restore:
// Processed counts every snapshot entry and deletion attempted,
// Restored counts those that actually wrote or deleted successfully,
// and Errors carries one message per entry that failed without
// aborting the rest of the restore.
type RestoreSummary struct {
	Processed int
	Restored  int
	Errors    []string
}

// PinRecord marks a field the engine must never overwrite for a given
// (profile, media) pair.
type PinRecord struct {
	Profile   string
	AniListID int
	Fields    map[string]bool
	Note      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// EntryFields enumerates the AniListListEntry fields the policy/pin/
// exclusion machinery can name.
const (
	FieldStatus      = "status"
	FieldProgress    = "progress"
	FieldRepeat      = "repeat"
	FieldScore       = "score"
	FieldNotes       = "notes"
	FieldStartedAt   = "started_at"
	FieldCompletedAt = "completed_at"
)
