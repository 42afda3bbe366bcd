// Package reconcile derives the observed AniList-side state from a set
// of Plex items mapped to one media ID, applies the profile's
// progressive/destructive policy against the current AniList entry, and
// emits a PlanOp describing what (if anything) should change.
package reconcile

import (
	"time"

	"plexanibridge/internal/domain"
)

// Observed is the state derived purely from Plex, before any policy or
// exclusion/pin filtering is applied.
type Observed struct {
	Progress    int
	Status      domain.AniListStatus
	Score       *float64
	Notes       *string
	StartedAt   *time.Time
	CompletedAt *time.Time
	Repeat      int

	// present is false when no entry is desired at all (progress=0,
	// not in watchlist, not in continue-watching); ApplyPolicy then
	// leaves the AniList side untouched, or deletes it under destructive
	// sync.
	present bool
}

// DeriveObserved derives the observed AniList state for one mapped
// range: items is every PlexItem (episodes, or the single movie item)
// covered by range.
// episodeCount is the AniList media's known episode count, or 0 if
// unknown. scoreScale is the AniList scoring system's upper bound (10,
// 100, or 5 for POINT_5, etc); Plex ratings are 0-10.
func DeriveObserved(items []domain.PlexItem, episodeCount int, scoreScale float64) Observed {
	var (
		viewed        int
		maxViewCount  int
		inWatchlist   bool
		inContinuing  bool
		started, completed *time.Time
		bestRating    *float64
		reviewText    string
	)

	for _, it := range items {
		if isViewed(it) {
			viewed++
		}
		if it.ViewCount > maxViewCount {
			maxViewCount = it.ViewCount
		}
		if it.InWatchlist {
			inWatchlist = true
		}
		if it.InContinueWatching {
			inContinuing = true
		}
		if it.LastViewedAt != nil {
			if started == nil || it.LastViewedAt.Before(*started) {
				started = it.LastViewedAt
			}
			if completed == nil || it.LastViewedAt.After(*completed) {
				completed = it.LastViewedAt
			}
		}
		if it.UserRating != nil && (bestRating == nil || *it.UserRating > *bestRating) {
			bestRating = it.UserRating
		}
		if it.ReviewText != "" {
			reviewText = it.ReviewText
		}
	}

	isMovie := len(items) == 1 && items[0].Type == domain.ItemMovie
	progress := viewed
	if isMovie {
		if viewed > 0 {
			progress = 1
		} else {
			progress = 0
		}
	}
	if episodeCount > 0 && progress > episodeCount {
		progress = episodeCount
	}

	total := episodeCount
	if total == 0 {
		total = len(items)
	}

	o := Observed{
		Progress:    progress,
		StartedAt:   started,
		CompletedAt: completed,
	}
	if bestRating != nil {
		scaled := (*bestRating / 10) * scoreScale
		o.Score = &scaled
	}
	if reviewText != "" {
		o.Notes = &reviewText
	}

	denom := total
	if isMovie {
		denom = 1
	}

	switch {
	case denom > 0 && progress >= denom:
		o.Status = domain.StatusCompleted
		o.present = true
		if maxViewCount > denom {
			o.Repeat = maxViewCount - denom
			if maxViewCount > 1 && progress >= denom {
				o.Status = domain.StatusRepeating
			}
		}
	case progress > 0:
		o.Status = domain.StatusCurrent
		o.present = true
	case inWatchlist:
		o.Status = domain.StatusPlanning
		o.present = true
	case inContinuing:
		o.Status = domain.StatusCurrent
		o.present = true
	default:
		o.present = false
	}

	return o
}

func isViewed(it domain.PlexItem) bool {
	if it.ViewCount > 0 {
		return true
	}
	if it.DurationMs <= 0 {
		return false
	}
	// Plex marks an item "viewed" at ~90% watched even if ViewCount
	// wasn't bumped yet (in-progress continue-watching entries).
	return it.ViewOffsetMs*100/it.DurationMs >= 90
}

// ApplyPolicy produces the target AniListListEntry from observed,
// current (possibly nil), and the profile's policy settings, after
// exclusions and pins are removed.
func ApplyPolicy(mediaID int, observed Observed, current *domain.AniListListEntry, profile domain.Profile, pinned map[string]bool) *domain.AniListListEntry {
	if !observed.present && current == nil {
		return nil
	}

	if !observed.present {
		if !profile.DestructiveSync {
			return current // nothing desired; leave current untouched, unmapped
		}
		return nil // destructive + item removed from library entirely → delete
	}

	target := domain.AniListListEntry{MediaID: mediaID}
	if current != nil {
		target = current.Clone()
	}

	if profile.DestructiveSync {
		applyDestructive(&target, observed, current)
	} else {
		applyProgressive(&target, observed, current)
	}

	removeFields(&target, profile.ExcludedSyncFields, current)
	removeFields(&target, pinned, current)

	return &target
}

func applyProgressive(target *domain.AniListListEntry, observed Observed, current *domain.AniListListEntry) {
	if current == nil {
		*target = domain.AniListListEntry{
			MediaID:     target.MediaID,
			Status:      observed.Status,
			Progress:    observed.Progress,
			Repeat:      observed.Repeat,
			Score:       observed.Score,
			Notes:       observed.Notes,
			StartedAt:   observed.StartedAt,
			CompletedAt: observed.CompletedAt,
		}
		return
	}

	if observed.Progress > target.Progress {
		target.Progress = observed.Progress
	}
	if observed.Repeat > target.Repeat {
		target.Repeat = observed.Repeat
	}
	if observed.CompletedAt != nil && (target.CompletedAt == nil || observed.CompletedAt.After(*target.CompletedAt)) {
		target.CompletedAt = observed.CompletedAt
	}
	if observed.StartedAt != nil && (target.StartedAt == nil || observed.StartedAt.Before(*target.StartedAt)) {
		target.StartedAt = observed.StartedAt
	}
	if target.Score == nil && observed.Score != nil {
		target.Score = observed.Score
	}
	if observed.Notes != nil && target.Notes == nil {
		target.Notes = observed.Notes
	}
	if !statusIsSticky(target.Status) || statusRank(observed.Status) > statusRank(target.Status) {
		target.Status = observed.Status
	}
}

func applyDestructive(target *domain.AniListListEntry, observed Observed, current *domain.AniListListEntry) {
	if current == nil {
		*target = domain.AniListListEntry{
			MediaID:     target.MediaID,
			Status:      observed.Status,
			Progress:    observed.Progress,
			Repeat:      observed.Repeat,
			Score:       observed.Score,
			Notes:       observed.Notes,
			StartedAt:   observed.StartedAt,
			CompletedAt: observed.CompletedAt,
		}
		return
	}

	target.Status = observed.Status
	if observed.Progress != 0 || target.Progress == 0 {
		target.Progress = observed.Progress
	}
	if observed.Repeat != 0 || target.Repeat == 0 {
		target.Repeat = observed.Repeat
	}
	if observed.Score != nil {
		target.Score = observed.Score
	}
	if observed.Notes != nil {
		target.Notes = observed.Notes
	}
	if observed.StartedAt != nil {
		target.StartedAt = observed.StartedAt
	}
	if observed.CompletedAt != nil {
		target.CompletedAt = observed.CompletedAt
	}
}

// statusIsSticky reports whether a status should resist progressive
// downgrade once reached (COMPLETED is sticky unless destructive).
func statusIsSticky(s domain.AniListStatus) bool {
	return s == domain.StatusCompleted || s == domain.StatusRepeating
}

func statusRank(s domain.AniListStatus) int {
	switch s {
	case domain.StatusPlanning:
		return 0
	case domain.StatusCurrent:
		return 1
	case domain.StatusPaused:
		return 1
	case domain.StatusDropped:
		return 1
	case domain.StatusCompleted:
		return 2
	case domain.StatusRepeating:
		return 3
	default:
		return 0
	}
}

// removeFields strips an excluded/pinned field from the computed patch.
// AniListListEntry has no "field absent from patch" representation for
// status/progress/repeat, so excluding one of those instead rolls the
// field back to whatever the current (pre-sync) entry held; for a
// brand-new entry with no current, the field is zeroed, matching "never
// send this field".
func removeFields(entry *domain.AniListListEntry, fields map[string]bool, current *domain.AniListListEntry) {
	if len(fields) == 0 {
		return
	}
	if fields[domain.FieldScore] {
		entry.Score = nil
	}
	if fields[domain.FieldNotes] {
		entry.Notes = nil
	}
	if fields[domain.FieldStartedAt] {
		entry.StartedAt = nil
	}
	if fields[domain.FieldCompletedAt] {
		entry.CompletedAt = nil
	}
	if fields[domain.FieldStatus] {
		if current != nil {
			entry.Status = current.Status
		} else {
			entry.Status = ""
		}
	}
	if fields[domain.FieldProgress] {
		if current != nil {
			entry.Progress = current.Progress
		} else {
			entry.Progress = 0
		}
	}
	if fields[domain.FieldRepeat] {
		if current != nil {
			entry.Repeat = current.Repeat
		} else {
			entry.Repeat = 0
		}
	}
}
