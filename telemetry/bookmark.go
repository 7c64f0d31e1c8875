package telemetry

import (
	"fmt"
	"log/slog"
)

// BookmarkType identifies the type of bookmark.
type BookmarkType string

const (
	BookmarkFlockFormed  BookmarkType = "flock_formed"
	BookmarkScatter      BookmarkType = "scatter"
	BookmarkEscapeBurst  BookmarkType = "escape_burst"
	BookmarkSettledFlock BookmarkType = "settled_flock"
)

// Bookmark represents an automatically triggered bookmark.
type Bookmark struct {
	Type        BookmarkType `csv:"type" json:"type"`
	Tick        int32        `csv:"tick" json:"tick"`
	Description string       `csv:"description" json:"description"`
}

// LogBookmark logs the bookmark using slog.
func (b Bookmark) LogBookmark() {
	slog.Info("bookmark",
		"type", string(b.Type),
		"tick", b.Tick,
		"description", b.Description,
	)
}

// BookmarkDetector detects interesting moments in the simulation.
type BookmarkDetector struct {
	// Rolling history (circular buffer)
	history     []WindowStats
	historySize int
	historyIdx  int
	historyFull bool

	recentNeighbourPeak float64
	settledWindows      int
}

// NewBookmarkDetector creates a detector with the given history size.
func NewBookmarkDetector(historySize int) *BookmarkDetector {
	if historySize < 5 {
		historySize = 5 // minimum for settled flock detection
	}
	return &BookmarkDetector{
		history:     make([]WindowStats, historySize),
		historySize: historySize,
	}
}

// Check analyzes the latest stats and returns any triggered bookmarks.
func (bd *BookmarkDetector) Check(stats WindowStats) []Bookmark {
	var bookmarks []Bookmark

	if bd.historyFull || bd.historyIdx > 0 {
		checks := []func(WindowStats) *Bookmark{
			bd.checkFlockFormed,
			bd.checkScatter,
			bd.checkEscapeBurst,
			bd.checkSettled,
		}
		for _, check := range checks {
			if b := check(stats); b != nil {
				bookmarks = append(bookmarks, *b)
			}
		}
	}

	bd.addToHistory(stats)

	if stats.NeighbourMean > bd.recentNeighbourPeak {
		bd.recentNeighbourPeak = stats.NeighbourMean
	}

	return bookmarks
}

func (bd *BookmarkDetector) addToHistory(stats WindowStats) {
	bd.history[bd.historyIdx] = stats
	bd.historyIdx = (bd.historyIdx + 1) % bd.historySize
	if bd.historyIdx == 0 {
		bd.historyFull = true
	}
}

// getHistory returns the recorded windows oldest first.
func (bd *BookmarkDetector) getHistory() []WindowStats {
	if !bd.historyFull {
		return bd.history[:bd.historyIdx]
	}
	out := make([]WindowStats, 0, bd.historySize)
	out = append(out, bd.history[bd.historyIdx:]...)
	return append(out, bd.history[:bd.historyIdx]...)
}

// checkFlockFormed fires when agents see at least twice the usual number of
// neighbours.
func (bd *BookmarkDetector) checkFlockFormed(stats WindowStats) *Bookmark {
	history := bd.getHistory()
	if len(history) < 3 {
		return nil
	}

	var total float64
	for _, h := range history {
		total += h.NeighbourMean
	}
	avg := total / float64(len(history))
	if avg == 0 {
		return nil
	}

	if stats.NeighbourMean > avg*2.0 && stats.NeighbourMean >= 5 {
		return &Bookmark{
			Type:        BookmarkFlockFormed,
			Tick:        stats.WindowEndTick,
			Description: fmt.Sprintf("Neighbour mean %.1f is %.1fx average (%.1f)", stats.NeighbourMean, stats.NeighbourMean/avg, avg),
		}
	}
	return nil
}

// checkScatter fires when the neighbour mean halves from its recent peak.
func (bd *BookmarkDetector) checkScatter(stats WindowStats) *Bookmark {
	if bd.recentNeighbourPeak < 2 {
		return nil
	}

	drop := 1.0 - stats.NeighbourMean/bd.recentNeighbourPeak
	if drop > 0.5 {
		oldPeak := bd.recentNeighbourPeak
		bd.recentNeighbourPeak = stats.NeighbourMean
		return &Bookmark{
			Type:        BookmarkScatter,
			Tick:        stats.WindowEndTick,
			Description: fmt.Sprintf("Flock scattered %.0f%% from peak %.1f to %.1f neighbours", drop*100, oldPeak, stats.NeighbourMean),
		}
	}
	return nil
}

// checkEscapeBurst fires on a spike of out-of-range reports.
func (bd *BookmarkDetector) checkEscapeBurst(stats WindowStats) *Bookmark {
	history := bd.getHistory()
	if len(history) < 3 {
		return nil
	}

	var total int
	for _, h := range history {
		total += h.OutOfRange
	}
	avg := float64(total) / float64(len(history))

	if stats.OutOfRange >= 10 && float64(stats.OutOfRange) > avg*2.0 {
		return &Bookmark{
			Type:        BookmarkEscapeBurst,
			Tick:        stats.WindowEndTick,
			Description: fmt.Sprintf("%d out-of-range reports against an average of %.1f", stats.OutOfRange, avg),
		}
	}
	return nil
}

// checkSettled fires once after the flock spread has stayed steady for
// five consecutive windows.
func (bd *BookmarkDetector) checkSettled(stats WindowStats) *Bookmark {
	if stats.Agents < 10 {
		bd.settledWindows = 0
		return nil
	}

	history := bd.getHistory()
	if len(history) < 4 {
		return nil
	}

	recent := history[len(history)-4:]
	var sum float64
	for _, h := range recent {
		sum += h.Spread
	}
	mean := sum / 4

	var variance float64
	for _, h := range recent {
		d := h.Spread - mean
		variance += d * d
	}
	variance /= 4

	cv2 := 0.0
	if mean > 0 {
		cv2 = variance / (mean * mean)
	}

	if mean > 0 && cv2 < 0.04 { // CV^2 < 0.04 means CV < 0.2
		bd.settledWindows++
	} else {
		bd.settledWindows = 0
	}

	if bd.settledWindows == 5 {
		return &Bookmark{
			Type:        BookmarkSettledFlock,
			Tick:        stats.WindowEndTick,
			Description: fmt.Sprintf("Flock of %d settled at spread %.1f over 5+ windows", stats.Agents, stats.Spread),
		}
	}
	return nil
}
