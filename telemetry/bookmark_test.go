package telemetry

import "testing"

func hasBookmark(bms []Bookmark, typ BookmarkType) bool {
	for _, bm := range bms {
		if bm.Type == typ {
			return true
		}
	}
	return false
}

func TestBookmarkDetector_FlockFormed(t *testing.T) {
	bd := NewBookmarkDetector(10)

	for i := 0; i < 5; i++ {
		bd.Check(WindowStats{WindowEndTick: int32(i * 600), NeighbourMean: 3})
	}

	bms := bd.Check(WindowStats{WindowEndTick: 3000, NeighbourMean: 9})
	if !hasBookmark(bms, BookmarkFlockFormed) {
		t.Error("expected flock_formed bookmark")
	}
}

func TestBookmarkDetector_Scatter(t *testing.T) {
	bd := NewBookmarkDetector(10)

	for i := 0; i < 5; i++ {
		bd.Check(WindowStats{WindowEndTick: int32(i * 600), NeighbourMean: 12})
	}

	bms := bd.Check(WindowStats{WindowEndTick: 3000, NeighbourMean: 4})
	if !hasBookmark(bms, BookmarkScatter) {
		t.Error("expected scatter bookmark")
	}

	// Peak resets, so the same level does not fire again
	bms = bd.Check(WindowStats{WindowEndTick: 3600, NeighbourMean: 4})
	if hasBookmark(bms, BookmarkScatter) {
		t.Error("scatter fired twice for the same drop")
	}
}

func TestBookmarkDetector_EscapeBurst(t *testing.T) {
	bd := NewBookmarkDetector(10)

	for i := 0; i < 5; i++ {
		bd.Check(WindowStats{WindowEndTick: int32(i * 600), OutOfRange: 2})
	}

	bms := bd.Check(WindowStats{WindowEndTick: 3000, OutOfRange: 25})
	if !hasBookmark(bms, BookmarkEscapeBurst) {
		t.Error("expected escape_burst bookmark")
	}
}

func TestBookmarkDetector_SettledOnce(t *testing.T) {
	bd := NewBookmarkDetector(10)

	fired := 0
	for i := 0; i < 12; i++ {
		bms := bd.Check(WindowStats{WindowEndTick: int32(i * 600), Agents: 50, Spread: 20})
		if hasBookmark(bms, BookmarkSettledFlock) {
			fired++
		}
	}
	if fired != 1 {
		t.Errorf("settled_flock fired %d times, want 1", fired)
	}
}

func TestBookmarkDetector_NoBookmarksOnFirstWindow(t *testing.T) {
	bd := NewBookmarkDetector(3)
	if bms := bd.Check(WindowStats{NeighbourMean: 100, OutOfRange: 100, Agents: 100}); len(bms) != 0 {
		t.Errorf("first window produced %v", bms)
	}
}
