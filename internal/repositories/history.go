package repositories

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/melodyhue/internal/models"
	"github.com/desertthunder/melodyhue/internal/shared"
	"github.com/desertthunder/melodyhue/internal/tasks"
)

// HistoryRecorder writes a play for every track change and fills in its color once extracted.
//
// It implements [tasks.TransitionListener] and [tasks.ExtractionListener]. The color cache runs
// first on a track change, so a color can arrive before its play exists; it is held until then.
// Storage errors are logged and never reach the poller.
type HistoryRecorder struct {
	repo   *PlayRepository
	logger *log.Logger

	mu           sync.Mutex
	currentID    string
	currentTrack string
	pendingTrack string
	pendingHex   string
}

func NewHistoryRecorder(repo *PlayRepository, logger *log.Logger) *HistoryRecorder {
	return &HistoryRecorder{repo: repo, logger: shared.WithLogger(logger, "component", "history")}
}

// OnTransition records a play when a new track appears.
func (h *HistoryRecorder) OnTransition(_ context.Context, t tasks.Transition) {
	if t.Kind != tasks.TrackChanged {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	play := models.NewPlay("", t.Current)
	if h.pendingTrack == play.TrackID {
		play.ColorHex = h.pendingHex
	}
	h.pendingTrack, h.pendingHex = "", ""

	if err := h.repo.Create(play); err != nil {
		h.logger.Error("failed to record play", "track", play.Name, "error", err)
		h.currentID, h.currentTrack = "", ""
		return
	}
	h.currentID, h.currentTrack = play.ID, play.TrackID
	h.logger.Debug("recorded play", "track", play.Name, "sequence", play.Sequence)
}

// ColorExtracted stores the color on the current play, or holds it for the play about to be recorded.
func (h *HistoryRecorder) ColorExtracted(_ context.Context, snap *models.TrackSnapshot, c models.RGB) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.currentID == "" || h.currentTrack != snap.TrackID {
		h.pendingTrack, h.pendingHex = snap.TrackID, c.Hex()
		return
	}
	if err := h.repo.UpdateColor(h.currentID, c.Hex()); err != nil {
		h.logger.Error("failed to store play color", "track", snap.Name, "error", err)
	}
}
