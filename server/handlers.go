package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/flock/game"
	"github.com/pthm-cable/flock/systems"
	"github.com/pthm-cable/flock/telemetry"
)

// vec is the wire form of a vector.
type vec [3]float64

func (v vec) r3() r3.Vec { return r3.Vec{X: v[0], Y: v[1], Z: v[2]} }

func fromR3(v r3.Vec) vec { return vec{v.X, v.Y, v.Z} }

type registerRequest struct {
	Position vec `json:"position"`
	Velocity vec `json:"velocity"`
}

type registerResponse struct {
	ID     int  `json:"id"`
	Placed bool `json:"placed"`
}

type positionRequest struct {
	Position vec `json:"position"`
}

type avoidanceRequest struct {
	Position vec  `json:"position"`
	Static   bool `json:"static"`
}

type recenterRequest struct {
	Origin vec `json:"origin"`
}

type recenterResponse struct {
	Dropped int `json:"dropped"`
}

type statsView struct {
	Count       int `json:"count"`
	AvgPosition vec `json:"avg_position"`
	AvgVelocity vec `json:"avg_velocity"`
	Points      int `json:"points"`
}

type agentView struct {
	ID             int       `json:"id"`
	Position       vec       `json:"position"`
	Velocity       vec       `json:"velocity"`
	TargetVelocity vec       `json:"target_velocity"`
	Cell           [3]int    `json:"cell"`
	Placed         bool      `json:"placed"`
	Local          statsView `json:"local"`
	Blended        statsView `json:"blended"`
}

type statusView struct {
	Tick     int32                  `json:"tick"`
	SimTime  float64                `json:"sim_time"`
	Agents   int                    `json:"agents"`
	Capacity int                    `json:"capacity"`
	Cells    int                    `json:"cells"`
	Dirty    int                    `json:"dirty"`
	Window   *telemetry.WindowStats `json:"window,omitempty"`
	Perf     telemetry.PerfRow      `json:"perf"`
}

func newStatsView(s systems.FlockStats) statsView {
	return statsView{
		Count:       s.Count,
		AvgPosition: fromR3(s.AvgPosition),
		AvgVelocity: fromR3(s.AvgVelocity),
		Points:      len(s.Points),
	}
}

func newAgentView(a game.AgentInfo) agentView {
	return agentView{
		ID:             a.ID,
		Position:       fromR3(a.Position),
		Velocity:       fromR3(a.Velocity),
		TargetVelocity: fromR3(a.TargetVelocity),
		Cell:           [3]int{a.Cell.X, a.Cell.Y, a.Cell.Z},
		Placed:         a.Placed,
		Local:          newStatsView(a.Local),
		Blended:        newStatsView(a.Blended),
	}
}

func (h *Host) handleStats(w http.ResponseWriter, _ *http.Request) {
	var v statusView
	h.with(func(g *game.Game) {
		v = statusView{
			Tick:     g.TickCount(),
			SimTime:  g.SimTime(),
			Agents:   g.AgentCount(),
			Capacity: g.Capacity(),
			Cells:    g.Grid().CellCount(),
			Dirty:    g.Grid().DirtyCount(),
			Window:   h.latest,
			Perf:     g.PerfStats().Row(g.TickCount()),
		}
	})
	writeJSON(w, http.StatusOK, v)
}

func (h *Host) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !readJSON(w, r, &req) {
		return
	}

	var (
		resp registerResponse
		err  error
	)
	h.with(func(g *game.Game) {
		resp.ID, err = g.RegisterAgent(req.Position.r3(), req.Velocity.r3(), nil)
		if err == nil {
			info, _ := g.Agent(resp.ID)
			resp.Placed = info.Placed
		}
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *Host) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	id, ok := agentID(w, r)
	if !ok {
		return
	}

	var (
		info game.AgentInfo
		err  error
	)
	h.with(func(g *game.Game) {
		info, err = g.Agent(id)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newAgentView(info))
}

func (h *Host) handleReport(w http.ResponseWriter, r *http.Request) {
	id, ok := agentID(w, r)
	if !ok {
		return
	}
	var req positionRequest
	if !readJSON(w, r, &req) {
		return
	}

	var err error
	h.with(func(g *game.Game) {
		err = g.ReportPosition(id, req.Position.r3())
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Host) handleRemove(w http.ResponseWriter, r *http.Request) {
	id, ok := agentID(w, r)
	if !ok {
		return
	}

	var err error
	h.with(func(g *game.Game) {
		err = g.RemoveAgent(id)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Host) handleAvoidance(w http.ResponseWriter, r *http.Request) {
	var req avoidanceRequest
	if !readJSON(w, r, &req) {
		return
	}

	var err error
	h.with(func(g *game.Game) {
		err = g.AddAvoidancePoint(req.Position.r3(), req.Static)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Host) handleRecenter(w http.ResponseWriter, r *http.Request) {
	var req recenterRequest
	if !readJSON(w, r, &req) {
		return
	}

	var resp recenterResponse
	h.with(func(g *game.Game) {
		resp.Dropped = g.Recenter(req.Origin.r3())
	})
	writeJSON(w, http.StatusOK, resp)
}

// agentID parses the {id} URL parameter, writing a 400 on failure.
func agentID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid agent id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func readJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// writeError maps simulation errors onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, systems.ErrUnknownAgent):
		status = http.StatusNotFound
	case errors.Is(err, systems.ErrCapacityExceeded):
		status = http.StatusServiceUnavailable
	case errors.Is(err, systems.ErrOutOfRange):
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
