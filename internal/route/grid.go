package route

import (
	"math"

	"dronenav/internal/model"
)

// Grid describes the discretization of continuous airspace the planner
// searches over. The discretization is a deliberate approximation: each
// horizontal cell is ResolutionDeg wide and carries three altitude bands.
type Grid struct {
	ResolutionDeg   float64 `yaml:"resolutionDeg"`
	AltStepM        float64 `yaml:"altStepM"`
	MinAltM         float64 `yaml:"minAltM"`
	GoalToleranceKm float64 `yaml:"goalToleranceKm"`
	MaxExpansions   int     `yaml:"maxExpansions"`
}

// ~100m horizontal resolution, 20m altitude steps, 50m floor.
func DefaultGrid() Grid {
	return Grid{
		ResolutionDeg:   0.001,
		AltStepM:        20,
		MinAltM:         50,
		GoalToleranceKm: 0.1,
		MaxExpansions:   250000,
	}
}

func (g Grid) normalized() Grid {
	d := DefaultGrid()
	if g.ResolutionDeg <= 0 {
		g.ResolutionDeg = d.ResolutionDeg
	}
	if g.AltStepM <= 0 {
		g.AltStepM = d.AltStepM
	}
	if g.MinAltM <= 0 {
		g.MinAltM = d.MinAltM
	}
	if g.GoalToleranceKm <= 0 {
		g.GoalToleranceKm = d.GoalToleranceKm
	}
	if g.MaxExpansions <= 0 {
		g.MaxExpansions = d.MaxExpansions
	}
	return g
}

// Cell is a quantized horizontal grid cell.
type Cell struct {
	Row int
	Col int
}

// CellOf quantizes a coordinate onto the horizontal grid.
func (g Grid) CellOf(c model.Coordinate) Cell {
	return Cell{
		Row: int(math.Round(c.Lat / g.ResolutionDeg)),
		Col: int(math.Round(c.Lng / g.ResolutionDeg)),
	}
}

// nodeKey additionally quantizes altitude so the closed set is finite.
type nodeKey struct {
	Cell
	Band int
}

func (g Grid) keyOf(c model.Coordinate) nodeKey {
	return nodeKey{Cell: g.CellOf(c), Band: int(math.Round(c.Alt / g.AltStepM))}
}

// neighbors expands the 8 horizontal directions at three altitude offsets,
// clamped to the minimum altitude.
func (g Grid) neighbors(c model.Coordinate) []model.Coordinate {
	dirs := [8][2]int{
		{-1, -1}, {-1, 0}, {-1, 1},
		{0, -1}, {0, 1},
		{1, -1}, {1, 0}, {1, 1},
	}
	out := make([]model.Coordinate, 0, 24)
	for _, d := range dirs {
		lat := c.Lat + float64(d[0])*g.ResolutionDeg
		lng := c.Lng + float64(d[1])*g.ResolutionDeg
		for _, dz := range [3]float64{-g.AltStepM, 0, g.AltStepM} {
			alt := math.Max(g.MinAltM, c.Alt+dz)
			out = append(out, model.Coordinate{Lat: lat, Lng: lng, Alt: alt})
		}
	}
	return out
}

// CellSet is a mutable set of restricted cells.
type CellSet map[Cell]struct{}

func (s CellSet) Add(c Cell) { s[c] = struct{}{} }

func (s CellSet) Contains(c Cell) bool {
	_, ok := s[c]
	return ok
}

// NoFlyIndex is the read-only registry of forbidden cells supplied by an
// external collaborator.
type NoFlyIndex interface {
	Restricted(Cell) bool
}

// CellSet satisfies NoFlyIndex directly.
func (s CellSet) Restricted(c Cell) bool { return s.Contains(c) }

// WeatherOracle answers "conditions at this coordinate, now".
type WeatherOracle interface {
	At(model.Coordinate) model.Weather
}

// WeatherUpdates carries refreshed per-cell samples for reconciliation.
type WeatherUpdates map[Cell]model.Weather

// StaticWeather is a WeatherOracle over a fixed cell map with a fallback
// sample, used by the harness and tests.
type StaticWeather struct {
	Grid    Grid
	Cells   WeatherUpdates
	Default model.Weather
}

func (s StaticWeather) At(c model.Coordinate) model.Weather {
	if wx, ok := s.Cells[s.Grid.CellOf(c)]; ok {
		return wx
	}
	return s.Default
}

// CalmWeather is the neutral fallback sample: light wind, clear, dry.
func CalmWeather() model.Weather {
	return model.Weather{WindSpeed: 10, Visibility: 10, Precipitation: 0, Temperature: 20}
}
