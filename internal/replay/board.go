package replay

import "slices"

// Contents is everything a decoder collects before the board is sealed.
type Contents struct {
	Name       string
	Dimensions Dimensions
	// MineOrigin is the index of the first row and column: 0 for most
	// formats, 1 for Arbiter files which store 1-based coordinates.
	MineOrigin int
	MineCount  int
	Mines      []Cell
	Properties Properties
	Events     []Event
}

// Board is the validated, immutable part of a replay that every format
// shares. Format records embed it and add their own metadata.
type Board struct {
	name       string
	dims       Dimensions
	mines      []Cell
	properties Properties
	events     []Event
}

// NewBoard checks the invariants shared by all formats: positive
// dimensions, an exact mine count and every mine inside the board.
func NewBoard(c Contents) (Board, error) {
	if c.Dimensions.Rows <= 0 || c.Dimensions.Cols <= 0 {
		return Board{}, Invalid("bad dimensions %dx%d", c.Dimensions.Rows, c.Dimensions.Cols)
	}
	if len(c.Mines) != c.MineCount {
		return Board{}, Invalid("mine count %d does not match %d mines", c.MineCount, len(c.Mines))
	}
	lo := c.MineOrigin
	for _, m := range c.Mines {
		if m.Row < lo || m.Row >= c.Dimensions.Rows+lo || m.Col < lo || m.Col >= c.Dimensions.Cols+lo {
			return Board{}, Invalid("mine (%d,%d) outside %dx%d board", m.Row, m.Col, c.Dimensions.Rows, c.Dimensions.Cols)
		}
	}
	return Board{
		name:       c.Name,
		dims:       c.Dimensions,
		mines:      slices.Clone(c.Mines),
		properties: c.Properties.clone(),
		events:     slices.Clone(c.Events),
	}, nil
}

func (b Board) Name() string {
	return b.name
}

func (b Board) Dimensions() Dimensions {
	return b.dims
}

func (b Board) MineCount() int {
	return len(b.mines)
}

func (b Board) Mines() []Cell {
	return slices.Clone(b.mines)
}

func (b Board) Properties() Properties {
	return b.properties.clone()
}

func (b Board) Events() []Event {
	return slices.Clone(b.events)
}
