package event

// StagePositionChanged is published after every stage operation with the
// position reported by the stage.
type StagePositionChanged struct {
	Meta
	XMM, YMM, ZMM float64
}

func NewStagePositionChanged(x, y, z float64) StagePositionChanged {
	return StagePositionChanged{Meta: Stamp(), XMM: x, YMM: y, ZMM: z}
}

func (StagePositionChanged) EventName() string { return "StagePositionChanged" }

// PiezoPositionChanged is published after the piezo moved.
type PiezoPositionChanged struct {
	Meta
	PositionUm float64
}

func NewPiezoPositionChanged(um float64) PiezoPositionChanged {
	return PiezoPositionChanged{Meta: Stamp(), PositionUm: um}
}

func (PiezoPositionChanged) EventName() string { return "PiezoPositionChanged" }

// FilterPositionChanged is published after a filter wheel moved.
type FilterPositionChanged struct {
	Meta
	Wheel    int
	Position int
}

func NewFilterPositionChanged(wheel, position int) FilterPositionChanged {
	return FilterPositionChanged{Meta: Stamp(), Wheel: wheel, Position: position}
}

func (FilterPositionChanged) EventName() string { return "FilterPositionChanged" }
