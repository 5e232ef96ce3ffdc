package render

import (
	"fmt"
	"strings"

	"shapelearner/internal/services"
)

// Level names a difficulty preset.
type Level string

const (
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelExtreme  Level = "extreme"
	LevelUltimate Level = "ultimate"
)

var levelDifficulty = map[Level][]int{
	LevelLow:      {1, 4, 1},
	LevelMedium:   {1, 3, 4, 3, 1},
	LevelHigh:     {1, 3, 6, 8, 6, 3, 1},
	LevelExtreme:  {1, 3, 5, 6, 8, 6, 5, 3, 1},
	LevelUltimate: {1, 3, 5, 6, 7, 8, 7, 6, 5, 3, 1},
}

// Levels lists presets from coarsest to finest.
func Levels() []Level {
	return []Level{LevelLow, LevelMedium, LevelHigh, LevelExtreme, LevelUltimate}
}

// ParseLevel resolves a preset name case-insensitively.
func ParseLevel(value string) (Level, error) {
	level := Level(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := levelDifficulty[level]; !ok {
		return "", services.Wrap(services.ErrConfiguration, "render", "parse level",
			fmt.Sprintf("unknown difficulty level %q", value), nil)
	}
	return level, nil
}

// Difficulty returns a copy of the band sizes for the preset.
func (l Level) Difficulty() []int {
	bands := levelDifficulty[l]
	out := make([]int, len(bands))
	copy(out, bands)
	return out
}

// Schedule builds the schedule for the preset.
func (l Level) Schedule() (Schedule, error) {
	bands, ok := levelDifficulty[l]
	if !ok {
		return Schedule{}, services.Wrap(services.ErrConfiguration, "render", "schedule",
			fmt.Sprintf("unknown difficulty level %q", string(l)), nil)
	}
	return NewSchedule(bands)
}
