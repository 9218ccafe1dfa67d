package schedule

import (
	"errors"
	"fmt"
	"slices"

	"cloud.google.com/go/civil"

	"habitPulseAPI/utils"
)

type Mode string

const (
	ModeFlexible     Mode = "flexible"
	ModeSpecificDays Mode = "specific_days"
	ModeInterval     Mode = "interval"
)

var ErrInvalidConfig = errors.New("invalid schedule config")

// Frequency types accepted for flexible habits. They describe the period a
// target is meant for but never gate whether a single day is due.
var frequencyTypes = map[string]bool{
	"":      true,
	"day":   true,
	"week":  true,
	"month": true,
	"year":  true,
}

// Config is the mode-specific payload. Only the fields relevant to the
// definition's Mode are meaningful.
type Config struct {
	FrequencyType string      `json:"frequency_type,omitempty"`
	DaysOfWeek    []int       `json:"days_of_week,omitempty"`
	IntervalDays  int         `json:"interval_days,omitempty"`
	AnchorDate    *civil.Date `json:"anchor_date,omitempty"`
}

type Definition struct {
	Mode   Mode   `json:"schedule_mode"`
	Config Config `json:"schedule_config"`
}

func Flexible() Definition {
	return Definition{Mode: ModeFlexible}
}

func SpecificDays(days ...int) Definition {
	return Definition{Mode: ModeSpecificDays, Config: Config{DaysOfWeek: days}}
}

func Interval(days int, anchor civil.Date) Definition {
	return Definition{Mode: ModeInterval, Config: Config{IntervalDays: days, AnchorDate: &anchor}}
}

// IsDue reports whether a habit with this schedule is due on date. It is a
// pure function of its inputs.
func IsDue(def Definition, date civil.Date) bool {
	switch def.Mode {
	case ModeFlexible:
		return true
	case ModeSpecificDays:
		return slices.Contains(def.Config.DaysOfWeek, int(utils.Weekday(date)))
	case ModeInterval:
		k := def.Config.IntervalDays
		if k < 1 || def.Config.AnchorDate == nil {
			return false
		}
		return floorMod(date.DaysSince(*def.Config.AnchorDate), k) == 0
	default:
		return false
	}
}

// floorMod is the non-negative remainder, so dates before the anchor keep
// the same cadence.
func floorMod(n, k int) int {
	return ((n % k) + k) % k
}

// Normalize validates def and fills write-time defaults: weekday sets are
// sorted and deduplicated, and an interval without anchor is anchored on
// start. Fields of other modes are cleared.
func Normalize(def Definition, start civil.Date) (Definition, error) {
	switch def.Mode {
	case ModeFlexible:
		if !frequencyTypes[def.Config.FrequencyType] {
			return def, fmt.Errorf("%w: unknown frequency_type %q", ErrInvalidConfig, def.Config.FrequencyType)
		}
		return Definition{Mode: ModeFlexible, Config: Config{FrequencyType: def.Config.FrequencyType}}, nil

	case ModeSpecificDays:
		if len(def.Config.DaysOfWeek) == 0 {
			return def, fmt.Errorf("%w: specific_days requires at least one day in days_of_week", ErrInvalidConfig)
		}
		days := make([]int, 0, len(def.Config.DaysOfWeek))
		for _, d := range def.Config.DaysOfWeek {
			if d < 0 || d > 6 {
				return def, fmt.Errorf("%w: day of week %d out of range 0..6", ErrInvalidConfig, d)
			}
			days = append(days, d)
		}
		slices.Sort(days)
		return Definition{Mode: ModeSpecificDays, Config: Config{DaysOfWeek: slices.Compact(days)}}, nil

	case ModeInterval:
		if def.Config.IntervalDays < 1 {
			return def, fmt.Errorf("%w: interval requires interval_days >= 1", ErrInvalidConfig)
		}
		anchor := start
		if def.Config.AnchorDate != nil {
			anchor = *def.Config.AnchorDate
		}
		if !anchor.IsValid() {
			return def, fmt.Errorf("%w: interval requires a valid anchor_date", ErrInvalidConfig)
		}
		return Interval(def.Config.IntervalDays, anchor), nil

	case "":
		return def, fmt.Errorf("%w: schedule_mode is required", ErrInvalidConfig)
	default:
		return def, fmt.Errorf("%w: unknown schedule_mode %q", ErrInvalidConfig, def.Mode)
	}
}

// Validate checks a stored definition without rewriting it.
func Validate(def Definition) error {
	if def.Mode == ModeInterval && def.Config.AnchorDate == nil {
		return fmt.Errorf("%w: interval requires anchor_date", ErrInvalidConfig)
	}
	_, err := Normalize(def, civil.Date{})
	return err
}
