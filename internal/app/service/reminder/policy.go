// Package reminder classifies rental contracts into renewal reminder stages.
//
// Every rule is a range test on the number of days until the end date so that a
// scheduler that misses a day still fires the stage on the next run. Stages 2 and 3
// are anchored to the first reminder: they require a first reminder sent on an
// earlier day, so a late first reminder shifts the sequence instead of stacking stages.
package reminder

import (
	"time"

	"github.com/qhomebase/contract-renewal/pkg/tool"
)

type Stage int

const (
	StageNone Stage = iota
	Stage1
	Stage2
	Stage3
)

// FinalStage is the last reminder. It can never be dismissed.
const FinalStage = Stage3

func (s Stage) String() string {
	switch s {
	case Stage1:
		return "STAGE_1"
	case Stage2:
		return "STAGE_2"
	case Stage3:
		return "STAGE_3"
	default:
		return "NONE"
	}
}

// Window is an inclusive range of days-until-end.
type Window struct {
	From, To int
}

func (w Window) Contains(days int) bool { return days >= w.From && days <= w.To }

var (
	Stage1Window = Window{From: 29, To: 31}
	Stage2Window = Window{From: 19, To: 21}
	Stage3Window = Window{From: 9, To: 11}
)

const (
	// LookaheadDays bounds the candidate query of the reminder job.
	LookaheadDays = 32
	// DeclineGraceDays is the minimum age of the first reminder before auto-decline.
	DeclineGraceDays = 20
	// DeclineFinalWindowDays is how close to the end a stage-3 contract may be auto-declined.
	DeclineFinalWindowDays = 5
	// AutoCancelAfter is the silence allowed after the final reminder.
	AutoCancelAfter = 24 * time.Hour
)

// Input is the reminder history of one contract.
type Input struct {
	EndDate     *time.Time
	Today       time.Time
	FirstSentAt *time.Time
	ThirdSentAt *time.Time
	// Location turns the timestamps into calendar days. Nil means UTC.
	Location *time.Location
}

func (in Input) daysUntilEnd() int {
	return tool.DaysBetween(in.Today, *in.EndDate)
}

func (in Input) firstSentBeforeToday() bool {
	if in.FirstSentAt == nil {
		return false
	}
	return tool.DateOf(*in.FirstSentAt, in.Location).Before(tool.DateOf(in.Today, time.UTC))
}

// Due returns the stage that should be fired today, or StageNone.
// The caller must still make sure the stage was not dispatched already.
func Due(in Input) Stage {
	if in.EndDate == nil {
		return StageNone
	}
	days := in.daysUntilEnd()
	switch {
	case Stage1Window.Contains(days) && in.FirstSentAt == nil:
		return Stage1
	case Stage2Window.Contains(days) && in.firstSentBeforeToday():
		return Stage2
	case Stage3Window.Contains(days) && in.firstSentBeforeToday() && in.ThirdSentAt == nil:
		return Stage3
	default:
		return StageNone
	}
}

// Current is the read-side classification used for dismissal and popups.
// It never triggers a send.
func Current(in Input) Stage {
	if in.EndDate == nil || in.FirstSentAt == nil {
		return StageNone
	}
	days := in.daysUntilEnd()
	switch {
	case Stage3Window.Contains(days):
		return Stage3
	// After the final reminder the contract stays final until it ends instead of
	// dropping to the stage 1 fallback, so the final reminder stays undismissable.
	case in.ThirdSentAt != nil && days >= 0 && days < Stage3Window.From:
		return Stage3
	case Stage2Window.Contains(days):
		return Stage2
	case Stage1Window.Contains(days):
		return Stage1
	case days > 0 && days < LookaheadDays:
		return Stage1
	default:
		return StageNone
	}
}

// ShouldAutoDecline reports whether an unanswered reminder has run out of time.
func ShouldAutoDecline(in Input) bool {
	if in.EndDate == nil || in.FirstSentAt == nil {
		return false
	}
	days := in.daysUntilEnd()
	sinceFirst := tool.DaysBetween(tool.DateOf(*in.FirstSentAt, in.Location), in.Today)
	if in.ThirdSentAt != nil {
		if days < 0 {
			return true
		}
		if days <= DeclineFinalWindowDays && sinceFirst >= DeclineGraceDays {
			return true
		}
	}
	return days < 0 && sinceFirst >= DeclineGraceDays
}

// ShouldAutoCancel reports whether the final reminder has been ignored for longer than AutoCancelAfter.
func ShouldAutoCancel(thirdSentAt *time.Time, now time.Time) bool {
	if thirdSentAt == nil {
		return false
	}
	return now.Sub(*thirdSentAt) > AutoCancelAfter
}

// ShouldSurface reports whether a popup should be shown given the stage last dismissed.
func ShouldSurface(current Stage, lastDismissed int) bool {
	if current == StageNone {
		return false
	}
	if current >= FinalStage {
		return true
	}
	return lastDismissed == 0 || int(current) > lastDismissed
}
