package task

import "time"

type everyTask struct {
	period time.Duration
	fn     Func
}

func (t everyTask) every() everyTask { return t }

// Every creates a periodic task that runs once per period.
//
// The period is converted to clock ticks when the task is added (rounded up, at least one
// tick). A non-positive period makes Add return ErrInvalidPeriod. A nil fn makes Add panic.
//
// Default startImmediately is false (first run happens one period after Start/Add).
func Every(period time.Duration, fn Func) Task {
	return everyTask{period: period, fn: fn}
}
