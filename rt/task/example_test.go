package task_test

import (
	"context"
	"fmt"
	"time"

	"github.com/evan-idocoding/zwatch/clock"
	"github.com/evan-idocoding/zwatch/rt/task"
)

func ExampleManager_Dispatch() {
	clk := clock.NewManual(time.Millisecond)
	m := task.NewManager(task.WithClock(clk))

	say := func(s string) task.Func {
		return func(context.Context) error {
			fmt.Println(clk.Now(), s)
			return nil
		}
	}
	m.MustAdd(task.Every(10*time.Millisecond, say("display")), task.WithPriority(1))
	m.MustAdd(task.Every(10*time.Millisecond, say("accumulate")), task.WithPriority(3))
	m.MustAdd(task.Every(20*time.Millisecond, say("input")), task.WithPriority(2))

	_ = m.Start(context.Background())
	defer m.Shutdown(context.Background())

	clk.Advance(10)
	m.Dispatch()
	clk.Advance(10)
	m.Dispatch()

	// Output:
	// 10 accumulate
	// 10 display
	// 20 accumulate
	// 20 input
	// 20 display
}
