package tools

import (
	"context"
	"fmt"
	"runtime"
	"time"
)

var (
	now       = time.Now
	startedAt = time.Now()
)

func init() {
	MustRegister(Action{
		Name:        "system.time",
		Description: "Tell the current local time",
		Keywords:    []string{"time", "clock"},
		Exec: func(ctx context.Context, _ string) (string, error) {
			return "It is " + now().Format("3:04 PM") + ".", nil
		},
	})
	MustRegister(Action{
		Name:        "system.date",
		Description: "Tell today's date",
		Keywords:    []string{"date", "today", "day is it"},
		Exec: func(ctx context.Context, _ string) (string, error) {
			return "Today is " + now().Format("Monday, January 2, 2006") + ".", nil
		},
	})
	MustRegister(Action{
		Name:        "system.info",
		Description: "Describe the host system",
		Keywords:    []string{"system info", "system information", "operating system"},
		Exec: func(ctx context.Context, _ string) (string, error) {
			return fmt.Sprintf("Running on %s/%s with %d CPUs.", runtime.GOOS, runtime.GOARCH, runtime.NumCPU()), nil
		},
	})
	MustRegister(Action{
		Name:        "system.uptime",
		Description: "Report how long the assistant has been running",
		Keywords:    []string{"uptime", "how long have you been running"},
		Exec: func(ctx context.Context, _ string) (string, error) {
			return "I have been running for " + now().Sub(startedAt).Round(time.Second).String() + ".", nil
		},
	})
}
