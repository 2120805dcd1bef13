package scheduler

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	tperrors "github.com/vnykmshr/threadpool/pkg/common/errors"
)

// parser accepts an optional leading seconds field and the @ descriptors.
var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Description explains when a cron spec fires.
type Description struct {
	Spec        string
	Description string
	NextRuns    []time.Time
}

// Validate reports whether spec parses.
func Validate(spec string) error {
	_, err := parse(spec)
	return err
}

// Describe returns a readable description of spec and its next n activation
// times after from.
func Describe(spec string, from time.Time, n int) (Description, error) {
	schedule, err := parse(spec)
	if err != nil {
		return Description{}, err
	}

	next := make([]time.Time, 0, n)
	current := from
	for i := 0; i < n; i++ {
		current = schedule.Next(current)
		if current.IsZero() {
			break
		}
		next = append(next, current)
	}

	return Description{
		Spec:        spec,
		Description: describe(spec),
		NextRuns:    next,
	}, nil
}

func parse(spec string) (cron.Schedule, error) {
	if spec == "" {
		return nil, tperrors.NewValidationError("scheduler", "spec", spec, "cannot be empty").
			WithHint(`use a cron expression such as "*/5 * * * *" or "@every 1m"`)
	}
	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, tperrors.NewValidationError("scheduler", "spec", spec, err.Error())
	}
	return schedule, nil
}

func describe(spec string) string {
	switch spec {
	case "@yearly", "@annually":
		return "once a year (January 1st at midnight)"
	case "@monthly":
		return "once a month (1st day at midnight)"
	case "@weekly":
		return "once a week (Sunday at midnight)"
	case "@daily", "@midnight":
		return "once a day (at midnight)"
	case "@hourly":
		return "once an hour (at minute 0)"
	}
	if len(spec) > len("@every ") && spec[:len("@every ")] == "@every " {
		return "every " + spec[len("@every "):]
	}
	return fmt.Sprintf("custom schedule: %s", spec)
}

// cronLogger routes the cron runner's own logging into slog. The runner logs
// every wake-up at info level, which is demoted to debug here.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}

var _ cron.Logger = cronLogger{}
