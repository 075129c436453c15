package generic

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

type RepeatFunc func(t time.Time) error

// repeats the execution of a function n times at a given interval
// if n is negative, repeat until the context is done
func Repeat(ctx context.Context, f RepeatFunc, startTime time.Time, interval time.Duration, n int) error {
	untilStart := time.Until(startTime)

	if untilStart > 0 {
		msg := fmt.Sprintf("Next scheduled at %s", time.Now().Add(untilStart))
		if n >= 0 {
			msg += fmt.Sprintf(" (%d remaining)", n)
		}
		log.Debug().Msg(msg)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(untilStart):
		}
	}

	t := startTime
	for n != 0 {
		if err := f(t); err != nil {
			return err
		}
		if n > 0 {
			n--
		}
		if n == 0 {
			break
		}
		t = t.Add(interval)

		msg := fmt.Sprintf("Next scheduled at %s", t)
		if n >= 0 {
			msg += fmt.Sprintf(" (%d remaining)", n)
		}
		log.Debug().Msg(msg)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Until(t)):
		}
	}

	return nil
}
