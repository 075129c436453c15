package generic

import (
	"time"
)

// retries the given function up to "retries" times in case the function returns an error
func Retry(f func() error, retries int) error {
	return RetryWithWait(f, retries, 0)
}

// like Retry, but waits between consecutive attempts
func RetryWithWait(f func() error, retries int, wait time.Duration) error {
	if err := f(); err != nil {
		if retries == 0 {
			return err
		}
		time.Sleep(wait)
		return RetryWithWait(f, retries-1, wait)
	}
	return nil
}
