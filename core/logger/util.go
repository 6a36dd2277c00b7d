package logger

import "time"

// Status is the "status" field value for an operation result.
func Status(err error) string {
	if err == nil {
		return "ok"
	}
	return "error"
}

// RoundMS rounds d to whole milliseconds; negative values become zero.
func RoundMS(d time.Duration) time.Duration {
	return max(d, 0).Round(time.Millisecond)
}

// Took is the rounded time elapsed since start.
func Took(start time.Time) time.Duration {
	return RoundMS(time.Since(start))
}
