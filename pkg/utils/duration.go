package utils

import (
	"fmt"
	"time"
)

// FormatDuration formats a duration into HH:MM:SS format
func FormatDuration(d time.Duration) string {
	totalSeconds := int64(d / time.Second)
	h := totalSeconds / 3600
	m := (totalSeconds % 3600) / 60
	s := totalSeconds % 60
	return fmt.Sprintf("%d:%02d:%02d", h, m, s)
}
