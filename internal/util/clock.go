package util

import "fmt"

// AddMinutes adds minutes to an "HH:MM" wall-clock value, staying within the
// same day. Booking windows never cross midnight, so an overflow is an error.
func AddMinutes(hhmm string, minutes int) (string, error) {
	var h, m int
	if _, err := fmt.Sscanf(hhmm, "%d:%d", &h, &m); err != nil {
		return "", fmt.Errorf("invalid time %q: %w", hhmm, err)
	}
	total := h*60 + m + minutes
	if total < 0 || total >= 24*60 {
		return "", fmt.Errorf("time %q plus %d minutes leaves the day", hhmm, minutes)
	}
	return fmt.Sprintf("%02d:%02d", total/60, total%60), nil
}
