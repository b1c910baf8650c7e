package violation

import "fmt"

// DefaultThreshold is the cumulative count that forces submission.
const DefaultThreshold = 6

// firstWarningAt is the count at which warnings start.
const firstWarningAt = 2

// Warning is emitted for counts between the first warning and the threshold.
type Warning struct {
	Count     int `json:"count"`
	Threshold int `json:"threshold"`
	// Level grows by one per violation, starting at 1.
	Level   int    `json:"level"`
	Message string `json:"message"`
}

// Escalator receives the outcome of the escalation policy. The session
// controller is the only implementation.
type Escalator interface {
	Warn(w Warning)
	// ThresholdReached is called exactly once per monitor.
	ThresholdReached(count int)
}

// Escalate evaluates the policy for a cumulative count. It returns the
// warning to show, if any, and whether the threshold has been reached.
func Escalate(count, threshold int) (*Warning, bool) {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if count >= threshold {
		return nil, true
	}
	if count < firstWarningAt {
		return nil, false
	}
	w := &Warning{
		Count:     count,
		Threshold: threshold,
		Level:     count - firstWarningAt + 1,
	}
	w.Message = warningMessage(count, threshold)
	return w, false
}

func warningMessage(count, threshold int) string {
	left := threshold - count
	switch {
	case left == 1:
		return fmt.Sprintf("PERINGATAN TERAKHIR: %d/%d pelanggaran. Satu pelanggaran lagi dan ujian akan dikumpulkan otomatis.", count, threshold)
	case count == firstWarningAt:
		return fmt.Sprintf("Peringatan: aktivitas mencurigakan terdeteksi (%d/%d). Tetap fokus pada halaman ujian.", count, threshold)
	default:
		return fmt.Sprintf("Peringatan serius: %d/%d pelanggaran. Ujian akan dikumpulkan otomatis setelah %d pelanggaran lagi.", count, threshold, left)
	}
}
