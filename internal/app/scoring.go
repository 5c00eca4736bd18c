package app

import (
	"fmt"

	"quiz-battle-service/internal/domain"
)

const (
	baseScore = 10

	fastAnswerMs    = 2000
	fastAnswerLimit = 3

	varianceMinSamples = 5
	varianceThreshold  = 500.0

	tabSwitchLimit = 5
)

// scoreAnswer computes the points for a submission. Incorrect answers are
// always worth zero; correct answers earn the base score plus a time bonus
// evaluated in strict precedence order.
func scoreAnswer(correct bool, timeTakenMs int64) int {
	if !correct {
		return 0
	}
	switch {
	case timeTakenMs < 5000:
		return baseScore + 5
	case timeTakenMs < 10000:
		return baseScore + 3
	case timeTakenMs < 20000:
		return baseScore + 1
	default:
		return baseScore
	}
}

// detectSuspicion runs cheat detection over a participant's full answer log
// and returns any new flags to append. Flags are advisory and never retracted.
func detectSuspicion(answers []domain.AnswerRecord) []string {
	var flags []string

	fast := 0
	for _, a := range answers {
		if a.TimeTakenMs < fastAnswerMs {
			fast++
		}
	}
	if fast > fastAnswerLimit {
		flags = append(flags, fmt.Sprintf("too many fast answers: %d", fast))
	}

	if len(answers) >= varianceMinSamples {
		if v := timingVariance(answers); v < varianceThreshold {
			flags = append(flags, fmt.Sprintf("suspiciously consistent timing, variance: %.2f", v))
		}
	}

	return flags
}

// timingVariance is the population variance (mean of squared deviations) of
// all recorded answer times. Not a sliding window: every sample counts.
func timingVariance(answers []domain.AnswerRecord) float64 {
	n := float64(len(answers))
	var sum float64
	for _, a := range answers {
		sum += float64(a.TimeTakenMs)
	}
	mean := sum / n

	var sq float64
	for _, a := range answers {
		d := float64(a.TimeTakenMs) - mean
		sq += d * d
	}
	return sq / n
}
