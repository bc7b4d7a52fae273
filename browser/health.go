package browser

import (
	"math"
	"sync"
	"time"

	"github.com/go-rod/rod"
)

// Retirement thresholds for a warm browser.
const (
	maxErrScore = 3.0
	maxUses     = 50
	maxAge      = 50 * time.Minute
)

// instance is one browser process with health tracking.
//
// Scoring: a clean release lowers errScore by 0.5 (min 0), a failed one
// raises it by 1. The instance is retired once errScore reaches 3, after 50
// sessions, or 50 minutes after launch, whichever comes first.
type instance struct {
	id      int64
	browser *rod.Browser
	kill    func()
	created time.Time

	mu       sync.Mutex
	errScore float64
	useCount int
}

func (in *instance) recordSuccess() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.useCount++
	in.errScore = math.Max(0, in.errScore-0.5)
}

func (in *instance) recordFailure() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.useCount++
	in.errScore += 1.0
}

func (in *instance) shouldRetire() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.errScore >= maxErrScore ||
		in.useCount >= maxUses ||
		time.Since(in.created) >= maxAge
}

// close disconnects from the browser and terminates the process.
func (in *instance) close() {
	if in.browser != nil {
		_ = in.browser.Close()
	}
	if in.kill != nil {
		in.kill()
	}
}
