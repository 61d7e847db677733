package suspicion

import (
	"context"
	"fmt"
	"time"

	"github.com/clank08/tcwatch-authguard/internal/kv"
)

// Scoring rubric. A sample is suspicious at or above the threshold, so
// credential spraying alone is enough, and any two other signals
// together are as well.
const (
	scoreBurstRate      = 30
	scoreUserAgentShape = 25
	scoreSpraying       = 50

	suspiciousThreshold = 50

	maxRequestsPerMinute = 60
	minUserAgentLength   = 10
	maxDistinctEmails    = 10

	sprayWindow = 15 * time.Minute
)

// Sample carries the per-request inputs the scorer inspects.
type Sample struct {
	IP        string
	UserAgent string
	Email     string
}

// Report is the advisory outcome of one assessment.
type Report struct {
	Suspicious bool
	Reasons    []string
	RiskScore  int
}

// Scorer computes suspicion reports over shared-store counters.
type Scorer struct {
	store *kv.Client
	now   func() time.Time
}

// New creates a Scorer backed by the shared store client.
func New(store *kv.Client) *Scorer {
	return &Scorer{store: store, now: time.Now}
}

// WithClock overrides the scorer's time source for tests.
func (s *Scorer) WithClock(now func() time.Time) *Scorer {
	s.now = now
	return s
}

func (s *Scorer) requestKey(ip string, minute int64) string {
	return fmt.Sprintf("sus:req:%s:%d", ip, minute)
}

func (s *Scorer) emailSetKey(ip string) string {
	return "sus:emails:" + ip
}

// Assess scores one request. The returned report is always usable; the
// error, when non-nil, means the store-backed signals were skipped
// because the store was unreachable. Callers log the error and move on
// — this path never denies a request.
func (s *Scorer) Assess(ctx context.Context, sample Sample) (Report, error) {
	var report Report

	if len(sample.UserAgent) < minUserAgentLength {
		report.RiskScore += scoreUserAgentShape
		report.Reasons = append(report.Reasons, "missing or implausible user agent")
	}

	storeErr := s.assessStoreSignals(ctx, sample, &report)

	report.Suspicious = report.RiskScore >= suspiciousThreshold
	return report, storeErr
}

func (s *Scorer) assessStoreSignals(ctx context.Context, sample Sample, report *Report) error {
	if sample.IP == "" {
		return nil
	}

	minute := s.now().Unix() / 60
	reqKey := s.requestKey(sample.IP, minute)

	count, first, err := s.store.Increment(ctx, reqKey)
	if err != nil {
		return err
	}
	if first {
		if err := s.store.Expire(ctx, reqKey, time.Minute); err != nil {
			return err
		}
	}
	if count > maxRequestsPerMinute {
		report.RiskScore += scoreBurstRate
		report.Reasons = append(report.Reasons, "request rate exceeds burst threshold")
	}

	if sample.Email == "" {
		return nil
	}

	setKey := s.emailSetKey(sample.IP)
	if _, err := s.store.SAdd(ctx, setKey, sample.Email); err != nil {
		return err
	}
	// Refreshing the TTL on every add makes the distinct-email window
	// slide with activity, which is what a spraying signature wants.
	if err := s.store.Expire(ctx, setKey, sprayWindow); err != nil {
		return err
	}

	distinct, err := s.store.SCard(ctx, setKey)
	if err != nil {
		return err
	}
	if distinct > maxDistinctEmails {
		report.RiskScore += scoreSpraying
		report.Reasons = append(report.Reasons, "distinct email attempts exceed spraying threshold")
	}

	return nil
}
