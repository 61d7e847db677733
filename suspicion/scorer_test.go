package suspicion

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/clank08/tcwatch-authguard/internal/kv"
)

const plausibleUA = "Mozilla/5.0 (X11; Linux x86_64) Gecko/20100101"

func newTestScorer(t *testing.T) (*Scorer, *miniredis.Miniredis, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	return New(kv.NewClient(rdb)), mr, func() {
		_ = rdb.Close()
		mr.Close()
	}
}

func TestAssess_CleanRequest(t *testing.T) {
	scorer, _, done := newTestScorer(t)
	defer done()

	report, err := scorer.Assess(context.Background(), Sample{
		IP:        "1.2.3.4",
		UserAgent: plausibleUA,
		Email:     "a@test.com",
	})
	if err != nil {
		t.Fatalf("assess failed: %v", err)
	}
	if report.Suspicious || report.RiskScore != 0 || len(report.Reasons) != 0 {
		t.Fatalf("expected clean report, got %+v", report)
	}
}

func TestAssess_UserAgentShapeAloneIsNotSuspicious(t *testing.T) {
	scorer, _, done := newTestScorer(t)
	defer done()

	report, err := scorer.Assess(context.Background(), Sample{IP: "1.2.3.4", UserAgent: ""})
	if err != nil {
		t.Fatalf("assess failed: %v", err)
	}
	if report.RiskScore != 25 {
		t.Fatalf("expected score 25, got %d", report.RiskScore)
	}
	if report.Suspicious {
		t.Fatal("25 points must stay under the threshold")
	}
}

func TestAssess_BurstPlusUserAgentCrossesThreshold(t *testing.T) {
	scorer, _, done := newTestScorer(t)
	defer done()

	fixed := time.Date(2026, 3, 1, 12, 0, 30, 0, time.UTC)
	scorer.WithClock(func() time.Time { return fixed })

	ctx := context.Background()
	sample := Sample{IP: "1.2.3.4", UserAgent: "curl/8"}

	var report Report
	var err error
	for i := 0; i < 61; i++ {
		report, err = scorer.Assess(ctx, sample)
		if err != nil {
			t.Fatalf("assess %d failed: %v", i, err)
		}
	}

	// 61st request in the minute: 30 (burst) + 25 (user agent) = 55.
	if !report.Suspicious || report.RiskScore != 55 {
		t.Fatalf("expected suspicious at 55, got %+v", report)
	}
	if len(report.Reasons) != 2 {
		t.Fatalf("expected two reasons, got %v", report.Reasons)
	}
}

func TestAssess_CredentialSprayingSignature(t *testing.T) {
	scorer, _, done := newTestScorer(t)
	defer done()

	ctx := context.Background()

	var report Report
	var err error
	for i := 0; i < 11; i++ {
		report, err = scorer.Assess(ctx, Sample{
			IP:        "6.6.6.6",
			UserAgent: plausibleUA,
			Email:     fmt.Sprintf("victim%d@test.com", i),
		})
		if err != nil {
			t.Fatalf("assess %d failed: %v", i, err)
		}
	}

	// Spraying alone meets the threshold.
	if !report.Suspicious || report.RiskScore != 50 {
		t.Fatalf("expected suspicious at 50, got %+v", report)
	}
}

func TestAssess_RepeatedEmailIsNotSpraying(t *testing.T) {
	scorer, _, done := newTestScorer(t)
	defer done()

	ctx := context.Background()

	var report Report
	var err error
	for i := 0; i < 20; i++ {
		report, err = scorer.Assess(ctx, Sample{
			IP:        "7.7.7.7",
			UserAgent: plausibleUA,
			Email:     "same@test.com",
		})
		if err != nil {
			t.Fatalf("assess %d failed: %v", i, err)
		}
	}

	if report.Suspicious {
		t.Fatalf("one distinct email must not flag spraying: %+v", report)
	}
}

func TestAssess_StoreDownDegradesToStorelessSignals(t *testing.T) {
	scorer, mr, done := newTestScorer(t)
	defer done()

	mr.Close()

	report, err := scorer.Assess(context.Background(), Sample{IP: "1.2.3.4", UserAgent: ""})
	if !errors.Is(err, kv.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	// The user-agent signal needs no store and survives.
	if report.RiskScore != 25 {
		t.Fatalf("expected storeless score 25, got %+v", report)
	}
	if report.Suspicious {
		t.Fatal("degraded report must not cross the threshold on its own")
	}
}
