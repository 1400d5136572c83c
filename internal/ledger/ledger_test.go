// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ledger

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traylinx/payverify/internal/analyzer"
)

var (
	approvedTexts = []string{
		"支付宝 支付成功 金额: ¥9.9 时间: 2026-02-24 20:45:30 商户: OpenClaw Guide",
		"支付宝支付 ¥9.90 付款成功 交易时间: 刚刚",
		"账单详情 金额: 9.9元 状态: 支付成功 支付宝",
		"支付宝 转账 金额: 9.9 收款方: OpenClaw Guide 状态: 成功",
	}
	rejectedText = "微信支付 金额: ¥9.9"

	idPattern = regexp.MustCompile(`^VER-\d+-[A-Z0-9]{6}$`)
)

type noNoise struct{}

func (noNoise) Float64() float64 { return 0.5 }
func (noNoise) Intn(int) int     { return 0 }

// fakeClock advances one millisecond on every read.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 2, 24, 20, 45, 30, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingObserver struct {
	mu       sync.Mutex
	verdicts []Verdict
}

func (o *recordingObserver) OnVerdict(v Verdict) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.verdicts = append(o.verdicts, v)
}

func newTestLedger(t *testing.T, opts ...Option) (*Ledger, *fakeClock) {
	t.Helper()
	a, err := analyzer.New(analyzer.DefaultRules(), noNoise{})
	require.NoError(t, err)
	clock := newFakeClock()
	base := []Option{WithLatency(0), WithClock(clock.Now), WithRandom(analyzer.NewRandom(99))}
	return New(a, append(base, opts...)...), clock
}

func TestLedger_EmptyState(t *testing.T) {
	l, _ := newTestLedger(t)

	stats := l.Statistics()
	assert.Equal(t, Stats{ApprovalRate: "0%"}, stats)

	snap := l.Export()
	assert.Empty(t, snap.RecentVerifications)
	assert.NotNil(t, snap.ApprovedIDs)
	assert.Empty(t, snap.ApprovedIDs)
	assert.Equal(t, 0, l.Len())
}

func TestLedger_VerifyApproved(t *testing.T) {
	obs := &recordingObserver{}
	l, _ := newTestLedger(t, WithObserver(obs))

	v, err := l.Verify(context.Background(), approvedTexts[0])
	require.NoError(t, err)

	assert.True(t, v.Approved)
	assert.InDelta(t, 0.95, v.Confidence, 1e-9)
	assert.Equal(t, v.Analysis.IsValid, v.Approved)
	assert.Equal(t, v.Analysis.Confidence, v.Confidence)
	assert.Equal(t, approvedTexts[0], v.RecognizedText)
	assert.Regexp(t, idPattern, v.VerificationID)
	assert.Contains(t, v.VerificationID, fmt.Sprintf("-%d-", v.Timestamp.UnixMilli()))

	assert.True(t, l.IsApproved(v.VerificationID))
	got, ok := l.Lookup(v.VerificationID)
	require.True(t, ok)
	assert.Equal(t, v, got)

	require.Len(t, obs.verdicts, 1)
	assert.Equal(t, v.VerificationID, obs.verdicts[0].VerificationID)
}

func TestLedger_VerifyRejected(t *testing.T) {
	l, _ := newTestLedger(t)

	v, err := l.Verify(context.Background(), rejectedText)
	require.NoError(t, err)
	assert.False(t, v.Approved)
	assert.False(t, v.Analysis.HasProvider)
	assert.Contains(t, v.Analysis.MatchedKeywords, "[NEG]微信")
	assert.False(t, l.IsApproved(v.VerificationID))

	_, ok := l.Lookup("VER-0-NOPE00")
	assert.False(t, ok)
}

func TestLedger_EmptyTextUsesPlaceholder(t *testing.T) {
	l, _ := newTestLedger(t)

	for _, text := range []string{"", "   \n\t"} {
		v, err := l.Verify(context.Background(), text)
		require.NoError(t, err)
		assert.False(t, v.Approved)
		assert.Equal(t, NoTextPlaceholder, v.RecognizedText)
		assert.Equal(t, 0, v.Analysis.Score)
		assert.InDelta(t, 0.30, v.Confidence, 1e-9)
	}
}

func TestLedger_StatisticsAfterFiveVerifications(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	for _, text := range approvedTexts {
		_, err := l.Verify(ctx, text)
		require.NoError(t, err)
	}
	_, err := l.Verify(ctx, rejectedText)
	require.NoError(t, err)

	stats := l.Statistics()
	assert.Equal(t, 5, stats.Total)
	assert.Equal(t, 4, stats.Approved)
	assert.Equal(t, 1, stats.Rejected)
	assert.Equal(t, "80.0%", stats.ApprovalRate)
	assert.Equal(t, 5, stats.Last24Hours)
}

func TestLedger_Last24HoursWindow(t *testing.T) {
	l, clock := newTestLedger(t)
	ctx := context.Background()

	_, err := l.Verify(ctx, approvedTexts[0])
	require.NoError(t, err)
	clock.Advance(25 * time.Hour)
	_, err = l.Verify(ctx, approvedTexts[1])
	require.NoError(t, err)

	stats := l.Statistics()
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Last24Hours)
}

func TestLedger_ExportKeepsMostRecentInOrder(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 13; i++ {
		text := approvedTexts[i%len(approvedTexts)]
		if i%3 == 0 {
			text = rejectedText
		}
		v, err := l.Verify(ctx, text)
		require.NoError(t, err)
		ids = append(ids, v.VerificationID)
	}

	snap := l.Export()
	require.Len(t, snap.RecentVerifications, RecentLimit)
	for i, v := range snap.RecentVerifications {
		assert.Equal(t, ids[3+i], v.VerificationID)
	}
	assert.Equal(t, 13, snap.Statistics.Total)
	assert.Len(t, snap.ApprovedIDs, snap.Statistics.Approved)
	for _, id := range snap.ApprovedIDs {
		assert.True(t, l.IsApproved(id))
	}
	assert.True(t, snap.RecentVerifications[len(snap.RecentVerifications)-1].Timestamp.Before(snap.Timestamp))
}

func TestLedger_ExportIsDetached(t *testing.T) {
	l, _ := newTestLedger(t)
	v, err := l.Verify(context.Background(), approvedTexts[0])
	require.NoError(t, err)

	snap := l.Export()
	snap.RecentVerifications[0].Analysis.MatchedKeywords[0] = "tampered"
	v.Analysis.MatchedKeywords[0] = "tampered"

	again, ok := l.Lookup(v.VerificationID)
	require.True(t, ok)
	assert.Equal(t, "9.9", again.Analysis.MatchedKeywords[0])
}

func TestLedger_VerifyHonoursLatency(t *testing.T) {
	a, err := analyzer.New(analyzer.DefaultRules(), noNoise{})
	require.NoError(t, err)
	l := New(a, WithLatency(20*time.Millisecond))

	start := time.Now()
	_, err = l.Verify(context.Background(), approvedTexts[0])
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestLedger_VerifyCancelledDuringLatency(t *testing.T) {
	a, err := analyzer.New(analyzer.DefaultRules(), noNoise{})
	require.NoError(t, err)
	l := New(a, WithLatency(time.Minute))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = l.Verify(ctx, approvedTexts[0])
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, 0, l.Len())
}

func TestLedger_ConcurrentVerify(t *testing.T) {
	a, err := analyzer.New(analyzer.DefaultRules(), analyzer.NewRandom(3))
	require.NoError(t, err)
	l := New(a, WithLatency(0), WithRandom(analyzer.NewRandom(4)))

	const workers, perWorker = 8, 25
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				_, err := l.Verify(context.Background(), approvedTexts[(w+i)%len(approvedTexts)])
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	stats := l.Statistics()
	assert.Equal(t, workers*perWorker, stats.Total)
	assert.Equal(t, stats.Total, stats.Approved+stats.Rejected)

	l.mu.RLock()
	defer l.mu.RUnlock()
	seen := make(map[string]bool, len(l.entries))
	for i, v := range l.entries {
		assert.False(t, seen[v.VerificationID], "duplicate id %s", v.VerificationID)
		seen[v.VerificationID] = true
		if i > 0 {
			assert.False(t, v.Timestamp.Before(l.entries[i-1].Timestamp), "log out of chronological order")
		}
	}
}

func TestLedger_ObserversSeeLogOrder(t *testing.T) {
	obs := &recordingObserver{}
	a, err := analyzer.New(analyzer.DefaultRules(), analyzer.NewRandom(8))
	require.NoError(t, err)
	l := New(a, WithLatency(0), WithRandom(analyzer.NewRandom(9)), WithObserver(obs))

	const workers, perWorker = 8, 25
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				text := approvedTexts[(w+i)%len(approvedTexts)]
				if i%4 == 0 {
					text = rejectedText
				}
				_, err := l.Verify(context.Background(), text)
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	l.mu.RLock()
	defer l.mu.RUnlock()
	obs.mu.Lock()
	defer obs.mu.Unlock()
	require.Len(t, obs.verdicts, len(l.entries))
	for i, v := range obs.verdicts {
		assert.Equal(t, l.entries[i].VerificationID, v.VerificationID, "observer order diverges at %d", i)
	}
}
