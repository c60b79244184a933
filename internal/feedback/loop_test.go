package feedback

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cursor-prompt/prompt-optimizer/internal/domain/optimization"
	"github.com/cursor-prompt/prompt-optimizer/internal/domain/shared"
	"github.com/cursor-prompt/prompt-optimizer/internal/domain/template"
	"github.com/cursor-prompt/prompt-optimizer/internal/queue"
)

type fakeSubmitter struct {
	mu   sync.Mutex
	jobs []string // template ids submitted
	err  error
}

func (f *fakeSubmitter) AddJob(templateID string, tmpl template.Template, req optimization.Request, opts queue.AddOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.jobs = append(f.jobs, templateID)
	return "job-" + templateID, nil
}

func (f *fakeSubmitter) submitted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.jobs...)
}

func testLoop(sub Submitter, auto bool) *Loop {
	cfg := DefaultConfig()
	cfg.EnableAutoReoptimization = auto
	cfg.Cooldown = time.Hour
	return New(cfg, sub, nil, zap.NewNop())
}

func addRatings(t *testing.T, l *Loop, templateID string, ratings ...int) {
	t.Helper()
	for _, r := range ratings {
		require.NoError(t, l.RecordFeedback(optimization.Feedback{
			TemplateID: templateID,
			Rating:     r,
			Category:   optimization.FeedbackAccuracy,
		}))
	}
}

func TestRejectsInvalidFeedback(t *testing.T) {
	l := testLoop(nil, false)
	assert.Error(t, l.RecordFeedback(optimization.Feedback{TemplateID: "t", Rating: 0}))
	assert.Error(t, l.RecordFeedback(optimization.Feedback{TemplateID: "t", Rating: 6}))
	assert.Error(t, l.RecordFeedback(optimization.Feedback{Rating: 3}))
}

func TestFeedbackStoredInArrivalOrder(t *testing.T) {
	l := testLoop(nil, false)
	addRatings(t, l, "t", 5, 3, 1)

	fbs := l.Feedback("t")
	require.Len(t, fbs, 3)
	assert.Equal(t, []int{5, 3, 1}, []int{fbs[0].Rating, fbs[1].Rating, fbs[2].Rating})
	for _, fb := range fbs {
		assert.NotEmpty(t, fb.ID)
		assert.False(t, fb.Timestamp.IsZero())
	}
}

func TestLowRatingTriggersReoptimization(t *testing.T) {
	sub := &fakeSubmitter{}
	l := testLoop(sub, true)
	l.RegisterTemplate(template.Template{ID: "t", Name: "t", Version: "1", Content: "{{x}}"})

	var triggered []string
	var mu sync.Mutex
	l.On(EventReoptimizationTriggered, func(evt shared.Event) {
		payload := evt.Payload.(map[string]interface{})
		mu.Lock()
		triggered = append(triggered, payload["template_id"].(string))
		mu.Unlock()
	})

	// Nine low ratings: below the threshold count, nothing happens.
	addRatings(t, l, "t", 2, 2, 2, 2, 2, 2, 2, 2, 2)
	assert.Empty(t, sub.submitted())

	// The tenth crosses feedbackThreshold with average < 3.0.
	addRatings(t, l, "t", 2)
	assert.Equal(t, []string{"t"}, sub.submitted())
	mu.Lock()
	assert.Equal(t, []string{"t"}, triggered)
	mu.Unlock()
}

func TestHighRatingsDoNotTrigger(t *testing.T) {
	sub := &fakeSubmitter{}
	l := testLoop(sub, true)
	l.RegisterTemplate(template.Template{ID: "t", Name: "t", Version: "1"})

	addRatings(t, l, "t", 5, 5, 4, 5, 4, 5, 4, 5, 5, 4, 5, 5)
	assert.Empty(t, sub.submitted())
}

func TestCooldownSuppressesRepeatTriggers(t *testing.T) {
	sub := &fakeSubmitter{}
	l := testLoop(sub, true)
	l.RegisterTemplate(template.Template{ID: "t", Name: "t", Version: "1"})

	addRatings(t, l, "t", 1, 1, 1, 1, 1, 1, 1, 1, 1, 1)
	require.Len(t, sub.submitted(), 1)

	// Still bad, but inside the cooldown window: no second trigger.
	addRatings(t, l, "t", 1, 1, 1)
	assert.Len(t, sub.submitted(), 1)
}

func TestAutoDisabledOnlyRecommends(t *testing.T) {
	sub := &fakeSubmitter{}
	l := testLoop(sub, false)
	l.RegisterTemplate(template.Template{ID: "t", Name: "t", Version: "1"})

	var triggerCount int
	var mu sync.Mutex
	l.On(EventReoptimizationTriggered, func(shared.Event) {
		mu.Lock()
		triggerCount++
		mu.Unlock()
	})

	addRatings(t, l, "t", 1, 1, 1, 1, 1, 1, 1, 1, 1, 1)

	mu.Lock()
	assert.Equal(t, 1, triggerCount)
	mu.Unlock()
	assert.Empty(t, sub.submitted(), "auto re-optimization disabled must not submit jobs")
}

func TestPerformanceDegradationTriggers(t *testing.T) {
	sub := &fakeSubmitter{}
	l := testLoop(sub, true)
	l.RegisterTemplate(template.Template{ID: "t", Name: "t", Version: "1"})

	// Five strong baseline observations, then five weak recent ones:
	// recent mean 50 / prior mean 100 = 0.5 < 0.8.
	values := []float64{100, 100, 100, 100, 100, 50, 50, 50, 50, 50}
	for _, v := range values {
		require.NoError(t, l.RecordMetric(optimization.PerformanceMetric{
			TemplateID: "t",
			Type:       optimization.MetricAccuracyScore,
			Value:      v,
		}))
	}
	assert.Equal(t, []string{"t"}, sub.submitted())
}

func TestStablePerformanceDoesNotTrigger(t *testing.T) {
	sub := &fakeSubmitter{}
	l := testLoop(sub, true)
	l.RegisterTemplate(template.Template{ID: "t", Name: "t", Version: "1"})

	for i := 0; i < 12; i++ {
		require.NoError(t, l.RecordMetric(optimization.PerformanceMetric{
			TemplateID: "t",
			Type:       optimization.MetricResponseTime,
			Value:      100,
		}))
	}
	assert.Empty(t, sub.submitted())
}

func TestTrendDetection(t *testing.T) {
	tests := []struct {
		name    string
		ratings []int
		want    Trend
	}{
		{"too few", []int{5, 1, 5}, TrendStable},
		{"improving", []int{2, 2, 2, 4, 4, 4}, TrendImproving},
		{"declining", []int{5, 5, 5, 2, 2, 2}, TrendDeclining},
		{"stable", []int{3, 3, 3, 3, 3, 3}, TrendStable},
		{"borderline delta", []int{3, 3, 3, 3, 3, 4}, TrendStable}, // delta ~0.33
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := testLoop(nil, false)
			addRatings(t, l, "t", tt.ratings...)
			assert.Equal(t, tt.want, l.FeedbackTrend("t"))
		})
	}
}

func TestDecliningTrendTriggersImmediately(t *testing.T) {
	sub := &fakeSubmitter{}
	l := testLoop(sub, true)
	l.RegisterTemplate(template.Template{ID: "t", Name: "t", Version: "1"})

	// Declining trend with averages above the rating threshold and fewer
	// than feedbackThreshold entries still counts as a trigger condition.
	addRatings(t, l, "t", 5, 5, 5, 3, 3, 3)
	assert.Equal(t, []string{"t"}, sub.submitted())
}

func TestScheduledReviewRetriggersAfterCooldown(t *testing.T) {
	sub := &fakeSubmitter{}
	cfg := DefaultConfig()
	cfg.EnableAutoReoptimization = true
	cfg.Cooldown = time.Millisecond
	l := New(cfg, sub, nil, zap.NewNop())
	l.RegisterTemplate(template.Template{ID: "t", Name: "t", Version: "1"})

	addRatings(t, l, "t", 5, 5, 5, 3, 3, 3)
	require.Equal(t, []string{"t"}, sub.submitted())

	time.Sleep(10 * time.Millisecond)
	l.RunScheduledReview()
	assert.Equal(t, []string{"t", "t"}, sub.submitted())
}

func TestReoptimizationOutcomeEvents(t *testing.T) {
	sub := &fakeSubmitter{}
	l := testLoop(sub, true)
	l.RegisterTemplate(template.Template{ID: "t", Name: "t", Version: "1"})

	var outcomes []string
	var mu sync.Mutex
	l.On(EventReoptimizationCompleted, func(evt shared.Event) {
		mu.Lock()
		outcomes = append(outcomes, "completed")
		mu.Unlock()
	})

	addRatings(t, l, "t", 1, 1, 1, 1, 1, 1, 1, 1, 1, 1)
	require.Equal(t, []string{"t"}, sub.submitted())

	// Simulate the queue completing the tracked job.
	l.resolveTracked(shared.Event{
		Name:    queue.EventJobCompleted,
		Payload: map[string]interface{}{"job_id": "job-t"},
	}, EventReoptimizationCompleted)

	mu.Lock()
	assert.Equal(t, []string{"completed"}, outcomes)
	mu.Unlock()
}
