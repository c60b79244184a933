package optimization

import "time"

// FeedbackCategory classifies what aspect of an optimization a rating
// addresses.
type FeedbackCategory string

const (
	FeedbackAccuracy     FeedbackCategory = "accuracy"
	FeedbackRelevance    FeedbackCategory = "relevance"
	FeedbackClarity      FeedbackCategory = "clarity"
	FeedbackCompleteness FeedbackCategory = "completeness"
	FeedbackEfficiency   FeedbackCategory = "efficiency"
)

// Feedback is an append-only user rating of an optimized template.
type Feedback struct {
	ID            string
	TemplateID    string
	OptimizationID string
	Timestamp     time.Time
	Rating        int // 1-5
	Category      FeedbackCategory
	Comment       string
}

// MetricType enumerates the kinds of performance measurements tracked per
// template.
type MetricType string

const (
	MetricResponseTime     MetricType = "response-time"
	MetricTokenUsage       MetricType = "token-usage"
	MetricAccuracyScore    MetricType = "accuracy-score"
	MetricUserSatisfaction MetricType = "user-satisfaction"
	MetricErrorRate        MetricType = "error-rate"
)

// PerformanceMetric is an append-only, timestamped observation for a
// template.
type PerformanceMetric struct {
	TemplateID string
	Timestamp  time.Time
	Type       MetricType
	Value      float64
	Context    map[string]interface{}
}
