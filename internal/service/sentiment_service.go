package service

import (
	"context"
	"strings"

	"github.com/civic-kit/grievance-service/internal/domain"
	"github.com/civic-kit/grievance-service/internal/keywords"
	"github.com/civic-kit/grievance-service/internal/llm"
)

// Emotion levels and priority recommendations.
const (
	EmotionCalm       = "calm"
	EmotionConcerned  = "concerned"
	EmotionFrustrated = "frustrated"
	EmotionAngry      = "angry"
	EmotionUrgent     = "urgent"

	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

var (
	validEmotions   = map[string]bool{EmotionCalm: true, EmotionConcerned: true, EmotionFrustrated: true, EmotionAngry: true, EmotionUrgent: true}
	validPriorities = map[string]bool{PriorityNormal: true, PriorityHigh: true, PriorityUrgent: true}
)

// SentimentService scores the citizen's emotional state.
type SentimentService struct {
	caller      *llm.Caller
	matcher     *keywords.Matcher
	temperature float64
}

// NewSentimentService constructs the service.
func NewSentimentService(caller *llm.Caller, matcher *keywords.Matcher, temperature float64) *SentimentService {
	return &SentimentService{caller: caller, matcher: matcher, temperature: temperature}
}

// NeutralSentiment is returned whenever analysis is not possible.
func NeutralSentiment() domain.Sentiment {
	return domain.Sentiment{
		Score:                  0,
		EmotionLevel:           EmotionCalm,
		UrgencyBoost:           0,
		PriorityRecommendation: PriorityNormal,
	}
}

var sentimentSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"emotion_level":           map[string]any{"type": []string{"string", "null"}},
		"priority_recommendation": map[string]any{"type": []string{"string", "null"}},
		"indicators":              map[string]any{"type": []string{"array", "null"}},
		"detected_emotions":       map[string]any{"type": []string{"array", "null"}},
	},
}

// Analyze never fails the complaint: on error it returns the neutral result
// together with the error so the caller can record it.
func (s *SentimentService) Analyze(ctx context.Context, description string) (domain.Sentiment, error) {
	if strings.TrimSpace(description) == "" {
		return NeutralSentiment(), nil
	}

	obj, err := s.caller.Object(ctx, llm.Request{
		Stage:       llm.StageSentiment,
		System:      sentimentSystemPrompt,
		Prompt:      "Complaint: " + description,
		Temperature: s.temperature,
	}, sentimentSchema)
	if err != nil {
		return NeutralSentiment(), externalError(llm.StageSentiment, err)
	}

	result := NeutralSentiment()
	if score, ok := floatField(obj, "sentiment_score"); ok {
		result.Score = clamp(score, -1, 1)
	}
	if boost, ok := floatField(obj, "urgency_boost"); ok {
		result.UrgencyBoost = clamp(boost, 0, 1)
	}
	if emotion := strings.ToLower(stringField(obj, "emotion_level")); validEmotions[emotion] {
		result.EmotionLevel = emotion
	}
	if priority := strings.ToLower(stringField(obj, "priority_recommendation")); validPriorities[priority] {
		result.PriorityRecommendation = priority
	}
	result.Indicators = stringsField(obj, "indicators")
	result.DetectedEmotions = stringsField(obj, "detected_emotions")

	return s.applyKeywordOverlays(result, s.matcher.Match(description)), nil
}

func (s *SentimentService) applyKeywordOverlays(r domain.Sentiment, hits keywords.Hits) domain.Sentiment {
	if hits.Has(groupAnger) {
		r.EmotionLevel = EmotionAngry
		r.Score = min(r.Score, -0.8)
		r.UrgencyBoost = max(r.UrgencyBoost, 0.7)
		r.PriorityRecommendation = PriorityUrgent
		r.Indicators = appendUnique(r.Indicators, "critical_anger_detected")
	}
	if hits.Has(groupFrustration) {
		if r.EmotionLevel != EmotionAngry && r.EmotionLevel != EmotionUrgent {
			r.EmotionLevel = EmotionFrustrated
		}
		r.Score = min(r.Score, -0.5)
		r.UrgencyBoost = max(r.UrgencyBoost, 0.4)
		if r.PriorityRecommendation == PriorityNormal {
			r.PriorityRecommendation = PriorityHigh
		}
		r.Indicators = appendUnique(r.Indicators, "frustration_detected")
	}
	if hits.Has(groupUrgencyLanguage) {
		r.UrgencyBoost = max(r.UrgencyBoost, 0.5)
		if r.PriorityRecommendation != PriorityUrgent {
			r.PriorityRecommendation = PriorityHigh
		}
		r.Indicators = appendUnique(r.Indicators, "urgency_language")
	}
	if hits.Has(groupPoliteness) && r.Score < -0.3 {
		r.Score = -0.3
	}
	return r
}

// AdjustUrgency applies the sentiment coupling; it never lowers urgency.
func AdjustUrgency(current domain.Urgency, s domain.Sentiment) domain.Urgency {
	switch s.EmotionLevel {
	case EmotionAngry, EmotionUrgent:
		return domain.UrgencyUrgent
	case EmotionFrustrated:
		if !current.AtLeast(domain.UrgencyHigh) {
			return current.Raise(1)
		}
	}
	return current
}
