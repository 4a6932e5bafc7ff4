package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civic-kit/grievance-service/internal/domain"
	"github.com/civic-kit/grievance-service/internal/llm"
	"github.com/civic-kit/grievance-service/internal/repository"
	apperrors "github.com/civic-kit/grievance-service/pkg/util"
)

type recordingScheduler struct {
	ids []string
}

func (r *recordingScheduler) ScheduleDeadline(_ context.Context, id string, _ time.Time) error {
	r.ids = append(r.ids, id)
	return nil
}

type failingRepository struct {
	repository.ComplaintRepository
}

func (failingRepository) Create(context.Context, *domain.Complaint) error {
	return errors.New("connection refused")
}

func newPipeline(f *fixture, repo repository.ComplaintRepository, notifier Notifier, scheduler DeadlineScheduler) *ComplaintPipeline {
	return NewComplaintPipeline(PipelineDependencies{
		Classifier:   f.classifier,
		Sentiment:    f.sentiment,
		SLA:          f.sla,
		Policy:       f.policy,
		Complaints:   repo,
		Notifier:     notifier,
		Scheduler:    scheduler,
		StageTimeout: time.Second,
	})
}

func TestPipelineHappyPath(t *testing.T) {
	f := newFixture(t, newScripted(map[string]string{
		llm.StageClassification: `{"urgency":"medium","category":"sanitation","department":"municipal","reasoning":"waste collection"}`,
		llm.StageSentiment:      `{"sentiment_score":-0.4,"emotion_level":"frustrated","urgency_boost":0.3,"priority_recommendation":"high"}`,
		llm.StageSLA:            `{"sla_hours":48}`,
		llm.StagePolicy:         `{"applicable_policies":[],"legal_sla":{"hours":6,"basis":"SWM rules"},"policy_violation":false}`,
	}))
	store := repository.NewMemoryStore(nil)
	notifier := &recordingNotifier{}
	scheduler := &recordingScheduler{}

	result, err := newPipeline(f, store.Complaints(), notifier, scheduler).Run(context.Background(), ComplaintInput{
		Description: "Garbage has not been collected in our lane for two weeks",
		Contact:     domain.CitizenContact{Name: "Asha", Phone: "+91 98765 43210"},
		Location:    domain.Location{City: "Pune", Pincode: "411038"},
	})
	require.NoError(t, err)
	assert.Equal(t, StageDone, result.Stage)
	assert.False(t, result.Degraded())

	c := result.Complaint
	assert.Equal(t, "pune_municipal", c.Department)
	assert.Equal(t, domain.UrgencyHigh, c.Urgency, "frustration raises medium by one step")
	assert.Equal(t, domain.ComplaintStatusOpen, c.Status)
	assert.Equal(t, domain.EscalationNone, c.EscalationLevel)
	require.NotNil(t, c.SLADeadline)
	assert.True(t, c.Policy.Violation)

	stored, err := store.Complaints().GetByID(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.Department, stored.Department)

	assert.Equal(t, 1, notifier.count("status"))
	assert.Equal(t, []string{c.ID}, scheduler.ids)
}

func TestPipelineReferenceScenarios(t *testing.T) {
	neutral := `{"sentiment_score":0,"emotion_level":"calm","urgency_boost":0,"priority_recommendation":"normal"}`
	cases := []struct {
		name       string
		completer  llm.Completer
		input      ComplaintInput
		department string
		urgency    domain.Urgency
		category   domain.Category
		minSLA     float64
		maxSLA     float64
	}{
		{
			name: "fire with model",
			completer: newScripted(map[string]string{
				llm.StageClassification: `{"urgency":"medium","category":"infrastructure","department":"municipal"}`,
				llm.StageSentiment:      neutral,
				llm.StageSLA:            `{"sla_hours":4}`,
			}),
			input:      ComplaintInput{Description: "Fire in Hinjewadi Pune"},
			department: "fire",
			urgency:    domain.UrgencyUrgent,
			category:   domain.CategorySafety,
			minSLA:     0.25,
			maxSLA:     0.5,
		},
		{
			name:       "fire with provider down",
			completer:  llm.Disabled{},
			input:      ComplaintInput{Description: "Fire in Hinjewadi Pune"},
			department: "fire",
			urgency:    domain.UrgencyUrgent,
			category:   domain.CategorySafety,
			minSLA:     0.25,
			maxSLA:     0.5,
		},
		{
			name: "garbage with model",
			completer: newScripted(map[string]string{
				llm.StageClassification: `{"urgency":"medium","category":"sanitation","department":"municipal"}`,
				llm.StageSentiment:      neutral,
				llm.StageSLA:            `{"sla_hours":240}`,
			}),
			input:      ComplaintInput{Description: "Garbage not collected for 3 days", Location: domain.Location{City: "Pune"}},
			department: "pune_municipal",
			urgency:    domain.UrgencyMedium,
			category:   domain.CategorySanitation,
			minSLA:     24,
			maxSLA:     72,
		},
		{
			name:       "garbage with provider down",
			completer:  llm.Disabled{},
			input:      ComplaintInput{Description: "Garbage not collected for 3 days", Location: domain.Location{City: "Pune"}},
			department: "pune_municipal",
			urgency:    domain.UrgencyMedium,
			category:   domain.CategorySanitation,
			minSLA:     24,
			maxSLA:     72,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, tc.completer)
			store := repository.NewMemoryStore(nil)
			result, err := newPipeline(f, store.Complaints(), nil, nil).Run(context.Background(), tc.input)
			require.NoError(t, err)

			c := result.Complaint
			assert.Equal(t, tc.department, c.Department)
			assert.Equal(t, tc.urgency, c.Urgency)
			assert.Equal(t, tc.category, c.Category)
			assert.GreaterOrEqual(t, c.SLAHours, tc.minSLA)
			assert.LessOrEqual(t, c.SLAHours, tc.maxSLA)
		})
	}
}

func TestPipelineFallsBackWhenProviderIsDown(t *testing.T) {
	f := newFixture(t, llm.Disabled{})
	store := repository.NewMemoryStore(nil)

	result, err := newPipeline(f, store.Complaints(), &recordingNotifier{}, nil).Run(context.Background(), ComplaintInput{
		Description: "Live wire sparking on the pole outside our building in Pune",
	})
	require.NoError(t, err)
	assert.True(t, result.Degraded())

	c := result.Complaint
	assert.Equal(t, domain.UrgencyUrgent, c.Urgency)
	assert.Equal(t, "mseb", c.Department)
	assert.LessOrEqual(t, c.SLAHours, 0.5)
	assert.Equal(t, "Standard complaint processing", c.Policy.SuggestedAction)
	assert.NotEmpty(t, c.Metadata["workflow_errors"])
}

func TestPipelineUnderstandingAndRoutingFallback(t *testing.T) {
	completer := newScripted(map[string]string{
		llm.StageUnderstanding: `{"urgency":"low","category":"education"}`,
		llm.StageRouting:       `{"department":"maharashtra_education"}`,
	})
	f := newFixture(t, completer)
	store := repository.NewMemoryStore(nil)

	result, err := newPipeline(f, store.Complaints(), nil, nil).Run(context.Background(), ComplaintInput{
		Description: "Textbooks have not been distributed this year",
	})
	require.NoError(t, err)
	assert.Equal(t, "maharashtra_education", result.Complaint.Department)
	assert.Equal(t, domain.CategoryEducation, result.Complaint.Category)
	assert.Equal(t, 1, completer.callCount(llm.StageRouting))
}

func TestPipelineRejectsInvalidInput(t *testing.T) {
	f := newFixture(t, llm.Disabled{})
	p := newPipeline(f, repository.NewMemoryStore(nil).Complaints(), nil, nil)

	cases := []ComplaintInput{
		{Description: "short"},
		{Description: "Garbage everywhere on the street", Location: domain.Location{Pincode: "4110"}},
		{Description: "Garbage everywhere on the street", Contact: domain.CitizenContact{Phone: "12345"}},
	}
	for _, in := range cases {
		_, err := p.Run(context.Background(), in)
		assert.True(t, apperrors.IsValidation(err), "input %+v", in)
	}

	assert.NoError(t, ValidateInput(ComplaintInput{
		Description: "Garbage everywhere on the street",
		Contact:     domain.CitizenContact{Phone: "9876543210"},
	}))
}

func TestPipelinePersistenceFailureReturnsPartialResult(t *testing.T) {
	f := newFixture(t, llm.Disabled{})
	notifier := &recordingNotifier{}

	result, err := newPipeline(f, failingRepository{}, notifier, nil).Run(context.Background(), ComplaintInput{
		Description: "Street light not working for a week in our colony",
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsPersistence(err))
	require.NotNil(t, result)
	assert.Equal(t, StagePolicyChecked, result.Stage)
	assert.NotEmpty(t, result.Complaint.Department)
	assert.Zero(t, notifier.count("status"))
}
