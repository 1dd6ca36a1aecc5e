package focusgroup

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agency-studio/content-pipeline/internal/apperrors"
	"github.com/agency-studio/content-pipeline/internal/models"
)

// MockCaller implements Caller for testing
type MockCaller struct {
	mock.Mock
}

func (m *MockCaller) Evaluate(ctx context.Context, clientID string, content models.EvaluationContent, personas []models.Persona) ([]models.PersonaEvaluation, error) {
	args := m.Called(ctx, clientID, content, personas)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.PersonaEvaluation), args.Error(1)
}

func evaluations(scores ...int) []models.PersonaEvaluation {
	out := make([]models.PersonaEvaluation, len(scores))
	for i, s := range scores {
		out[i] = models.PersonaEvaluation{PersonaName: "p", Score: s, Verdict: models.VerdictApproved}
	}
	return out
}

func TestEvaluator_ThreePersonasPass(t *testing.T) {
	caller := new(MockCaller)
	ev := NewEvaluator(caller, zap.NewNop())
	ctx := context.Background()
	content := models.EvaluationContent{Copy: "Lançamento de produto novo", Hashtags: []string{"#novo"}}

	caller.On("Evaluate", ctx, "client-1", content, DefaultPanel()).Return(evaluations(8, 7, 9), nil)

	result, err := ev.Evaluate(ctx, "client-1", content)
	require.NoError(t, err)
	assert.Equal(t, 8.0, result.AverageScore)
	assert.True(t, result.Passed)
	assert.Len(t, result.Evaluations, 3)
	caller.AssertExpectations(t)
}

func TestEvaluator_BelowThreshold(t *testing.T) {
	caller := new(MockCaller)
	ev := NewEvaluator(caller, zap.NewNop())
	caller.On("Evaluate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(evaluations(7, 7, 6), nil)

	result, err := ev.Evaluate(context.Background(), "c", models.EvaluationContent{})
	require.NoError(t, err)
	assert.InDelta(t, 6.6666666667, result.AverageScore, 1e-9)
	assert.False(t, result.Passed)
}

func TestEvaluator_ExactThresholdPasses(t *testing.T) {
	result, err := Aggregate(evaluations(7), DefaultThreshold)
	require.NoError(t, err)
	assert.True(t, result.Passed)
}

func TestEvaluator_CustomThresholdAndPanel(t *testing.T) {
	caller := new(MockCaller)
	panel := []models.Persona{{Name: "Solo"}}
	ev := NewEvaluator(caller, zap.NewNop(), WithThreshold(9), WithPanel(panel))
	caller.On("Evaluate", mock.Anything, "c", mock.Anything, panel).Return(evaluations(8), nil)

	result, err := ev.Evaluate(context.Background(), "c", models.EvaluationContent{})
	require.NoError(t, err)
	assert.False(t, result.Passed)
	assert.Equal(t, 9.0, ev.Threshold())
}

func TestEvaluator_Failures(t *testing.T) {
	tests := []struct {
		name  string
		reply []models.PersonaEvaluation
		err   error
	}{
		{"call error", nil, errors.New("timeout")},
		{"zero evaluations", []models.PersonaEvaluation{}, nil},
		{"score above range", evaluations(8, 11), nil},
		{"negative score", evaluations(-1), nil},
		{"unknown verdict", []models.PersonaEvaluation{{PersonaName: "x", Score: 5, Verdict: "maybe"}}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caller := new(MockCaller)
			ev := NewEvaluator(caller, zap.NewNop())
			caller.On("Evaluate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(tt.reply, tt.err)

			result, err := ev.Evaluate(context.Background(), "c", models.EvaluationContent{})
			require.Error(t, err)
			assert.Nil(t, result)

			var extErr *apperrors.ExternalCallError
			require.ErrorAs(t, err, &extErr)
			assert.Equal(t, "review", extErr.Stage)
		})
	}
}

func TestAggregate_MeanProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		n := rng.Intn(12) + 1
		scores := make([]int, n)
		sum := 0.0
		for j := range scores {
			scores[j] = rng.Intn(11)
			sum += float64(scores[j])
		}

		result, err := Aggregate(evaluations(scores...), DefaultThreshold)
		require.NoError(t, err)

		mean := sum / float64(n)
		assert.LessOrEqual(t, math.Abs(result.AverageScore-mean), 1e-9)
		assert.Equal(t, mean >= DefaultThreshold, result.Passed)
	}
}

func TestLoadPanel(t *testing.T) {
	t.Run("default when unset", func(t *testing.T) {
		personas, err := LoadPanel("")
		require.NoError(t, err)
		assert.Len(t, personas, 3)
	})

	t.Run("from file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "personas.yaml")
		data := []byte(`personas:
  - name: Ana
    profile: CFO of a logistics company
    priorities: [numbers, credibility]
  - name: Beto
    profile: student
`)
		require.NoError(t, os.WriteFile(path, data, 0o600))

		personas, err := LoadPanel(path)
		require.NoError(t, err)
		require.Len(t, personas, 2)
		assert.Equal(t, "Ana", personas[0].Name)
		assert.Equal(t, []string{"numbers", "credibility"}, personas[0].Priorities)
	})

	t.Run("rejects empty panel", func(t *testing.T) {
		_, err := ParsePanelYAML([]byte("personas: []"))
		assert.Error(t, err)
	})

	t.Run("rejects unnamed persona", func(t *testing.T) {
		_, err := ParsePanelYAML([]byte("personas:\n  - profile: nobody\n"))
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadPanel(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})
}
