package cel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleInput() Input {
	return Input{
		ContentKey:  "images/1.jpg",
		ContentHash: "f8f8f0cee0f4a84f06370a22038f63f0b36e2ed596621e1d33e6b39c4e9c9b22",
		Signals: []map[string]interface{}{
			{
				"banked_content_id": "2862392437204724",
				"bank_id":           "303636684709969",
				"bank_source":       "te",
				"classifications":   []string{"true_positive"},
			},
		},
		Actions: []string{"EnqueueForReview"},
	}
}

func TestNewEvaluator(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)
	assert.NotNil(t, eval)
}

func TestValidateCondition(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	tests := []struct {
		name      string
		expr      string
		wantError bool
	}{
		{name: "bool expression", expr: `size(actions) > 0`},
		{name: "macro over signals", expr: `signals.exists(s, s.bank_source == "te")`},
		{name: "non-bool expression", expr: `size(actions)`, wantError: true},
		{name: "invalid syntax", expr: `invalid syntax here!!!`, wantError: true},
		{name: "undefined variable", expr: `payload.status == "x"`, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := eval.ValidateCondition(tt.expr)
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	assert.NoError(t, eval.ValidateExpression(`size(actions)`))
}

func TestEvaluateCondition(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)
	ctx := context.Background()

	tests := []struct {
		name string
		expr string
		in   Input
		want bool
	}{
		{name: "any action", expr: `size(actions) > 0`, in: sampleInput(), want: true},
		{name: "no actions", expr: `size(actions) > 0`, in: Input{ContentKey: "k"}, want: false},
		{name: "action membership", expr: `"Delete" in actions`, in: sampleInput(), want: false},
		{name: "signal source", expr: `signals.exists(s, s.bank_source == "te")`, in: sampleInput(), want: true},
		{name: "classification", expr: `signals.exists(s, "true_positive" in s.classifications)`, in: sampleInput(), want: true},
		{name: "content key", expr: `content_key.startsWith("images/")`, in: sampleInput(), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := eval.EvaluateCondition(ctx, tt.expr, tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluateConditionErrors(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	_, err = eval.EvaluateCondition(context.Background(), `content_key`, sampleInput())
	assert.Error(t, err)

	_, err = eval.EvaluateCondition(context.Background(), `signals[3].bank_id == "x"`, sampleInput())
	assert.Error(t, err)
}

func TestConditionExamplesCompile(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	for name, expr := range ConditionExamples {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, eval.ValidateCondition(expr))
		})
	}
}

func TestCompiledProgramsAreCached(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	first, err := eval.compile(`size(actions) > 0`)
	require.NoError(t, err)
	second, err := eval.compile(`size(actions) > 0`)
	require.NoError(t, err)
	assert.True(t, first == second)
}
