package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stemsi/exstem-attempt/internal/model"
)

func TestGrade(t *testing.T) {
	qs := makeQuestions(4)

	tests := []struct {
		name    string
		answers map[string]string
		want    model.Score
	}{
		{
			name:    "nothing answered",
			answers: map[string]string{},
			want:    model.Score{Unattempted: 4, Total: 0, MaxTotal: 8},
		},
		{
			name:    "all correct",
			answers: map[string]string{"a": "A", "b": "A", "c": "A", "d": "A"},
			want:    model.Score{Correct: 4, Total: 8, MaxTotal: 8},
		},
		{
			name:    "all wrong goes negative",
			answers: map[string]string{"a": "B", "b": "C", "c": "D", "d": "B"},
			want:    model.Score{Wrong: 4, Total: -2, MaxTotal: 8},
		},
		{
			name:    "unknown ids are ignored",
			answers: map[string]string{"a": "A", "x": "A"},
			want:    model.Score{Correct: 1, Unattempted: 3, Total: 2, MaxTotal: 8},
		},
		{
			name:    "empty answer counts as unattempted",
			answers: map[string]string{"a": ""},
			want:    model.Score{Unattempted: 4, MaxTotal: 8},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Grade(qs, tt.answers))
		})
	}
}

func TestGrade_PerQuestionMarks(t *testing.T) {
	qs := []model.Question{
		{ID: "q1", Options: abcd(), CorrectOption: "A", MarksPerQuestion: 4, NegativeMarks: 1},
		{ID: "q2", Options: abcd(), CorrectOption: "B", MarksPerQuestion: 1, NegativeMarks: 0.25},
	}

	got := Grade(qs, map[string]string{"q1": "A", "q2": "C"})

	assert.InDelta(t, 3.75, got.Total, 1e-9)
	assert.Equal(t, 5.0, got.MaxTotal)
}
