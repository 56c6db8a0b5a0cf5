package session

import "github.com/stemsi/exstem-attempt/internal/model"

// Grade scores answers against the answer key. Answers for ids that are not
// in questions are ignored. Totals are not clamped: heavy negative marking
// can produce a score below zero.
func Grade(questions []model.Question, answers map[string]string) model.Score {
	var score model.Score
	for i := range questions {
		q := &questions[i]
		score.MaxTotal += q.MarksPerQuestion

		ans, ok := answers[q.ID]
		switch {
		case !ok || ans == "":
			score.Unattempted++
		case ans == q.CorrectOption:
			score.Correct++
			score.Total += q.MarksPerQuestion
		default:
			score.Wrong++
			score.Total -= q.NegativeMarks
		}
	}
	return score
}
