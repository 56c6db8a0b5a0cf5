package model

// Option is one labelled choice of a multiple-choice question.
type Option struct {
	Label string `json:"label" yaml:"label"`
	Text  string `json:"text" yaml:"text"`
}

// Question represents a single test question as served by the LMS.
type Question struct {
	ID               string   `json:"id" yaml:"id"`
	Text             string   `json:"text" yaml:"text"`
	Options          []Option `json:"options" yaml:"options"`
	CorrectOption    string   `json:"correct_option" yaml:"correct_option"`
	MarksPerQuestion float64  `json:"marks_per_question" yaml:"marks_per_question"`
	NegativeMarks    float64  `json:"negative_marks" yaml:"negative_marks"`
}

// HasOption reports whether label is one of the question's option labels.
func (q *Question) HasOption(label string) bool {
	for _, o := range q.Options {
		if o.Label == label {
			return true
		}
	}
	return false
}

// Paper is a named collection of questions presented as one test instance.
type Paper struct {
	ID               string     `json:"id" yaml:"id"`
	Title            string     `json:"title" yaml:"title"`
	TimeLimitSeconds int        `json:"time_limit_seconds" yaml:"time_limit_seconds"`
	Questions        []Question `json:"questions" yaml:"questions"`
}

// QuestionForStudent is a question without the correct answer, sent to students.
type QuestionForStudent struct {
	ID               string   `json:"id"`
	Text             string   `json:"text"`
	Options          []Option `json:"options"`
	MarksPerQuestion float64  `json:"marks_per_question"`
	NegativeMarks    float64  `json:"negative_marks"`
}

// ForStudent strips the answer key.
func (q *Question) ForStudent() QuestionForStudent {
	return QuestionForStudent{
		ID:               q.ID,
		Text:             q.Text,
		Options:          q.Options,
		MarksPerQuestion: q.MarksPerQuestion,
		NegativeMarks:    q.NegativeMarks,
	}
}
