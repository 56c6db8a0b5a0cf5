package model

// Student is the student record as served by the LMS profile endpoint.
type Student struct {
	ID         int    `json:"id"`
	RollNumber string `json:"roll_number"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Course     string `json:"course"`
	Batch      string `json:"batch"`
	PhotoURL   string `json:"photo_url,omitempty"`
}

// StudentCard is the input of the ID card renderer.
type StudentCard struct {
	Name       string
	RollNumber string
	Course     string
	Batch      string
	Email      string
	// Photo is an encoded JPEG or PNG. Nil draws a placeholder.
	Photo []byte
}
