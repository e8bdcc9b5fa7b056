package prediction

import (
	"fmt"
	"strings"
)

// Occupations accepted by the premium model.
var Occupations = []string{
	"retired", "freelancer", "student", "government_job", "business_owner", "unemployed", "private_job",
}

// Request is the body sent to the prediction endpoint.
type Request struct {
	Age        int     `json:"age"`
	Weight     float64 `json:"weight"`
	Height     float64 `json:"height"`
	IncomeLPA  float64 `json:"income_lpa"`
	Smoker     bool    `json:"smoker"`
	City       string  `json:"city"`
	Occupation string  `json:"occupation"`
}

// Validate applies the form's input ranges.
func (r Request) Validate() error {
	var issues []string
	if r.Age < 1 || r.Age > 119 {
		issues = append(issues, "age must be between 1 and 119")
	}
	if r.Weight < 1.0 {
		issues = append(issues, "weight must be at least 1.0 kg")
	}
	if r.Height < 0.5 || r.Height > 2.5 {
		issues = append(issues, "height must be between 0.5 and 2.5 m")
	}
	if r.IncomeLPA < 0.1 {
		issues = append(issues, "income_lpa must be at least 0.1")
	}
	if strings.TrimSpace(r.City) == "" {
		issues = append(issues, "city is required")
	}
	if !validOccupation(r.Occupation) {
		issues = append(issues, fmt.Sprintf("occupation must be one of %s", strings.Join(Occupations, ", ")))
	}
	if len(issues) > 0 {
		return &FormError{Issues: issues}
	}
	return nil
}

func validOccupation(o string) bool {
	for _, v := range Occupations {
		if v == o {
			return true
		}
	}
	return false
}

// Result is the decoded prediction.
type Result struct {
	Category      string             `json:"predicted_category"`
	Confidence    float64            `json:"confidence"`
	Probabilities map[string]float64 `json:"class_probabilities"`
}
