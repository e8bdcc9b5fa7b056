package patient

import (
	"math"
	"strconv"
)

// Gender is the closed set of gender values accepted for a patient.
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOthers Gender = "others"
)

// Valid reports whether g is one of the enumerated genders.
func (g Gender) Valid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderOthers:
		return true
	}
	return false
}

// Verdict is the health label derived from a BMI value.
type Verdict string

const (
	VerdictUnderweight Verdict = "Underweight"
	VerdictNormal      Verdict = "Normal"
	VerdictOverweight  Verdict = "Overweight"
	VerdictObese       Verdict = "Obese"
)

// Patient is the stored value for a single patient. The id is the key the
// record is stored under and is never part of the value itself.
type Patient struct {
	Name    string  `json:"name"`
	City    string  `json:"city"`
	Age     int     `json:"age"`
	Gender  Gender  `json:"gender"`
	Height  float64 `json:"height"`
	Weight  float64 `json:"weight"`
	BMI     float64 `json:"bmi"`
	Verdict Verdict `json:"verdict"`
}

// ComputeBMI returns weight / height² rounded to two decimals, or 0 when the
// value cannot be computed.
func ComputeBMI(height, weight float64) float64 {
	if height == 0 {
		return 0
	}
	bmi := weight / (height * height)
	if math.IsNaN(bmi) || math.IsInf(bmi, 0) {
		return 0
	}
	return round2(bmi)
}

// round2 rounds the exact binary value of x to two decimals, half to even.
func round2(x float64) float64 {
	v, _ := strconv.ParseFloat(strconv.FormatFloat(x, 'f', 2, 64), 64)
	return v
}

// VerdictFor classifies a BMI value.
func VerdictFor(bmi float64) Verdict {
	switch {
	case bmi < 18.5:
		return VerdictUnderweight
	case bmi < 25:
		return VerdictNormal
	case bmi < 30:
		return VerdictOverweight
	default:
		return VerdictObese
	}
}

// Derive returns a copy of p with BMI and Verdict recomputed from its height
// and weight.
func (p Patient) Derive() Patient {
	p.BMI = ComputeBMI(p.Height, p.Weight)
	p.Verdict = VerdictFor(p.BMI)
	return p
}

// Patch carries the fields of a partial update. Nil fields are left
// unchanged by Apply.
type Patch struct {
	Name   *string  `json:"name,omitempty"`
	City   *string  `json:"city,omitempty"`
	Age    *int     `json:"age,omitempty"`
	Gender *Gender  `json:"gender,omitempty"`
	Height *float64 `json:"height,omitempty"`
	Weight *float64 `json:"weight,omitempty"`
}

// Apply merges the supplied fields into base and re-derives BMI and verdict.
// base is not modified.
func (pt Patch) Apply(base Patient) Patient {
	if pt.Name != nil {
		base.Name = *pt.Name
	}
	if pt.City != nil {
		base.City = *pt.City
	}
	if pt.Age != nil {
		base.Age = *pt.Age
	}
	if pt.Gender != nil {
		base.Gender = *pt.Gender
	}
	if pt.Height != nil {
		base.Height = *pt.Height
	}
	if pt.Weight != nil {
		base.Weight = *pt.Weight
	}
	return base.Derive()
}

// Validate checks the fields that were supplied. Absent fields are not
// reported; the merged record is validated separately.
func (pt Patch) Validate() error {
	v := &ValidationError{}
	if pt.Age != nil {
		checkAge(v, *pt.Age)
	}
	if pt.Gender != nil {
		checkGender(v, *pt.Gender)
	}
	if pt.Height != nil {
		checkPositive(v, "height", *pt.Height)
	}
	if pt.Weight != nil {
		checkPositive(v, "weight", *pt.Weight)
	}
	return v.orNil()
}

// NewPatient is the body accepted when creating a patient: the full record
// plus the id it is stored under.
type NewPatient struct {
	ID string `json:"id"`
	Patch
}

// Validate requires every field to be present and within range.
func (n NewPatient) Validate() error {
	v := &ValidationError{}
	if n.ID == "" {
		v.add("id", "field required")
	}
	if n.Name == nil {
		v.add("name", "field required")
	}
	if n.City == nil {
		v.add("city", "field required")
	}
	if n.Age == nil {
		v.add("age", "field required")
	} else {
		checkAge(v, *n.Age)
	}
	if n.Gender == nil {
		v.add("gender", "field required")
	} else {
		checkGender(v, *n.Gender)
	}
	if n.Height == nil {
		v.add("height", "field required")
	} else {
		checkPositive(v, "height", *n.Height)
	}
	if n.Weight == nil {
		v.add("weight", "field required")
	} else {
		checkPositive(v, "weight", *n.Weight)
	}
	return v.orNil()
}

// Record builds the derived stored value. Call Validate first.
func (n NewPatient) Record() Patient {
	return n.Patch.Apply(Patient{})
}

// Validate checks a complete record.
func (p Patient) Validate() error {
	v := &ValidationError{}
	checkAge(v, p.Age)
	checkGender(v, p.Gender)
	checkPositive(v, "height", p.Height)
	checkPositive(v, "weight", p.Weight)
	return v.orNil()
}

func checkAge(v *ValidationError, age int) {
	if age <= 0 {
		v.add("age", "must be greater than 0")
	} else if age >= 120 {
		v.add("age", "must be less than 120")
	}
}

func checkGender(v *ValidationError, g Gender) {
	if !g.Valid() {
		v.add("gender", "must be one of 'male', 'female', 'others'")
	}
}

func checkPositive(v *ValidationError, field string, val float64) {
	if !(val > 0) {
		v.add(field, "must be greater than 0")
	}
}
