package models

// Profile is the subset of a user account used to describe a newcomer before they write a vibe.
type Profile struct {
	IntraLogin    string    `json:"intraLogin"    validate:"no_null_bytes"` //nolint:tagliatelle // API contract
	Email         string    `json:"email"         validate:"no_null_bytes"`
	DisplayName   string    `json:"displayName"`   //nolint:tagliatelle // API contract
	UsualFullName string    `json:"usualFullName"` //nolint:tagliatelle // API contract
	Kind          string    `json:"kind"`
	Location      string    `json:"location"`
	Campus        []Campus  `json:"campus"`
	Projects      []Project `json:"projects"`
}

// Campus is a campus the user is attached to.
type Campus struct {
	Name string `json:"name"`
}

// Project is one project entry; FinalMark is nil when the project was never graded.
type Project struct {
	Name      string   `json:"name"`
	Status    string   `json:"status"`
	FinalMark *float64 `json:"finalMark,omitempty"` //nolint:tagliatelle // API contract
}
