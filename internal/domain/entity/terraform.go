package entity

// GenerationRequest is the body of POST /generate-terraform. Both fields are
// required; pointers let the transport tell an empty string from a missing key.
type GenerationRequest struct {
	Description *string `json:"description"`
	Provider    *string `json:"provider"`
}

type GenerationResponse struct {
	TerraformCode string `json:"terraform_code"`
}

type ValidationStatus string

const (
	ValidationSuccess ValidationStatus = "success"
	ValidationFailure ValidationStatus = "failure"
)

const (
	ValidDetails   = "Terraform code is valid."
	InvalidDetails = "Terraform code is invalid."
)

type ValidationResponse struct {
	Validation ValidationStatus `json:"validation"`
	Details    string           `json:"details"`
}

// ValidationOutcome is what the validate pipeline knows after running the CLI.
// Only Response goes over the wire; the rest feeds logs and history.
type ValidationOutcome struct {
	Response    ValidationResponse
	ExitCode    int
	InitOutput  string
	Diagnostics string
	WorkspaceID string
}

func NewValidationOutcome(exitCode int) ValidationOutcome {
	out := ValidationOutcome{ExitCode: exitCode}
	if exitCode == 0 {
		out.Response = ValidationResponse{Validation: ValidationSuccess, Details: ValidDetails}
	} else {
		out.Response = ValidationResponse{Validation: ValidationFailure, Details: InvalidDetails}
	}
	return out
}

type ExplanationResponse struct {
	Explanation string `json:"explanation"`
}

type ErrorResponse struct {
	Detail string `json:"detail"`
}
