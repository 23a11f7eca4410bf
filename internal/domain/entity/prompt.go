package entity

import "fmt"

type Prompt struct {
	ID       string
	Template string
}

const DefaultCommentLanguage = "portuguese"

var GeneratePrompt = Prompt{
	ID:       "generate",
	Template: "Generate a Terraform script with all resources in .tf files for the following description: %s. The cloud provider is %s. Include best practices, VPC and comments in %s in the scripts.",
}

var ExplainPrompt = Prompt{
	ID:       "explain",
	Template: "Explain the following Terraform code in plain English: \n%s\n",
}

// BuildGeneratePrompt renders GeneratePrompt. An empty language falls back to
// DefaultCommentLanguage.
func BuildGeneratePrompt(description, provider, language string) string {
	if language == "" {
		language = DefaultCommentLanguage
	}
	return fmt.Sprintf(GeneratePrompt.Template, description, provider, language)
}

func BuildExplainPrompt(code string) string {
	return fmt.Sprintf(ExplainPrompt.Template, code)
}
