package validator

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"

	"tfassist/internal/domain/entity"
	"tfassist/internal/domain/repository"
	"tfassist/internal/infrastructure/metrics"
)

var SensitiveKeywords = []string{"password", "secret", "key", "token", "access_key", "secret_key"}

const validatorName = "static"

// TerraformAnalyzer runs HCL syntax checks and a few lint rules over a single
// Terraform file. It never touches the filesystem or the CLI.
type TerraformAnalyzer struct{}

var _ repository.StaticAnalyzer = (*TerraformAnalyzer)(nil)

func NewTerraformAnalyzer() *TerraformAnalyzer {
	return &TerraformAnalyzer{}
}

func (a *TerraformAnalyzer) Analyze(fileName, code string) (*entity.AnalysisResult, error) {
	start := time.Now()
	defer func() { metrics.ObserveValidationDuration(validatorName, time.Since(start)) }()

	if fileName == "" {
		fileName = "main.tf"
	}
	result := &entity.AnalysisResult{Passed: true, Findings: []entity.Finding{}}

	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCL([]byte(code), fileName)
	if !diags.HasErrors() {
		diags = append(diags, a.analyzeFile(hclFile.Body, fileName)...)
	}

	for _, diag := range diags {
		result.Findings = append(result.Findings, toFinding(fileName, diag))
	}
	if diags.HasErrors() {
		result.Passed = false
	}

	sort.SliceStable(result.Findings, func(i, j int) bool {
		if result.Findings[i].Line != result.Findings[j].Line {
			return result.Findings[i].Line < result.Findings[j].Line
		}
		return result.Findings[i].Column < result.Findings[j].Column
	})

	if result.Passed {
		metrics.IncValidationRun(validatorName, "pass")
	} else {
		metrics.IncValidationRun(validatorName, "fail")
	}
	return result, nil
}

func toFinding(fileName string, diag *hcl.Diagnostic) entity.Finding {
	f := entity.Finding{
		File:     fileName,
		Severity: entity.SeverityWarning,
		Message:  diag.Summary,
	}
	if diag.Severity == hcl.DiagError {
		f.Severity = entity.SeverityError
	}
	if diag.Detail != "" {
		f.Message = fmt.Sprintf("%s: %s", diag.Summary, diag.Detail)
	}
	if diag.Subject != nil {
		f.Line = diag.Subject.Start.Line
		f.Column = diag.Subject.Start.Column
	}
	return f
}

func (a *TerraformAnalyzer) analyzeFile(body hcl.Body, fileName string) hcl.Diagnostics {
	var diags hcl.Diagnostics

	schema := &hcl.BodySchema{
		Blocks: []hcl.BlockHeaderSchema{
			{Type: "terraform"},
			{Type: "provider", LabelNames: []string{"name"}},
			{Type: "resource", LabelNames: []string{"type", "name"}},
			{Type: "data", LabelNames: []string{"type", "name"}},
			{Type: "variable", LabelNames: []string{"name"}},
			{Type: "output", LabelNames: []string{"name"}},
			{Type: "module", LabelNames: []string{"name"}},
			{Type: "locals"},
		},
	}

	content, _, contentDiags := body.PartialContent(schema)
	diags = append(diags, contentDiags...)

	diags = append(diags, a.analyzeTerraformBlocks(content, fileName)...)
	diags = append(diags, a.analyzeResourceBlocks(content, fileName)...)

	return diags
}

func (a *TerraformAnalyzer) analyzeTerraformBlocks(content *hcl.BodyContent, fileName string) hcl.Diagnostics {
	var diags hcl.Diagnostics

	for _, block := range content.Blocks.OfType("terraform") {
		tfSchema := &hcl.BodySchema{
			Blocks: []hcl.BlockHeaderSchema{
				{Type: "required_providers"},
			},
		}
		tfContent, _, tfDiags := block.Body.PartialContent(tfSchema)
		diags = append(diags, tfDiags...)

		for _, rpBlock := range tfContent.Blocks.OfType("required_providers") {
			attrs, attrsDiags := rpBlock.Body.JustAttributes()
			diags = append(diags, attrsDiags...)

			for _, providerName := range sortedNames(attrs) {
				attr := attrs[providerName]
				val, valDiags := attr.Expr.Value(nil)
				if valDiags.HasErrors() {
					continue
				}
				if val.Type().IsObjectType() {
					if !val.Type().HasAttribute("version") {
						diags = append(diags, &hcl.Diagnostic{
							Severity: hcl.DiagWarning,
							Summary:  fmt.Sprintf("Provider %s missing version constraint in %s", providerName, fileName),
							Subject:  attr.Range.Ptr(),
						})
					}
				} else {
					diags = append(diags, &hcl.Diagnostic{
						Severity: hcl.DiagWarning,
						Summary:  fmt.Sprintf("Provider %s has non-object requirement in %s", providerName, fileName),
						Subject:  attr.Range.Ptr(),
					})
				}
			}
		}
	}
	return diags
}

func (a *TerraformAnalyzer) analyzeResourceBlocks(content *hcl.BodyContent, fileName string) hcl.Diagnostics {
	var diags hcl.Diagnostics

	for _, block := range content.Blocks.OfType("resource") {
		resType, resName := block.Labels[0], block.Labels[1]

		syntaxBody, ok := block.Body.(*hclsyntax.Body)
		if !ok {
			continue
		}

		hasLifecycle := false
		for _, nested := range syntaxBody.Blocks {
			if nested.Type == "lifecycle" {
				hasLifecycle = true
				break
			}
		}
		if !hasLifecycle {
			diags = append(diags, &hcl.Diagnostic{
				Severity: hcl.DiagWarning,
				Summary:  fmt.Sprintf("Resource %s.%s missing lifecycle block in %s", resType, resName, fileName),
				Subject:  block.DefRange.Ptr(),
			})
		}

		if _, hasTags := syntaxBody.Attributes["tags"]; !hasTags {
			diags = append(diags, &hcl.Diagnostic{
				Severity: hcl.DiagWarning,
				Summary:  fmt.Sprintf("Resource %s.%s missing tags attribute in %s", resType, resName, fileName),
				Subject:  block.DefRange.Ptr(),
			})
		}

		for _, attrName := range sortedSyntaxNames(syntaxBody.Attributes) {
			attr := syntaxBody.Attributes[attrName]
			if !looksSensitive(attrName) {
				continue
			}
			// only literal values can be evaluated without a context
			if _, valDiags := attr.Expr.Value(nil); !valDiags.HasErrors() {
				diags = append(diags, &hcl.Diagnostic{
					Severity: hcl.DiagWarning,
					Summary:  fmt.Sprintf("Potential hardcoded sensitive value in attribute %s of resource %s.%s in %s", attrName, resType, resName, fileName),
					Subject:  attr.SrcRange.Ptr(),
				})
			}
		}
	}
	return diags
}

func looksSensitive(attrName string) bool {
	lower := strings.ToLower(attrName)
	for _, kw := range SensitiveKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func sortedNames(attrs hcl.Attributes) []string {
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sortedSyntaxNames(attrs hclsyntax.Attributes) []string {
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
