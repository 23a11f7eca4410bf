package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tfassist/internal/domain/entity"
	"tfassist/internal/domain/repository"
	"tfassist/internal/infrastructure/metrics"
)

type TerraformUsecase interface {
	GenerateTerraform(ctx context.Context, description, provider string) (entity.GenerationResponse, error)
	ValidateTerraform(ctx context.Context, code string) (entity.ValidationResponse, error)
	ExplainTerraform(ctx context.Context, code string) (entity.ExplanationResponse, error)
	AnalyzeTerraform(ctx context.Context, code string) (*entity.AnalysisResult, error)
	GeneratorInfo() (backend, model string)
}

var _ TerraformUsecase = (*TerraformService)(nil)

type ServiceOptions struct {
	CommentLanguage string
	Generation      entity.GenerationOptions
}

type TerraformService struct {
	generator  repository.TextGenerator
	runner     repository.TerraformRunner
	workspaces repository.WorkspaceRepository
	analyzer   repository.StaticAnalyzer
	history    HistoryUsecase
	opts       ServiceOptions
	logger     *slog.Logger
}

func NewTerraformService(
	generator repository.TextGenerator,
	runner repository.TerraformRunner,
	workspaces repository.WorkspaceRepository,
	analyzer repository.StaticAnalyzer,
	history HistoryUsecase,
	opts ServiceOptions,
	logger *slog.Logger,
) *TerraformService {
	if opts.Generation.MaxLength <= 0 {
		opts.Generation.MaxLength = entity.DefaultMaxLength
	}
	if opts.Generation.NumReturnSequences <= 0 {
		opts.Generation.NumReturnSequences = 1
	}
	if opts.CommentLanguage == "" {
		opts.CommentLanguage = entity.DefaultCommentLanguage
	}
	return &TerraformService{
		generator:  generator,
		runner:     runner,
		workspaces: workspaces,
		analyzer:   analyzer,
		history:    history,
		opts:       opts,
		logger:     logger,
	}
}

func (s *TerraformService) GeneratorInfo() (string, string) {
	return s.generator.Backend(), s.generator.Model()
}

func (s *TerraformService) GenerateTerraform(ctx context.Context, description, provider string) (entity.GenerationResponse, error) {
	started := time.Now()
	rec := entity.NewRequestRecord(entity.RecordKindGenerate, description)
	rec.Provider = provider
	rec.Model = s.generator.Model()

	prompt := entity.BuildGeneratePrompt(description, provider, s.opts.CommentLanguage)
	text, err := s.generate(ctx, "generate", prompt)
	if err != nil {
		err = entity.GenerationError("generate terraform", err)
	}
	rec.Output = text
	rec.Finish(started, false, err)
	s.history.Record(ctx, rec)

	if err != nil {
		s.logger.Error("generate terraform failed", "record_id", rec.ID, "provider", provider, "error_kind", entity.KindOf(err), "err", err)
		return entity.GenerationResponse{}, err
	}
	s.logger.Info("terraform generated", "record_id", rec.ID, "provider", provider, "duration", time.Since(started))
	return entity.GenerationResponse{TerraformCode: text}, nil
}

func (s *TerraformService) ExplainTerraform(ctx context.Context, code string) (entity.ExplanationResponse, error) {
	started := time.Now()
	rec := entity.NewRequestRecord(entity.RecordKindExplain, code)
	rec.Model = s.generator.Model()

	text, err := s.generate(ctx, "explain", entity.BuildExplainPrompt(code))
	if err != nil {
		err = entity.GenerationError("explain terraform", err)
	}
	rec.Output = text
	rec.Finish(started, false, err)
	s.history.Record(ctx, rec)

	if err != nil {
		s.logger.Error("explain terraform failed", "record_id", rec.ID, "error_kind", entity.KindOf(err), "err", err)
		return entity.ExplanationResponse{}, err
	}
	s.logger.Info("terraform explained", "record_id", rec.ID, "duration", time.Since(started))
	return entity.ExplanationResponse{Explanation: text}, nil
}

func (s *TerraformService) generate(ctx context.Context, operation, prompt string) (string, error) {
	model := s.generator.Model()
	metrics.IncLLMRequest(model, operation)
	start := time.Now()
	text, err := s.generator.Generate(ctx, prompt, s.opts.Generation)
	metrics.ObserveLLMDuration(model, time.Since(start))
	if err != nil {
		metrics.IncError("llm", operation)
	}
	return text, err
}

// ValidateTerraform writes code into a fresh workspace, runs init (result
// ignored) and validate, and maps validate's exit code to the response.
func (s *TerraformService) ValidateTerraform(ctx context.Context, code string) (entity.ValidationResponse, error) {
	started := time.Now()
	rec := entity.NewRequestRecord(entity.RecordKindValidate, code)

	outcome, err := s.validate(ctx, code)
	if err == nil {
		rec.Output = outcome.Response.Details
		rec.Diagnostics = outcome.Diagnostics
	}
	rec.Finish(started, err == nil && outcome.ExitCode != 0, err)
	s.history.Record(ctx, rec)
	metrics.ObserveValidationDuration("terraform", time.Since(started))

	if err != nil {
		metrics.IncValidationRun("terraform", "error")
		metrics.IncError("validate", string(entity.KindOf(err)))
		s.logger.Error("validate terraform failed", "record_id", rec.ID, "error_kind", entity.KindOf(err), "err", err)
		return entity.ValidationResponse{}, err
	}

	result := "pass"
	if outcome.ExitCode != 0 {
		result = "fail"
	}
	metrics.IncValidationRun("terraform", result)
	s.logger.Info("terraform validated",
		"record_id", rec.ID,
		"workspace_id", outcome.WorkspaceID,
		"result", outcome.Response.Validation,
		"exit_code", outcome.ExitCode,
		"duration", time.Since(started),
	)
	return outcome.Response, nil
}

func (s *TerraformService) validate(ctx context.Context, code string) (entity.ValidationOutcome, error) {
	ws, err := s.workspaces.Create(ctx, code)
	if err != nil {
		return entity.ValidationOutcome{}, entity.PersistenceError("write terraform code", err)
	}
	defer func() {
		if err := s.workspaces.Remove(ws); err != nil {
			s.logger.Warn("remove workspace failed", "workspace_id", ws.ID, "err", err)
		}
	}()

	initRes, err := s.runner.Init(ctx, ws.Dir)
	if err != nil {
		return entity.ValidationOutcome{}, entity.ToolInvocationError("terraform init", err)
	}
	if initRes.ExitCode != 0 {
		s.logger.Warn("terraform init exited non-zero; validating anyway",
			"workspace_id", ws.ID, "exit_code", initRes.ExitCode)
	}
	s.logger.Debug("terraform init output", "workspace_id", ws.ID, "output", initRes.Output)

	valRes, err := s.runner.Validate(ctx, ws.Dir)
	if err != nil {
		return entity.ValidationOutcome{}, entity.ToolInvocationError("terraform validate", err)
	}

	outcome := entity.NewValidationOutcome(valRes.ExitCode)
	outcome.InitOutput = initRes.Output
	outcome.Diagnostics = valRes.Output
	outcome.WorkspaceID = ws.ID
	return outcome, nil
}

func (s *TerraformService) AnalyzeTerraform(ctx context.Context, code string) (*entity.AnalysisResult, error) {
	started := time.Now()
	rec := entity.NewRequestRecord(entity.RecordKindAnalyze, code)

	res, err := s.analyzer.Analyze("main.tf", code)
	failed := false
	if err == nil {
		failed = !res.Passed
		rec.Output = summarizeFindings(res)
	}
	rec.Finish(started, failed, err)
	s.history.Record(ctx, rec)

	if err != nil {
		s.logger.Error("analyze terraform failed", "record_id", rec.ID, "err", err)
		return nil, err
	}
	s.logger.Info("terraform analyzed", "record_id", rec.ID, "passed", res.Passed, "findings", len(res.Findings))
	return res, nil
}

func summarizeFindings(res *entity.AnalysisResult) string {
	errs, warns := 0, 0
	for _, f := range res.Findings {
		if f.Severity == entity.SeverityError {
			errs++
		} else {
			warns++
		}
	}
	return fmt.Sprintf("%d errors, %d warnings", errs, warns)
}
