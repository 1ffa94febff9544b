package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"querygate/internal/compiler"
	"querygate/internal/config"
	"querygate/internal/database"
	"querygate/internal/database/metadata"
	"querygate/internal/logger"
	"querygate/internal/model"
	"querygate/internal/repository"
	"querygate/internal/security"
	"querygate/internal/utils"
)

// Orchestrator drives a request through the full pipeline: rate limit,
// injection scan, parse, permission-checked generation, complexity gate,
// isolation check, execution, and output sanitization. It always returns a
// QueryResult; failures are folded into the result's status and message so
// callers never see a raw stack trace.
type Orchestrator struct {
	registry  repository.TenantRegistry
	manager   *database.ConnectionManager
	gate      *security.Gate
	parser    *compiler.Parser
	generator *compiler.Generator
	executor  *Executor
	schemas   *metadata.SchemaCache
	extractor metadata.SchemaExtractor
	metrics   *MetricsCollector
	validate  *validator.Validate
}

// NewOrchestrator wires the pipeline. The metrics collector may be nil in
// tests.
func NewOrchestrator(
	cfg *config.Config,
	registry repository.TenantRegistry,
	manager *database.ConnectionManager,
	gate *security.Gate,
	drivers *database.DriverRegistry,
	schemas *metadata.SchemaCache,
	extractor metadata.SchemaExtractor,
	metrics *MetricsCollector,
) *Orchestrator {
	return &Orchestrator{
		registry:  registry,
		manager:   manager,
		gate:      gate,
		parser:    compiler.NewParser(),
		generator: compiler.NewGenerator(gate, drivers, cfg.Compiler.ConfidenceFloor),
		executor:  NewExecutor(),
		schemas:   schemas,
		extractor: extractor,
		metrics:   metrics,
		validate:  validator.New(),
	}
}

// ExecuteQuery handles one natural-language request end to end.
func (o *Orchestrator) ExecuteQuery(ctx context.Context, req *model.QueryRequest) *model.QueryResult {
	start := time.Now()
	queryID := uuid.New().String()

	result := o.run(ctx, queryID, req)
	result.QueryID = queryID
	result.ExecutionTimeMs = time.Since(start).Milliseconds()
	result.ExecutedAt = time.Now().UTC()

	if o.metrics != nil {
		o.metrics.ObserveQuery(req.TenantID, string(result.Status), time.Since(start), result.RowCount)
	}
	logger.Logger.Info("query processed",
		zap.String("query_id", queryID),
		zap.String("tenant_id", req.TenantID),
		zap.String("user_id", req.UserID),
		zap.String("status", string(result.Status)),
		zap.Int("row_count", result.RowCount),
		zap.Int64("duration_ms", result.ExecutionTimeMs))
	return result
}

func (o *Orchestrator) run(ctx context.Context, queryID string, req *model.QueryRequest) *model.QueryResult {
	req.ApplyDefaults()
	if err := o.validate.Struct(req); err != nil {
		return o.failure(req, &utils.AppError{
			Code:    utils.ErrCodeInvalidRequest,
			Message: "invalid request",
			Details: err.Error(),
		})
	}

	rc := req.RoutingContext(queryID)

	if err := o.gate.CheckRate(rc.UserID, rc.SourceAddress); err != nil {
		return o.failure(req, err)
	}
	if err := o.gate.ScanQuery(req.NaturalQuery, rc.PrimaryRole(), rc.TenantID, rc.UserID); err != nil {
		return o.failure(req, err)
	}
	if err := o.gate.CheckIsolation(req.NaturalQuery, rc.TenantID, rc.UserID); err != nil {
		return o.failure(req, err)
	}

	record, err := o.registry.GetTenant(ctx, rc.TenantID)
	if err != nil {
		if errors.Is(err, repository.ErrTenantNotFound) {
			return o.failure(req, utils.NewNotFoundError("tenant", rc.TenantID))
		}
		return o.failure(req, utils.NewExecutionError(err))
	}
	rc.Industry = record.Industry

	snap, err := o.schemas.GetOrRefresh(ctx, rc.TenantID, o.extractor, false)
	if err != nil {
		return o.failure(req, utils.NewExecutionError(fmt.Errorf("schema introspection failed: %w", err)))
	}

	ir := o.parser.Parse(req.NaturalQuery, snap)

	generated, err := o.generator.Generate(ir, record.DatabaseKind, *rc, snap)
	if err != nil {
		return o.failure(req, err)
	}

	if _, err := o.gate.CheckComplexity(*rc, complexityTarget(generated)); err != nil {
		return o.failure(req, err)
	}

	columns, rows, err := o.executeWithRetry(ctx, rc.TenantID, record.DatabaseKind, generated, req.MaxResults)
	if err != nil {
		return o.failure(req, err)
	}

	sanitized, filtered := o.gate.SanitizeRows(rows, *rc)
	columns = o.gate.SanitizeColumns(columns, *rc)

	return &model.QueryResult{
		GeneratedQuery:   generated.Text(),
		Columns:          columns,
		Rows:             sanitized,
		RowCount:         len(sanitized),
		Status:           model.QueryStatusSuccess,
		SecurityFiltered: filtered,
	}
}

// executeWithRetry acquires a connection and runs the query, retrying once
// through pool recreation when the failure is a retryable kind. Security
// and permission failures never reach this path.
func (o *Orchestrator) executeWithRetry(ctx context.Context, tenantID string, kind model.DatabaseKind, generated *compiler.GeneratedQuery, maxResults int) ([]string, []model.Row, error) {
	columns, rows, err := o.executeOnce(ctx, tenantID, kind, generated, maxResults)
	if err == nil || !utils.IsRetryable(err) {
		return columns, rows, err
	}

	logger.Logger.Warn("retrying query after pool recreation",
		zap.String("tenant_id", tenantID),
		zap.String("error_code", utils.CodeOf(err)))
	if !o.manager.CreatePool(ctx, tenantID, true) {
		return nil, nil, err
	}
	return o.executeOnce(ctx, tenantID, kind, generated, maxResults)
}

func (o *Orchestrator) executeOnce(ctx context.Context, tenantID string, kind model.DatabaseKind, generated *compiler.GeneratedQuery, maxResults int) ([]string, []model.Row, error) {
	conn, err := o.manager.GetConnection(ctx, tenantID, kind)
	if err != nil {
		return nil, nil, err
	}
	return o.executor.Execute(ctx, conn, generated, maxResults)
}

// failure folds a pipeline error into the outbound result. Security,
// permission, and rate-limit denials surface as blocked; everything else
// as error. Raw SQL never appears in a non-success result.
func (o *Orchestrator) failure(req *model.QueryRequest, err error) *model.QueryResult {
	code := utils.CodeOf(err)
	status := model.QueryStatusError
	switch code {
	case utils.ErrCodePermissionDenied, utils.ErrCodeSecurityViolation, utils.ErrCodeRateLimitExceeded:
		status = model.QueryStatusBlocked
	}

	if o.metrics != nil && status == model.QueryStatusBlocked {
		o.metrics.ObserveBlock(req.TenantID, code)
	}

	return &model.QueryResult{
		Status:  status,
		Message: userMessage(err),
	}
}

// userMessage renders the stable message plus the remediation hint.
func userMessage(err error) string {
	var appErr *utils.AppError
	if !errors.As(err, &appErr) {
		return "internal error"
	}
	if appErr.Hint != "" {
		return appErr.Message + ". " + appErr.Hint
	}
	return appErr.Message
}

// complexityTarget renders the generated query in a form the scorer can
// inspect. Document pipelines are scored by their stage operators.
func complexityTarget(generated *compiler.GeneratedQuery) string {
	if generated.SQL != "" {
		return generated.SQL
	}
	if generated.Document != nil {
		return fmt.Sprintf("%v %v", generated.Document.Filter, generated.Document.AggregatePipeline)
	}
	return ""
}
