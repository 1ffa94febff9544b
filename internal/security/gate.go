package security

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"querygate/internal/config"
	"querygate/internal/logger"
	"querygate/internal/model"
	"querygate/internal/utils"
)

// Gate is the single entry point for access decisions. It combines table
// permissions, injection detection, tenant isolation, complexity ceilings,
// rate limiting and output sanitization behind one API so callers cannot
// skip a check by accident.
type Gate struct {
	policy      *TablePolicy
	store       PermissionStore
	detector    *InjectionDetector
	limiter     *RateLimiter
	scorer      *ComplexityScorer
	sanitizer   *OutputSanitizer
	maxQueryLen int
}

// NewGate wires a gate from configuration. A nil store disables explicit
// per-user overrides and falls back to role policy alone.
func NewGate(cfg config.SecurityConfig, store PermissionStore) *Gate {
	limiter := NewRateLimiter(RateLimiterConfig{
		UserRPM:    cfg.UserRatePerMinute,
		AddressRPM: cfg.AddressRatePerMinute,
	})
	maxLen := cfg.MaxQueryLength
	if maxLen <= 0 {
		maxLen = 10000
	}
	policy := DefaultTablePolicy()
	for role, industries := range cfg.TablePolicy {
		for industry, tables := range industries {
			policy.Set(role, industry, tables...)
		}
	}
	return &Gate{
		policy:      policy,
		store:       store,
		detector:    NewInjectionDetector(cfg.RiskScoreThreshold),
		limiter:     limiter,
		scorer:      NewComplexityScorer(cfg.ComplexityCeilings),
		sanitizer:   NewOutputSanitizer(),
		maxQueryLen: maxLen,
	}
}

// Limiter exposes the rate limiter so its cleanup loop can be started.
func (g *Gate) Limiter() *RateLimiter { return g.limiter }

// Scorer exposes the complexity scorer for direct ceiling lookups.
func (g *Gate) Scorer() *ComplexityScorer { return g.scorer }

// CheckRate enforces per-user and per-address budgets.
func (g *Gate) CheckRate(userID, clientAddr string) error {
	return g.limiter.Allow(userID, clientAddr)
}

// CheckTablePermission decides whether the caller may perform the given
// access on a table. Resolution order: an explicit per-user grant of
// sufficient level wins, then an admin role, then the role and industry
// table policy for reads. Writes without an explicit grant are denied for
// everyone below admin. Unknown combinations deny.
func (g *Gate) CheckTablePermission(rc model.TenantRoutingContext, table string, required Access) bool {
	table = strings.ToLower(table)

	if g.store != nil && rc.UserID != "" {
		if granted, ok := g.store.GetUserPermission(rc.UserID, "table", table); ok {
			return granted >= required
		}
	}

	for _, role := range rc.Roles {
		if isAdminRole(strings.ToLower(role)) {
			return true
		}
	}

	if required > AccessRead {
		return false
	}

	for _, role := range rc.Roles {
		if g.policy.CanRead(role, rc.Industry, table) {
			return true
		}
	}
	return false
}

// ReadableTables lists the tables the caller's best role may read, used to
// suggest alternatives when a request is denied.
func (g *Gate) ReadableTables(rc model.TenantRoutingContext) []string {
	seen := make(map[string]struct{})
	var tables []string
	for _, role := range rc.Roles {
		for _, t := range g.policy.ReadableTables(role, rc.Industry) {
			if _, dup := seen[t]; dup {
				continue
			}
			seen[t] = struct{}{}
			tables = append(tables, t)
		}
	}
	return tables
}

// ScanQuery runs injection detection over the raw query text. Oversized
// input is rejected outright before pattern matching.
func (g *Gate) ScanQuery(query, role, tenantID, userID string) error {
	if len(query) > g.maxQueryLen {
		return utils.NewSecurityViolation("query rejected", fmt.Sprintf("input exceeds maximum length of %d characters", g.maxQueryLen))
	}

	report := g.detector.Detect(query, role)
	if !report.Suspicious {
		return nil
	}

	g.logEvent(model.SecurityEvent{
		Kind:     "injection_detected",
		Severity: "high",
		TenantID: tenantID,
		UserID:   userID,
		Message:  fmt.Sprintf("risk score %d, patterns: %s", report.RiskScore, strings.Join(report.Patterns, ",")),
		At:       time.Now().UTC(),
	})
	return utils.NewSecurityViolation("query blocked by security screening",
		"the request contains patterns associated with injection attempts")
}

// CheckIsolation validates tenant scoping on literal SQL input.
func (g *Gate) CheckIsolation(query, tenantID, userID string) error {
	result := ValidateTenantIsolation(query, tenantID)
	if result.Valid {
		return nil
	}

	g.logEvent(model.SecurityEvent{
		Kind:     "isolation_violation",
		Severity: "high",
		TenantID: tenantID,
		UserID:   userID,
		Message:  result.Error,
		At:       time.Now().UTC(),
	})
	return utils.NewSecurityViolation("tenant isolation check failed", result.Error)
}

// CheckComplexity enforces the caller's complexity ceiling on a generated
// query. The ceiling of the strongest role wins.
func (g *Gate) CheckComplexity(rc model.TenantRoutingContext, query string) (ComplexityDecision, error) {
	best := ComplexityDecision{Complexity: ScoreComplexity(query), MaxAllowed: -1}
	for _, role := range rc.Roles {
		d := g.scorer.CheckQueryPermission(role, query)
		if d.MaxAllowed > best.MaxAllowed {
			best = d
		}
	}
	if best.MaxAllowed < 0 {
		best = g.scorer.CheckQueryPermission("guest", query)
	}

	if !best.Allowed {
		g.logEvent(model.SecurityEvent{
			Kind:     "complexity_exceeded",
			Severity: "medium",
			TenantID: rc.TenantID,
			UserID:   rc.UserID,
			Message:  fmt.Sprintf("complexity %d exceeds ceiling %d for role %s", best.Complexity, best.MaxAllowed, best.Role),
			At:       time.Now().UTC(),
		})
		return best, utils.NewPermissionError(
			fmt.Sprintf("query complexity %d exceeds the limit of %d for role %s", best.Complexity, best.MaxAllowed, best.Role),
			"simplify the query or request elevated access")
	}
	return best, nil
}

// SanitizeRows filters result rows for the caller's strongest role.
func (g *Gate) SanitizeRows(rows []model.Row, rc model.TenantRoutingContext) ([]model.Row, bool) {
	return g.sanitizer.Sanitize(rows, rc.PrimaryRole())
}

// SanitizeColumns filters the column header list to match sanitized rows.
func (g *Gate) SanitizeColumns(columns []string, rc model.TenantRoutingContext) []string {
	return g.sanitizer.SanitizeColumns(columns, rc.PrimaryRole())
}

func (g *Gate) logEvent(event model.SecurityEvent) {
	logger.SecurityEvent(event)
	logger.Logger.Warn("request blocked",
		zap.String("tenant_id", event.TenantID),
		zap.String("kind", event.Kind))
}
