package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tourism/internal/core"
	"tourism/internal/external"
	"tourism/internal/types"
)

// QuotaExceededResponse is the 403 body returned when a free user has no
// analyses left.
type QuotaExceededResponse struct {
	Error           core.ErrorDetail `json:"error"`
	Remaining       types.Remaining  `json:"remaining"`
	PlanState       types.PlanState  `json:"plan_state"`
	UpgradeRequired bool             `json:"upgrade_required"`
	JustExpired     bool             `json:"just_expired,omitempty"`
}

// AnalysisHandler gates image analysis on the caller's entitlement.
type AnalysisHandler struct {
	engine    EntitlementEvaluator
	recorder  UsageRecorder
	analyzer  external.Analyzer
	validator *core.Validator
	clock     types.Clock
	logger    *slog.Logger
}

// NewAnalysisHandler creates an AnalysisHandler.
func NewAnalysisHandler(
	engine EntitlementEvaluator,
	recorder UsageRecorder,
	analyzer external.Analyzer,
	v *core.Validator,
	clock types.Clock,
	l *slog.Logger,
) *AnalysisHandler {
	if l == nil {
		l = slog.Default()
	}
	if v == nil {
		v = core.NewValidator()
	}
	return &AnalysisHandler{
		engine:    engine,
		recorder:  recorder,
		analyzer:  analyzer,
		validator: v,
		clock:     clockOrReal(clock),
		logger:    l,
	}
}

// RegisterRoutes mounts POST /analyses.
func (h *AnalysisHandler) RegisterRoutes(r chi.Router) {
	r.Post("/analyses", h.Create)
}

// Create handles POST /v1/analyses.
//
//  1. Evaluate the caller. A denial stops here with 403 and nothing is counted.
//  2. Run the analysis. A failed analysis is not counted either.
//  3. Record the usage. A recording failure is logged; the caller still gets
//     the result they were allowed to have.
//  4. Re-evaluate so the response carries the post-usage quota.
//
// Evaluate and record are not serialized, so two concurrent requests at the
// last free slot can both be allowed.
func (h *AnalysisHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	log := types.LoggerFromContext(ctx, h.logger)

	var req types.AnalysisRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}
	req = req.Normalized()

	decision, err := h.engine.Evaluate(ctx, actor.ID, h.clock.Now())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if !decision.Allowed {
		log.InfoContext(ctx, "analysis denied", "reason", string(decision.Reason))
		core.JSON(w, r, http.StatusForbidden, QuotaExceededResponse{
			Error: core.ErrorDetail{
				Code:      string(types.ErrCodeLimitFreeQuota),
				Message:   "free analysis quota exhausted, upgrade to premium to continue",
				RequestID: types.GetRequestID(ctx),
			},
			Remaining:       decision.Remaining,
			PlanState:       decision.PlanState,
			UpgradeRequired: decision.UpgradeRequired,
			JustExpired:     decision.JustExpired,
		})
		return
	}

	result, err := h.analyzer.Analyze(ctx, req)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.recorder.RecordUsage(ctx, actor.ID); err != nil {
		log.WarnContext(ctx, "usage not recorded, analysis already served", "error", err)
	}

	after, err := h.engine.Evaluate(ctx, actor.ID, h.clock.Now())
	if err == nil {
		result.Usage = &after
	}
	core.JSON(w, r, http.StatusOK, result)
}
