package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/LinHaoYu/ContractLens/app/models"
	"github.com/LinHaoYu/ContractLens/app/repository"
	"github.com/LinHaoYu/ContractLens/internal/pkg/analyzer"
	"github.com/LinHaoYu/ContractLens/internal/pkg/entitlement"
	"github.com/LinHaoYu/ContractLens/internal/pkg/metrics/counter"
	"github.com/LinHaoYu/ContractLens/internal/pkg/payloadstore"
	"github.com/LinHaoYu/ContractLens/internal/pkg/payment"
	"github.com/LinHaoYu/ContractLens/internal/pkg/usercontext"
)

const upsellMessage = "Your free daily analysis is used up. Purchase a single credit or a subscription to continue."

type analyzeRequest struct {
	ContractText string `json:"contract_text" validate:"required,min=20,max=200000"`
}

type analyzeResponse struct {
	Result     string `json:"result"`
	Tier       string `json:"tier"`
	ModelUsed  string `json:"model_used"`
	TokensUsed int    `json:"tokens_used"`
}

// HandleAnalyze runs one contract analysis for the authenticated principal:
// atomically debit a quota unit, call the analysis backend on the model the
// debited tier selects, persist the payloads and the audit record.
func HandleAnalyze(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	var req analyzeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid JSON body"})
	}
	if err := validator.New().Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "contract_text must be between 20 and 200000 characters"})
	}

	authCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	authorizer := entitlement.NewAuthorizer(repository.GetGlobalFactory().GetEntitlementRepository())
	decision, err := authorizer.Authorize(authCtx, userCtx.UserID)
	if err != nil {
		switch {
		case errors.Is(err, entitlement.ErrQuotaExhausted):
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "quota_exhausted", "message": upsellMessage})
		case errors.Is(err, entitlement.ErrUnknownPrincipal):
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "unknown_principal", "message": "No entitlement record for this account"})
		default:
			log.Errorf("[Analyze] Authorization failed for user %d: %v", userCtx.UserID, err)
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "storage_unavailable", "message": "Please retry shortly"})
		}
	}

	client := analyzer.NewClientFromEnv()
	model := client.ModelForTier(decision.Tier)

	callCtx, cancelCall := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancelCall()

	analysis, err := client.Analyze(callCtx, model, req.ContractText)
	if err != nil {
		// The quota unit is already spent. The debit and the backend call are
		// deliberately not one transaction; a backend outage must not be able
		// to hold entitlement locks.
		log.Errorf("[Analyze] Backend call failed for user %d (tier=%s): %v", userCtx.UserID, decision.Tier, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "analysis_failed", "message": "Analysis backend unavailable, please retry"})
	}

	inputRef, outputRef := storePayloads(userCtx.UserID, req.ContractText, analysis.Result)
	recordConsumption(userCtx.UserID, decision.Tier, analysis, inputRef, outputRef)

	if err := counter.AddAnalysis(string(decision.Tier)); err != nil {
		log.Warnf("[Analyze] Metrics counter update failed: %v", err)
	}

	return c.Status(fiber.StatusOK).JSON(analyzeResponse{
		Result:     analysis.Result,
		Tier:       string(decision.Tier),
		ModelUsed:  analysis.ModelUsed,
		TokensUsed: analysis.TokensUsed,
	})
}

// storePayloads writes input/output to the payload store when configured.
// Refs stay empty when the store is disabled or the upload fails; the audit
// record is written either way.
func storePayloads(userID uint, input, output string) (inputRef, outputRef string) {
	cfg, err := payloadstore.LoadConfig()
	if err != nil || !cfg.IsEnabled() {
		return "", ""
	}
	store, err := payloadstore.NewClient(cfg)
	if err != nil {
		log.Warnf("[Analyze] Payload store unavailable: %v", err)
		return "", ""
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	now := time.Now()
	analysisID := uuid.NewString()
	inputRef = payloadstore.InputKey(userID, analysisID, now)
	outputRef = payloadstore.OutputKey(userID, analysisID, now)

	if err := store.PutText(ctx, inputRef, input); err != nil {
		log.Warnf("[Analyze] Failed to store input payload: %v", err)
		inputRef = ""
	}
	if err := store.PutText(ctx, outputRef, output); err != nil {
		log.Warnf("[Analyze] Failed to store output payload: %v", err)
		outputRef = ""
	}
	return inputRef, outputRef
}

// recordConsumption writes the audit row. It is off the consistency path:
// failures are logged, never surfaced to the user.
func recordConsumption(userID uint, tier entitlement.Tier, analysis *analyzer.Analysis, inputRef, outputRef string) {
	record := &models.AnalysisRecord{
		UserID:     userID,
		Tier:       string(tier),
		InputRef:   inputRef,
		OutputRef:  outputRef,
		ModelUsed:  analysis.ModelUsed,
		TokensUsed: analysis.TokensUsed,
	}
	if tier == entitlement.TierSingle || tier == entitlement.TierSubscription {
		expires := time.Now().Add(payment.PurchasedCreditDays * 24 * time.Hour)
		record.ExpiresAt = &expires
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := repository.GetGlobalFactory().GetAnalysisRepository().Create(ctx, record); err != nil {
		log.Errorf("[Analyze] Failed to write analysis record for user %d: %v", userID, err)
	}
}
