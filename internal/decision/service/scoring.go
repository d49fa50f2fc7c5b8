package service

import (
	"context"
	"fmt"

	"consentgate/internal/decision"
)

// Transaction carries the fields the risk scorer may consider. Only fields
// whose attribute was allowed by the gate are populated by the handler.
type Transaction struct {
	EntityID     string
	Amount       float64
	Category     string
	MerchantName string
}

const (
	riskScorerName    = "txn-risk-scorer"
	riskScorerVersion = "1.2.0"

	// Rupee thresholds from the typical-spend heuristics of the upstream
	// analysis fallback.
	flagAmountThreshold   = 100000
	reviewAmountThreshold = 50000
)

// TransactionRiskScorer is the deterministic built-in analysis used when no
// external model is wired. It scores purely on amount bands and category
// presence, so identical inputs always produce identical decisions.
func TransactionRiskScorer(txn Transaction) ComputeFunc {
	return func(_ context.Context, allowed []string) (*Outcome, error) {
		allowedSet := make(map[string]bool, len(allowed))
		for _, a := range allowed {
			allowedSet[a] = true
		}

		var (
			factors    []decision.Factor
			riskPoints int
		)

		if allowedSet["transactions.amount"] {
			impact := decision.ImpactPositive
			switch {
			case txn.Amount >= flagAmountThreshold:
				impact = decision.ImpactNegative
				riskPoints += 2
			case txn.Amount >= reviewAmountThreshold:
				impact = decision.ImpactNegative
				riskPoints++
			}
			factors = append(factors, decision.Factor{
				Name:   "transaction_amount",
				Value:  txn.Amount,
				Weight: 0.6,
				Impact: impact,
			})
		}
		if allowedSet["transactions.category"] {
			impact := decision.ImpactNeutral
			if txn.Category == "" {
				impact = decision.ImpactNegative
				riskPoints++
			}
			factors = append(factors, decision.Factor{
				Name:   "category_known",
				Value:  txn.Category != "",
				Weight: 0.2,
				Impact: impact,
			})
		}
		if allowedSet["transactions.merchantName"] {
			impact := decision.ImpactNeutral
			if txn.MerchantName == "" {
				impact = decision.ImpactNegative
				riskPoints++
			}
			factors = append(factors, decision.Factor{
				Name:   "merchant_known",
				Value:  txn.MerchantName != "",
				Weight: 0.2,
				Impact: impact,
			})
		}

		// With every signal restricted there is nothing to score on; the
		// analysis still records a decision, flagged for a human.
		if len(factors) == 0 {
			factors = append(factors, decision.Factor{
				Name:   "signals_available",
				Value:  0,
				Weight: 1,
				Impact: decision.ImpactNegative,
			})
			riskPoints = 3
		}

		status := decision.StatusApproved
		confidence := 0.9
		switch {
		case riskPoints >= 3:
			status = decision.StatusFlagged
			confidence = 0.5
		case riskPoints == 2:
			status = decision.StatusUnderReview
			confidence = 0.6
		case riskPoints == 1:
			confidence = 0.75
		}

		return &Outcome{
			RelatedEntityID: txn.EntityID,
			EntityType:      decision.EntityTransaction,
			DecisionType:    decision.TypeTransactionAnalysis,
			Status:          status,
			Model: decision.Model{
				Name:       riskScorerName,
				Version:    riskScorerVersion,
				Confidence: confidence,
				BiasCheck:  true,
			},
			Explanation: decision.Explanation{
				Summary: fmt.Sprintf("Transaction risk analysis: %s", status),
				Details: fmt.Sprintf("Scored %d risk points across %d available signals.", riskPoints, len(factors)),
				Factors: factors,
			},
		}, nil
	}
}
