package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/spendviz/spendviz/internal/database/repository"
)

// CategorizerService applies categorization rules to transactions. Matching
// is purely deterministic string-pattern ranking; ties at the best rank are
// surfaced as conflicts rather than broken arbitrarily.
type CategorizerService struct {
	Transactions *repository.TransactionRepo
	Rules        *repository.RuleRepo
	Categories   *repository.CategoryRepo
	Log          *logrus.Logger
}

// ApplyResult summarizes a bulk rule application.
type ApplyResult struct {
	Categorized int
	Conflicts   int
}

// ConflictingRule is one side of a categorization conflict.
type ConflictingRule struct {
	RuleID       int64
	Pattern      string
	CategoryID   int64
	CategoryName string
}

// Conflict is a transaction whose best-ranked rule matches are tied across
// two or more rules, blocking automatic categorization.
type Conflict struct {
	TransactionID          int64
	TransactionDescription string
	ConflictingRules       []ConflictingRule
}

// MatchingRules returns every applicable rule for a transaction's
// description, most recent rules first within the retrieval order. The
// transaction must belong to userID.
func (s *CategorizerService) MatchingRules(ctx context.Context, userID, transactionID int64) ([]MatchResult, error) {
	tx, err := s.Transactions.Get(ctx, userID, transactionID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(tx.Description) == "" {
		return nil, nil
	}
	rules, err := s.Rules.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	return matchRules(rules, tx.Description), nil
}

func matchRules(rules []repository.Rule, description string) []MatchResult {
	var out []MatchResult
	for _, rule := range rules {
		mt := Match(rule.Pattern, description)
		if mt == MatchNone {
			continue
		}
		out = append(out, MatchResult{
			RuleID:       rule.ID,
			CategoryID:   rule.CategoryID,
			CategoryName: rule.CategoryName,
			Pattern:      rule.Pattern,
			Type:         mt,
		})
	}
	return out
}

// ApplyRulesToAllUncategorized runs the matcher over every uncategorized
// transaction of userID. A single best match auto-assigns its category; tied
// best matches count as a conflict and leave the transaction untouched, even
// when the tied rules agree on the category. Re-running is a no-op for rows
// already categorized.
func (s *CategorizerService) ApplyRulesToAllUncategorized(ctx context.Context, userID int64) (ApplyResult, error) {
	var res ApplyResult

	txs, err := s.Transactions.ListUncategorized(ctx, userID)
	if err != nil {
		return res, fmt.Errorf("list uncategorized: %w", err)
	}
	rules, err := s.Rules.ListForUser(ctx, userID)
	if err != nil {
		return res, fmt.Errorf("list rules: %w", err)
	}

	for _, tx := range txs {
		if strings.TrimSpace(tx.Description) == "" {
			continue
		}
		matches := matchRules(rules, tx.Description)
		if len(matches) == 0 {
			continue
		}
		best, _ := BestMatches(matches)
		if len(best) == 1 {
			categoryID := best[0].CategoryID
			if _, err := s.Transactions.UpdateCategory(ctx, tx.ID, &categoryID); err != nil {
				return res, fmt.Errorf("categorize transaction %d: %w", tx.ID, err)
			}
			res.Categorized++
		} else {
			res.Conflicts++
		}
	}

	s.Log.WithFields(logrus.Fields{
		"user":        userID,
		"categorized": res.Categorized,
		"conflicts":   res.Conflicts,
	}).Info("applied rules to uncategorized transactions")
	return res, nil
}

// FindConflicts re-derives the tie logic over all uncategorized transactions
// without mutating anything.
func (s *CategorizerService) FindConflicts(ctx context.Context, userID int64) ([]Conflict, error) {
	txs, err := s.Transactions.ListUncategorized(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list uncategorized: %w", err)
	}
	rules, err := s.Rules.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}

	var out []Conflict
	for _, tx := range txs {
		if strings.TrimSpace(tx.Description) == "" {
			continue
		}
		matches := matchRules(rules, tx.Description)
		if len(matches) < 2 {
			continue
		}
		best, _ := BestMatches(matches)
		if len(best) < 2 {
			continue
		}
		c := Conflict{
			TransactionID:          tx.ID,
			TransactionDescription: tx.Description,
		}
		for _, m := range best {
			c.ConflictingRules = append(c.ConflictingRules, ConflictingRule{
				RuleID:       m.RuleID,
				Pattern:      m.Pattern,
				CategoryID:   m.CategoryID,
				CategoryName: m.CategoryName,
			})
		}
		out = append(out, c)
	}
	return out, nil
}

// SetCategory assigns or clears a transaction's category. Explicit user
// assignment takes precedence over rules and bypasses the matcher entirely.
func (s *CategorizerService) SetCategory(ctx context.Context, userID, transactionID int64, categoryID *int64) error {
	if _, err := s.Transactions.Get(ctx, userID, transactionID); err != nil {
		return err
	}
	if categoryID != nil {
		if _, err := s.Categories.Get(ctx, userID, *categoryID); err != nil {
			return err
		}
	}
	_, err := s.Transactions.UpdateCategory(ctx, transactionID, categoryID)
	return err
}

// BulkCategorize assigns a category to many transactions at once, skipping
// any outside the user's scope.
func (s *CategorizerService) BulkCategorize(ctx context.Context, userID int64, transactionIDs []int64, categoryID *int64) (int64, error) {
	if categoryID != nil {
		if _, err := s.Categories.Get(ctx, userID, *categoryID); err != nil {
			return 0, err
		}
	}
	return s.Transactions.BulkUpdateCategory(ctx, userID, transactionIDs, categoryID)
}
