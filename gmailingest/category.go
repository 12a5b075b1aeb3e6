package gmailingest

import (
	"context"
	"strings"

	"bitbucket.org/mmdatafocus/receipts_backend/config"
	"bitbucket.org/mmdatafocus/receipts_backend/models"
	"bitbucket.org/mmdatafocus/receipts_backend/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const categoryNameSimilarityThreshold = 0.7

// keywordArchetypes maps vendor tokens to category archetypes, most specific
// archetype first. A slice, not a map: the precedence order matters and map
// iteration would shuffle it.
var keywordArchetypes = []struct {
	archetype string
	tokens    []string
}{
	{"food", []string{
		"restaurant", "cafe", "coffee", "pizza", "burger", "grocery",
		"supermarket", "food", "кафе", "ресторан", "магазин",
	}},
	{"transport", []string{
		"taxi", "uber", "yandex", "газпром", "заправка", "gas", "fuel",
		"transport", "транспорт",
	}},
	{"entertainment", []string{
		"cinema", "theater", "concert", "movie", "кино", "театр", "развлечение",
	}},
	{"shopping", []string{
		"shop", "store", "mall", "market", "магазин", "торговый",
	}},
	{"utilities", []string{
		"utility", "electric", "water", "коммунальные", "электро", "вода",
	}},
	{"health", []string{
		"pharmacy", "hospital", "clinic", "doctor", "аптека", "клиника",
	}},
}

// CategorySuggester proposes a category for a parsed receipt, or nil.
//
// The waterfall order is deliberate: how this workspace labeled the vendor
// before outranks generic keyword heuristics, which outrank loose
// name similarity.
type CategorySuggester struct {
	Categories CategoryStore
	History    TransactionHistoryStore
	Logger     *logrus.Logger
}

func (s *CategorySuggester) SuggestCategory(ctx context.Context, receipt *models.Receipt) (*models.Category, error) {
	parsed := receipt.ParsedData()
	if parsed == nil || parsed.Vendor == "" {
		return nil, nil
	}
	vendor := parsed.Vendor

	categories, err := s.Categories.ListForWorkspace(ctx, receipt.WorkspaceId)
	if err != nil {
		return nil, err
	}
	if len(categories) == 0 {
		return nil, nil
	}

	match, err := s.matchByHistory(ctx, receipt.WorkspaceId, vendor, categories)
	if err != nil {
		return nil, err
	}
	if match != nil {
		return match, nil
	}

	if match := matchByKeywords(vendor, categories); match != nil {
		return match, nil
	}

	return matchBySimilarity(vendor, categories), nil
}

// matchByHistory picks the category this workspace used most often for
// transactions mentioning the vendor. Ties go to the category seen first.
func (s *CategorySuggester) matchByHistory(ctx context.Context, workspaceId, vendor string, categories []*models.Category) (*models.Category, error) {
	transactions, err := s.History.SearchCategorized(ctx, workspaceId, vendor, config.SearchLimit)
	if err != nil {
		return nil, err
	}
	if len(transactions) == 0 {
		return nil, nil
	}

	counts := make(map[uuid.UUID]int)
	var order []uuid.UUID
	for _, t := range transactions {
		if t.CategoryId == nil {
			continue
		}
		id := *t.CategoryId
		if counts[id] == 0 {
			order = append(order, id)
		}
		counts[id]++
	}

	var bestId uuid.UUID
	bestCount := 0
	for _, id := range order {
		if counts[id] > bestCount {
			bestId = id
			bestCount = counts[id]
		}
	}
	if bestCount == 0 {
		return nil, nil
	}

	for _, c := range categories {
		if c.ID == bestId {
			return c, nil
		}
	}

	// The historical category no longer exists in the workspace.
	s.Logger.WithFields(logrus.Fields{
		"field":        "CategorySuggester",
		"workspace_id": workspaceId,
		"category_id":  bestId,
	}).Warn("historical category match no longer exists")
	return nil, nil
}

func matchByKeywords(vendor string, categories []*models.Category) *models.Category {
	vendorLower := strings.ToLower(vendor)

	for _, arch := range keywordArchetypes {
		for _, token := range arch.tokens {
			if !strings.Contains(vendorLower, token) {
				continue
			}
			for _, c := range categories {
				if strings.Contains(strings.ToLower(c.Name), arch.archetype) {
					return c
				}
			}
		}
	}
	return nil
}

func matchBySimilarity(vendor string, categories []*models.Category) *models.Category {
	var best *models.Category
	bestScore := categoryNameSimilarityThreshold

	for _, c := range categories {
		if score := utils.StringSimilarity(vendor, c.Name); score > bestScore {
			best = c
			bestScore = score
		}
	}
	return best
}
