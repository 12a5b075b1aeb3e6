package gmailingest

import (
	"context"
	"testing"

	"bitbucket.org/mmdatafocus/receipts_backend/models"
	"github.com/google/uuid"
)

func categoriesNamed(names ...string) []*models.Category {
	out := make([]*models.Category, 0, len(names))
	for _, name := range names {
		out = append(out, &models.Category{
			ID:          uuid.New(),
			WorkspaceId: "ws-1",
			Name:        name,
			Type:        models.CategoryTypeExpense,
		})
	}
	return out
}

func vendorReceipt(vendor string) *models.Receipt {
	return receiptWithParsed("ws-1", &models.ParsedReceiptData{Vendor: vendor})
}

func TestSuggestCategoryHistoricalWins(t *testing.T) {
	categories := categoriesNamed("Food & Dining", "Office Supplies")
	food, office := categories[0], categories[1]

	suggester := &CategorySuggester{
		Categories: &fakeCategoryStore{categories: categories},
		History: &fakeHistoryStore{transactions: []*models.Transaction{
			{CounterpartyName: "Magnum Cafe", CategoryId: &office.ID},
			{CounterpartyName: "Magnum Cafe", CategoryId: &food.ID},
			{CounterpartyName: "Magnum Cafe", CategoryId: &office.ID},
		}},
		Logger: testLogger(),
	}

	// "cafe" would keyword-match Food, but history says Office more often.
	got, err := suggester.SuggestCategory(context.Background(), vendorReceipt("Magnum Cafe"))
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.ID != office.ID {
		t.Fatalf("expected the historically dominant category, got %+v", got)
	}
}

func TestSuggestCategoryHistoricalTieKeepsFirst(t *testing.T) {
	categories := categoriesNamed("Food & Dining", "Office Supplies")
	food, office := categories[0], categories[1]

	suggester := &CategorySuggester{
		Categories: &fakeCategoryStore{categories: categories},
		History: &fakeHistoryStore{transactions: []*models.Transaction{
			{CounterpartyName: "Magnum", CategoryId: &office.ID},
			{CounterpartyName: "Magnum", CategoryId: &food.ID},
		}},
		Logger: testLogger(),
	}

	got, err := suggester.SuggestCategory(context.Background(), vendorReceipt("Magnum"))
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.ID != office.ID {
		t.Fatalf("expected the first encountered category on a tie, got %+v", got)
	}
}

func TestSuggestCategoryKeywordMatch(t *testing.T) {
	categories := categoriesNamed("Food & Dining", "Transport")

	suggester := &CategorySuggester{
		Categories: &fakeCategoryStore{categories: categories},
		History:    &fakeHistoryStore{},
		Logger:     testLogger(),
	}

	got, err := suggester.SuggestCategory(context.Background(), vendorReceipt("Central Coffee Roasters"))
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Name != "Food & Dining" {
		t.Fatalf("expected the food category, got %+v", got)
	}
}

func TestSuggestCategoryKeywordMatchRussian(t *testing.T) {
	categories := categoriesNamed("Transport", "Health")

	suggester := &CategorySuggester{
		Categories: &fakeCategoryStore{categories: categories},
		History:    &fakeHistoryStore{},
		Logger:     testLogger(),
	}

	got, err := suggester.SuggestCategory(context.Background(), vendorReceipt("Аптека №1"))
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Name != "Health" {
		t.Fatalf("expected the health category, got %+v", got)
	}
}

func TestSuggestCategorySimilarityFallback(t *testing.T) {
	categories := categoriesNamed("Starbucks", "Utilities")

	suggester := &CategorySuggester{
		Categories: &fakeCategoryStore{categories: categories},
		History:    &fakeHistoryStore{},
		Logger:     testLogger(),
	}

	got, err := suggester.SuggestCategory(context.Background(), vendorReceipt("Starbuck"))
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Name != "Starbucks" {
		t.Fatalf("expected the near-identical category name, got %+v", got)
	}
}

func TestSuggestCategoryNoMatch(t *testing.T) {
	suggester := &CategorySuggester{
		Categories: &fakeCategoryStore{categories: categoriesNamed("Utilities")},
		History:    &fakeHistoryStore{},
		Logger:     testLogger(),
	}

	got, err := suggester.SuggestCategory(context.Background(), vendorReceipt("Zzyzx Holdings"))
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatalf("expected no suggestion, got %+v", got)
	}
}

func TestSuggestCategoryNoVendorOrCategories(t *testing.T) {
	suggester := &CategorySuggester{
		Categories: &fakeCategoryStore{},
		History:    &fakeHistoryStore{},
		Logger:     testLogger(),
	}

	if got, err := suggester.SuggestCategory(context.Background(), vendorReceipt("")); err != nil || got != nil {
		t.Fatalf("expected nil for a vendor-less receipt, got %+v, %v", got, err)
	}

	withVendor := vendorReceipt("Magnum")
	if got, err := suggester.SuggestCategory(context.Background(), withVendor); err != nil || got != nil {
		t.Fatalf("expected nil for an empty category list, got %+v, %v", got, err)
	}
}
