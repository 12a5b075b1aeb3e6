package gmailingest

import (
	"context"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/receipts_backend/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func receiptWithParsed(workspaceId string, parsed *models.ParsedReceiptData) *models.Receipt {
	r := &models.Receipt{
		ID:          uuid.New(),
		WorkspaceId: workspaceId,
		Status:      models.ReceiptStatusParsed,
	}
	r.SetParsedData(parsed)
	return r
}

func decimalPtr(value string) *decimal.Decimal {
	d := decimal.RequireFromString(value)
	return &d
}

func TestFindPotentialDuplicatesMatchesSimilarVendor(t *testing.T) {
	store := newFakeReceiptStore()
	detector := &DuplicateDetector{Receipts: store, Logger: testLogger()}

	original := receiptWithParsed("ws-1", &models.ParsedReceiptData{
		Amount: decimalPtr("5000"),
		Vendor: "MAGNUM SUPERMARKET",
		Date:   "2025-03-10",
	})
	store.pool = []*models.Receipt{original}

	receipt := receiptWithParsed("ws-1", &models.ParsedReceiptData{
		Amount: decimalPtr("5000"),
		Vendor: "Magnum",
		Date:   "2025-03-11",
	})

	found, err := detector.FindPotentialDuplicates(context.Background(), receipt)
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 1 || found[0].ID != original.ID {
		t.Fatalf("expected the original receipt as duplicate, got %d matches", len(found))
	}
}

func TestFindPotentialDuplicatesRejectsDifferentVendor(t *testing.T) {
	store := newFakeReceiptStore()
	detector := &DuplicateDetector{Receipts: store, Logger: testLogger()}

	store.pool = []*models.Receipt{
		receiptWithParsed("ws-1", &models.ParsedReceiptData{
			Amount: decimalPtr("5000"),
			Vendor: "Starbucks",
			Date:   "2025-03-10",
		}),
	}

	receipt := receiptWithParsed("ws-1", &models.ParsedReceiptData{
		Amount: decimalPtr("5000"),
		Vendor: "Magnum",
		Date:   "2025-03-10",
	})

	found, err := detector.FindPotentialDuplicates(context.Background(), receipt)
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 0 {
		t.Fatalf("expected no duplicates, got %d", len(found))
	}
}

func TestFindPotentialDuplicatesAmountTolerance(t *testing.T) {
	store := newFakeReceiptStore()
	detector := &DuplicateDetector{Receipts: store, Logger: testLogger()}

	within := receiptWithParsed("ws-1", &models.ParsedReceiptData{
		Amount: decimalPtr("5049"), // within 1% of 5000
		Vendor: "Magnum",
		Date:   "2025-03-10",
	})
	outside := receiptWithParsed("ws-1", &models.ParsedReceiptData{
		Amount: decimalPtr("5051"), // just over 1%
		Vendor: "Magnum",
		Date:   "2025-03-10",
	})
	store.pool = []*models.Receipt{within, outside}

	receipt := receiptWithParsed("ws-1", &models.ParsedReceiptData{
		Amount: decimalPtr("5000"),
		Vendor: "Magnum",
		Date:   "2025-03-10",
	})

	found, err := detector.FindPotentialDuplicates(context.Background(), receipt)
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 1 || found[0].ID != within.ID {
		t.Fatalf("expected only the within-tolerance receipt, got %d matches", len(found))
	}
}

func TestFindPotentialDuplicatesVendorAbsence(t *testing.T) {
	store := newFakeReceiptStore()
	detector := &DuplicateDetector{Receipts: store, Logger: testLogger()}

	bothAbsent := receiptWithParsed("ws-1", &models.ParsedReceiptData{
		Amount: decimalPtr("100"),
		Date:   "2025-03-10",
	})
	onePresent := receiptWithParsed("ws-1", &models.ParsedReceiptData{
		Amount: decimalPtr("100"),
		Vendor: "Magnum",
		Date:   "2025-03-10",
	})
	store.pool = []*models.Receipt{bothAbsent, onePresent}

	receipt := receiptWithParsed("ws-1", &models.ParsedReceiptData{
		Amount: decimalPtr("100"),
		Date:   "2025-03-10",
	})

	found, err := detector.FindPotentialDuplicates(context.Background(), receipt)
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 1 || found[0].ID != bothAbsent.ID {
		t.Fatalf("expected only the vendor-less candidate, got %d matches", len(found))
	}
}

func TestFindPotentialDuplicatesWindow(t *testing.T) {
	store := newFakeReceiptStore()
	detector := &DuplicateDetector{Receipts: store, Logger: testLogger()}

	receipt := receiptWithParsed("ws-1", &models.ParsedReceiptData{
		Amount: decimalPtr("100"),
		Vendor: "Magnum",
		Date:   "2025-03-10",
	})

	if _, err := detector.FindPotentialDuplicates(context.Background(), receipt); err != nil {
		t.Fatal(err)
	}

	date := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	if !store.listedFrom.Equal(date.Add(-48*time.Hour)) || !store.listedTo.Equal(date.Add(48*time.Hour)) {
		t.Fatalf("unexpected window: %v .. %v", store.listedFrom, store.listedTo)
	}
}

func TestFindPotentialDuplicatesSkipsUnscannableReceipts(t *testing.T) {
	store := newFakeReceiptStore()
	detector := &DuplicateDetector{Receipts: store, Logger: testLogger()}

	cases := []*models.ParsedReceiptData{
		nil,
		{Vendor: "Magnum", Date: "2025-03-10"},            // no amount
		{Amount: decimalPtr("100"), Vendor: "Magnum"},     // no date
		{Amount: decimalPtr("100"), Date: "not-a-date"},   // unparseable date
	}
	for i, parsed := range cases {
		receipt := receiptWithParsed("ws-1", parsed)
		found, err := detector.FindPotentialDuplicates(context.Background(), receipt)
		if err != nil {
			t.Fatalf("case %d: %v", i, err)
		}
		if found != nil {
			t.Fatalf("case %d: expected nil result", i)
		}
	}
}
