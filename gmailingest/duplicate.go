package gmailingest

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/receipts_backend/models"
	"bitbucket.org/mmdatafocus/receipts_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	// Candidates must have been received within two days either side of the
	// parsed receipt date.
	duplicateWindow = 48 * time.Hour
	// Amounts must match within one percent.
	duplicateAmountTolerance  = 0.01
	vendorSimilarityThreshold = 0.8
)

// DuplicateDetector flags a freshly parsed receipt as a likely duplicate of
// an earlier one in the same workspace.
type DuplicateDetector struct {
	Receipts ReceiptStore
	Logger   *logrus.Logger
}

// FindPotentialDuplicates returns receipts that match on amount (±1%) and
// date (±2 days), with the vendor rule as tie-breaker: both vendors present
// and similar means duplicate, both absent is treated conservatively as a
// duplicate, exactly one present is not.
func (d *DuplicateDetector) FindPotentialDuplicates(ctx context.Context, receipt *models.Receipt) ([]*models.Receipt, error) {
	parsed := receipt.ParsedData()
	if parsed == nil || parsed.Amount == nil || parsed.Date == "" {
		return nil, nil
	}

	date, ok := parseReceiptDate(parsed.Date)
	if !ok {
		d.Logger.WithFields(logrus.Fields{
			"field":      "DuplicateDetector",
			"receipt_id": receipt.ID,
		}).Warn("skipping duplicate scan, unparseable receipt date: " + parsed.Date)
		return nil, nil
	}

	from := date.Add(-duplicateWindow)
	to := date.Add(duplicateWindow)

	candidates, err := d.Receipts.ListUnresolvedInWindow(ctx, receipt.WorkspaceId, from, to, receipt.ID)
	if err != nil {
		return nil, err
	}

	low := parsed.Amount.Mul(decimal.NewFromFloat(1 - duplicateAmountTolerance))
	high := parsed.Amount.Mul(decimal.NewFromFloat(1 + duplicateAmountTolerance))

	var duplicates []*models.Receipt
	for _, cand := range candidates {
		candParsed := cand.ParsedData()
		if candParsed == nil || candParsed.Amount == nil {
			continue
		}
		if candParsed.Amount.LessThan(low) || candParsed.Amount.GreaterThan(high) {
			continue
		}

		switch {
		case parsed.Vendor != "" && candParsed.Vendor != "":
			sim := utils.StringSimilarity(parsed.Vendor, candParsed.Vendor)
			if sim > vendorSimilarityThreshold || utils.ContainsFold(parsed.Vendor, candParsed.Vendor) {
				duplicates = append(duplicates, cand)
			}
		case parsed.Vendor == "" && candParsed.Vendor == "":
			// Same amount and date with no vendor on either side: nothing to
			// disambiguate on, so flag it for review.
			duplicates = append(duplicates, cand)
		default:
			// Exactly one side has a vendor. Not a match.
		}
	}
	return duplicates, nil
}

func parseReceiptDate(value string) (time.Time, bool) {
	layouts := []string{
		"2006-01-02",
		time.RFC3339,
		"2006-01-02T15:04:05",
		"01/02/2006",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
