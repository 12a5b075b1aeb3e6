package reports

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"bitbucket.org/mmdatafocus/receipts_backend/config"
	"bitbucket.org/mmdatafocus/receipts_backend/models"
	"bitbucket.org/mmdatafocus/receipts_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
)

var ErrNoReceipts = errors.New("no receipts found for the requested period")

func getReceiptsForExport(ctx context.Context, from, to *time.Time) ([]*models.Receipt, error) {
	workspaceId, ok := utils.GetWorkspaceIdFromContext(ctx)
	if !ok || workspaceId == "" {
		return nil, errors.New("workspace id is required")
	}

	db := config.GetDB().WithContext(ctx).
		Where("workspace_id = ?", workspaceId).
		Where("is_duplicate = ?", false)
	if from != nil {
		db = db.Where("received_at >= ?", *from)
	}
	if to != nil {
		db = db.Where("received_at <= ?", *to)
	}

	var receipts []*models.Receipt
	if err := db.Order("received_at ASC").Find(&receipts).Error; err != nil {
		return nil, err
	}
	return receipts, nil
}

func buildReceiptsWorkbook(receipts []*models.Receipt) (*excelize.File, error) {
	f := excelize.NewFile()
	sheetName := "Sheet1"
	if _, err := f.NewSheet(sheetName); err != nil {
		return nil, err
	}

	// Add headers
	f.SetCellValue(sheetName, "A1", "Date")
	f.SetCellValue(sheetName, "B1", "Merchant")
	f.SetCellValue(sheetName, "C1", "Amount")
	f.SetCellValue(sheetName, "D1", "Currency")
	f.SetCellValue(sheetName, "E1", "Tax")
	f.SetCellValue(sheetName, "F1", "Subtotal")
	f.SetCellValue(sheetName, "G1", "Category")
	f.SetCellValue(sheetName, "H1", "Status")

	// Add data
	for i, r := range receipts {
		row := fmt.Sprint(i + 2)
		parsed := r.ParsedData()
		if parsed == nil {
			parsed = &models.ParsedReceiptData{}
		}

		date := parsed.Date
		if date == "" {
			date = r.ReceivedAt.Format("2006-01-02")
		}

		f.SetCellValue(sheetName, "A"+row, date)
		f.SetCellValue(sheetName, "B"+row, parsed.Vendor)
		if parsed.Amount != nil {
			f.SetCellValue(sheetName, "C"+row, parsed.Amount.String())
		}
		f.SetCellValue(sheetName, "D"+row, parsed.Currency)
		if parsed.Tax != nil {
			f.SetCellValue(sheetName, "E"+row, parsed.Tax.String())
		}
		if parsed.Subtotal != nil {
			f.SetCellValue(sheetName, "F"+row, parsed.Subtotal.String())
		}
		f.SetCellValue(sheetName, "G"+row, parsed.Category)
		f.SetCellValue(sheetName, "H"+row, string(r.Status))
	}
	return f, nil
}

// ExportReceiptsExcel streams the workspace's receipts as an xlsx workbook.
// Optional from/to query params (YYYY-MM-DD) bound the received date.
func ExportReceiptsExcel(c *gin.Context) {
	workspaceId := c.Query("workspace_id")
	if workspaceId == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "workspace_id is required"})
		return
	}

	var from, to *time.Time
	if v := c.Query("from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from date"})
			return
		}
		from = &t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to date"})
			return
		}
		// include the whole end day
		t = t.Add(24*time.Hour - time.Nanosecond)
		to = &t
	}

	ctx := utils.SetWorkspaceIdInContext(c.Request.Context(), workspaceId)
	receipts, err := getReceiptsForExport(ctx, from, to)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if len(receipts) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": ErrNoReceipts.Error()})
		return
	}

	f, err := buildReceiptsWorkbook(receipts)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", "attachment; filename=receipts.xlsx")
	if err := f.Write(c.Writer); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to write file"})
	}
}
