package reports

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/receipts_backend/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

func decimalPtr(value string) *decimal.Decimal {
	d := decimal.RequireFromString(value)
	return &d
}

func exportFixtures() []*models.Receipt {
	parsed := &models.Receipt{
		ID:          uuid.New(),
		WorkspaceId: "ws-1",
		ReceivedAt:  time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
		Status:      models.ReceiptStatusDraft,
	}
	parsed.SetParsedData(&models.ParsedReceiptData{
		Amount:   decimalPtr("5000"),
		Currency: "KZT",
		Vendor:   "Magnum",
		Date:     "2025-03-10",
		Category: "Food & Dining",
		Tax:      decimalPtr("450"),
		Subtotal: decimalPtr("4550"),
	})

	unparsed := &models.Receipt{
		ID:          uuid.New(),
		WorkspaceId: "ws-1",
		ReceivedAt:  time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC),
		Status:      models.ReceiptStatusFailed,
	}
	return []*models.Receipt{parsed, unparsed}
}

func cell(t *testing.T, f *excelize.File, ref string) string {
	t.Helper()
	v, err := f.GetCellValue("Sheet1", ref)
	if err != nil {
		t.Fatalf("GetCellValue(%s): %v", ref, err)
	}
	return v
}

func TestBuildReceiptsWorkbook(t *testing.T) {
	f, err := buildReceiptsWorkbook(exportFixtures())
	if err != nil {
		t.Fatalf("buildReceiptsWorkbook: %v", err)
	}

	headers := []string{"Date", "Merchant", "Amount", "Currency", "Tax", "Subtotal", "Category", "Status"}
	for i, want := range headers {
		ref, _ := excelize.CoordinatesToCellName(i+1, 1)
		if got := cell(t, f, ref); got != want {
			t.Fatalf("header %s = %q, want %q", ref, got, want)
		}
	}

	// One row per receipt, parsed fields resolved.
	if got := cell(t, f, "A2"); got != "2025-03-10" {
		t.Fatalf("date = %q", got)
	}
	if got := cell(t, f, "B2"); got != "Magnum" {
		t.Fatalf("merchant = %q", got)
	}
	if got := cell(t, f, "C2"); got != "5000" {
		t.Fatalf("amount = %q", got)
	}
	if got := cell(t, f, "D2"); got != "KZT" {
		t.Fatalf("currency = %q", got)
	}
	if got := cell(t, f, "E2"); got != "450" {
		t.Fatalf("tax = %q", got)
	}
	if got := cell(t, f, "F2"); got != "4550" {
		t.Fatalf("subtotal = %q", got)
	}
	if got := cell(t, f, "G2"); got != "Food & Dining" {
		t.Fatalf("category = %q", got)
	}
	if got := cell(t, f, "H2"); got != string(models.ReceiptStatusDraft) {
		t.Fatalf("status = %q", got)
	}

	// Unparsed receipt: received date fallback, money cells left empty.
	if got := cell(t, f, "A3"); got != "2025-03-12" {
		t.Fatalf("fallback date = %q", got)
	}
	if got := cell(t, f, "B3"); got != "" {
		t.Fatalf("merchant should be empty, got %q", got)
	}
	if got := cell(t, f, "C3"); got != "" {
		t.Fatalf("amount should be empty, got %q", got)
	}
	if got := cell(t, f, "H3"); got != string(models.ReceiptStatusFailed) {
		t.Fatalf("status = %q", got)
	}

	if got := cell(t, f, "A4"); got != "" {
		t.Fatalf("unexpected extra row: %q", got)
	}
}

func exportRequest(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/api/receipts/export", ExportReceiptsExcel)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestExportReceiptsExcelValidation(t *testing.T) {
	if w := exportRequest(t, "/api/receipts/export"); w.Code != http.StatusBadRequest {
		t.Fatalf("missing workspace_id: status = %d", w.Code)
	}
	if w := exportRequest(t, "/api/receipts/export?workspace_id=ws-1&from=10-03-2025"); w.Code != http.StatusBadRequest {
		t.Fatalf("bad from date: status = %d", w.Code)
	}
	if w := exportRequest(t, "/api/receipts/export?workspace_id=ws-1&to=2025-13-99"); w.Code != http.StatusBadRequest {
		t.Fatalf("bad to date: status = %d", w.Code)
	}
}
