package checkedit

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"bitbucket.org/zamonsoft/checkedit_backend/models"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// ImportSummary reports what an Excel import produced.
type ImportSummary struct {
	Total    int `json:"total"`
	Imported int `json:"new"`
	Skipped  int `json:"skipped"`
}

// ImportChecksFromExcel reads the first sheet of a workbook and creates
// pending Check rows. The header row is matched loosely: any column
// containing the configured check-number name (or "receipt"/"check")
// provides the receipt id; "terminal", "tin", and "date"/"дата" columns
// are optional. Receipt ids already present in the queue are skipped.
func ImportChecksFromExcel(db *gorm.DB, r io.Reader, fileId *uint, cfg map[string]string) (ImportSummary, error) {
	var summary ImportSummary

	wb, err := excelize.OpenReader(r)
	if err != nil {
		return summary, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return summary, errors.New("workbook has no sheets")
	}
	rows, err := wb.GetRows(sheets[0])
	if err != nil {
		return summary, err
	}
	if len(rows) < 2 {
		return summary, errors.New("no valid check data found in Excel")
	}

	checkCol := strings.ToLower(models.ConfigString(cfg, "CHECK_NUMBER_COLUMN", "receipt_id"))
	checkIdx, terminalIdx, tinIdx, dateIdx := -1, -1, -1, -1
	for i, h := range rows[0] {
		header := strings.ToLower(strings.TrimSpace(h))
		if checkIdx == -1 && (strings.Contains(header, checkCol) || strings.Contains(header, "receipt") || strings.Contains(header, "check")) {
			checkIdx = i
		}
		if strings.Contains(header, "terminal") {
			terminalIdx = i
		}
		if strings.Contains(header, "tin") {
			tinIdx = i
		}
		if strings.Contains(header, "date") || strings.Contains(header, "дата") {
			dateIdx = i
		}
	}
	if checkIdx == -1 {
		checkIdx = 0
	}

	defaultTerminal := models.ConfigString(cfg, "DEFAULT_TERMINAL_ID", "EP000000000551")
	defaultTin := models.ConfigString(cfg, "DEFAULT_TIN", "")

	var existing []string
	if err := db.Model(&models.Check{}).Pluck("receipt_id", &existing).Error; err != nil {
		return summary, err
	}
	seen := make(map[string]bool, len(existing))
	for _, id := range existing {
		seen[id] = true
	}

	var toCreate []models.Check
	for _, row := range rows[1:] {
		receiptId := cellAt(row, checkIdx)
		if receiptId == "" {
			continue
		}
		summary.Total++
		if seen[receiptId] {
			summary.Skipped++
			continue
		}
		seen[receiptId] = true

		terminalId := cellAt(row, terminalIdx)
		if terminalId == "" {
			terminalId = defaultTerminal
		}

		check := models.Check{
			ReceiptId:  receiptId,
			PaymentId:  MakePaymentId(terminalId, receiptId),
			TerminalId: terminalId,
			Status:     models.CheckStatusPending,
			FileId:     fileId,
		}
		if tin := cellAt(row, tinIdx); tin != "" {
			check.Tin = &tin
		} else if defaultTin != "" {
			tin := defaultTin
			check.Tin = &tin
		}
		if date := cellAt(row, dateIdx); date != "" {
			check.PaymentDate = &date
		}
		toCreate = append(toCreate, check)
	}

	if summary.Total == 0 {
		return summary, errors.New("no valid check data found in Excel")
	}

	if len(toCreate) > 0 {
		if err := db.CreateInBatches(&toCreate, 500).Error; err != nil {
			return summary, err
		}
	}
	summary.Imported = len(toCreate)
	return summary, nil
}

func cellAt(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	v := strings.TrimSpace(row[idx])
	if v == "None" {
		return ""
	}
	return v
}
