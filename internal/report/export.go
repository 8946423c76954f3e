// Package report exports the crawl outcome in spreadsheet form.
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/sitemap-crawler/sitemapper/internal/frontier"
)

var header = []string{"URL", "State", "Status", "Last Modified", "Crawled At", "Discovered From"}

// ExportXLSX writes the terminal entries and a summary sheet to an XLSX
// workbook.
func ExportXLSX(filePath string, entries []frontier.Entry, stats frontier.Stats) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Pages"
	f.SetSheetName("Sheet1", sheet)

	for col, title := range header {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		f.SetCellValue(sheet, cell, title)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
	})
	if err == nil {
		f.SetRowStyle(sheet, 1, 1, headerStyle)
	}

	for i, entry := range entries {
		row := i + 2
		for col, value := range entryRow(entry) {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			f.SetCellValue(sheet, cell, value)
		}
	}
	f.SetColWidth(sheet, "A", "A", 60)
	f.SetColWidth(sheet, "F", "F", 60)

	const summary = "Summary"
	if _, err := f.NewSheet(summary); err == nil {
		rows := [][]interface{}{
			{"Seen", stats.Seen},
			{"Visited", stats.Visited},
			{"Failed", stats.Failed},
			{"Duplicates skipped", stats.Duplicates},
			{"Rejected at cap", stats.CapRejects},
		}
		for i, r := range rows {
			f.SetCellValue(summary, fmt.Sprintf("A%d", i+1), r[0])
			f.SetCellValue(summary, fmt.Sprintf("B%d", i+1), r[1])
		}
	}

	if err := f.SaveAs(filePath); err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	return nil
}

// ExportCSV writes the terminal entries as CSV.
func ExportCSV(filePath string, entries []frontier.Entry) error {
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	// UTF-8 BOM for Excel compatibility
	if _, err := file.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
		return err
	}

	w := csv.NewWriter(file)
	if err := w.Write(header); err != nil {
		return err
	}
	for _, entry := range entries {
		if err := w.Write(entryRow(entry)); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return file.Close()
}

func entryRow(entry frontier.Entry) []string {
	return []string{
		entry.URL,
		entry.State.String(),
		fmt.Sprintf("%d", entry.StatusCode),
		formatTime(entry.LastModified),
		formatTime(entry.CrawledAt),
		entry.DiscoveredFrom,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
