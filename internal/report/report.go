// Package report writes the call history and dashboard figures to an
// Excel workbook.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/hpungsan/sav-assist/internal/calllog"
	"github.com/hpungsan/sav-assist/internal/history"
	"github.com/hpungsan/sav-assist/internal/stats"
)

const (
	CallsSheet = "Appels"
	StatsSheet = "Statistiques"
)

var callHeaders = []any{
	"Date", "Téléphone", "Client", "Technicien", "Objet", "Diagnostic",
	"Actions", "Décision", "Sentiment", "Ticket", "Notes",
}

var sentimentLabels = map[calllog.Sentiment]string{
	calllog.Positive: "Positif",
	calllog.Neutral:  "Neutre",
	calllog.Negative: "Négatif",
}

// Build returns a workbook with one row per call, newest first, and a
// statistics sheet. The caller must Close it.
func Build(logs []calllog.CallLog, s stats.Stats, loc *time.Location) (*excelize.File, error) {
	if loc == nil {
		loc = time.Local
	}
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", CallsSheet); err != nil {
		f.Close()
		return nil, err
	}
	if err := writeCalls(f, logs, loc); err != nil {
		f.Close()
		return nil, fmt.Errorf("calls sheet: %w", err)
	}
	if err := writeStats(f, s); err != nil {
		f.Close()
		return nil, fmt.Errorf("stats sheet: %w", err)
	}
	return f, nil
}

// Write builds the workbook and streams it to w.
func Write(w io.Writer, logs []calllog.CallLog, s stats.Stats, loc *time.Location) error {
	f, err := Build(logs, s, loc)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteTo(w)
	return err
}

// WriteFile builds the workbook and saves it at path, which must pass
// ValidatePath.
func WriteFile(path string, logs []calllog.CallLog, s stats.Stats, loc *time.Location) (err error) {
	if err := ValidatePath(path); err != nil {
		return err
	}
	out, err := createNoFollow(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()
	return Write(out, logs, s, loc)
}

func writeCalls(f *excelize.File, logs []calllog.CallLog, loc *time.Location) error {
	if err := f.SetSheetRow(CallsSheet, "A1", &callHeaders); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(CallsSheet, "A1", "K1", bold); err != nil {
		return err
	}

	ordered := calllog.Clone(logs)
	history.SortNewestFirst(ordered)
	for i, l := range ordered {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{
			time.UnixMilli(l.Timestamp).In(loc).Format("2006-01-02 15:04"),
			l.PhoneNumber,
			l.CustomerName,
			l.TechnicianName,
			l.Summary.Subject,
			l.Summary.Issue,
			l.Summary.Solution,
			l.Summary.NextSteps,
			sentimentLabel(l.Summary.Sentiment),
			l.TicketNumber,
			l.RawNotes,
		}
		if err := f.SetSheetRow(CallsSheet, cell, &row); err != nil {
			return err
		}
	}
	return f.SetColWidth(CallsSheet, "A", "K", 22)
}

func writeStats(f *excelize.File, s stats.Stats) error {
	if _, err := f.NewSheet(StatsSheet); err != nil {
		return err
	}
	rows := [][]any{
		{"Total appels", s.TotalCalls},
		{"Clients uniques", s.UniqueCustomers},
		{"Satisfaction (%)", s.SatisfactionPercent},
		{"Appels / jour", s.CallsPerDay},
		{"Positif", s.Sentiment.Positive},
		{"Neutre", s.Sentiment.Neutral},
		{"Négatif", s.Sentiment.Negative},
		{},
		{"Jour", "Date", "Appels"},
	}
	for _, d := range s.Activity {
		rows = append(rows, []any{d.Label, d.Date, d.Count})
	}
	for i := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(StatsSheet, cell, &rows[i]); err != nil {
			return err
		}
	}
	return f.SetColWidth(StatsSheet, "A", "C", 18)
}

func sentimentLabel(s calllog.Sentiment) string {
	if label, ok := sentimentLabels[s]; ok {
		return label
	}
	return sentimentLabels[calllog.Neutral]
}
