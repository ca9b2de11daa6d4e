// Package report renders orders, posts and their audit trail as xlsx
// workbooks for download and archiving.
package report

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"lineflow/store"
)

const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Report is the content of one workbook. Empty sections get no sheet;
// the Summary sheet is always first.
type Report struct {
	Title       string
	GeneratedAt time.Time
	Orders      []*store.Order
	Posts       []*store.Post
	Corrections []*store.StockCorrection
	Audit       []*store.AuditEntry
}

type sheet struct {
	name   string
	header []any
	rows   [][]any
	widths []float64
}

func Write(w io.Writer, r Report) error {
	f := excelize.NewFile()
	defer f.Close()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	for i, sh := range r.sheets() {
		if i == 0 {
			err = f.SetSheetName("Sheet1", sh.name)
		} else {
			_, err = f.NewSheet(sh.name)
		}
		if err != nil {
			return fmt.Errorf("sheet %s: %w", sh.name, err)
		}
		if err := writeSheet(f, sh, bold); err != nil {
			return fmt.Errorf("sheet %s: %w", sh.name, err)
		}
	}
	return f.Write(w)
}

// Bytes renders r into memory.
func Bytes(r Report) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, sh sheet, headerStyle int) error {
	row := 1
	if len(sh.header) > 0 {
		if err := f.SetSheetRow(sh.name, "A1", &sh.header); err != nil {
			return err
		}
		last, err := excelize.CoordinatesToCellName(len(sh.header), 1)
		if err != nil {
			return err
		}
		if err := f.SetCellStyle(sh.name, "A1", last, headerStyle); err != nil {
			return err
		}
		row++
	}
	for _, values := range sh.rows {
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sh.name, cell, &values); err != nil {
			return err
		}
		row++
	}
	for i, w := range sh.widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sh.name, col, col, w); err != nil {
			return err
		}
	}
	return nil
}

func (r Report) sheets() []sheet {
	at := r.GeneratedAt
	if at.IsZero() {
		at = time.Now()
	}
	out := []sheet{{
		name: "Summary",
		rows: [][]any{
			{"Report", r.Title},
			{"Generated", stamp(at)},
			{"Orders", len(r.Orders)},
			{"Posts", len(r.Posts)},
			{"Corrections", len(r.Corrections)},
			{"Audit entries", len(r.Audit)},
		},
		widths: []float64{16, 40},
	}}

	if len(r.Orders) > 0 {
		sh := sheet{
			name:   "Orders",
			header: []any{"Order", "Line", "Quantity", "Finished", "Status", "Started", "Ended", "Detail"},
			widths: []float64{38, 10, 10, 10, 12, 22, 22, 40},
		}
		for _, o := range r.Orders {
			sh.rows = append(sh.rows, []any{o.ID, o.LineID, o.Quantity, o.Finished, o.Status, stamp(o.StartedAt), stamp(o.EndedAt), o.Detail})
		}
		out = append(out, sh)
	}

	if len(r.Posts) > 0 {
		sh := sheet{
			name:   "Posts",
			header: []any{"Post", "Line", "Position", "Capacity", "Stock", "TU (s)", "Updated"},
			widths: []float64{10, 10, 10, 10, 10, 10, 22},
		}
		for _, p := range r.Posts {
			sh.rows = append(sh.rows, []any{p.Code, p.LineID, p.Position, p.Capacity, p.Stock, p.TU.Seconds(), stamp(p.UpdatedAt)})
		}
		out = append(out, sh)
	}

	if len(r.Corrections) > 0 {
		sh := sheet{
			name:   "Corrections",
			header: []any{"ID", "Post", "Before", "After", "Reason", "Actor", "At"},
			widths: []float64{8, 10, 10, 10, 30, 14, 22},
		}
		for _, c := range r.Corrections {
			sh.rows = append(sh.rows, []any{c.ID, c.PostCode, c.Before, c.After, c.Reason, c.Actor, stamp(c.CreatedAt)})
		}
		out = append(out, sh)
	}

	if len(r.Audit) > 0 {
		sh := sheet{
			name:   "Audit",
			header: []any{"ID", "Entity", "Entity ID", "Action", "Detail", "Actor", "At"},
			widths: []float64{8, 12, 38, 22, 40, 14, 22},
		}
		for _, e := range r.Audit {
			sh.rows = append(sh.rows, []any{e.ID, e.EntityType, e.EntityID, e.Action, e.Detail, e.Actor, stamp(e.CreatedAt)})
		}
		out = append(out, sh)
	}
	return out
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
