package bulk

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/docreg/docreg/internal/domain/patient"
	"github.com/docreg/docreg/internal/domain/visit"
)

// Import sheet columns, in order: Full Name, Phone, Date of Birth,
// Visit Date, Clinician, Notes, Diagnosis Code, Diagnosis Description.
const (
	colFullName = iota
	colPhone
	colDateOfBirth
	colVisitDate
	colClinician
	colNotes
	colDiagnosisCode
	colDiagnosisDescription
)

var dobLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"02/01/2006",
	"2006/01/02",
}

var visitDateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"02/01/2006",
	"2006/01/02",
	"2006-01-02 15:04:05",
	"01/02/2006 15:04:05",
}

// ParseWorkbook reads the first sheet of an xlsx import file. The first row
// is the header. Rows missing a name and cells whose dates fit none of the
// accepted layouts are reported as RowErrors; parsing never aborts on them.
func ParseWorkbook(r io.Reader) ([]Row, []RowError, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, nil, errors.New("workbook has no sheets")
	}
	cells, err := f.GetRows(sheet)
	if err != nil {
		return nil, nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}

	var (
		rows []Row
		errs []RowError
	)
	for i, line := range cells {
		if i == 0 {
			continue
		}
		row := Row{
			Line:                 i + 1,
			FullName:             cell(line, colFullName),
			Phone:                cell(line, colPhone),
			Clinician:            cell(line, colClinician),
			Notes:                cell(line, colNotes),
			DiagnosisCode:        cell(line, colDiagnosisCode),
			DiagnosisDescription: cell(line, colDiagnosisDescription),
		}
		if row.FullName == "" {
			errs = append(errs, RowError{Line: row.Line, Reason: "missing full name"})
			continue
		}
		if s := cell(line, colDateOfBirth); s != "" {
			if t, ok := parseDate(s, dobLayouts); ok {
				row.DateOfBirth = &t
			} else {
				errs = append(errs, RowError{Line: row.Line, Reason: fmt.Sprintf("unreadable date of birth %q", s)})
			}
		}
		if s := cell(line, colVisitDate); s != "" {
			if t, ok := parseDate(s, visitDateLayouts); ok {
				row.VisitDate = &t
			} else {
				errs = append(errs, RowError{Line: row.Line, Reason: fmt.Sprintf("unreadable visit date %q", s)})
			}
		}
		rows = append(rows, row)
	}
	return rows, errs, nil
}

func cell(line []string, i int) string {
	if i >= len(line) {
		return ""
	}
	return strings.TrimSpace(line[i])
}

func parseDate(s string, layouts []string) (time.Time, bool) {
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ExportFilename stamps the attachment name the way the export always has.
func ExportFilename(now time.Time) string {
	return "patients_complete_export_" + now.Format("20060102_150405") + ".xlsx"
}

const (
	summarySheet = "Patient Summary"
	groupedSheet = "Visits by Patient"

	bannerFill      = "0070C0"
	visitHeaderFill = "D3D3D3"
)

var summaryHeaders = []interface{}{
	"#", "Full Name", "Phone", "Date of Birth", "Age", "Total Visits", "Last Visit", "Created Date",
}

var visitHeaders = []interface{}{
	"Visit Date", "Time", "Clinician", "Diagnosis Code", "Diagnosis", "Notes",
}

// BuildExport renders the two-sheet workbook: "Patient Summary" with one
// line per record, and "Visits by Patient" grouping each record's visits
// newest first, one line per diagnosis. Patients are listed by name; now
// anchors the age column. The caller owns closing the returned file.
func BuildExport(patients []*patient.Patient, visits []*visit.Visit, diagnoses []*visit.Diagnosis, now time.Time) (*excelize.File, error) {
	byName := make([]*patient.Patient, len(patients))
	copy(byName, patients)
	sort.SliceStable(byName, func(i, j int) bool { return byName[i].FullName < byName[j].FullName })

	visitsByPatient := make(map[uuid.UUID][]*visit.Visit)
	for _, v := range visits {
		visitsByPatient[v.PatientID] = append(visitsByPatient[v.PatientID], v)
	}
	for _, vs := range visitsByPatient {
		sort.SliceStable(vs, func(i, j int) bool { return vs[i].VisitDate.After(vs[j].VisitDate) })
	}
	diagnosesByVisit := make(map[uuid.UUID][]*visit.Diagnosis)
	for _, d := range diagnoses {
		diagnosesByVisit[d.VisitID] = append(diagnosesByVisit[d.VisitID], d)
	}

	f := excelize.NewFile()
	if err := writeSummary(f, byName, visitsByPatient, now); err != nil {
		f.Close()
		return nil, err
	}
	if err := writeGrouped(f, byName, visitsByPatient, diagnosesByVisit); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		f.Close()
		return nil, err
	}
	index, err := f.GetSheetIndex(summarySheet)
	if err != nil {
		f.Close()
		return nil, err
	}
	f.SetActiveSheet(index)
	return f, nil
}

func writeSummary(f *excelize.File, patients []*patient.Patient, visitsByPatient map[uuid.UUID][]*visit.Visit, now time.Time) error {
	w, err := newSheetWriter(f, summarySheet)
	if err != nil {
		return err
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{bannerFill}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return err
	}

	w.append(summaryHeaders...)
	w.styleRow(headerStyle, len(summaryHeaders))

	for i, p := range patients {
		vs := visitsByPatient[p.ID]
		lastVisit := ""
		if len(vs) > 0 {
			lastVisit = vs[0].VisitDate.Format("2006-01-02")
		}
		var age interface{} = ""
		if a := p.Age(now); a >= 0 {
			age = a
		}
		w.append(
			i+1,
			p.FullName,
			text(p.Phone),
			dateOr(p.DateOfBirth, ""),
			age,
			len(vs),
			lastVisit,
			p.CreatedAt.Format("2006-01-02"),
		)
	}
	return w.fitColumns(50)
}

func writeGrouped(f *excelize.File, patients []*patient.Patient, visitsByPatient map[uuid.UUID][]*visit.Visit, diagnosesByVisit map[uuid.UUID][]*visit.Diagnosis) error {
	w, err := newSheetWriter(f, groupedSheet)
	if err != nil {
		return err
	}
	bannerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 14, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{bannerFill}, Pattern: 1},
	})
	if err != nil {
		return err
	}
	visitHeaderStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{visitHeaderFill}, Pattern: 1},
	})
	if err != nil {
		return err
	}

	for _, p := range patients {
		vs := visitsByPatient[p.ID]
		if len(vs) == 0 {
			continue
		}

		w.append()
		w.append("Patient: " + p.FullName)
		w.styleRow(bannerStyle, 1)
		w.mergeRow(8)
		w.append("Phone:", textOr(p.Phone, "N/A"), "DOB:", dateOr(p.DateOfBirth, "N/A"))
		w.append()
		w.append(visitHeaders...)
		w.styleRow(visitHeaderStyle, len(visitHeaders))

		for _, v := range vs {
			ds := diagnosesByVisit[v.ID]
			if len(ds) == 0 {
				w.append(v.VisitDate.Format("2006-01-02"), v.VisitDate.Format("15:04"),
					text(v.Clinician), "", "No diagnosis", text(v.Notes))
				continue
			}
			for _, d := range ds {
				w.append(v.VisitDate.Format("2006-01-02"), v.VisitDate.Format("15:04"),
					text(v.Clinician), text(d.Code), d.Description, text(v.Notes))
			}
		}
	}
	return w.fitColumns(60)
}

// sheetWriter appends rows top to bottom, remembering the widest content per
// column so the sheet can be sized afterwards. The first error sticks and
// surfaces from fitColumns; intermediate calls after it are no-ops.
type sheetWriter struct {
	f      *excelize.File
	sheet  string
	row    int
	widths []int
	err    error
}

func newSheetWriter(f *excelize.File, sheet string) (*sheetWriter, error) {
	if _, err := f.NewSheet(sheet); err != nil {
		return nil, err
	}
	return &sheetWriter{f: f, sheet: sheet}, nil
}

func (w *sheetWriter) append(cells ...interface{}) {
	if w.err != nil {
		return
	}
	w.row++
	if len(cells) == 0 {
		return
	}
	addr, err := excelize.CoordinatesToCellName(1, w.row)
	if err != nil {
		w.err = err
		return
	}
	if err := w.f.SetSheetRow(w.sheet, addr, &cells); err != nil {
		w.err = err
		return
	}
	for i, c := range cells {
		for len(w.widths) <= i {
			w.widths = append(w.widths, 0)
		}
		if n := len(fmt.Sprint(c)); n > w.widths[i] {
			w.widths[i] = n
		}
	}
}

// styleRow styles the row just written across the first cols columns.
func (w *sheetWriter) styleRow(styleID, cols int) {
	if w.err != nil {
		return
	}
	from, err := excelize.CoordinatesToCellName(1, w.row)
	if err != nil {
		w.err = err
		return
	}
	to, err := excelize.CoordinatesToCellName(cols, w.row)
	if err != nil {
		w.err = err
		return
	}
	w.err = w.f.SetCellStyle(w.sheet, from, to, styleID)
}

// mergeRow merges the row just written across the first cols columns.
func (w *sheetWriter) mergeRow(cols int) {
	if w.err != nil {
		return
	}
	from, err := excelize.CoordinatesToCellName(1, w.row)
	if err != nil {
		w.err = err
		return
	}
	to, err := excelize.CoordinatesToCellName(cols, w.row)
	if err != nil {
		w.err = err
		return
	}
	w.err = w.f.MergeCell(w.sheet, from, to)
}

// fitColumns widens every column to its longest content plus padding,
// capped at limit characters.
func (w *sheetWriter) fitColumns(limit int) error {
	if w.err != nil {
		return w.err
	}
	for i, width := range w.widths {
		name, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		adjusted := width + 2
		if adjusted > limit {
			adjusted = limit
		}
		if err := w.f.SetColWidth(w.sheet, name, name, float64(adjusted)); err != nil {
			return err
		}
	}
	return nil
}

func text(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func textOr(s *string, fallback string) string {
	if s == nil || *s == "" {
		return fallback
	}
	return *s
}

func dateOr(t *time.Time, fallback string) string {
	if t == nil {
		return fallback
	}
	return t.Format("2006-01-02")
}
