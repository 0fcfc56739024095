package google

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/fastygo/taskbot/domain"
	"github.com/fastygo/taskbot/pkg/links"
	"github.com/fastygo/taskbot/usecase"
)

// SheetScopes are required by the spreadsheet adapter.
var SheetScopes = []string{sheets.SpreadsheetsScope}

// Task row layout.
const (
	colTitle      = "A"
	colCreated    = "B"
	colDeadline   = "C"
	colProgress   = "D"
	colAssignedBy = "E"
	colComment    = "F"
	colHours      = "G"
	colStatus     = "H"
	colTaskID     = "I"

	emptyCell = "—"
)

var updatedRow = regexp.MustCompile(`![A-Z]+(\d+)`)

// Sheet appends one row per task to a worksheet and keeps its status,
// hours and deadline cells current.
type Sheet struct {
	srv           *sheets.Service
	spreadsheetID string
	tab           string
	loc           *time.Location
}

func NewSheet(ctx context.Context, spreadsheetID, tab string, loc *time.Location, opts ...option.ClientOption) (*Sheet, error) {
	srv, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create sheets client: %w", err)
	}
	if loc == nil {
		loc = time.Local
	}
	return &Sheet{srv: srv, spreadsheetID: spreadsheetID, tab: tab, loc: loc}, nil
}

var _ usecase.Spreadsheet = (*Sheet)(nil)

func (s *Sheet) AppendTaskRow(ctx context.Context, task *domain.Task) (int, error) {
	values := &sheets.ValueRange{Values: [][]interface{}{rowValues(task, s.loc)}}
	resp, err := s.srv.Spreadsheets.Values.
		Append(s.spreadsheetID, s.cell(colTitle+":"+colTaskID), values).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return 0, mapError(err)
	}
	if resp.Updates == nil {
		return 0, fmt.Errorf("append response without updated range")
	}
	return parseRow(resp.Updates.UpdatedRange)
}

func (s *Sheet) UpdateRowStatus(ctx context.Context, row int, update usecase.RowStatusUpdate) error {
	data := []*sheets.ValueRange{s.value(colStatus, row, statusLabel(update.Status))}
	if update.Hours != nil {
		data = append(data, s.value(colHours, row, strconv.FormatFloat(*update.Hours, 'f', -1, 64)))
	}
	if update.Comment != nil {
		data = append(data, s.value(colComment, row, *update.Comment))
	}
	return s.batch(ctx, data)
}

func (s *Sheet) UpdateRowDeadline(ctx context.Context, row int, deadline string) error {
	return s.batch(ctx, []*sheets.ValueRange{s.value(colDeadline, row, orEmpty(deadline))})
}

func (s *Sheet) batch(ctx context.Context, data []*sheets.ValueRange) error {
	req := &sheets.BatchUpdateValuesRequest{ValueInputOption: "USER_ENTERED", Data: data}
	_, err := s.srv.Spreadsheets.Values.BatchUpdate(s.spreadsheetID, req).Context(ctx).Do()
	return mapError(err)
}

func (s *Sheet) value(col string, row int, v interface{}) *sheets.ValueRange {
	return &sheets.ValueRange{
		Range:  s.cell(fmt.Sprintf("%s%d", col, row)),
		Values: [][]interface{}{{v}},
	}
}

// cell qualifies an A1 range with the worksheet name.
func (s *Sheet) cell(ref string) string {
	if s.tab == "" {
		return ref
	}
	return "'" + strings.ReplaceAll(s.tab, "'", "''") + "'!" + ref
}

func rowValues(task *domain.Task, loc *time.Location) []interface{} {
	comment := task.Comment
	if len(task.Links) > 0 {
		comment = strings.TrimSpace(comment + "\n" + links.Format(task.Links))
	}
	return []interface{}{
		orEmpty(task.Title),
		task.CreatedAt.In(loc).Format("2006-01-02"),
		orEmpty(task.Deadline),
		emptyCell,
		orEmpty(task.AssignedBy),
		orEmpty(comment),
		"",
		statusLabel(task.Status),
		task.ID,
	}
}

func statusLabel(status domain.TaskStatus) string {
	if status == domain.TaskDone {
		return "Выполнено"
	}
	return "В работе"
}

func parseRow(updatedRange string) (int, error) {
	m := updatedRow.FindStringSubmatch(updatedRange)
	if m == nil {
		return 0, fmt.Errorf("cannot find row in range %q", updatedRange)
	}
	return strconv.Atoi(m[1])
}

func orEmpty(v string) string {
	if strings.TrimSpace(v) == "" {
		return emptyCell
	}
	return v
}
