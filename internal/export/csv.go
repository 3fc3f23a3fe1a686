// Package export serializes wide report rows to CSV.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"orienta/internal/models"
)

// ListSeparator joins the items of multi-choice cells. Items containing the
// separator or a backslash are escaped with a backslash; SplitList reverses it.
const ListSeparator = "|"

var listEscaper = strings.NewReplacer(`\`, `\\`, ListSeparator, `\`+ListSeparator)

// JoinList renders list items as one cell
func JoinList(items []string) string {
	escaped := make([]string, len(items))
	for i, item := range items {
		escaped[i] = listEscaper.Replace(item)
	}
	return strings.Join(escaped, ListSeparator)
}

// SplitList parses a cell written by JoinList back into its items
func SplitList(cell string) []string {
	if cell == "" {
		return nil
	}
	var (
		items   []string
		current strings.Builder
		escaped bool
	)
	for _, r := range cell {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case string(r) == ListSeparator:
			items = append(items, current.String())
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	return append(items, current.String())
}

// Write writes a header row and one record per row. Columns absent from a row
// become empty cells. Line breaks inside cells are written verbatim; note that
// encoding/csv readers normalize a quoted \r\n to \n.
func Write(w io.Writer, columns []string, rows []map[string]any) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(columns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	record := make([]string, len(columns))
	for i, row := range rows {
		for j, col := range columns {
			record[j] = FormatCell(row[col])
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// Render returns the CSV document as a string
func Render(columns []string, rows []map[string]any) (string, error) {
	var sb strings.Builder
	if err := Write(&sb, columns, rows); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// FormatCell renders one value: lists joined with ListSeparator, booleans as
// true/false, numbers in their shortest form, times in RFC 3339 and nil as empty
func FormatCell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case *string:
		if val == nil {
			return ""
		}
		return *val
	case bool:
		return strconv.FormatBool(val)
	case *bool:
		if val == nil {
			return ""
		}
		return strconv.FormatBool(*val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case *float64:
		if val == nil {
			return ""
		}
		return strconv.FormatFloat(*val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case *int64:
		if val == nil {
			return ""
		}
		return strconv.FormatInt(*val, 10)
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case *time.Time:
		if val == nil {
			return ""
		}
		return val.UTC().Format(time.RFC3339)
	case []string:
		return JoinList(val)
	case models.AnswerValue:
		if val.Kind == models.KindList {
			return JoinList(val.List)
		}
		return FormatCell(val.Interface())
	case json.RawMessage:
		return string(val)
	default:
		return fmt.Sprint(val)
	}
}
