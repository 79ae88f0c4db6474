package dataset

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// FormatValue renders a scanned cell the way a dataframe would print it.
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "NaN"
	case string:
		return t
	case []byte:
		return string(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case bool:
		if t {
			return "True"
		}
		return "False"
	case time.Time:
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
			return t.Format("2006-01-02")
		}
		return t.Format("2006-01-02 15:04:05")
	default:
		return fmt.Sprint(t)
	}
}

// RenderTable lays out a header and rows as right-aligned, space separated columns.
func RenderTable(columns []string, rows [][]string) string {
	widths := make([]int, len(columns))
	for i, c := range columns {
		widths[i] = utf8.RuneCountInString(c)
	}
	for _, row := range rows {
		for i := 0; i < len(row) && i < len(widths); i++ {
			if n := utf8.RuneCountInString(row[i]); n > widths[i] {
				widths[i] = n
			}
		}
	}

	var b strings.Builder
	writeLine := func(cells []string) {
		for i := range widths {
			if i > 0 {
				b.WriteByte(' ')
			}
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			b.WriteString(strings.Repeat(" ", widths[i]-utf8.RuneCountInString(cell)))
			b.WriteString(cell)
		}
	}

	writeLine(columns)
	for _, row := range rows {
		b.WriteByte('\n')
		writeLine(row)
	}
	return b.String()
}
