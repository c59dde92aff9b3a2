package notify

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"vacinacao/internal/models"
)

var printer = message.NewPrinter(language.Portuguese)

// Header is the first line of every notification.
func Header(now time.Time) string {
	return fmt.Sprintf("*Dados recolhidos às %s*", now.Format("2006-01-02 15:04:05"))
}

// Table renders records as aligned text, one line per record under a header
// built from the union of their fields.
func Table(records []*models.Record) string {
	if len(records) == 0 {
		return "Sem dados."
	}

	var columns []string
	seen := map[string]struct{}{}
	for _, rec := range records {
		for _, k := range rec.Keys() {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				columns = append(columns, k)
			}
		}
	}

	buf := new(bytes.Buffer)
	tw := tabwriter.NewWriter(buf, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, strings.Join(columns, "\t")+"\t")
	for _, rec := range records {
		cells := rec.Row(columns)
		for i, c := range columns {
			cells[i] = formatCell(c, cells[i])
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t")+"\t")
	}
	tw.Flush()

	return strings.TrimRight(buf.String(), "\n")
}

// formatCell groups digits the Portuguese way. The epoch column stays raw.
func formatCell(column, value string) string {
	if value == "" || column == models.FieldDate {
		return value
	}
	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		return printer.Sprintf("%d", n)
	}
	if strings.ContainsAny(value, ".eE") {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return printer.Sprintf("%.2f", f)
		}
	}
	return value
}

// truncate cuts s to at most max runes, marking the cut with an ellipsis.
func truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
