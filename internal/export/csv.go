// Package export serializes the attendee list to CSV.
package export

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"rollcall/internal/domain"
)

// Layout selects the CSV column set.
type Layout string

const (
	// LayoutContact writes ID,Name,Phone Number,Timestamp.
	LayoutContact Layout = "contact"
	// LayoutRaw writes ID,Original Input,Formatted Name,Timestamp.
	LayoutRaw Layout = "raw"
)

const timestampFormat = "2006-01-02T15:04:05.000Z07:00"

// ParseLayout maps a config value to a Layout. Empty means contact.
func ParseLayout(value string) (Layout, error) {
	switch Layout(strings.ToLower(strings.TrimSpace(value))) {
	case "", LayoutContact:
		return LayoutContact, nil
	case LayoutRaw:
		return LayoutRaw, nil
	default:
		return "", fmt.Errorf("unsupported export layout %q", value)
	}
}

// Filename returns the dated export file name for day.
func Filename(day time.Time) string {
	return "attendance_export_" + day.Format("2006-01-02") + ".csv"
}

// Write renders attendees to w as CSV: one header row and one row per attendee.
// Text fields are always quoted with embedded quotes doubled.
func Write(w io.Writer, layout Layout, attendees []domain.Attendee) error {
	bw := bufio.NewWriter(w)

	header := "ID,Name,Phone Number,Timestamp"
	if layout == LayoutRaw {
		header = "ID,Original Input,Formatted Name,Timestamp"
	}
	if _, err := bw.WriteString(header + "\n"); err != nil {
		return err
	}

	for _, a := range attendees {
		second, third := a.FormattedName, a.FormattedPhone
		if layout == LayoutRaw {
			second, third = a.RawInput, a.FormattedName
		}
		row := strings.Join([]string{
			a.ID,
			quote(second),
			quote(third),
			a.Timestamp.UTC().Format(timestampFormat),
		}, ",")
		if _, err := bw.WriteString(row + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteFile writes the CSV to path atomically via a sibling temp file.
func WriteFile(path string, layout Layout, attendees []domain.Attendee) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".rollcall-export-*.csv")
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := Write(tmp, layout, attendees); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write export: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close export file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod export file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename export file: %w", err)
	}
	return nil
}

func quote(field string) string {
	return `"` + strings.ReplaceAll(field, `"`, `""`) + `"`
}
