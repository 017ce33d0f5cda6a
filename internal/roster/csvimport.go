package roster

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
)

// ImportCSV reads a student roster from CSV and replaces the store's roster
// with it. The file must carry a header row containing at least the columns
// "USN" and "Name" (case-insensitive, any column order; extra columns are
// ignored). Rows with a missing USN or name, or with a USN that duplicates an
// earlier row (case-insensitive), abort the import.
//
// Each imported student is assigned a fresh internal UUID. Returns the number
// of students loaded.
func ImportCSV(ctx context.Context, store Store, r io.Reader) (int, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return 0, fmt.Errorf("roster: csv import: read header: %w", err)
	}

	usnCol, nameCol := -1, -1
	for i, col := range header {
		switch strings.ToLower(strings.TrimSpace(col)) {
		case "usn":
			usnCol = i
		case "name":
			nameCol = i
		}
	}
	if usnCol < 0 || nameCol < 0 {
		return 0, fmt.Errorf("roster: csv import: header must contain USN and Name columns, got %v", header)
	}

	var (
		students []Student
		seen     = make(map[string]int)
	)
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("roster: csv import: line %d: %w", line, err)
		}

		usn := strings.TrimSpace(row[usnCol])
		name := strings.TrimSpace(row[nameCol])
		if usn == "" {
			return 0, fmt.Errorf("roster: csv import: line %d: missing usn", line)
		}
		if name == "" {
			return 0, fmt.Errorf("roster: csv import: line %d: missing name for usn %q", line, usn)
		}

		key := strings.ToLower(usn)
		if prev, dup := seen[key]; dup {
			return 0, fmt.Errorf("roster: csv import: line %d: usn %q duplicates line %d", line, usn, prev)
		}
		seen[key] = line

		students = append(students, Student{
			ID:   uuid.NewString(),
			USN:  usn,
			Name: name,
		})
	}

	n, err := store.ReplaceStudents(ctx, students)
	if err != nil {
		return 0, fmt.Errorf("roster: csv import: %w", err)
	}
	return n, nil
}
