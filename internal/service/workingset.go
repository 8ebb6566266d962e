package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/rowmill/rowmill/internal/core"
	"github.com/rowmill/rowmill/internal/domain/model"
)

// WorkingSet is one job's materialized rows plus output columns, owned by a
// single orchestration pass. Column order is stable: input columns first, then
// each prompt's output column in prompt order, so artifact headers never shift
// between partial writes.
type WorkingSet struct {
	Columns []string
	Rows    []map[string]string
}

// LoadWorkingSet builds the working set for a job. When a partial artifact from
// an earlier pass exists it is preferred over the original input, so cells
// written before a pause or crash survive into the replay.
func LoadWorkingSet(ctx context.Context, blobs core.BlobStore, job *model.Job) (*WorkingSet, error) {
	key := job.InputKey
	partialKey := PartialKey(job.TenantID, job.ID)
	exists, err := blobs.Exists(ctx, partialKey)
	if err != nil {
		return nil, fmt.Errorf("check partial artifact: %w", err)
	}
	if exists {
		key = partialKey
	}

	rc, err := blobs.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read artifact %s: %w", key, err)
	}
	defer func() { _ = rc.Close() }()

	ws, err := parseCSV(rc)
	if err != nil {
		return nil, fmt.Errorf("parse artifact %s: %w", key, err)
	}
	ws.ensureOutputColumns(job.Prompts)
	return ws, nil
}

func parseCSV(r io.Reader) (*WorkingSet, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	columns := make([]string, len(header))
	copy(columns, header)

	ws := &WorkingSet{Columns: columns}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(ws.Rows)+2, err)
		}
		row := make(map[string]string, len(columns))
		for i, col := range columns {
			if i < len(record) {
				row[col] = record[i]
			} else {
				row[col] = ""
			}
		}
		ws.Rows = append(ws.Rows, row)
	}
	return ws, nil
}

// ensureOutputColumns appends each prompt's output column when missing and
// pre-initializes it on every row, so never-reached rows still render with a
// full header.
func (ws *WorkingSet) ensureOutputColumns(prompts []model.PromptConfig) {
	known := make(map[string]struct{}, len(ws.Columns))
	for _, c := range ws.Columns {
		known[c] = struct{}{}
	}
	for _, p := range prompts {
		if _, ok := known[p.OutputColumn]; !ok {
			ws.Columns = append(ws.Columns, p.OutputColumn)
			known[p.OutputColumn] = struct{}{}
		}
	}
	for _, row := range ws.Rows {
		for _, p := range prompts {
			if _, ok := row[p.OutputColumn]; !ok {
				row[p.OutputColumn] = ""
			}
		}
	}
}

// Value returns the cell at (rowIdx, column); missing cells read as "".
func (ws *WorkingSet) Value(rowIdx int, column string) string {
	if rowIdx < 0 || rowIdx >= len(ws.Rows) {
		return ""
	}
	return ws.Rows[rowIdx][column]
}

// SetValue writes the cell at (rowIdx, column).
func (ws *WorkingSet) SetValue(rowIdx int, column, value string) {
	if rowIdx < 0 || rowIdx >= len(ws.Rows) {
		return
	}
	ws.Rows[rowIdx][column] = value
}

// RenderCSV serializes the working set with the stable column order.
func (ws *WorkingSet) RenderCSV() ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(ws.Columns); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	record := make([]string, len(ws.Columns))
	for i, row := range ws.Rows {
		for j, col := range ws.Columns {
			record[j] = row[col]
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
