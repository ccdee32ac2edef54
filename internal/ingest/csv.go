// Package ingest reads the offline artifacts (interactions, item catalog and
// precomputed embeddings) from CSV files and encodes item titles into the
// semantic matrix.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/localrivet/hybridrec/internal/catalog"
	"github.com/localrivet/hybridrec/internal/errortypes"
	"github.com/localrivet/hybridrec/internal/vector"
)

// Column names of the interactions file.
const (
	ColumnUser        = "user"
	ColumnItem        = "item"
	ColumnInteraction = "interaction"
	ColumnID          = "id"
	ColumnTitle       = "title"
)

// ReadInteractions parses an interactions CSV. The header must contain
// exactly the user, item and interaction columns in any order. Rows for the
// same (user, item) pair are summed; output keeps first-seen order.
func ReadInteractions(r io.Reader) ([]catalog.Interaction, error) {
	cr := newReader(r)

	header, err := readHeader(cr)
	if err != nil {
		return nil, err
	}
	if len(header) != 3 {
		return nil, schemaErrorf("interactions header must be exactly user,item,interaction; got %v", keys(header))
	}
	cols, err := requireColumns(header, ColumnUser, ColumnItem, ColumnInteraction)
	if err != nil {
		return nil, err
	}

	type pair struct {
		user string
		item int
	}
	pos := make(map[pair]int)
	var out []catalog.Interaction

	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errortypes.SchemaError(err, "malformed interactions file").WithField("line", line)
		}

		item, err := parseIndex(rec[cols[1]], line)
		if err != nil {
			return nil, err
		}
		count, err := strconv.ParseFloat(strings.TrimSpace(rec[cols[2]]), 64)
		if err != nil {
			return nil, errortypes.SchemaError(err, "interaction is not a number").WithField("line", line)
		}

		key := pair{user: strings.TrimSpace(rec[cols[0]]), item: item}
		if i, ok := pos[key]; ok {
			out[i].Count += count
			continue
		}
		pos[key] = len(out)
		out = append(out, catalog.Interaction{User: key.user, Item: item, Count: count})
	}

	return out, nil
}

// ReadItems parses an item CSV with at least the id and title columns. The
// id column is the item's index.
func ReadItems(r io.Reader) ([]catalog.Item, error) {
	cr := newReader(r)

	header, err := readHeader(cr)
	if err != nil {
		return nil, err
	}
	cols, err := requireColumns(header, ColumnID, ColumnTitle)
	if err != nil {
		return nil, err
	}

	var items []catalog.Item
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errortypes.SchemaError(err, "malformed items file").WithField("line", line)
		}

		raw := strings.TrimSpace(rec[cols[0]])
		idx, err := parseIndex(raw, line)
		if err != nil {
			return nil, err
		}
		items = append(items, catalog.Item{Index: idx, ID: raw, Title: rec[cols[1]]})
	}

	if len(items) == 0 {
		return nil, schemaErrorf("items file has no rows")
	}
	return items, nil
}

// ReadEmbeddings parses a matrix CSV with an item column followed by one
// column per dimension. Every index from 0 to N-1 must appear exactly once.
func ReadEmbeddings(r io.Reader) (*vector.Matrix, error) {
	cr := newReader(r)

	header, err := cr.Read()
	if err != nil {
		return nil, errortypes.SchemaError(err, "embeddings file has no header")
	}
	if len(header) < 2 || strings.TrimSpace(header[0]) != ColumnItem {
		return nil, schemaErrorf("embeddings header must start with %q followed by dimensions", ColumnItem)
	}
	dim := len(header) - 1

	rows := make(map[int][]float32)
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errortypes.SchemaError(err, "malformed embeddings file").WithField("line", line)
		}

		idx, err := parseIndex(rec[0], line)
		if err != nil {
			return nil, err
		}
		if _, dup := rows[idx]; dup {
			return nil, schemaErrorf("line %d: duplicate item %d", line, idx)
		}

		vec := make([]float32, dim)
		for j := range vec {
			f, err := strconv.ParseFloat(strings.TrimSpace(rec[j+1]), 32)
			if err != nil {
				return nil, errortypes.SchemaError(err, "embedding value is not a number").
					WithField("line", line).WithField("column", j+1)
			}
			vec[j] = float32(f)
		}
		rows[idx] = vec
	}

	if len(rows) == 0 {
		return nil, schemaErrorf("embeddings file has no rows")
	}

	data := make([]float32, 0, len(rows)*dim)
	for i := 0; i < len(rows); i++ {
		vec, ok := rows[i]
		if !ok {
			return nil, schemaErrorf("embeddings are missing item %d", i)
		}
		data = append(data, vec...)
	}
	return vector.NewMatrix(data, len(rows), dim)
}

// ReadFile opens path and applies parse to it.
func ReadFile[T any](path string, parse func(io.Reader) (T, error)) (T, error) {
	var zero T
	f, err := os.Open(path)
	if err != nil {
		return zero, errortypes.SchemaError(err, "cannot open input file").WithField("path", path)
	}
	defer f.Close()

	v, err := parse(f)
	if err != nil {
		var appErr *errortypes.AppError
		if errors.As(err, &appErr) {
			return zero, appErr.WithField("path", path)
		}
		return zero, err
	}
	return v, nil
}

func newReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	return cr
}

func readHeader(cr *csv.Reader) (map[string]int, error) {
	rec, err := cr.Read()
	if err != nil {
		return nil, errortypes.SchemaError(err, "file has no header")
	}

	header := make(map[string]int, len(rec))
	for i, name := range rec {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if _, dup := header[name]; dup {
			return nil, schemaErrorf("duplicate column %q", name)
		}
		header[name] = i
	}
	return header, nil
}

func requireColumns(header map[string]int, names ...string) ([]int, error) {
	cols := make([]int, len(names))
	for i, name := range names {
		idx, ok := header[name]
		if !ok {
			return nil, schemaErrorf("missing column %q", name)
		}
		cols[i] = idx
	}
	return cols, nil
}

func parseIndex(raw string, line int) (int, error) {
	idx, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, errortypes.SchemaError(err, "item index is not an integer").WithField("line", line)
	}
	if idx < 0 {
		return 0, schemaErrorf("line %d: negative item index %d", line, idx)
	}
	return idx, nil
}

func keys(m map[string]int) []string {
	out := make([]string, len(m))
	for k, i := range m {
		out[i] = k
	}
	return out
}

func schemaErrorf(format string, args ...interface{}) *errortypes.AppError {
	return errortypes.SchemaError(fmt.Errorf(format, args...), "invalid input file")
}
