package vector

import (
	"errors"
	"fmt"

	"github.com/localrivet/hybridrec/internal/errortypes"
)

// Matrix is an immutable N x D matrix of float32 stored row-major in a
// single backing slice. Row i is the embedding of item index i.
type Matrix struct {
	data []float32
	rows int
	dim  int
}

// NewMatrix wraps data as a rows x dim matrix. The slice is owned by the
// returned Matrix and must not be modified afterwards.
func NewMatrix(data []float32, rows, dim int) (*Matrix, error) {
	if rows <= 0 || dim <= 0 {
		return nil, errortypes.Newf(errortypes.ErrorTypeInvalidInput, "invalid matrix shape",
			"rows=%d dim=%d", rows, dim)
	}
	if len(data) != rows*dim {
		return nil, errortypes.Newf(errortypes.ErrorTypeInvalidInput, "invalid matrix shape",
			"have %d values, want %d (rows=%d dim=%d)", len(data), rows*dim, rows, dim)
	}
	return &Matrix{data: data, rows: rows, dim: dim}, nil
}

// NewMatrixFromRows copies rows into a new Matrix. All rows must have the
// same, non-zero width.
func NewMatrixFromRows(rows [][]float32) (*Matrix, error) {
	if len(rows) == 0 {
		return nil, errortypes.InvalidInputError(errors.New("no rows"), "invalid matrix shape")
	}

	dim := len(rows[0])
	if dim == 0 {
		return nil, errortypes.InvalidInputError(errors.New("row 0 is empty"), "invalid matrix shape")
	}

	data := make([]float32, 0, len(rows)*dim)
	for i, row := range rows {
		if len(row) != dim {
			return nil, errortypes.DimensionMismatchError(dim, len(row), fmt.Sprintf("row %d has inconsistent width", i))
		}
		data = append(data, row...)
	}

	return &Matrix{data: data, rows: len(rows), dim: dim}, nil
}

// Rows returns the number of rows (items).
func (m *Matrix) Rows() int {
	if m == nil {
		return 0
	}
	return m.rows
}

// Dim returns the row width.
func (m *Matrix) Dim() int {
	if m == nil {
		return 0
	}
	return m.dim
}

// Row returns a view of row i. The returned slice aliases the matrix and
// must be treated as read-only.
func (m *Matrix) Row(i int) []float32 {
	start := i * m.dim
	return m.data[start : start+m.dim : start+m.dim]
}

// RowCopy returns a copy of row i.
func (m *Matrix) RowCopy(i int) []float32 {
	out := make([]float32, m.dim)
	copy(out, m.Row(i))
	return out
}

// Empty reports whether the matrix is nil or has no rows.
func (m *Matrix) Empty() bool {
	return m == nil || m.rows == 0
}

// String implements fmt.Stringer.
func (m *Matrix) String() string {
	if m == nil {
		return "Matrix(nil)"
	}
	return fmt.Sprintf("Matrix(%dx%d)", m.rows, m.dim)
}
