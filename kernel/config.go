package kernel

import (
	"fmt"

	"github.com/xsongx/scanner/solver"
)

// Name of the output column produced by the kernel.
const OutputColumn = "points"

// Config holds everything the host supplies when instantiating a kernel.
type Config struct {
	// Device assigned to this instance.
	Device solver.DeviceHandle

	// Serialized kernel arguments (see args.Marshal).
	Args []byte

	// Declared input columns. Columns alternate between a camera image
	// and the matching frame info, so N cameras need 2N columns.
	InputColumns []string

	// Solver backend; when empty the default backend for the device type
	// is used.
	Backend string
}

// ImageColumns returns the conventional input column layout for the given
// number of cameras.
func ImageColumns(numCameras int) []string {
	cols := make([]string, 0, numCameras*2)
	for camIdx := 0; camIdx < numCameras; camIdx++ {
		cols = append(cols,
			fmt.Sprintf("frame%d", camIdx),
			fmt.Sprintf("frame_info%d", camIdx),
		)
	}
	return cols
}

// Result reports whether a kernel is usable.
type Result struct {
	Success bool
	Msg     string
}

// A column holds one serialized value per frame of a batch.
type Column struct {
	Rows [][]byte
}

// Append a row to the column.
func (c *Column) Append(row []byte) {
	c.Rows = append(c.Rows, row)
}

// BatchedColumns is a set of equally sized columns.
type BatchedColumns []*Column

// Number of rows in the batch. All columns must have the same length.
func (bc BatchedColumns) NumRows() int {
	if len(bc) == 0 {
		return 0
	}
	n := len(bc[0].Rows)
	for colIdx, col := range bc {
		if len(col.Rows) != n {
			panic(fmt.Sprintf("gipuma: column %d has %d rows; expected %d", colIdx, len(col.Rows), n))
		}
	}
	return n
}

// NewBatchedColumns allocates n empty columns.
func NewBatchedColumns(n int) BatchedColumns {
	bc := make(BatchedColumns, n)
	for i := range bc {
		bc[i] = &Column{}
	}
	return bc
}
