package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"

	"github.com/nvandessel/bfftrace/internal/lineage"
)

// Format specifies the output format for a rendered run.
type Format string

const (
	FormatCSV   Format = "csv"
	FormatJSON  Format = "json"
	FormatDOT   Format = "dot"
	FormatArrow Format = "arrow"
)

// ErrUnknownFormat is returned for unsupported format names.
var ErrUnknownFormat = errors.New("unknown export format")

// ParseFormat maps a name to a Format.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatCSV, FormatJSON, FormatDOT, FormatArrow:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// CSVHeader is the column layout of WriteCSV.
var CSVHeader = []string{"epoch", "grid_x", "grid_y", "program"}

// WriteCSV writes one row per node in creation order.
func WriteCSV(w io.Writer, records []lineage.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range records {
		row := []string{strconv.Itoa(r.Epoch), strconv.Itoa(r.X), strconv.Itoa(r.Y), r.Program.String()}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write node %d: %w", r.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ArrowSchema is the schema of WriteArrow output.
var ArrowSchema = arrow.NewSchema([]arrow.Field{
	{Name: "id", Type: arrow.PrimitiveTypes.Int64},
	{Name: "parent_id", Type: arrow.PrimitiveTypes.Int64},
	{Name: "epoch", Type: arrow.PrimitiveTypes.Int64},
	{Name: "grid_x", Type: arrow.PrimitiveTypes.Int32},
	{Name: "grid_y", Type: arrow.PrimitiveTypes.Int32},
	{Name: "program", Type: arrow.BinaryTypes.String},
	{Name: "status", Type: arrow.BinaryTypes.String},
}, nil)

// WriteArrow writes records as a single-batch Arrow IPC file.
func WriteArrow(w io.Writer, records []lineage.Record) error {
	mem := memory.NewGoAllocator()

	b := array.NewRecordBuilder(mem, ArrowSchema)
	defer b.Release()

	ids := b.Field(0).(*array.Int64Builder)
	parents := b.Field(1).(*array.Int64Builder)
	epochs := b.Field(2).(*array.Int64Builder)
	xs := b.Field(3).(*array.Int32Builder)
	ys := b.Field(4).(*array.Int32Builder)
	programs := b.Field(5).(*array.StringBuilder)
	statuses := b.Field(6).(*array.StringBuilder)

	for _, r := range records {
		ids.Append(int64(r.ID))
		parents.Append(int64(r.ParentID))
		epochs.Append(int64(r.Epoch))
		xs.Append(int32(r.X))
		ys.Append(int32(r.Y))
		programs.Append(r.Program.String())
		statuses.Append(string(r.Status))
	}

	rec := b.NewRecord()
	defer rec.Release()

	fw, err := ipc.NewFileWriter(w, ipc.WithSchema(ArrowSchema), ipc.WithAllocator(mem))
	if err != nil {
		return fmt.Errorf("create arrow writer: %w", err)
	}
	if err := fw.Write(rec); err != nil {
		fw.Close()
		return fmt.Errorf("write arrow batch: %w", err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("close arrow writer: %w", err)
	}
	return nil
}

// Write renders records to w in the given format.
func Write(w io.Writer, format Format, records []lineage.Record) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, records)
	case FormatDOT:
		_, err := io.WriteString(w, RenderDOT(records))
		return err
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(RenderJSON(records))
	case FormatArrow:
		return WriteArrow(w, records)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}
