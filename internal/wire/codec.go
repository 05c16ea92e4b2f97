// Package wire defines what travels between the coordinator and its peers:
// the tab-delimited board encoding and the sequence-tagged message envelope.
package wire

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Iron-Ham/brainnet/internal/board"
	apperrors "github.com/Iron-Ham/brainnet/internal/errors"
)

// boardFields is the number of tab-separated fields in an encoded board.
const boardFields = 8

// Encode renders board and piece as
//
//	board_values \t rows \t cols \t piece_values \t piece_rows \t piece_cols \t x \t y
//
// where each values field is the row-major grid written as [v0, v1, ...].
func Encode(b *board.Grid, p board.Piece) string {
	shape := p.Shape
	if shape == nil {
		shape = board.NewGrid(0, 0)
	}
	return strings.Join([]string{
		formatValues(b.Values()),
		strconv.Itoa(b.Rows()),
		strconv.Itoa(b.Cols()),
		formatValues(shape.Values()),
		strconv.Itoa(shape.Rows()),
		strconv.Itoa(shape.Cols()),
		strconv.Itoa(p.X),
		strconv.Itoa(p.Y),
	}, "\t")
}

func formatValues(values []int) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, v := range values {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(strconv.Itoa(v))
	}
	sb.WriteByte(']')
	return sb.String()
}

// Decode parses an encoded board. The board must have exactly the
// expectRows×expectCols shape of the session.
func Decode(s string, expectRows, expectCols int) (*board.Grid, board.Piece, error) {
	fields := strings.Split(strings.TrimSpace(s), "\t")
	if len(fields) != boardFields {
		return nil, board.Piece{}, malformed("message", fmt.Sprintf("expected %d fields, got %d", boardFields, len(fields)))
	}

	ints := make([]int, 0, 6)
	for i, name := range []string{"rows", "cols", "piece_rows", "piece_cols", "x", "y"} {
		idx := i + 1
		if i >= 2 {
			idx = i + 2
		}
		v, err := strconv.Atoi(strings.TrimSpace(fields[idx]))
		if err != nil {
			return nil, board.Piece{}, malformed(name, fmt.Sprintf("not an integer: %q", fields[idx]))
		}
		ints = append(ints, v)
	}
	rows, cols, pieceRows, pieceCols, x, y := ints[0], ints[1], ints[2], ints[3], ints[4], ints[5]

	boardValues, err := parseValues(fields[0])
	if err != nil {
		return nil, board.Piece{}, malformed("board", err.Error())
	}
	pieceValues, err := parseValues(fields[3])
	if err != nil {
		return nil, board.Piece{}, malformed("piece", err.Error())
	}

	b, err := board.NewGridFrom(rows, cols, boardValues)
	if err != nil {
		return nil, board.Piece{}, malformed("board", err.Error())
	}
	shape, err := board.NewGridFrom(pieceRows, pieceCols, pieceValues)
	if err != nil {
		return nil, board.Piece{}, malformed("piece", err.Error())
	}

	if rows != expectRows || cols != expectCols {
		return nil, board.Piece{}, apperrors.NewCodecError(
			fmt.Sprintf("board is %dx%d, session board is %dx%d", rows, cols, expectRows, expectCols),
			apperrors.ErrShapeMismatch,
		).WithField("board")
	}

	return b, board.Piece{Shape: shape, X: x, Y: y}, nil
}

func parseValues(field string) ([]int, error) {
	field = strings.TrimSpace(field)
	if !strings.HasPrefix(field, "[") || !strings.HasSuffix(field, "]") {
		return nil, fmt.Errorf("values must be bracketed: %q", field)
	}
	inner := strings.TrimSpace(field[1 : len(field)-1])
	if inner == "" {
		return []int{}, nil
	}
	parts := strings.Split(inner, ",")
	values := make([]int, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("not an integer: %q", part)
		}
		values = append(values, v)
	}
	return values, nil
}

func malformed(field, msg string) error {
	return apperrors.NewCodecError(msg, apperrors.ErrMalformedMessage).WithField(field)
}
