package features

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
)

// Float is a float64 that serialises non-finite values as JSON null.
type Float float64

// Series is a frame-indexed vector that serialises non-finite entries as null.
type Series []float64

// Matrix is a row-major matrix that serialises non-finite entries as null.
type Matrix [][]float64

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func appendFloat(buf []byte, v float64) []byte {
	if !finite(v) {
		return append(buf, "null"...)
	}
	return strconv.AppendFloat(buf, v, 'g', -1, 64)
}

func (f Float) MarshalJSON() ([]byte, error) {
	return appendFloat(nil, float64(f)), nil
}

func (f *Float) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*f = Float(math.NaN())
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = Float(v)
	return nil
}

func (s Series) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	buf := make([]byte, 0, 2+len(s)*12)
	buf = append(buf, '[')
	for i, v := range s {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = appendFloat(buf, v)
	}
	return append(buf, ']'), nil
}

func (s *Series) UnmarshalJSON(data []byte) error {
	var raw []*float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Series, len(raw))
	for i, v := range raw {
		if v == nil {
			out[i] = math.NaN()
			continue
		}
		out[i] = *v
	}
	*s = out
	return nil
}

func (m Matrix) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("[]"), nil
	}
	buf := []byte{'['}
	for i, row := range m {
		if i > 0 {
			buf = append(buf, ',')
		}
		enc, _ := Series(row).MarshalJSON()
		buf = append(buf, enc...)
	}
	return append(buf, ']'), nil
}

func (m *Matrix) UnmarshalJSON(data []byte) error {
	var rows []Series
	if err := json.Unmarshal(data, &rows); err != nil {
		return err
	}
	out := make(Matrix, len(rows))
	for i, row := range rows {
		out[i] = row
	}
	*m = out
	return nil
}

// Mean returns the arithmetic mean of s, or 0 when s is empty.
func (s Series) Mean() float64 {
	if len(s) == 0 {
		return 0
	}
	var sum float64
	for _, v := range s {
		sum += v
	}
	return sum / float64(len(s))
}
