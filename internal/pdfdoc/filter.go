package pdfdoc

import (
	"bytes"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
)

// Decode returns the decoded content of s. FlateDecode (with PNG or no predictor) is the only
// filter supported; streams without filters are returned as-is.
func Decode(s *Stream) ([]byte, error) {
	filters, params := streamFilters(s.Dict)
	data := s.Data
	for i, f := range filters {
		switch f {
		case "FlateDecode", "Fl":
			out, err := inflate(data)
			if err != nil {
				return nil, fmt.Errorf("flate: %w", err)
			}
			var p Dict
			if i < len(params) {
				p = params[i]
			}
			data, err = unpredict(out, p)
			if err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedFilter, f)
		}
	}
	return data, nil
}

func streamFilters(d Dict) ([]Name, []Dict) {
	var filters []Name
	var params []Dict
	switch f := d["Filter"].(type) {
	case Name:
		filters = []Name{f}
	case Array:
		for _, o := range f {
			if n, ok := o.(Name); ok {
				filters = append(filters, n)
			}
		}
	}
	switch p := d["DecodeParms"].(type) {
	case Dict:
		params = []Dict{p}
	case Array:
		for _, o := range p {
			pd, _ := o.(Dict)
			params = append(params, pd)
		}
	}
	return filters, params
}

func inflate(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, err
	}
	return out, nil
}

// unpredict reverses PNG row predictors (Predictor >= 10).
func unpredict(data []byte, params Dict) ([]byte, error) {
	if params == nil {
		return data, nil
	}
	predictor, _ := Int(params["Predictor"])
	if predictor < 10 {
		if predictor == 2 {
			return nil, fmt.Errorf("%w: TIFF predictor", ErrUnsupportedFilter)
		}
		return data, nil
	}
	columns := intOr(params["Columns"], 1)
	colors := intOr(params["Colors"], 1)
	bpc := intOr(params["BitsPerComponent"], 8)
	bpp := max(colors*bpc/8, 1)
	rowLen := (columns*colors*bpc + 7) / 8
	if rowLen <= 0 {
		return nil, errors.New("invalid predictor columns")
	}

	out := make([]byte, 0, len(data))
	prev := make([]byte, rowLen)
	for off := 0; off+1 <= len(data); off += rowLen + 1 {
		end := min(off+1+rowLen, len(data))
		filter := data[off]
		row := make([]byte, rowLen)
		copy(row, data[off+1:end])
		for i := 0; i < rowLen; i++ {
			var left, upLeft byte
			if i >= bpp {
				left = row[i-bpp]
				upLeft = prev[i-bpp]
			}
			up := prev[i]
			switch filter {
			case 1:
				row[i] += left
			case 2:
				row[i] += up
			case 3:
				row[i] += byte((int(left) + int(up)) / 2)
			case 4:
				row[i] += paeth(left, up, upLeft)
			}
		}
		out = append(out, row...)
		prev = row
	}
	return out, nil
}

func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := abs(p-int(a)), abs(p-int(b)), abs(p-int(c))
	switch {
	case pa <= pb && pa <= pc:
		return a
	case pb <= pc:
		return b
	}
	return c
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func intOr(o Object, def int) int {
	if v, ok := Int(o); ok && v > 0 {
		return v
	}
	return def
}

// NewFlateStream compresses content into a FlateDecode stream carrying dict's entries.
func NewFlateStream(dict Dict, content []byte) (*Stream, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(content); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	if dict == nil {
		dict = Dict{}
	}
	dict["Filter"] = Name("FlateDecode")
	delete(dict, "DecodeParms")
	return &Stream{Dict: dict, Data: buf.Bytes()}, nil
}
