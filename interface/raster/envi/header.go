// Package envi reads and writes ENVI rasters: a flat binary file and a text header (.hdr)
package envi

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// ENVI data types
const (
	DataTypeByte    = 1
	DataTypeInt16   = 2
	DataTypeInt32   = 3
	DataTypeFloat32 = 4
	DataTypeFloat64 = 5
	DataTypeUint16  = 12
	DataTypeUint32  = 13
)

// Interleaves
const (
	BSQ = "bsq"
	BIL = "bil"
	BIP = "bip"
)

// MapInfo is the georeferencing of an ENVI raster
type MapInfo struct {
	Projection     string
	RefX, RefY     float64 // reference pixel (1-based)
	ULX, ULY       float64 // coordinates of the reference pixel
	PixelX, PixelY float64
}

// Header of an ENVI raster
type Header struct {
	Samples, Lines, Bands int
	HeaderOffset          int
	FileType              string
	DataType              int
	Interleave            string
	ByteOrder             int // 0: little endian, 1: big endian
	MapInfo               *MapInfo
	BandNames             []string
	Description           map[string]string
	// Fields holds the raw value of every field, including the unknown ones
	Fields map[string]string
}

// ParseHeader parses an ENVI header
func ParseHeader(r io.Reader) (*Header, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	if !scanner.Scan() || strings.TrimSpace(scanner.Text()) != "ENVI" {
		return nil, fmt.Errorf("ParseHeader: missing ENVI magic")
	}
	h := Header{Fields: map[string]string{}, Interleave: BSQ, FileType: "ENVI Standard"}
	for scanner.Scan() {
		line := scanner.Text()
		eq := strings.Index(line, "=")
		if eq < 0 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(line[:eq]))
		value := strings.TrimSpace(line[eq+1:])
		if strings.HasPrefix(value, "{") {
			for !strings.Contains(value, "}") && scanner.Scan() {
				value += "\n" + scanner.Text()
			}
			value = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(value, "{"), "}"))
		}
		h.Fields[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("ParseHeader: %w", err)
	}

	var err error
	for _, f := range []struct {
		key      string
		v        *int
		required bool
	}{
		{"samples", &h.Samples, true},
		{"lines", &h.Lines, true},
		{"bands", &h.Bands, true},
		{"data type", &h.DataType, true},
		{"header offset", &h.HeaderOffset, false},
		{"byte order", &h.ByteOrder, false},
	} {
		s, ok := h.Fields[f.key]
		if !ok {
			if f.required {
				return nil, fmt.Errorf("ParseHeader: missing field '%s'", f.key)
			}
			continue
		}
		if *f.v, err = strconv.Atoi(s); err != nil {
			return nil, fmt.Errorf("ParseHeader: field '%s': %w", f.key, err)
		}
	}
	if s, ok := h.Fields["interleave"]; ok {
		h.Interleave = strings.ToLower(s)
	}
	if s, ok := h.Fields["file type"]; ok {
		h.FileType = s
	}
	if s, ok := h.Fields["map info"]; ok {
		if h.MapInfo, err = parseMapInfo(s); err != nil {
			return nil, fmt.Errorf("ParseHeader: %w", err)
		}
	}
	if s, ok := h.Fields["band names"]; ok {
		for _, n := range strings.Split(s, ",") {
			h.BandNames = append(h.BandNames, strings.TrimSpace(n))
		}
	}
	if s, ok := h.Fields["description"]; ok {
		h.Description = parseDescription(s)
	}
	return &h, h.validate()
}

func (h *Header) validate() error {
	if h.Samples <= 0 || h.Lines <= 0 || h.Bands <= 0 {
		return fmt.Errorf("invalid raster size: %dx%dx%d", h.Samples, h.Lines, h.Bands)
	}
	if _, err := dataTypeSize(h.DataType); err != nil {
		return err
	}
	switch h.Interleave {
	case BSQ, BIL, BIP:
	default:
		return fmt.Errorf("unsupported interleave: %s", h.Interleave)
	}
	if h.ByteOrder != 0 && h.ByteOrder != 1 {
		return fmt.Errorf("invalid byte order: %d", h.ByteOrder)
	}
	if h.BandNames != nil && len(h.BandNames) != h.Bands {
		return fmt.Errorf("%d band names for %d bands", len(h.BandNames), h.Bands)
	}
	return nil
}

func parseMapInfo(s string) (*MapInfo, error) {
	fields := strings.Split(s, ",")
	if len(fields) < 7 {
		return nil, fmt.Errorf("invalid map info: %s", s)
	}
	var values [6]float64
	for i := range values {
		v, err := strconv.ParseFloat(strings.TrimSpace(fields[i+1]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid map info: %w", err)
		}
		values[i] = v
	}
	return &MapInfo{
		Projection: strings.TrimSpace(fields[0]),
		RefX:       values[0], RefY: values[1],
		ULX: values[2], ULY: values[3],
		PixelX: values[4], PixelY: values[5],
	}, nil
}

// description is written as {key=value, key=value}. Free text is kept under the "" key
func parseDescription(s string) map[string]string {
	d := map[string]string{}
	for _, kv := range strings.Split(s, ",") {
		kv = strings.TrimSpace(kv)
		if i := strings.Index(kv, "="); i > 0 {
			d[strings.TrimSpace(kv[:i])] = strings.TrimSpace(kv[i+1:])
		} else if kv != "" {
			d[""] = strings.TrimSpace(d[""] + " " + kv)
		}
	}
	return d
}

// Write writes the header
func (h *Header) Write(w io.Writer) error {
	if err := h.validate(); err != nil {
		return fmt.Errorf("Header.Write: %w", err)
	}
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "ENVI")
	if len(h.Description) > 0 {
		keys := make([]string, 0, len(h.Description))
		for k := range h.Description {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		kvs := make([]string, len(keys))
		for i, k := range keys {
			if k == "" {
				kvs[i] = h.Description[k]
			} else {
				kvs[i] = k + "=" + h.Description[k]
			}
		}
		fmt.Fprintf(bw, "description = {%s}\n", strings.Join(kvs, ", "))
	}
	fmt.Fprintf(bw, "samples = %d\n", h.Samples)
	fmt.Fprintf(bw, "lines = %d\n", h.Lines)
	fmt.Fprintf(bw, "bands = %d\n", h.Bands)
	fmt.Fprintf(bw, "header offset = %d\n", h.HeaderOffset)
	fmt.Fprintf(bw, "file type = %s\n", h.FileType)
	fmt.Fprintf(bw, "data type = %d\n", h.DataType)
	fmt.Fprintf(bw, "interleave = %s\n", h.Interleave)
	fmt.Fprintf(bw, "byte order = %d\n", h.ByteOrder)
	if m := h.MapInfo; m != nil {
		fmt.Fprintf(bw, "map info = {%s, %s, %s, %s, %s, %s, %s}\n", m.Projection,
			ftoa(m.RefX), ftoa(m.RefY), ftoa(m.ULX), ftoa(m.ULY), ftoa(m.PixelX), ftoa(m.PixelY))
	}
	if len(h.BandNames) > 0 {
		fmt.Fprintf(bw, "band names = {%s}\n", strings.Join(h.BandNames, ", "))
	}
	return bw.Flush()
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func dataTypeSize(dt int) (int, error) {
	switch dt {
	case DataTypeByte:
		return 1, nil
	case DataTypeInt16, DataTypeUint16:
		return 2, nil
	case DataTypeInt32, DataTypeUint32, DataTypeFloat32:
		return 4, nil
	case DataTypeFloat64:
		return 8, nil
	}
	return 0, fmt.Errorf("unsupported data type: %d", dt)
}
