package realtime

import (
	"bufio"
	"io"
	"strings"
)

// Frame is one decoded SSE frame.
type Frame struct {
	Event string
	Data  string
	ID    string
}

// Decoder reads SSE frames from a stream. Comment lines are skipped and
// multi-line data fields are joined with "\n".
type Decoder struct {
	sc *bufio.Scanner
}

func NewDecoder(r io.Reader) *Decoder {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &Decoder{sc: sc}
}

// Next returns the next frame, or io.EOF once the stream ends.
func (d *Decoder) Next() (Frame, error) {
	var (
		f       Frame
		data    []string
		hasData bool
	)
	for d.sc.Scan() {
		line := strings.TrimSuffix(d.sc.Text(), "\r")
		if line == "" {
			if hasData || f.Event != "" {
				f.Data = strings.Join(data, "\n")
				return f, nil
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			f.Event = value
		case "data":
			data = append(data, value)
			hasData = true
		case "id":
			f.ID = value
		}
	}
	if err := d.sc.Err(); err != nil {
		return Frame{}, err
	}
	if hasData || f.Event != "" {
		f.Data = strings.Join(data, "\n")
		return f, nil
	}
	return Frame{}, io.EOF
}

// DecodeAll reads every frame until EOF.
func DecodeAll(r io.Reader) ([]Frame, error) {
	d := NewDecoder(r)
	var out []Frame
	for {
		f, err := d.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, f)
	}
}
