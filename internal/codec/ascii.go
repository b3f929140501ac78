package codec

import (
	"strconv"
	"strings"
)

// ASCII stores positions as readable text, "count:p1,p2,...". It is larger
// than Varint but can be inspected with any store shell.
type ASCII struct{}

func (ASCII) Name() string { return "ascii" }

func (ASCII) Encode(positions []int) ([]byte, error) {
	if err := checkPositions(positions); err != nil {
		return nil, err
	}
	var sb strings.Builder
	sb.WriteString(strconv.Itoa(len(positions)))
	sb.WriteByte(':')
	for i, p := range positions {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(p))
	}
	return []byte(sb.String()), nil
}

func (ASCII) Decode(data []byte) ([]int, error) {
	head, body, ok := strings.Cut(string(data), ":")
	if !ok {
		return nil, decodeErr("missing count separator")
	}
	count, err := strconv.Atoi(head)
	if err != nil || count < 0 {
		return nil, decodeErr("bad count %q", head)
	}
	if count == 0 {
		if body != "" {
			return nil, decodeErr("zero count with %d bytes of positions", len(body))
		}
		return []int{}, nil
	}
	fields := strings.Split(body, ",")
	if len(fields) != count {
		return nil, decodeErr("count %d does not match %d positions", count, len(fields))
	}
	positions := make([]int, count)
	for i, f := range fields {
		p, err := strconv.Atoi(f)
		if err != nil || p < 0 {
			return nil, decodeErr("bad position %q", f)
		}
		positions[i] = p
	}
	return positions, nil
}
