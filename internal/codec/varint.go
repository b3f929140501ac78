package codec

import "encoding/binary"

// Varint writes the position count as a uvarint followed by zig-zag varint
// deltas between consecutive positions. Positions need not be ascending.
type Varint struct{}

func (Varint) Name() string { return "varint" }

func (Varint) Encode(positions []int) ([]byte, error) {
	if err := checkPositions(positions); err != nil {
		return nil, err
	}
	buf := make([]byte, 0, binary.MaxVarintLen64+len(positions)*2)
	buf = binary.AppendUvarint(buf, uint64(len(positions)))
	prev := 0
	for _, p := range positions {
		buf = binary.AppendVarint(buf, int64(p-prev))
		prev = p
	}
	return buf, nil
}

func (Varint) Decode(data []byte) ([]int, error) {
	count, n := binary.Uvarint(data)
	if n <= 0 {
		return nil, decodeErr("bad position count header")
	}
	data = data[n:]
	if count > uint64(len(data)) {
		return nil, decodeErr("header claims %d positions but only %d bytes follow", count, len(data))
	}
	positions := make([]int, 0, count)
	prev := int64(0)
	for i := uint64(0); i < count; i++ {
		delta, n := binary.Varint(data)
		if n <= 0 {
			return nil, decodeErr("truncated delta at position %d", i)
		}
		data = data[n:]
		prev += delta
		if prev < 0 {
			return nil, decodeErr("negative position at index %d", i)
		}
		positions = append(positions, int(prev))
	}
	if len(data) != 0 {
		return nil, decodeErr("%d trailing bytes", len(data))
	}
	return positions, nil
}
