// Package codec encodes the ordered term positions of one (term, document)
// posting. An index picks one codec when it is created and records its name;
// reading with a different codec is refused.
package codec

import (
	"fmt"

	apperrors "github.com/Adithya-Monish-Kumar-K/kvindex/pkg/errors"
)

// Codec turns a position list into bytes and back. Implementations are
// stateless and safe for concurrent use. Decode(Encode(p)) equals p for every
// list of non-negative positions, including the empty list.
type Codec interface {
	Name() string
	Encode(positions []int) ([]byte, error)
	Decode(data []byte) ([]int, error)
}

// Default is used when no codec is configured.
const Default = "varint"

// ByName returns the codec registered under name.
func ByName(name string) (Codec, error) {
	switch name {
	case "", Varint{}.Name():
		return Varint{}, nil
	case ASCII{}.Name():
		return ASCII{}, nil
	case Zstd{}.Name():
		return Zstd{}, nil
	case LZ4{}.Name():
		return LZ4{}, nil
	}
	return nil, fmt.Errorf("%w: unknown codec %q", apperrors.ErrInvalidInput, name)
}

// Names lists every available codec.
func Names() []string {
	return []string{Varint{}.Name(), ASCII{}.Name(), Zstd{}.Name(), LZ4{}.Name()}
}

func checkPositions(positions []int) error {
	for i, p := range positions {
		if p < 0 {
			return fmt.Errorf("%w: negative position %d at index %d", apperrors.ErrInvalidInput, p, i)
		}
	}
	return nil
}

func decodeErr(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{apperrors.ErrDecode}, args...)...)
}
