package codec

import (
	"fmt"
	"testing"
)

func benchPositions(n int) []int {
	p := make([]int, n)
	for i := range p {
		p[i] = i*7 + i%3
	}
	return p
}

func BenchmarkEncode(b *testing.B) {
	for _, c := range []Codec{Varint{}, ASCII{}, Zstd{}, LZ4{}} {
		for _, n := range []int{1, 16, 1024} {
			positions := benchPositions(n)
			b.Run(fmt.Sprintf("%s/positions_%d", c.Name(), n), func(b *testing.B) {
				b.ReportAllocs()
				for i := 0; i < b.N; i++ {
					if _, err := c.Encode(positions); err != nil {
						b.Fatal(err)
					}
				}
			})
		}
	}
}

func BenchmarkDecode(b *testing.B) {
	for _, c := range []Codec{Varint{}, ASCII{}, Zstd{}, LZ4{}} {
		for _, n := range []int{1, 16, 1024} {
			data, err := c.Encode(benchPositions(n))
			if err != nil {
				b.Fatal(err)
			}
			b.Run(fmt.Sprintf("%s/positions_%d", c.Name(), n), func(b *testing.B) {
				b.ReportAllocs()
				b.SetBytes(int64(len(data)))
				for i := 0; i < b.N; i++ {
					if _, err := c.Decode(data); err != nil {
						b.Fatal(err)
					}
				}
			})
		}
	}
}
