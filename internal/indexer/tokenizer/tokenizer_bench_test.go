package tokenizer

import (
	"fmt"
	"strings"
	"testing"
)

var sampleTexts = map[string]string{
	"short": "The quick brown fox jumps over the lazy dog",
	"medium": `Column-family stores keep rows sorted by key, so an inverted index can put
        each term in its own row and each posting in its own cell. Readers fetch a
        term row once and walk its document ids in order, while writers buffer
        mutations and apply them in one batch when the document is committed.`,
	"long": strings.Repeat(`Positional postings record every offset at which a term appears in
        a field. Segments summarize which documents contain a term as compressed
        bitmaps, and a document identity map translates primary keys into dense
        integer ids that the bitmaps can address. `, 20),
}

func BenchmarkTokenize(b *testing.B) {
	for name, text := range sampleTexts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = Tokenize(text)
			}
		})
	}
}

func BenchmarkPositions(b *testing.B) {
	text := sampleTexts["long"]
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	for i := 0; i < b.N; i++ {
		_ = Positions(text)
	}
}

func BenchmarkNormalize(b *testing.B) {
	words := []string{
		"running", "relational", "searching", "indexing",
		"tokenization", "normalization", "efficiently",
		"processing", "segments", "postings",
	}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		for _, w := range words {
			_ = Normalize(w)
		}
	}
}

func BenchmarkTokenizeVaryingSize(b *testing.B) {
	baseWord := "column family inverted index postings "
	for _, size := range []int{10, 100, 500, 1000, 5000} {
		text := strings.Repeat(baseWord, size/len(baseWord)+1)[:size]
		b.Run(fmt.Sprintf("bytes_%d", size), func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = Tokenize(text)
			}
		})
	}
}
