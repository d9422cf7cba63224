package rag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunker_Deterministic(t *testing.T) {
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 120)
	chunker := NewChunker(1000, 200)

	first := chunker.Split(text)
	second := chunker.Split(text)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Text, second[i].Text, "chunk %d", i)
		assert.Equal(t, first[i].Index, second[i].Index)
	}
}

func TestChunker_BoundsAndOverlap(t *testing.T) {
	tests := []struct {
		name         string
		text         string
		chunkSize    int
		chunkOverlap int
	}{
		{
			name:         "plain text without boundaries",
			text:         strings.Repeat("a", 3000),
			chunkSize:    1000,
			chunkOverlap: 200,
		},
		{
			name:         "text with sentences",
			text:         strings.Repeat("Refund requests are processed within 14 days. ", 80),
			chunkSize:    1000,
			chunkOverlap: 200,
		},
		{
			name:         "text with paragraphs",
			text:         strings.Repeat("First paragraph about shipping.\n\nSecond paragraph about returns.\n\n", 60),
			chunkSize:    800,
			chunkOverlap: 120,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunker := NewChunker(tt.chunkSize, tt.chunkOverlap)
			chunks := chunker.Split(tt.text)
			require.NotEmpty(t, chunks)

			for i, chunk := range chunks {
				runes := []rune(chunk.Text)
				assert.LessOrEqual(t, len(runes), tt.chunkSize, "chunk %d exceeds chunk size", i)
				assert.Equal(t, i, chunk.Index)

				// 除最后一个chunk外，相邻chunk重叠长度固定
				if i < len(chunks)-1 {
					tail := string(runes[len(runes)-tt.chunkOverlap:])
					next := []rune(chunks[i+1].Text)
					require.GreaterOrEqual(t, len(next), tt.chunkOverlap)
					head := string(next[:tt.chunkOverlap])
					assert.Equal(t, tail, head, "chunk %d/%d overlap mismatch", i, i+1)
				}
			}
		})
	}
}

func TestChunker_RoundTripCharacterCount(t *testing.T) {
	// 3000字符、chunkSize=1000、overlap=200 → 步长800，4个chunk
	text := strings.Repeat("x", 3000)
	chunker := NewChunker(1000, 200)

	chunks := chunker.Split(text)
	require.Len(t, chunks, 4)
	assert.Len(t, []rune(chunks[0].Text), 1000)
	assert.Len(t, []rune(chunks[3].Text), 600)
}

func TestChunker_ShortText(t *testing.T) {
	chunker := NewChunker(1000, 200)

	chunks := chunker.Split("short document")
	require.Len(t, chunks, 1)
	assert.Equal(t, "short document", chunks[0].Text)
}

func TestChunker_EmptyText(t *testing.T) {
	chunker := NewChunker(1000, 200)

	assert.Nil(t, chunker.Split(""))
	assert.Nil(t, chunker.Split("   \n\t  "))
}

func TestChunker_DefaultParameters(t *testing.T) {
	chunker := NewChunker(0, -1)
	assert.Equal(t, 1000, chunker.ChunkSize())
	assert.Equal(t, 0, chunker.ChunkOverlap())

	// overlap不小于chunkSize时回退为1/4
	chunker = NewChunker(100, 100)
	assert.Equal(t, 25, chunker.ChunkOverlap())
}
