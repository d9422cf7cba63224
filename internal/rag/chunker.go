package rag

import "strings"

// Chunk 表示分块后的文本结构
type Chunk struct {
	Index int
	Text  string
}

// Chunker 文本分块器
// 切分规则：每个chunk不超过chunkSize个rune，优先在段落、句子边界断开；
// 相邻chunk固定重叠chunkOverlap个rune（最后一个chunk除外）。
// 相同输入与参数下输出序列完全一致。
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

// 按优先级尝试的断句分隔符
var sentenceBreaks = []string{". ", "? ", "! ", "\n"}

// NewChunker 创建分块器
func NewChunker(chunkSize, overlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: overlap,
	}
}

// ChunkSize 返回配置的最大chunk长度
func (c *Chunker) ChunkSize() int {
	return c.chunkSize
}

// ChunkOverlap 返回配置的chunk重叠长度
func (c *Chunker) ChunkOverlap() int {
	return c.chunkOverlap
}

// Split 将文本切分为多个chunk
func (c *Chunker) Split(text string) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	runes := []rune(text)
	var chunks []Chunk

	start := 0
	for start < len(runes) {
		end := start + c.chunkSize
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = c.breakPoint(runes, start, end)
		}

		chunks = append(chunks, Chunk{
			Index: len(chunks),
			Text:  string(runes[start:end]),
		})

		if end == len(runes) {
			break
		}
		// 重叠不得吞掉整个chunk，保证窗口始终前移
		next := end - c.chunkOverlap
		if next <= start {
			next = end
		}
		start = next
	}

	return chunks
}

// breakPoint 在[start, limit)窗口内寻找自然断点
// 只接受落在窗口后半段的边界，避免产生过短的chunk；找不到则硬切
func (c *Chunker) breakPoint(runes []rune, start, limit int) int {
	window := string(runes[start:limit])
	minBreak := (limit - start) / 2

	// 优先段落边界
	if idx := strings.LastIndex(window, "\n\n"); idx >= 0 {
		pos := len([]rune(window[:idx])) + 2
		if pos > minBreak {
			return start + pos
		}
	}

	// 其次句子边界
	for _, sep := range sentenceBreaks {
		if idx := strings.LastIndex(window, sep); idx >= 0 {
			pos := len([]rune(window[:idx])) + len([]rune(sep))
			if pos > minBreak {
				return start + pos
			}
		}
	}

	return limit
}
