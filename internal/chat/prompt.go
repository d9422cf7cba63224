package chat

import (
	"fmt"
	"strings"
)

// noContextPlaceholder 检索无命中时填入提示词的占位文本
const noContextPlaceholder = "No relevant context found in the documents."

const promptTemplate = `You are a helpful AI assistant that answers questions based on the provided context from PDF documents.

Context from documents:
%s

User Question: %s

Instructions:
- Answer the question based primarily on the provided context
- If the context contains relevant information, use it to provide a comprehensive answer
- If the context doesn't contain enough information, clearly mention this limitation
- Be concise but thorough in your response
- If no context is provided, politely explain that you need relevant documents to answer the question

Answer:`

// BuildPrompt 将检索上下文与用户问题组装为提示词
func BuildPrompt(contexts []string, query string) string {
	block := strings.TrimSpace(strings.Join(contexts, "\n\n"))
	if block == "" {
		block = noContextPlaceholder
	}
	return fmt.Sprintf(promptTemplate, block, query)
}
