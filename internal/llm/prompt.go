package llm

import (
	"fmt"
	"strings"
)

// Prompts are Russian because the comments and the category reference are.
// Both prompts pin the response to a strict JSON envelope with exactly one
// entry per input, which is what the parser enforces.

const splitSystemPrompt = `Ты - эксперт по анализу комментариев о дефектах.
Твоя задача - разделить каждый комментарий на отдельные дефекты.

Правила:
1. Каждый отдельный дефект должен быть выделен как отдельный элемент
2. Если комментарий пустой или содержит "нет замечаний" - верни пустой список дефектов
3. Сохраняй оригинальный текст дефекта без изменений
4. Если в комментарии один дефект - верни список с одним элементом

Формат ответа (JSON):
{
  "results": [
    {"defects": [{"text": "текст дефекта 1"}, {"text": "текст дефекта 2"}]},
    {"defects": [{"text": "единственный дефект"}]},
    {"defects": []}
  ]
}

Количество элементов в results должно соответствовать количеству входных комментариев.`

const classifySystemPrompt = `Ты - эксперт по классификации дефектов.
Твоя задача - выбрать наиболее подходящую категорию для каждого дефекта из списка кандидатов.

Правила:
1. Выбирай ТОЛЬКО из предложенных кандидатов
2. Выбирай категорию, которая наиболее точно описывает дефект
3. Если ни одна категория не подходит идеально, выбери наиболее близкую

Формат ответа (JSON):
{
  "results": [
    {"chosen": "выбранная категория 1"},
    {"chosen": "выбранная категория 2"}
  ]
}

Количество элементов в results должно соответствовать количеству входных дефектов.`

func buildSplitMessages(comments []string) []message {
	var b strings.Builder
	b.WriteString("Разделите следующие комментарии на отдельные дефекты:\n\n")
	for i, c := range comments {
		fmt.Fprintf(&b, "%d. %s\n", i+1, c)
	}
	b.WriteString("\nВерните JSON с результатами для каждого комментария.")

	return []message{
		{Role: "system", Content: splitSystemPrompt},
		{Role: "user", Content: b.String()},
	}
}

func buildClassifyMessages(items []ClassifyItem) []message {
	var b strings.Builder
	b.WriteString("Классифицируйте следующие дефекты, выбрав категорию из списка кандидатов:\n\n")
	for i, item := range items {
		fmt.Fprintf(&b, "%d. Дефект: %s\n   Кандидаты: %s\n", i+1, item.Defect, strings.Join(item.Candidates, ", "))
	}
	b.WriteString("\nВерните JSON с выбранной категорией для каждого дефекта.")

	return []message{
		{Role: "system", Content: classifySystemPrompt},
		{Role: "user", Content: b.String()},
	}
}
