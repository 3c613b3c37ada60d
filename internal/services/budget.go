package services

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"amoflow/internal/models"
)

// ключевые слова в названии или коде кастомного поля с бюджетом
var budgetFieldPatterns = []string{
	"бюджет", "стоимость", "цена", "сумма",
	"price", "budget", "cost", "amount",
}

// ExtractBudget возвращает бюджет сделки: price, если он задан, иначе первое подходящее
// числовое кастомное поле, иначе 0. Результат всегда конечный и неотрицательный.
func ExtractBudget(lead models.Lead) float64 {
	if lead.Price != nil && validBudget(*lead.Price) {
		return *lead.Price
	}
	for _, f := range lead.CustomFieldsValues {
		if !isBudgetField(f) || len(f.Values) == 0 {
			continue
		}
		if v, ok := numericValue(f.Values[0].Value); ok {
			return v
		}
	}
	return 0
}

func isBudgetField(f models.CustomFieldValue) bool {
	name := strings.ToLower(f.FieldName)
	code := strings.ToLower(f.FieldCode)
	for _, p := range budgetFieldPatterns {
		if strings.Contains(name, p) || strings.Contains(code, p) {
			return true
		}
	}
	return false
}

func numericValue(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case json.Number:
		n, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = n
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = n
	default:
		return 0, false
	}
	if !validBudget(f) {
		return 0, false
	}
	return f, true
}

func validBudget(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0) && f >= 0
}
