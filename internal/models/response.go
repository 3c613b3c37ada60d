package models

import "time"

const TimestampLayout = "2006-01-02 15:04:05"

// Response — единый конверт ответа для move/copy и служебных эндпоинтов.
type Response struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	Data      any    `json:"data"`
}

func NewResponse(success bool, message string, data any, now time.Time) Response {
	if data == nil {
		data = map[string]any{}
	}
	return Response{
		Success:   success,
		Message:   message,
		Timestamp: now.Format(TimestampLayout),
		Data:      data,
	}
}
