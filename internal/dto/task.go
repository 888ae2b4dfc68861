package dto

import (
	"net/http"
	"time"
)

// CreateTaskRequest is the JSON body for POST /tasks.
type CreateTaskRequest struct {
	Title       string `json:"title" binding:"required" maxLength:"255" example:"Buy Milk"`
	Description string `json:"description" binding:"max=10000" example:"two litres"`
}

// TaskResponse is the wire form of a task.
type TaskResponse struct {
	ID          int64     `json:"id" example:"1"`
	Title       string    `json:"title" example:"Buy Milk"`
	Description string    `json:"description" example:"two litres"`
	Completed   bool      `json:"completed" example:"false"`
	CreatedAt   time.Time `json:"createdAt" example:"2025-01-02T15:04:05Z"`
}

// ErrorResponse is returned with every 4xx/5xx.
type ErrorResponse struct {
	Timestamp time.Time `json:"timestamp"`
	Status    int       `json:"status" example:"404"`
	Error     string    `json:"error" example:"Not Found"`
	Message   string    `json:"message" example:"task 7 not found"`
}

func NewErrorResponse(status int, message string) ErrorResponse {
	return ErrorResponse{
		Timestamp: time.Now().UTC(),
		Status:    status,
		Error:     http.StatusText(status),
		Message:   message,
	}
}
