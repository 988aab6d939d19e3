package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Success returns a success response
func Success(message string, data interface{}) Response {
	if message == "" {
		message = "success"
	}
	return Response{
		Success: true,
		Message: message,
		Data:    data,
	}
}

// Error returns an error response
func Error(statusCode int, message string) Response {
	if message == "" {
		message = http.StatusText(statusCode)
	}
	return Response{
		Success: false,
		Message: message,
	}
}

// SuccessJSON sends a 200 success response
func SuccessJSON(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Success(message, data))
}

// ErrorJSON sends an error response
func ErrorJSON(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, Error(statusCode, message))
}
