package handler

import "github.com/ecdemo/backend/internal/interfaces/http/dto"

// messageResponse wraps a plain status message for responses with no data.
func messageResponse(msg string) dto.MessageResponse {
	return dto.MessageResponse{Message: msg}
}
