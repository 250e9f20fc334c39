package bulkuser

import (
	"fmt"
	"strings"

	"github.com/ecdemo/backend/internal/domain/shared"
	"github.com/ecdemo/backend/internal/domain/testuser"
)

func errInvalidCount(count int) error {
	return shared.NewDomainError("INVALID_INPUT",
		fmt.Sprintf("user count must be at least 1, got %d", count))
}

func errCountOverLimit(count, limit int) error {
	return shared.NewDomainError("SAFETY_LIMIT_EXCEEDED",
		fmt.Sprintf("user count %d exceeds the batch limit of %d", count, limit))
}

func errConfigInvalid(problems []string) error {
	return shared.NewDomainError("VALIDATION_FAILED",
		"invalid creation config: "+strings.Join(problems, "; "))
}

func chunkRemainderError(remaining []*testuser.User, cause error) error {
	return shared.NewDomainError("CONNECTIVITY",
		fmt.Sprintf("%d users unwritten after retry: %s", len(remaining), cause.Error()))
}
