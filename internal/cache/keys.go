package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func JobKey(requestID uuid.UUID) string {
	return fmt.Sprintf("harmony:job:%s", requestID)
}

func RateLimitKey(username string) string {
	return fmt.Sprintf("harmony:ratelimit:%s", username)
}
