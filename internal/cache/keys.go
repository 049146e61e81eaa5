package cache

import "fmt"

func TaskStatusKey(taskID string) string {
	return fmt.Sprintf("task:%s", taskID)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}
