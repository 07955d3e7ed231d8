package handlers

import (
	"net/http"
	"strconv"
	"time"
)

const timeFormat = time.RFC3339

func queryInt(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			return parsed
		}
	}
	return def
}
