package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"
)

const TimezoneHeader = "X-Timezone"

const locationKey contextKey = "location"

// TimezoneMiddleware resolves the requester's IANA zone from the
// X-Timezone header, falling back to def. An unknown zone is a 400.
func TimezoneMiddleware(def *time.Location) func(http.Handler) http.Handler {
	if def == nil {
		def = time.UTC
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			loc := def
			if name := strings.TrimSpace(r.Header.Get(TimezoneHeader)); name != "" {
				l, err := time.LoadLocation(name)
				if err != nil {
					respondWithError(w, http.StatusBadRequest, "Unknown timezone "+name)
					return
				}
				loc = l
			}
			next.ServeHTTP(w, r.WithContext(WithLocation(r.Context(), loc)))
		})
	}
}

func WithLocation(ctx context.Context, loc *time.Location) context.Context {
	return context.WithValue(ctx, locationKey, loc)
}

// GetLocation returns the requester's zone, UTC when none was resolved.
func GetLocation(ctx context.Context) *time.Location {
	if loc, ok := ctx.Value(locationKey).(*time.Location); ok && loc != nil {
		return loc
	}
	return time.UTC
}
