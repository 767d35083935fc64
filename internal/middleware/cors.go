package middleware

import (
	"slices"

	"github.com/go-chi/cors"

	"github.com/rsm-platform/rsm/internal/config"
)

// CORS returns cors.Options for the browser clients of the chat API. The API
// only reads and appends, so methods default to GET, POST and OPTIONS. A "*"
// origin disables credentials, which browsers reject alongside a wildcard.
func CORS(cfg config.CORSConfig) cors.Options {
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	methods := cfg.AllowedMethods
	if len(methods) == 0 {
		methods = []string{"GET", "POST", "OPTIONS"}
	}
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = 300
	}

	return cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   methods,
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", RequestIDHeader},
		ExposedHeaders:   []string{RequestIDHeader, "Retry-After"},
		AllowCredentials: !slices.Contains(origins, "*"),
		MaxAge:           maxAge,
	}
}
