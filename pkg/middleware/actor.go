package middleware

import (
	"net/http"
	"strings"

	"github.com/atelierops/pipeline-engine/pkg/models"
)

// ActorHeader names the header authentication (an external collaborator)
// sets to identify the human behind a request.
const ActorHeader = "X-Actor"

// Actor returns middleware that copies the actor identity from the request
// header into the context. Mutating handlers reject requests without one;
// read handlers never look at it.
func Actor() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := strings.TrimSpace(r.Header.Get(ActorHeader))
			if actor != "" {
				r = r.WithContext(models.WithActor(r.Context(), actor))
			}
			next.ServeHTTP(w, r)
		})
	}
}
