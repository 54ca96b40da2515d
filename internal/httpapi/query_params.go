package httpapi

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// parseIntQuery reads an integer query parameter, falling back to def when
// absent or malformed rather than failing the request. Range checks happen in
// the query core: a limit above 100 is clamped, a page below 1 is rejected.
func parseIntQuery(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def, false
	}
	return v, true
}
