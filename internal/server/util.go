package server

import (
	"encoding/json"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"
)

// sanitizeBase turns a configured base path into a gin group prefix:
// leading slash, cleaned, no trailing slash, "" for the root.
func sanitizeBase(bp string) string {
	bp = strings.TrimSpace(bp)
	if bp == "" {
		return ""
	}
	bp = path.Clean("/" + bp)
	if bp == "/" {
		return ""
	}
	return bp
}

// writeJSON encodes v before touching the response, so an encoding failure
// still produces a well-formed 500.
func writeJSON(c *gin.Context, code int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		code = http.StatusInternalServerError
		b, _ = json.Marshal(errorResp{Error: "encode response: " + err.Error()})
	}
	c.Data(code, "application/json", append(b, '\n'))
}
