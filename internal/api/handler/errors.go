package handler

import (
	"fmt"

	"github.com/gin-gonic/gin"
)

// respondError writes the error envelope shared by every endpoint.
func respondError(c *gin.Context, status int, errMsg, detail string) {
	c.JSON(status, gin.H{
		"error":  errMsg,
		"detail": detail,
	})
}

// respondInternal writes the 500 envelope with the concrete error type so
// unexpected failures stay diagnosable from the response alone.
func respondInternal(c *gin.Context, err error) {
	c.JSON(500, gin.H{
		"error":  "Internal server error",
		"detail": err.Error(),
		"type":   fmt.Sprintf("%T", err),
	})
}
