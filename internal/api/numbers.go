package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

func (server *Server) handleNumbers(c *gin.Context) {
	server.numbersMu.Lock()
	defer server.numbersMu.Unlock()

	if server.numbersCache != nil && time.Since(server.numbersFetchedAt) < numbersCacheTTL {
		c.JSON(http.StatusOK, gin.H{"numbers": server.numbersCache, "cached": true})

		return
	}

	numbers, err := server.Numbers.FetchNumbers(c.Request.Context())
	if err != nil {
		// serve stale data over an error when we have any
		if server.numbersCache != nil {
			c.JSON(http.StatusOK, gin.H{"numbers": server.numbersCache, "cached": true})

			return
		}

		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})

		return
	}

	server.numbersCache = numbers
	server.numbersFetchedAt = time.Now()

	c.JSON(http.StatusOK, gin.H{"numbers": numbers, "cached": false})
}
