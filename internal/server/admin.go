package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func newAdminHandler(s *GameServer) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		select {
		case <-s.ctx.Done():
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "shutting_down"})
		default:
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		}
	})

	r.GET("/metrics", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.Stats())
	})

	r.GET("/rooms/:name", func(c *gin.Context) {
		stats := s.manager.Stats()
		room, ok := stats.Rooms[c.Param("name")]
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "room_not_found"})
			return
		}
		c.JSON(http.StatusOK, room)
	})

	return r
}
