// Package admin serves a small read-only HTTP surface for operators:
// health, who is online, live room occupancy, and the recent activity
// log. It never mutates chat state.
package admin

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"gochatd/pkg/health"
	"gochatd/pkg/presence"
	"gochatd/pkg/rooms"
	"gochatd/pkg/store"
)

const defaultActivityLimit = 50

// API bundles the components the admin surface reads from
type API struct {
	store    store.Store
	presence *presence.Registry
	rooms    *rooms.Registry
	monitor  *health.Monitor
}

// NewAPI creates the admin API
func NewAPI(st store.Store, pr *presence.Registry, rm *rooms.Registry, mon *health.Monitor) *API {
	return &API{store: st, presence: pr, rooms: rm, monitor: mon}
}

// Router builds the gin router for the admin surface
func (a *API) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", a.handleHealth)

	api := r.Group("/api")
	{
		api.GET("/online", a.handleOnline)
		api.GET("/rooms", a.handleRooms)
		api.GET("/activity", a.handleActivity)
	}

	return r
}

func (a *API) handleHealth(c *gin.Context) {
	snap := a.monitor.Snapshot(a.presence.Count(), a.rooms.Count())
	code := http.StatusOK
	if snap.Status != health.StatusHealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, snap)
}

func (a *API) handleOnline(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"online":   a.presence.OnlineSnapshot(),
		"statuses": a.presence.StatusSnapshot(),
	})
}

func (a *API) handleRooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": a.rooms.Occupancy()})
}

func (a *API) handleActivity(c *gin.Context) {
	limit := defaultActivityLimit
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	entries, err := a.store.RecentActivity(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read activity log"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"activity": entries})
}
