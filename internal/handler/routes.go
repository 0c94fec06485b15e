package handler

import (
	"github.com/gin-gonic/gin"
)

// Routes holds every handler mounted by the API.
type Routes struct {
	Courses     *CourseHandler
	Enrollments *EnrollmentHandler
	Leaders     *LeaderHandler
	Reports     *ReportHandler
	Heal        *HealHandler
	Metrics     *MetricsHandler
}

// Register mounts the API under group. Mutating routes require auth.
func (r Routes) Register(group *gin.RouterGroup, auth gin.HandlerFunc) {
	group.GET("/courses", r.Courses.List)
	group.GET("/courses/:name/queue", r.Enrollments.Queue)
	group.GET("/leaders", r.Leaders.List)
	group.GET("/leaders/:id/state", r.Leaders.State)
	group.GET("/leaders/:id/enrollments", r.Leaders.Enrollments)
	group.GET("/reports/consolidated", r.Reports.Consolidated)
	group.GET("/heal/last", r.Heal.Last)
	group.GET("/metrics/summary", r.Metrics.Summary)

	protected := group.Group("", auth)
	protected.POST("/courses", r.Courses.Create)
	protected.DELETE("/courses/:name", r.Courses.Delete)
	protected.POST("/enrollments", r.Enrollments.Create)
	protected.DELETE("/enrollments", r.Enrollments.Delete)
	protected.POST("/heal", r.Heal.Run)
}
