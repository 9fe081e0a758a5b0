package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yoockh/medscribe/config"
	"github.com/yoockh/medscribe/internal/api/handlers"
	"github.com/yoockh/medscribe/internal/api/middleware"
)

type Deps struct {
	Appointment  *handlers.AppointmentHandler
	Consultation *handlers.ConsultationHandler
	WS           *handlers.WSHandler
}

func RegisterRoutes(r *gin.Engine, d Deps, authCfg config.AuthConfig) {
	// Health-ish
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	// Protected routes (JWT)
	auth := r.Group("/")
	auth.Use(middleware.JWTAuth(authCfg))

	shared := auth.Group("/")
	shared.Use(middleware.RequireRole(middleware.RoleDoctor, middleware.RolePatient))
	shared.GET("/appointments", d.Appointment.List)
	shared.GET("/appointments/:id", d.Appointment.Get)

	doctor := auth.Group("/")
	doctor.Use(middleware.RequireDoctor())

	doctor.GET("/patients/:id", d.Appointment.GetPatient)

	doctor.POST("/consultations", d.Consultation.Create)
	doctor.GET("/consultations/:id", d.Consultation.Get)
	doctor.POST("/consultations/:id/start", d.Consultation.Start)
	doctor.POST("/consultations/:id/end", d.Consultation.End)
	doctor.POST("/consultations/:id/reconnect", d.Consultation.Reconnect)
	doctor.POST("/consultations/:id/entries", d.Consultation.Inject)
	doctor.POST("/consultations/:id/simulate", d.Consultation.Simulate)

	doctor.POST("/consultations/:id/prescription/medications", d.Consultation.AddMedication)
	doctor.PATCH("/consultations/:id/prescription/medications/:index", d.Consultation.UpdateMedication)
	doctor.DELETE("/consultations/:id/prescription/medications/:index", d.Consultation.RemoveMedication)
	doctor.POST("/consultations/:id/prescription/validate", d.Consultation.ValidatePrescription)
	doctor.GET("/consultations/:id/prescription/pdf", d.Consultation.PrescriptionPDF)

	// WebSocket
	doctor.GET("/ws/consultations/:id", d.WS.ConsultationWS)
}
