package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yoockh/medscribe/internal/services"
)

type AppointmentHandler struct {
	svc services.AppointmentService
}

func NewAppointmentHandler(svc services.AppointmentService) *AppointmentHandler {
	return &AppointmentHandler{svc: svc}
}

func viewer(c *gin.Context) services.Viewer {
	return services.Viewer{Role: callerRole(c), PatientID: c.GetString("patient_id")}
}

func (h *AppointmentHandler) List(c *gin.Context) {
	if _, ok := requireUserID(c); !ok {
		return
	}

	rows, err := h.svc.List(c.Request.Context(), viewer(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"appointments": rows})
}

func (h *AppointmentHandler) Get(c *gin.Context) {
	if _, ok := requireUserID(c); !ok {
		return
	}

	apt, err := h.svc.Get(c.Request.Context(), viewer(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, apt)
}

func (h *AppointmentHandler) GetPatient(c *gin.Context) {
	if _, ok := requireUserID(c); !ok {
		return
	}

	rec, err := h.svc.GetPatient(c.Request.Context(), viewer(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}
