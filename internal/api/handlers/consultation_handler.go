package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yoockh/medscribe/internal/consultation"
	"github.com/yoockh/medscribe/internal/models"
	"github.com/yoockh/medscribe/internal/services"
	"github.com/yoockh/medscribe/internal/utils"
)

// maxEndWait bounds POST /end?wait=true.
const maxEndWait = 60 * time.Second

type ConsultationHandler struct {
	svc services.ConsultationService
}

func NewConsultationHandler(svc services.ConsultationService) *ConsultationHandler {
	return &ConsultationHandler{svc: svc}
}

type CreateConsultationRequest struct {
	AppointmentID string `json:"appointment_id" binding:"required"`
}

type InjectEntryRequest struct {
	Speaker   models.Speaker `json:"speaker" binding:"required"`
	Text      string         `json:"text" binding:"required"`
	Timestamp string         `json:"timestamp"`
}

type UpdateMedicationRequest struct {
	Field consultation.Field `json:"field" binding:"required"`
	Value string             `json:"value"`
}

func (h *ConsultationHandler) Create(c *gin.Context) {
	if _, ok := requireUserID(c); !ok {
		return
	}

	var req CreateConsultationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "ConsultationHandler.Create", "invalid request body", err))
		return
	}

	st, err := h.svc.Create(c.Request.Context(), req.AppointmentID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, st)
}

func (h *ConsultationHandler) Get(c *gin.Context) {
	h.status(c, h.svc.Get)
}

func (h *ConsultationHandler) Start(c *gin.Context) {
	h.status(c, h.svc.Start)
}

func (h *ConsultationHandler) Reconnect(c *gin.Context) {
	h.status(c, h.svc.Reconnect)
}

// End answers 202 while the summary is being produced. With ?wait=true it blocks until the
// consultation has ended and answers 200.
func (h *ConsultationHandler) End(c *gin.Context) {
	if _, ok := requireUserID(c); !ok {
		return
	}

	id := c.Param("id")
	st, err := h.svc.End(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if c.Query("wait") != "true" {
		c.JSON(http.StatusAccepted, st)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), maxEndWait)
	defer cancel()
	st, err = h.svc.Wait(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *ConsultationHandler) Inject(c *gin.Context) {
	if _, ok := requireUserID(c); !ok {
		return
	}

	var req InjectEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "ConsultationHandler.Inject", "invalid request body", err))
		return
	}
	if req.Timestamp == "" {
		req.Timestamp = time.Now().Format("15:04:05")
	}

	st, err := h.svc.Inject(c.Request.Context(), c.Param("id"), models.TranscriptEntry{
		Speaker:   req.Speaker,
		Text:      req.Text,
		Timestamp: req.Timestamp,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *ConsultationHandler) Simulate(c *gin.Context) {
	if _, ok := requireUserID(c); !ok {
		return
	}

	step, err := h.svc.Simulate(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, step)
}

func (h *ConsultationHandler) UpdateMedication(c *gin.Context) {
	const op = "ConsultationHandler.UpdateMedication"
	if _, ok := requireUserID(c); !ok {
		return
	}
	index, ok := pathIndex(c, "index", op)
	if !ok {
		return
	}

	var req UpdateMedicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "invalid request body", err))
		return
	}

	view, err := h.svc.UpdateMedication(c.Request.Context(), c.Param("id"), index, req.Field, req.Value)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *ConsultationHandler) AddMedication(c *gin.Context) {
	if _, ok := requireUserID(c); !ok {
		return
	}

	view, err := h.svc.AddMedication(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

func (h *ConsultationHandler) RemoveMedication(c *gin.Context) {
	const op = "ConsultationHandler.RemoveMedication"
	if _, ok := requireUserID(c); !ok {
		return
	}
	index, ok := pathIndex(c, "index", op)
	if !ok {
		return
	}

	view, err := h.svc.RemoveMedication(c.Request.Context(), c.Param("id"), index)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *ConsultationHandler) ValidatePrescription(c *gin.Context) {
	if _, ok := requireUserID(c); !ok {
		return
	}

	view, err := h.svc.ValidatePrescription(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *ConsultationHandler) PrescriptionPDF(c *gin.Context) {
	if _, ok := requireUserID(c); !ok {
		return
	}

	id := c.Param("id")
	pdf, err := h.svc.PrescriptionPDF(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="ordonnance_`+id+`.pdf"`)
	c.Data(http.StatusOK, "application/pdf", pdf)
}

func (h *ConsultationHandler) status(c *gin.Context, fn func(context.Context, string) (consultation.Status, error)) {
	if _, ok := requireUserID(c); !ok {
		return
	}

	st, err := fn(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}
