package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/machinemate/machinemate/internal/repository"
)

// MachineHandler handles machine catalog endpoints.
type MachineHandler struct {
	machines *repository.MachineRepository
}

// NewMachineHandler creates a new machine handler.
func NewMachineHandler(machines *repository.MachineRepository) *MachineHandler {
	return &MachineHandler{machines: machines}
}

// ListMachines handles GET /api/v1/machines.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *MachineHandler) ListMachines(c *gin.Context) {
	machines, err := h.machines.ListActive(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list machines: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"machines": machines,
		"total":    len(machines),
	})
}

// GetMachine handles GET /api/v1/machines/:id.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *MachineHandler) GetMachine(c *gin.Context) {
	machine, err := h.machines.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get machine: " + err.Error(),
		})
		return
	}
	if machine == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Machine not found",
		})
		return
	}

	c.JSON(http.StatusOK, machine)
}
