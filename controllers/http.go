package controllers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kubescape/dockwatch/core/domain"
	"github.com/kubescape/dockwatch/core/ports"
	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
	"schneider.vip/problem"
)

// HTTPController maps ReconcilerService ports to gin handlers that can be mapped to paths and methods
// this mapping is usually done in main()
type HTTPController struct {
	reconcilerService ports.ReconcilerService
}

// NewHTTPController initializes the HTTPController struct with the injected reconcilerService
func NewHTTPController(reconcilerService ports.ReconcilerService) *HTTPController {
	return &HTTPController{
		reconcilerService: reconcilerService,
	}
}

// ImageView is the representation of a managed image and its current state
type ImageView struct {
	ID             string             `json:"id"`
	Label          string             `json:"label"`
	Path           string             `json:"path"`
	Status         domain.ImageStatus `json:"status"`
	Description    string             `json:"description"`
	DaemonID       string             `json:"daemonId,omitempty"`
	Ports          []string           `json:"ports,omitempty"`
	ShareablePorts []string           `json:"shareablePorts,omitempty"`
	ContainerIP    string             `json:"containerIp,omitempty"`
}

// RegisterRoutes maps the image and notification handlers under group
func (h *HTTPController) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("/images", h.ListImages)
	group.GET("/images/:id", h.GetImage)
	group.POST("/images/:id/check", h.Check)
	group.POST("/images/:id/fetch", h.Fetch)
	group.POST("/images/:id/run", h.Run)
	group.POST("/images/:id/stop", h.Stop)
	group.POST("/images/:id/remove-image", h.RemoveImage)
	group.POST("/images/:id/remove-container", h.RemoveContainer)
	group.GET("/notifications", h.Notifications)
}

func newImageView(image domain.ManagedImage, state domain.ImageState) ImageView {
	return ImageView{
		ID:             image.ID,
		Label:          image.Label,
		Path:           image.Path,
		Status:         state.Status,
		Description:    state.Status.Description(),
		DaemonID:       state.DaemonID,
		Ports:          state.Ports,
		ShareablePorts: state.ShareablePorts(),
		ContainerIP:    state.ContainerIP,
	}
}

func (h HTTPController) Alive(c *gin.Context) {
	problem.Of(http.StatusOK).WriteTo(c.Writer)
}

// Ready calls reconcilerService.Ready
func (h HTTPController) Ready(c *gin.Context) {
	if !h.reconcilerService.Ready(c.Request.Context()) {
		problem.Of(http.StatusServiceUnavailable).WriteTo(c.Writer)
		return
	}

	problem.Of(http.StatusOK).WriteTo(c.Writer)
}

// ListImages returns every managed image in catalog order
func (h HTTPController) ListImages(c *gin.Context) {
	states := h.reconcilerService.States()
	views := make([]ImageView, 0, len(states))
	for _, state := range states {
		image, err := h.reconcilerService.Image(state.ID)
		if err != nil {
			logger.L().Ctx(c.Request.Context()).Warning("state without image", helpers.String("id", state.ID), helpers.Error(err))
			continue
		}
		views = append(views, newImageView(image, state))
	}
	c.JSON(http.StatusOK, views)
}

// GetImage returns one managed image
func (h HTTPController) GetImage(c *gin.Context) {
	id := c.Param("id")
	image, err := h.reconcilerService.Image(id)
	if err != nil {
		writeError(c, err, problem.Detailf("ID=%s", id))
		return
	}
	state, err := h.reconcilerService.State(id)
	if err != nil {
		writeError(c, err, problem.Detailf("ID=%s", id))
		return
	}
	c.JSON(http.StatusOK, newImageView(image, state))
}

// Notifications returns the most recent notifications, oldest first
func (h HTTPController) Notifications(c *gin.Context) {
	c.JSON(http.StatusOK, h.reconcilerService.Notifications())
}

// Check calls reconcilerService.Check
func (h HTTPController) Check(c *gin.Context) {
	h.submit(c, "check", h.reconcilerService.Check)
}

// Fetch calls reconcilerService.Fetch
func (h HTTPController) Fetch(c *gin.Context) {
	h.submit(c, "fetch", h.reconcilerService.Fetch)
}

// Run calls reconcilerService.Run
func (h HTTPController) Run(c *gin.Context) {
	h.submit(c, "run", h.reconcilerService.Run)
}

// Stop calls reconcilerService.Stop
func (h HTTPController) Stop(c *gin.Context) {
	h.submit(c, "stop", h.reconcilerService.Stop)
}

// RemoveImage calls reconcilerService.RemoveImage
func (h HTTPController) RemoveImage(c *gin.Context) {
	h.submit(c, "remove-image", h.reconcilerService.RemoveImage)
}

// RemoveContainer calls reconcilerService.RemoveContainer
func (h HTTPController) RemoveContainer(c *gin.Context) {
	h.submit(c, "remove-container", h.reconcilerService.RemoveContainer)
}

// submit hands the operation to the service, the outcome is observed later through GetImage
func (h HTTPController) submit(c *gin.Context, operation string, fn func(context.Context, string) error) {
	id := c.Param("id")
	details := problem.Detailf("Operation=%s, ID=%s", operation, id)

	err := fn(c.Request.Context(), id)
	if err != nil {
		writeError(c, err, details)
		return
	}

	problem.Of(http.StatusAccepted).Append(details).WriteTo(c.Writer)
}

func writeError(c *gin.Context, err error, details problem.Option) {
	if errors.Is(err, domain.ErrUnknownImage) {
		problem.Of(http.StatusNotFound).Append(details).WriteTo(c.Writer)
		return
	}
	logger.L().Ctx(c.Request.Context()).Error("service error", helpers.Error(err))
	problem.Of(http.StatusInternalServerError).Append(details).WriteTo(c.Writer)
}
