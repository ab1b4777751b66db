package handler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/incident-outbox/internal/domain"
	"github.com/kursadbilgin/incident-outbox/internal/service"
)

type OutboxService interface {
	StartIncident() domain.Incident
	Submit(ctx context.Context, incident domain.Incident, formType string, fields map[string]string) (service.DeliveryNotification, error)
	ResyncAll(ctx context.Context) (service.SweepSummary, error)
	ResendOne(ctx context.Context, key string) (service.ResendResult, error)
	PendingCount(ctx context.Context) (int64, error)
	ListPending(ctx context.Context) ([]domain.PendingItem, error)
	LastSweep() (service.SweepSummary, bool)
	Catalog() *domain.FormCatalog
}

// ConnectivityState lets the collaborator report browser-style
// online/offline events in addition to the background prober.
type ConnectivityState interface {
	SetOnline(ctx context.Context, online bool)
	Online() bool
}

type OutboxHandler struct {
	service      OutboxService
	connectivity ConnectivityState
	validate     *validator.Validate
}

func NewOutboxHandler(service OutboxService, connectivity ConnectivityState) (*OutboxHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("outbox service is required")
	}
	return &OutboxHandler{
		service:      service,
		connectivity: connectivity,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
	}, nil
}

func RegisterOutboxRoutes(router fiber.Router, service OutboxService, connectivity ConnectivityState) error {
	h, err := NewOutboxHandler(service, connectivity)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/incidents", h.StartIncident)
	v1.Post("/incidents/:incidentId/forms/:formType", h.SubmitForm)
	v1.Get("/forms", h.ListForms)
	v1.Get("/outbox", h.ListPending)
	v1.Get("/outbox/count", h.PendingCount)
	v1.Get("/outbox/sweep", h.LastSweep)
	v1.Post("/outbox/resync", h.Resync)
	v1.Post("/outbox/:key/resend", h.ResendOne)
	if connectivity != nil {
		v1.Get("/connectivity", h.GetConnectivity)
		v1.Post("/connectivity", h.SetConnectivity)
	}

	return nil
}

type submitFormRequest struct {
	Fields map[string]string `json:"fields" validate:"required"`
}

type connectivityRequest struct {
	Online *bool `json:"online" validate:"required"`
}

type incidentResponse struct {
	IncidentID string    `json:"incidentId"`
	StartedAt  time.Time `json:"startedAt"`
}

type pendingItemResponse struct {
	Key        string    `json:"key"`
	IncidentID string    `json:"incidentId"`
	FormType   string    `json:"formType"`
	CreatedAt  time.Time `json:"createdAt"`
}

type listPendingResponse struct {
	Data []pendingItemResponse `json:"data"`
	Meta listMeta              `json:"meta"`
}

type listMeta struct {
	Total int `json:"total"`
}

type sweepResponse struct {
	service.SweepSummary
	Notification service.DeliveryNotification `json:"notification"`
}

func (h *OutboxHandler) StartIncident(c *fiber.Ctx) error {
	incident := h.service.StartIncident()
	return c.Status(fiber.StatusCreated).JSON(incidentResponse{
		IncidentID: incident.ID,
		StartedAt:  incident.StartedAt,
	})
}

func (h *OutboxHandler) SubmitForm(c *fiber.Ctx) error {
	incidentID, err := pathParam(c, "incidentId")
	if err != nil {
		return toHTTPError(err)
	}
	formType, err := pathParam(c, "formType")
	if err != nil {
		return toHTTPError(err)
	}

	var req submitFormRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return toHTTPError(fmt.Errorf("%w: fields is required", domain.ErrValidation))
	}

	notification, err := h.service.Submit(c.UserContext(), domain.Incident{ID: incidentID}, formType, req.Fields)
	if err != nil {
		if notification.Kind == service.NotificationSaveFailed {
			return c.Status(fiber.StatusServiceUnavailable).JSON(notification)
		}
		return toHTTPError(err)
	}

	status := fiber.StatusOK
	if notification.Kind == service.NotificationSavedForLater {
		status = fiber.StatusAccepted
	}
	return c.Status(status).JSON(notification)
}

func (h *OutboxHandler) ListForms(c *fiber.Ctx) error {
	formTypes := h.service.Catalog().FormTypes()
	names := make([]string, 0, len(formTypes))
	for _, formType := range formTypes {
		names = append(names, formType.String())
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"formTypes": names,
	})
}

func (h *OutboxHandler) ListPending(c *fiber.Ctx) error {
	items, err := h.service.ListPending(c.UserContext())
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]pendingItemResponse, 0, len(items))
	for _, item := range items {
		data = append(data, pendingItemResponse{
			Key:        item.Key,
			IncidentID: item.IncidentID,
			FormType:   item.FormType.String(),
			CreatedAt:  item.CreatedAt,
		})
	}

	return c.Status(fiber.StatusOK).JSON(listPendingResponse{
		Data: data,
		Meta: listMeta{Total: len(data)},
	})
}

func (h *OutboxHandler) PendingCount(c *fiber.Ctx) error {
	count, err := h.service.PendingCount(c.UserContext())
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"pending": count,
	})
}

func (h *OutboxHandler) LastSweep(c *fiber.Ctx) error {
	summary, ok := h.service.LastSweep()
	if !ok {
		return toHTTPError(fmt.Errorf("%w: no sweep has run yet", domain.ErrNotFound))
	}
	return c.Status(fiber.StatusOK).JSON(sweepResponse{
		SweepSummary: summary,
		Notification: summary.Notification(),
	})
}

func (h *OutboxHandler) Resync(c *fiber.Ctx) error {
	summary, err := h.service.ResyncAll(c.UserContext())
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(sweepResponse{
		SweepSummary: summary,
		Notification: summary.Notification(),
	})
}

func (h *OutboxHandler) ResendOne(c *fiber.Ctx) error {
	key, err := pathParam(c, "key")
	if err != nil {
		return toHTTPError(err)
	}

	result, err := h.service.ResendOne(c.UserContext(), key)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(result)
}

func (h *OutboxHandler) GetConnectivity(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"online": h.connectivity.Online(),
	})
}

func (h *OutboxHandler) SetConnectivity(c *fiber.Ctx) error {
	var req connectivityRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return toHTTPError(fmt.Errorf("%w: online is required", domain.ErrValidation))
	}

	// The sweep outlives this request, so it must not inherit its context.
	h.connectivity.SetOnline(context.Background(), *req.Online)
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"online": *req.Online,
	})
}

// pathParam returns a decoded route parameter. Keys and form types carry
// spaces, which arrive percent-encoded.
func pathParam(c *fiber.Ctx, name string) (string, error) {
	decoded, err := url.PathUnescape(c.Params(name))
	if err != nil {
		return "", fmt.Errorf("%w: invalid %s", domain.ErrValidation, name)
	}
	decoded = strings.TrimSpace(decoded)
	if decoded == "" {
		return "", fmt.Errorf("%w: %s is required", domain.ErrValidation, name)
	}
	return decoded, nil
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrStorageUnavailable):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	default:
		return err
	}
}
