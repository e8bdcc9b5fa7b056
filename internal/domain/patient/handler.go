package patient

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type messageResponse struct {
	Message string `json:"message"`
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/", h.Hello)
	e.GET("/about", h.About)
	e.GET("/view", h.View)
	e.GET("/patient/:id", h.GetPatient)
	e.GET("/sort", h.SortPatients)
	e.POST("/create", h.CreatePatient)
	e.PUT("/edit/:id", h.UpdatePatient)
	e.DELETE("/delete/:id", h.DeletePatient)
}

func (h *Handler) Hello(c echo.Context) error {
	return c.JSON(http.StatusOK, messageResponse{Message: "Patients Management System API"})
}

func (h *Handler) About(c echo.Context) error {
	return c.JSON(http.StatusOK, messageResponse{Message: "A fully functional API to manage your patient records"})
}

func (h *Handler) View(c echo.Context) error {
	dir, err := h.svc.List(c.Request().Context())
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, dir)
}

func (h *Handler) GetPatient(c echo.Context) error {
	p, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) SortPatients(c echo.Context) error {
	sortBy := c.QueryParam("sort_by")
	if sortBy == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "sort_by is required")
	}
	records, err := h.svc.SortBy(c.Request().Context(), sortBy, c.QueryParam("order"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, records)
}

func (h *Handler) CreatePatient(c echo.Context) error {
	var in NewPatient
	if err := c.Bind(&in); err != nil {
		return bindError(err)
	}
	if _, err := h.svc.Create(c.Request().Context(), in); err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, messageResponse{Message: "Patient created successfully"})
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	var patch Patch
	if err := c.Bind(&patch); err != nil {
		return bindError(err)
	}
	if _, err := h.svc.Update(c.Request().Context(), c.Param("id"), patch); err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "Patient updated successfully"})
}

func (h *Handler) DeletePatient(c echo.Context) error {
	if err := h.svc.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "Patient deleted successfully"})
}

// bindError reports a malformed body as 400 but keeps a 413 raised while the
// body was being read.
func bindError(err error) error {
	var he *echo.HTTPError
	for e := err; errors.As(e, &he); e = he.Internal {
		if he.Code == http.StatusRequestEntityTooLarge {
			return he
		}
	}
	return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
}

// toHTTPError maps domain errors onto status codes.
func toHTTPError(err error) error {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, map[string]interface{}{
			"message": "validation failed",
			"errors":  verr.Issues,
		})
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Patient not found")
	case errors.Is(err, ErrConflict):
		return echo.NewHTTPError(http.StatusBadRequest, "Patient already exists")
	case errors.Is(err, ErrInvalidArgument):
		return echo.NewHTTPError(http.StatusBadRequest, strings.TrimPrefix(err.Error(), ErrInvalidArgument.Error()+": "))
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
