package backend

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"

	"github.com/joshbuysell/pt-bb-beds/internal/backend/gallery"
	"github.com/joshbuysell/pt-bb-beds/internal/backend/pricebook"
	"github.com/joshbuysell/pt-bb-beds/internal/core"
)

// APIService exposes the JSON and blob endpoints used by scripts; the web
// UI renders through the frontend service instead.
type APIService struct {
	core *core.CoreService
}

// ImageInfo describes one gallery image and whether the session's price
// book currently covers it.
type ImageInfo struct {
	Name   string `json:"name"`
	Key    string `json:"key"`
	Priced bool   `json:"priced"`
}

// PriceUpdate carries the three price fields of one product. Pointers keep
// absent fields apart from deliberately empty ones: all three must be sent,
// empty values are allowed.
type PriceUpdate struct {
	Crib     *string `json:"crib" validate:"required"`
	Pendulum *string `json:"pendulum" validate:"required"`
	Drawer   *string `json:"drawer" validate:"required"`
}

func NewAPIService(coreService *core.CoreService) *APIService {
	return &APIService{core: coreService}
}

func (s *APIService) SetRoutes(e *echo.Echo) {
	// Set probe route
	e.GET("/probe", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})

	api := e.Group("/api")
	api.GET("/images", s.listImagesHandler)
	api.GET("/image/:name", s.imageHandler)
	api.GET("/archive", s.archiveHandler)
	api.POST("/pricebook", s.uploadPricebookHandler)
	api.PUT("/prices/:key", s.updatePricesHandler)
}

func (s *APIService) listImagesHandler(c echo.Context) error {
	sess := s.core.AttachSession(c)

	entries, err := s.core.ListImages()
	if err != nil {
		slog.Error("failed to list images", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list images")
	}

	infos := make([]ImageInfo, 0, len(entries))
	for _, entry := range entries {
		_, priced := sess.Lookup(entry.Key)
		infos = append(infos, ImageInfo{Name: entry.Name, Key: entry.Key, Priced: priced})
	}
	return c.JSON(http.StatusOK, infos)
}

func (s *APIService) imageHandler(c echo.Context) error {
	sess := s.core.AttachSession(c)
	name := c.Param("name")

	row, priced := sess.Lookup(gallery.Key(name))
	data, err := s.core.RenderImage(c.Request().Context(), name, row, priced)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, gallery.ErrNotListed) {
			return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("no image named %s", name))
		}
		slog.Error("failed to render image", "image", name, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to render image")
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`attachment; filename=%q`, core.RenderedName(name)))
	return c.Blob(http.StatusOK, "image/png", data)
}

func (s *APIService) archiveHandler(c echo.Context) error {
	sess := s.core.AttachSession(c)

	var buf bytes.Buffer
	count, err := s.core.RenderArchive(c.Request().Context(), sess.Snapshot(), &buf)
	if err != nil {
		slog.Error("failed to render archive", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to render archive")
	}
	slog.Info("archive download", "images", count, "size_bytes", buf.Len())

	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`attachment; filename=%q`, core.ArchiveName))
	return c.Blob(http.StatusOK, "application/zip", buf.Bytes())
}

func (s *APIService) uploadPricebookHandler(c echo.Context) error {
	sess := s.core.AttachSession(c)

	fileHeader, err := c.FormFile("pricebook")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "missing pricebook file")
	}
	src, err := fileHeader.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable pricebook file")
	}
	defer src.Close()

	book, err := pricebook.Read(src)
	if err != nil {
		// A schema violation keeps the session's previous book intact.
		var schemaErr *pricebook.SchemaError
		if errors.As(err, &schemaErr) {
			return echo.NewHTTPError(http.StatusBadRequest, schemaErr.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, "failed to parse price workbook")
	}

	sess.ReplaceBook(book)
	sess.SetUseDefault(false)
	slog.Info("price workbook uploaded", "session_id", sess.ID, "rows", len(book), "size_bytes", fileHeader.Size)
	return c.JSON(http.StatusOK, map[string]int{"rows": len(book)})
}

func (s *APIService) updatePricesHandler(c echo.Context) error {
	sess := s.core.AttachSession(c)

	update := new(PriceUpdate)
	if err := c.Bind(update); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(update); err != nil {
		return err
	}

	key := pricebook.Normalize(c.Param("key"))
	row := pricebook.Row{Crib: *update.Crib, Pendulum: *update.Pendulum, Drawer: *update.Drawer}
	if !sess.SetPrices(key, row) {
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("no price row for key %s", key))
	}
	slog.Debug("prices updated", "session_id", sess.ID, "key", key)
	return c.JSON(http.StatusOK, map[string]string{"key": key})
}
