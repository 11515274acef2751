package frontend

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/joshbuysell/pt-bb-beds/internal/backend/gallery"
	"github.com/joshbuysell/pt-bb-beds/internal/backend/pricebook"
	"github.com/joshbuysell/pt-bb-beds/internal/backend/session"
	"github.com/joshbuysell/pt-bb-beds/internal/core"
)

const (
	MainPageName = "index.html"
	mimePNG      = "image/png"
	mimeZIP      = "application/zip"
)

type FrontendService struct {
	coreService *core.CoreService
	config      *core.ServiceConfig
}

func NewFrontendService(config *core.ServiceConfig, coreService *core.CoreService) *FrontendService {
	return &FrontendService{
		coreService: coreService,
		config:      config,
	}
}

// rootRedirectHandler redirects root path to index.html
func (service *FrontendService) rootRedirectHandler(ctx echo.Context) error {
	return ctx.Redirect(http.StatusMovedPermanently, "/"+MainPageName)
}

func (service *FrontendService) SetRoutes(e *echo.Echo) {
	// Create template renderer
	e.Renderer = &Template{
		templates: template.Must(template.New("").ParseFS(templateFS, viewsPattern)),
	}

	e.GET("/", service.rootRedirectHandler) // Redirect root to index.html
	e.GET("/"+MainPageName, service.indexHandler)

	// Fragments the page assembles itself from
	e.GET("/htmx/sidebar", service.htmxSidebarHandler)
	e.GET("/htmx/gallery", service.htmxGalleryHandler)
	e.POST("/htmx/layout", service.htmxLayoutHandler)
	e.POST("/htmx/source", service.htmxSourceHandler)
	e.POST("/htmx/pricebook", service.htmxUploadPricebookHandler)
	e.POST("/htmx/prices/:key", service.htmxUpdatePricesHandler)
	e.GET("/htmx/image/preview/:name", service.htmxPreviewHandler)

	// Plain downloads outside of htmx
	e.GET("/download/image/:name", service.downloadImageHandler)
	e.GET("/download/archive", service.downloadArchiveHandler)

	// Favicon (SVG) route and the rasterized fallback for iOS
	e.GET("/icon.svg", service.iconHandler)
	e.GET("/apple-touch-icon.png", service.appleTouchIconHandler)
}

// indexHandler serves the page shell. The session is attached here so the
// cookie exists before the fragment requests race each other on load.
func (service *FrontendService) indexHandler(ctx echo.Context) error {
	service.coreService.AttachSession(ctx)
	return ctx.Render(http.StatusOK, MainPageName, nil)
}

func (service *FrontendService) htmxSidebarHandler(ctx echo.Context) error {
	sess := service.coreService.AttachSession(ctx)
	service.setNoCache(ctx)
	return ctx.HTML(http.StatusOK, service.buildSidebarHTML(sess))
}

func (service *FrontendService) htmxGalleryHandler(ctx echo.Context) error {
	sess := service.coreService.AttachSession(ctx)

	listHTML, err := service.buildGalleryHTML(sess)
	if err != nil {
		slog.Error("htmxGalleryHandler: failed to list images",
			"status", http.StatusInternalServerError, "error", err)
		return ctx.String(http.StatusInternalServerError, "Не вдалося прочитати теку зображень")
	}

	// Prevent caching so edits are always reflected
	service.setNoCache(ctx)

	return ctx.HTML(http.StatusOK, listHTML)
}

func (service *FrontendService) htmxLayoutHandler(ctx echo.Context) error {
	sess := service.coreService.AttachSession(ctx)

	// An unchecked checkbox is absent from the form payload.
	sess.SetMobile(ctx.FormValue("mobile") != "")

	listHTML, err := service.buildGalleryHTML(sess)
	if err != nil {
		slog.Error("htmxLayoutHandler: failed to rebuild gallery",
			"status", http.StatusInternalServerError, "error", err)
		return ctx.String(http.StatusInternalServerError, "Не вдалося прочитати теку зображень")
	}

	service.setNoCache(ctx)

	return ctx.HTML(http.StatusOK, listHTML)
}

func (service *FrontendService) htmxSourceHandler(ctx echo.Context) error {
	sess := service.coreService.AttachSession(ctx)

	useDefault := ctx.FormValue("useDefault") != ""
	sess.SetUseDefault(useDefault)
	if useDefault && sess.BookSize() == 0 {
		if err := service.coreService.SeedDefaultBook(sess); err != nil {
			slog.Warn("htmxSourceHandler: default price workbook not loaded",
				"path", service.config.DefaultPriceBook, "error", err)
		}
	}

	galleryHTML, err := service.buildGalleryHTML(sess)
	if err != nil {
		slog.Error("htmxSourceHandler: failed to rebuild gallery",
			"status", http.StatusInternalServerError, "error", err)
		return ctx.String(http.StatusInternalServerError, "Не вдалося прочитати теку зображень")
	}

	service.setNoCache(ctx)

	// Swap the sidebar in place and refresh the gallery out of band.
	page := service.buildSidebarHTML(sess) +
		fmt.Sprintf(`<div id="gallery" hx-swap-oob="true">%s</div>`, galleryHTML)
	return ctx.HTML(http.StatusOK, page)
}

func (service *FrontendService) htmxUploadPricebookHandler(ctx echo.Context) error {
	sess := service.coreService.AttachSession(ctx)

	// Get uploaded file
	file, err := ctx.FormFile("pricebook")
	if err != nil {
		slog.Error("htmxUploadPricebookHandler: failed to get uploaded file",
			"status", http.StatusBadRequest, "error", err)
		return ctx.HTML(http.StatusOK, uploadResultHTML("Не вдалося отримати файл.", true))
	}

	src, err := file.Open()
	if err != nil {
		slog.Error("htmxUploadPricebookHandler: failed to open uploaded file",
			"status", http.StatusInternalServerError, "error", err, "filename", file.Filename)
		return ctx.HTML(http.StatusOK, uploadResultHTML("Не вдалося відкрити файл.", true))
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			slog.Error("htmxUploadPricebookHandler: failed to close uploaded file reader", "error", cerr, "filename", file.Filename)
		}
	}()

	book, err := pricebook.Read(src)
	if err != nil {
		// The previous book stays active when an upload is rejected.
		slog.Warn("htmxUploadPricebookHandler: rejected price workbook",
			"status", http.StatusBadRequest, "error", err, "filename", file.Filename)
		var schemaErr *pricebook.SchemaError
		if errors.As(err, &schemaErr) {
			message := fmt.Sprintf("Не вдалося завантажити файл цін, відсутні колонки: %s.",
				strings.Join(schemaErr.Missing, ", "))
			return ctx.HTML(http.StatusOK, uploadResultHTML(message, true))
		}
		return ctx.HTML(http.StatusOK, uploadResultHTML("Не вдалося прочитати файл цін.", true))
	}

	sess.ReplaceBook(book)
	sess.SetUseDefault(false)
	slog.Info("htmxUploadPricebookHandler: price workbook uploaded",
		"filename", file.Filename, "rows", len(book), "size_bytes", file.Size)

	// Return the upload message plus an out-of-band swap of the gallery
	galleryHTML, listErr := service.buildGalleryHTML(sess)
	message := uploadResultHTML(fmt.Sprintf("Файл цін завантажено. Позицій: %d.", len(book)), false)
	if listErr != nil {
		// If building the gallery fails, still report the upload result
		slog.Error("htmxUploadPricebookHandler: failed to rebuild gallery for OOB update",
			"status", http.StatusInternalServerError, "error", listErr)
		return ctx.HTML(http.StatusOK, message)
	}
	galleryOOB := fmt.Sprintf(`<div id="gallery" hx-swap-oob="true">%s</div>`, galleryHTML)
	return ctx.HTML(http.StatusOK, message+galleryOOB)
}

func (service *FrontendService) htmxUpdatePricesHandler(ctx echo.Context) error {
	sess := service.coreService.AttachSession(ctx)

	key := pricebook.Normalize(ctx.Param("key"))
	row := pricebook.Row{
		Crib:     ctx.FormValue("crib"),
		Pendulum: ctx.FormValue("pendulum"),
		Drawer:   ctx.FormValue("drawer"),
	}
	if !sess.SetPrices(key, row) {
		slog.Warn("htmxUpdatePricesHandler: unknown price key",
			"status", http.StatusNotFound, "key", key)
		return ctx.String(http.StatusNotFound, "Немає рядка цін для цього зображення")
	}
	slog.Debug("htmxUpdatePricesHandler: prices updated", "session_id", sess.ID, "key", key)

	// Every edit re-renders the whole grid so all previews stay current;
	// memoization keeps untouched images cheap.
	listHTML, err := service.buildGalleryHTML(sess)
	if err != nil {
		slog.Error("htmxUpdatePricesHandler: failed to rebuild gallery",
			"status", http.StatusInternalServerError, "error", err)
		return ctx.String(http.StatusInternalServerError, "Не вдалося прочитати теку зображень")
	}

	service.setNoCache(ctx)

	return ctx.HTML(http.StatusOK, listHTML)
}

func (service *FrontendService) htmxPreviewHandler(ctx echo.Context) error {
	name := ctx.Param("name")
	if name == "" {
		slog.Warn("htmxPreviewHandler: missing image name",
			"status", http.StatusBadRequest,
			"route", "/htmx/image/preview/:name")
		return ctx.String(http.StatusBadRequest, "Не вказано назву зображення")
	}
	sess := service.coreService.AttachSession(ctx)

	row, priced := sess.Lookup(gallery.Key(name))
	preview, err := service.coreService.RenderPreview(ctx.Request().Context(), name, row, priced)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, gallery.ErrNotListed) {
			slog.Warn("htmxPreviewHandler: image not available",
				"status", http.StatusNotFound, "image", name, "error", err)
			return ctx.String(http.StatusNotFound, "Зображення недоступне")
		}
		slog.Error("htmxPreviewHandler: failed to render preview",
			"status", http.StatusInternalServerError, "image", name, "error", err)
		return ctx.String(http.StatusInternalServerError, "Не вдалося обробити зображення")
	}

	// Prevent caching
	service.setNoCache(ctx)

	return ctx.Blob(http.StatusOK, mimePNG, preview)
}

func (service *FrontendService) downloadImageHandler(ctx echo.Context) error {
	name := ctx.Param("name")
	if name == "" {
		return ctx.String(http.StatusBadRequest, "Не вказано назву зображення")
	}
	sess := service.coreService.AttachSession(ctx)

	row, priced := sess.Lookup(gallery.Key(name))
	data, err := service.coreService.RenderImage(ctx.Request().Context(), name, row, priced)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, gallery.ErrNotListed) {
			slog.Warn("downloadImageHandler: image not available",
				"status", http.StatusNotFound, "image", name, "error", err)
			return ctx.String(http.StatusNotFound, "Зображення недоступне")
		}
		slog.Error("downloadImageHandler: failed to render image",
			"status", http.StatusInternalServerError, "image", name, "error", err)
		return ctx.String(http.StatusInternalServerError, "Не вдалося обробити зображення")
	}

	ctx.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename=%q`, core.RenderedName(name)))
	return ctx.Blob(http.StatusOK, mimePNG, data)
}

func (service *FrontendService) downloadArchiveHandler(ctx echo.Context) error {
	sess := service.coreService.AttachSession(ctx)

	var buf bytes.Buffer
	count, err := service.coreService.RenderArchive(ctx.Request().Context(), sess.Snapshot(), &buf)
	if err != nil {
		slog.Error("downloadArchiveHandler: failed to render archive",
			"status", http.StatusInternalServerError, "error", err)
		return ctx.String(http.StatusInternalServerError, "Не вдалося сформувати архів")
	}
	slog.Info("downloadArchiveHandler: archive downloaded", "images", count, "size_bytes", buf.Len())

	ctx.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename=%q`, core.ArchiveName))
	return ctx.Blob(http.StatusOK, mimeZIP, buf.Bytes())
}

func (service *FrontendService) setNoCache(ctx echo.Context) {
	ctx.Response().Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	ctx.Response().Header().Set("Pragma", "no-cache")
	ctx.Response().Header().Set("Expires", "0")
}

func (service *FrontendService) timestampNanoStr() string {
	return fmt.Sprintf("%d", time.Now().UnixNano())
}

func uploadResultHTML(message string, isError bool) string {
	class := "upload-ok"
	if isError {
		class = "upload-error"
	}
	return fmt.Sprintf(`<div id="upload-result" class="%s">%s</div>`, class, html.EscapeString(message))
}

func (service *FrontendService) buildSidebarHTML(sess *session.Session) string {
	mobileChecked := ""
	if sess.Mobile() {
		mobileChecked = " checked"
	}
	useDefault := sess.UseDefault()
	defaultChecked := ""
	if useDefault {
		defaultChecked = " checked"
	}

	var b strings.Builder
	b.WriteString(`<h3>Налаштування</h3>`)
	b.WriteString(fmt.Sprintf(`<label><input type="checkbox" name="mobile" hx-post="/htmx/layout" hx-target="#gallery" hx-swap="innerHTML"%s> Мобільний режим</label>`, mobileChecked))
	b.WriteString(fmt.Sprintf(`<label><input type="checkbox" name="useDefault" hx-post="/htmx/source" hx-target="#sidebar" hx-swap="innerHTML"%s> Використовувати стандартний Excel-файл</label>`, defaultChecked))
	if useDefault {
		b.WriteString(`<p><small>Використовується стандартний Excel-файл.</small></p>`)
	} else {
		b.WriteString(`<form hx-post="/htmx/pricebook" hx-target="#upload-result" hx-swap="outerHTML" hx-encoding="multipart/form-data">
	<label>Завантажте Excel-файл із цінами
		<input type="file" name="pricebook" accept=".xlsx" required>
	</label>
	<button type="submit">Завантажити</button>
</form>`)
	}
	b.WriteString(`<div id="upload-result"></div>`)
	return b.String()
}

func (service *FrontendService) buildGalleryHTML(sess *session.Session) (string, error) {
	entries, err := service.coreService.ListImages()
	if err != nil {
		return "", err
	}

	var b strings.Builder
	if len(entries) == 0 {
		b.WriteString(`<p>У теці зображень немає файлів .png або .jpg.</p>`)
		return b.String(), nil
	}

	ts := service.timestampNanoStr()
	layoutClass := "grid-wide"
	if sess.Mobile() {
		layoutClass = "grid-mobile"
	}

	b.WriteString(fmt.Sprintf(`<div class="%s">`, layoutClass))
	for _, entry := range entries {
		service.writeCardHTML(&b, sess, entry, ts)
	}
	b.WriteString(`</div>`)
	return b.String(), nil
}

// writeCardHTML renders one gallery card: the annotated preview, the three
// price inputs when the book covers the image, and the download link.
func (service *FrontendService) writeCardHTML(b *strings.Builder, sess *session.Session, entry gallery.Entry, ts string) {
	escapedName := html.EscapeString(entry.Name)
	urlName := url.PathEscape(entry.Name)

	b.WriteString(`<article class="card">`)
	b.WriteString(fmt.Sprintf(`<img src="/htmx/image/preview/%s?ts=%s" alt="%s" loading="lazy">`, urlName, ts, escapedName))
	b.WriteString(fmt.Sprintf(`<footer><small>Оновлене: %s</small></footer>`, escapedName))

	row, priced := sess.Lookup(entry.Key)
	if priced {
		b.WriteString(fmt.Sprintf(`<form hx-post="/htmx/prices/%s" hx-target="#gallery" hx-swap="innerHTML" hx-trigger="change">`, url.PathEscape(entry.Key)))
		b.WriteString(fmt.Sprintf(`<label>Ліжечко (%s)<input type="text" name="crib" value="%s"></label>`, escapedName, html.EscapeString(row.Crib)))
		b.WriteString(fmt.Sprintf(`<label>Маятник (%s)<input type="text" name="pendulum" value="%s"></label>`, escapedName, html.EscapeString(row.Pendulum)))
		b.WriteString(fmt.Sprintf(`<label>Шухляда (%s)<input type="text" name="drawer" value="%s"></label>`, escapedName, html.EscapeString(row.Drawer)))
		b.WriteString(`</form>`)
	} else {
		b.WriteString(fmt.Sprintf(`<p><small>Немає рядка цін для «%s»</small></p>`, html.EscapeString(entry.Key)))
	}

	b.WriteString(fmt.Sprintf(`<a href="/download/image/%s" download="%s">Завантажити зображення</a>`, urlName, html.EscapeString(core.RenderedName(entry.Name))))
	b.WriteString(`</article>`)
}

func (service *FrontendService) iconHandler(ctx echo.Context) error {
	data, err := assetsFS.ReadFile("views/icon.svg")
	if err != nil {
		slog.Error("iconHandler: failed to read icon.svg", "status", http.StatusInternalServerError, "error", err)
		return ctx.String(http.StatusInternalServerError, "Failed to load icon")
	}
	// Cache for 7 days
	ctx.Response().Header().Set("Cache-Control", "public, max-age=604800, immutable")
	return ctx.Blob(http.StatusOK, "image/svg+xml", data)
}

func (service *FrontendService) appleTouchIconHandler(ctx echo.Context) error {
	data, err := appleTouchIcon()
	if err != nil {
		slog.Error("appleTouchIconHandler: failed to rasterize icon", "status", http.StatusInternalServerError, "error", err)
		return ctx.String(http.StatusInternalServerError, "Failed to load icon")
	}
	// Cache for 7 days
	ctx.Response().Header().Set("Cache-Control", "public, max-age=604800, immutable")
	return ctx.Blob(http.StatusOK, mimePNG, data)
}
