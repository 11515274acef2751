package backend

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/xuri/excelize/v2"

	"github.com/joshbuysell/pt-bb-beds/internal/backend/session"
	"github.com/joshbuysell/pt-bb-beds/internal/common"
	"github.com/joshbuysell/pt-bb-beds/internal/core"
)

func writeTestPNG(t *testing.T, path string, width, height int) {
	t.Helper()

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create image fixture: %v", err)
	}
	defer f.Close()
	if err = png.Encode(f, image.NewNRGBA(image.Rect(0, 0, width, height))); err != nil {
		t.Fatalf("failed to encode image fixture: %v", err)
	}
}

func workbookBytes(t *testing.T, header []string, rows [][]string) []byte {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	for i, name := range header {
		ref, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			t.Fatalf("failed to build cell reference: %v", err)
		}
		if err = f.SetCellValue(sheet, ref, name); err != nil {
			t.Fatalf("failed to set header cell: %v", err)
		}
	}
	for r, row := range rows {
		for c, value := range row {
			ref, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				t.Fatalf("failed to build cell reference: %v", err)
			}
			if err = f.SetCellValue(sheet, ref, value); err != nil {
				t.Fatalf("failed to set data cell: %v", err)
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("failed to serialize workbook: %v", err)
	}
	return buf.Bytes()
}

var allColumns = []string{"Назва", "Ліжечко", "Мятник", "Шухляда"}

// newTestServer wires a full echo instance over a temp gallery holding
// Sofia.png (priced by the default workbook) and orphan.png (unpriced).
func newTestServer(t *testing.T) *echo.Echo {
	t.Helper()

	dir := t.TempDir()
	imagesDir := filepath.Join(dir, "images")
	if err := os.Mkdir(imagesDir, 0o755); err != nil {
		t.Fatalf("failed to create image folder: %v", err)
	}
	writeTestPNG(t, filepath.Join(imagesDir, "Sofia.png"), 400, 600)
	writeTestPNG(t, filepath.Join(imagesDir, "orphan.png"), 300, 450)

	workbookPath := filepath.Join(dir, "price.xlsx")
	data := workbookBytes(t, allColumns, [][]string{{"Sofia", "14500", "1200", "2500"}})
	if err := os.WriteFile(workbookPath, data, 0o644); err != nil {
		t.Fatalf("failed to write workbook fixture: %v", err)
	}

	config := &core.ServiceConfig{
		Port:             8080,
		ImagesDir:        imagesDir,
		DefaultPriceBook: workbookPath,
		PreviewWidth:     200,
		CacheTTL:         core.Duration(time.Minute),
	}
	coreService := core.NewCoreService(config)
	t.Cleanup(coreService.Close)

	e := echo.New()
	e.Validator = common.NewEchoValidator()
	NewAPIService(coreService).SetRoutes(e)
	return e
}

func do(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()

	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == session.CookieName {
			return cookie
		}
	}
	t.Fatal("no session cookie was set")
	return nil
}

func listImages(t *testing.T, e *echo.Echo, cookie *http.Cookie) ([]ImageInfo, *httptest.ResponseRecorder) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/api/images", nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := do(e, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/images returned %d: %s", rec.Code, rec.Body.String())
	}

	var infos []ImageInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &infos); err != nil {
		t.Fatalf("failed to decode image list: %v", err)
	}
	return infos, rec
}

func TestListImages(t *testing.T) {
	e := newTestServer(t)

	infos, _ := listImages(t, e, nil)
	if len(infos) != 2 {
		t.Fatalf("expected 2 images, got %d", len(infos))
	}

	byName := map[string]ImageInfo{}
	for _, info := range infos {
		byName[info.Name] = info
	}
	if info := byName["Sofia.png"]; info.Key != "sofia" || !info.Priced {
		t.Errorf("unexpected Sofia.png info: %+v", info)
	}
	if info := byName["orphan.png"]; info.Priced {
		t.Errorf("orphan.png must be unpriced: %+v", info)
	}
}

func TestProbe(t *testing.T) {
	e := newTestServer(t)

	rec := do(e, httptest.NewRequest(http.MethodGet, "/probe", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("probe returned %d", rec.Code)
	}
}

func TestUpdatePricesRoundTrip(t *testing.T) {
	e := newTestServer(t)
	_, first := listImages(t, e, nil)
	cookie := sessionCookie(t, first)

	body := `{"crib":"999","pendulum":"", "drawer":"10"}`
	req := httptest.NewRequest(http.MethodPut, "/api/prices/sofia", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.AddCookie(cookie)
	if rec := do(e, req); rec.Code != http.StatusOK {
		t.Fatalf("PUT /api/prices/sofia returned %d: %s", rec.Code, rec.Body.String())
	}

	imgReq := httptest.NewRequest(http.MethodGet, "/api/image/Sofia.png", nil)
	imgReq.AddCookie(cookie)
	rec := do(e, imgReq)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/image returned %d: %s", rec.Code, rec.Body.String())
	}
	if _, err := png.Decode(bytes.NewReader(rec.Body.Bytes())); err != nil {
		t.Errorf("image endpoint returned invalid png: %v", err)
	}
	if disposition := rec.Header().Get(echo.HeaderContentDisposition); !strings.Contains(disposition, "processed_Sofia.png") {
		t.Errorf("unexpected content disposition %q", disposition)
	}
}

func TestUpdatePricesUnknownKey(t *testing.T) {
	e := newTestServer(t)

	req := httptest.NewRequest(http.MethodPut, "/api/prices/ghost", strings.NewReader(`{"crib":"1","pendulum":"2","drawer":"3"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if rec := do(e, req); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for an unknown key, got %d", rec.Code)
	}
}

func TestUpdatePricesMissingField(t *testing.T) {
	e := newTestServer(t)

	req := httptest.NewRequest(http.MethodPut, "/api/prices/sofia", strings.NewReader(`{"crib":"1"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if rec := do(e, req); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a missing field, got %d", rec.Code)
	}
}

func multipartBody(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err = fw.Write(content); err != nil {
		t.Fatalf("failed to write form file: %v", err)
	}
	if err = mw.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func TestUploadPricebookReplacesBook(t *testing.T) {
	e := newTestServer(t)
	_, first := listImages(t, e, nil)
	cookie := sessionCookie(t, first)

	upload := workbookBytes(t, allColumns, [][]string{{"Orphan", "100", "200", "300"}})
	body, contentType := multipartBody(t, "pricebook", "new.xlsx", upload)
	req := httptest.NewRequest(http.MethodPost, "/api/pricebook", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	req.AddCookie(cookie)
	if rec := do(e, req); rec.Code != http.StatusOK {
		t.Fatalf("POST /api/pricebook returned %d: %s", rec.Code, rec.Body.String())
	}

	infos, _ := listImages(t, e, cookie)
	byName := map[string]ImageInfo{}
	for _, info := range infos {
		byName[info.Name] = info
	}
	if !byName["orphan.png"].Priced {
		t.Error("orphan.png must be priced after the upload")
	}
	if byName["Sofia.png"].Priced {
		t.Error("Sofia.png must lose its price row after the upload")
	}
}

func TestUploadPricebookRejectsBadSchema(t *testing.T) {
	e := newTestServer(t)
	_, first := listImages(t, e, nil)
	cookie := sessionCookie(t, first)

	upload := workbookBytes(t, []string{"Назва", "Ліжечко"}, [][]string{{"Sofia", "1"}})
	body, contentType := multipartBody(t, "pricebook", "broken.xlsx", upload)
	req := httptest.NewRequest(http.MethodPost, "/api/pricebook", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	req.AddCookie(cookie)

	rec := do(e, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a schema violation, got %d", rec.Code)
	}
	if msg := rec.Body.String(); !strings.Contains(msg, "Мятник") || !strings.Contains(msg, "Шухляда") {
		t.Errorf("error message must name the missing columns, got %s", msg)
	}

	// The previous book must survive a rejected upload.
	infos, _ := listImages(t, e, cookie)
	for _, info := range infos {
		if info.Name == "Sofia.png" && !info.Priced {
			t.Error("a rejected upload must not drop the session's book")
		}
	}
}

func TestArchiveDownload(t *testing.T) {
	e := newTestServer(t)

	rec := do(e, httptest.NewRequest(http.MethodGet, "/api/archive", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/archive returned %d: %s", rec.Code, rec.Body.String())
	}
	if disposition := rec.Header().Get(echo.HeaderContentDisposition); !strings.Contains(disposition, core.ArchiveName) {
		t.Errorf("unexpected content disposition %q", disposition)
	}

	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	if err != nil {
		t.Fatalf("archive is not a readable zip: %v", err)
	}
	if len(zr.File) != 2 {
		t.Fatalf("expected one member per gallery image, got %d", len(zr.File))
	}
	// Members keep the original filenames.
	if zr.File[0].Name != "Sofia.png" || zr.File[1].Name != "orphan.png" {
		t.Errorf("unexpected member names %q, %q", zr.File[0].Name, zr.File[1].Name)
	}
}

func TestImageNotFound(t *testing.T) {
	e := newTestServer(t)

	if rec := do(e, httptest.NewRequest(http.MethodGet, "/api/image/ghost.png", nil)); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for a missing image, got %d", rec.Code)
	}
}
