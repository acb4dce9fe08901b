package handler

import (
    "context"
    "net/http"
    "strconv"
    "strings"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/krushi/krushi-api/internal/config"
    "github.com/krushi/krushi-api/internal/logging"
    "github.com/krushi/krushi-api/internal/middleware"
    "github.com/krushi/krushi-api/internal/service"
)

// ReportHandler serves disease detection, generative diagnoses and the
// farmer's report list.
type ReportHandler struct {
    Detector      *service.Detector
    Reports       *service.ReportService
    Log           logging.Logger
    DetectTimeout time.Duration
}

func NewReportHandler(det *service.Detector, reports *service.ReportService, cfg config.InferenceConfig, log logging.Logger) *ReportHandler {
    return &ReportHandler{Detector: det, Reports: reports, Log: log, DetectTimeout: detectBudget(cfg)}
}

// detectBudget covers a full wake plus every prediction attempt.
func detectBudget(cfg config.InferenceConfig) time.Duration {
    attempts := time.Duration(max(cfg.MaxAttempts, 1))
    return cfg.WakeBudget + attempts*(cfg.RequestTimeout+cfg.RetryDelay) + 30*time.Second
}

type markTreatedReq struct {
    FarmerNotes *string `json:"farmerNotes"`
}

// Detect classifies one image. The work is detached from client
// cancellation and bounded by DetectTimeout instead.
func (h *ReportHandler) Detect(c echo.Context) error {
    up, done, err := formUpload(c, "file")
    if err != nil {
        return badRequest(c, "invalid file upload")
    }
    defer done()

    ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request().Context()), h.DetectTimeout)
    defer cancel()

    rep, err := h.Detector.Detect(ctx, middleware.CurrentUserID(c), service.DetectInput{
        CropName: c.FormValue("cropName"),
        Image:    up,
    })
    if err != nil {
        return respondError(c, h.Log, err)
    }
    return c.JSON(http.StatusCreated, echo.Map{"message": "Disease detected", "report": viewReport(rep)})
}

// Create runs the multi-image generative diagnosis for one of the farmer's
// crops.
func (h *ReportHandler) Create(c echo.Context) error {
    cropID, err := strconv.ParseUint(strings.TrimSpace(c.FormValue("cropId")), 10, 64)
    if err != nil || cropID == 0 {
        return badRequest(c, "cropId is required")
    }
    images, done, err := formUploads(c, "images")
    if err != nil {
        return badRequest(c, "invalid images upload")
    }
    defer done()
    if len(images) == 0 {
        more, doneMore, err := formUploads(c, "images[]")
        if err != nil {
            return badRequest(c, "invalid images upload")
        }
        defer doneMore()
        images = more
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 90*time.Second)
    defer cancel()

    rep, err := h.Reports.Diagnose(ctx, middleware.CurrentUserID(c), service.DiagnoseInput{
        CropID:   cropID,
        Language: c.FormValue("reportLanguage"),
        Images:   images,
    })
    if err != nil {
        return respondError(c, h.Log, err)
    }
    return c.JSON(http.StatusCreated, echo.Map{"message": "Report created", "report": viewReport(rep)})
}

// List returns the farmer's reports, newest first.
func (h *ReportHandler) List(c echo.Context) error {
    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    reps, err := h.Reports.List(ctx, middleware.CurrentUserID(c))
    if err != nil {
        return respondError(c, h.Log, err)
    }
    out := make([]reportView, 0, len(reps))
    for _, r := range reps {
        out = append(out, viewReport(r))
    }
    return c.JSON(http.StatusOK, out)
}

func (h *ReportHandler) MarkTreated(c echo.Context) error {
    id, ok := pathID(c, "id")
    if !ok {
        return badRequest(c, "invalid report id")
    }
    var req markTreatedReq
    if c.Request().ContentLength != 0 {
        if err := c.Bind(&req); err != nil {
            return badRequest(c, "invalid body")
        }
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    rep, err := h.Reports.MarkTreated(ctx, middleware.CurrentUserID(c), id, req.FarmerNotes)
    if err != nil {
        return respondError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"message": "Report marked as treated", "report": viewReport(rep)})
}

func (h *ReportHandler) Delete(c echo.Context) error {
    id, ok := pathID(c, "id")
    if !ok {
        return badRequest(c, "invalid report id")
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
    defer cancel()

    if err := h.Reports.Delete(ctx, middleware.CurrentUserID(c), id); err != nil {
        return respondError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"message": "Report deleted"})
}

// MLStatus reports whether the inference service is up, starting a single
// background wake when it is not.
func (h *ReportHandler) MLStatus(c echo.Context) error {
    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    status, err := h.Detector.ServiceStatus(ctx)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"mlServerStatus": status, "error": "failed to start inference service"})
    }
    return c.JSON(http.StatusOK, echo.Map{"mlServerStatus": status})
}
