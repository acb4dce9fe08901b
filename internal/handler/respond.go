package handler

import (
    "errors"
    "mime/multipart"
    "net/http"
    "strconv"

    "github.com/labstack/echo/v4"

    "github.com/krushi/krushi-api/internal/logging"
    "github.com/krushi/krushi-api/internal/repository"
    "github.com/krushi/krushi-api/internal/service"
    "github.com/krushi/krushi-api/internal/weather"
)

// respondError is the only place service and repository errors become HTTP
// responses. Anything unrecognised is logged and answered with a generic 500.
func respondError(c echo.Context, log logging.Logger, err error) error {
    var ve *service.ValidationError
    var de *service.DetectionError
    switch {
    case errors.As(err, &ve):
        return c.JSON(http.StatusBadRequest, echo.Map{"error": ve.Msg})
    case errors.Is(err, service.ErrInvalidCredentials):
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
    case errors.Is(err, service.ErrInvalidToken):
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired token"})
    case errors.Is(err, service.ErrPendingApproval), errors.Is(err, service.ErrRejected):
        return c.JSON(http.StatusForbidden, echo.Map{"error": err.Error()})
    case errors.Is(err, repository.ErrNotFound):
        return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
    case errors.Is(err, repository.ErrForbidden):
        return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
    case errors.Is(err, repository.ErrDuplicate):
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "already exists"})
    case errors.Is(err, repository.ErrConflict):
        return c.JSON(http.StatusConflict, echo.Map{"error": "conflict"})
    case errors.Is(err, service.ErrNoLocation):
        return c.JSON(http.StatusBadRequest, echo.Map{"error": service.ErrNoLocation.Error()})
    case errors.Is(err, service.ErrServiceUnavailable):
        log.Warn(c.Request().Context(), "inference unavailable", "error", err)
        return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": service.ErrServiceUnavailable.Error()})
    case errors.Is(err, service.ErrAIUnavailable):
        log.Error(c.Request().Context(), "generative model failed", "error", err)
        return c.JSON(http.StatusBadGateway, echo.Map{"error": service.ErrAIUnavailable.Error()})
    case errors.Is(err, weather.ErrUpstream):
        log.Warn(c.Request().Context(), "weather provider failed", "error", err)
        return c.JSON(http.StatusBadGateway, echo.Map{"error": "weather provider unavailable"})
    case errors.As(err, &de):
        log.Error(c.Request().Context(), "disease detection failed", "stage", de.Stage, "error", de.Err)
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "disease detection failed", "stage": de.Stage})
    }
    log.Error(c.Request().Context(), "request failed", "method", c.Request().Method, "path", c.Path(), "error", err)
    return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
}

func badRequest(c echo.Context, msg string) error {
    return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
}

// pathID parses a positive numeric path parameter.
func pathID(c echo.Context, name string) (uint64, bool) {
    id, err := strconv.ParseUint(c.Param(name), 10, 64)
    return id, err == nil && id > 0
}

// formUpload opens the named multipart file. A missing file yields a nil
// upload and no error. The returned close func is always safe to call.
func formUpload(c echo.Context, field string) (*service.Upload, func(), error) {
    fh, err := c.FormFile(field)
    if err != nil {
        if errors.Is(err, http.ErrMissingFile) {
            return nil, func() {}, nil
        }
        return nil, func() {}, err
    }
    up, closer, err := openUpload(fh)
    if err != nil {
        return nil, func() {}, err
    }
    return &up, closer, nil
}

// formUploads opens every file sent under field.
func formUploads(c echo.Context, field string) ([]service.Upload, func(), error) {
    form, err := c.MultipartForm()
    if err != nil {
        return nil, func() {}, err
    }
    var ups []service.Upload
    var closers []func()
    closeAll := func() {
        for _, cl := range closers {
            cl()
        }
    }
    for _, fh := range form.File[field] {
        up, cl, err := openUpload(fh)
        if err != nil {
            closeAll()
            return nil, func() {}, err
        }
        ups = append(ups, up)
        closers = append(closers, cl)
    }
    return ups, closeAll, nil
}

func openUpload(fh *multipart.FileHeader) (service.Upload, func(), error) {
    f, err := fh.Open()
    if err != nil {
        return service.Upload{}, nil, err
    }
    return service.Upload{
        Filename:    fh.Filename,
        ContentType: fh.Header.Get(echo.HeaderContentType),
        Size:        fh.Size,
        Body:        f,
    }, func() { _ = f.Close() }, nil
}

func formFloat(c echo.Context, name string) (float64, error) {
    v := c.FormValue(name)
    if v == "" {
        return 0, nil
    }
    return strconv.ParseFloat(v, 64)
}
