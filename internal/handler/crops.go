package handler

import (
    "context"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/krushi/krushi-api/internal/logging"
    "github.com/krushi/krushi-api/internal/middleware"
    "github.com/krushi/krushi-api/internal/service"
)

// CropHandler serves a farmer's crops.
type CropHandler struct {
    Crops *service.CropService
    Log   logging.Logger
}

func NewCropHandler(crops *service.CropService, log logging.Logger) *CropHandler {
    return &CropHandler{Crops: crops, Log: log}
}

type cropReq struct {
    CropName     string `json:"cropName"`
    CropVariety  string `json:"cropVariety"`
    PlantingDate string `json:"plantingDate"`
    Area         struct {
        Value float64 `json:"value"`
        Unit  string  `json:"unit"`
    } `json:"area"`
}

func (h *CropHandler) Create(c echo.Context) error {
    var req cropReq
    if err := c.Bind(&req); err != nil {
        return badRequest(c, "invalid body")
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    crop, err := h.Crops.Create(ctx, middleware.CurrentUserID(c), service.CropInput{
        CropName:     req.CropName,
        CropVariety:  req.CropVariety,
        PlantingDate: req.PlantingDate,
        AreaValue:    req.Area.Value,
        AreaUnit:     req.Area.Unit,
    })
    if err != nil {
        return respondError(c, h.Log, err)
    }
    return c.JSON(http.StatusCreated, viewCrop(crop))
}

func (h *CropHandler) List(c echo.Context) error {
    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    crops, err := h.Crops.List(ctx, middleware.CurrentUserID(c))
    if err != nil {
        return respondError(c, h.Log, err)
    }
    out := make([]cropView, 0, len(crops))
    for _, cr := range crops {
        out = append(out, viewCrop(cr))
    }
    return c.JSON(http.StatusOK, out)
}

// Delete removes a crop owned by the current farmer; other ids are 404.
func (h *CropHandler) Delete(c echo.Context) error {
    id, ok := pathID(c, "id")
    if !ok {
        return badRequest(c, "invalid crop id")
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    if err := h.Crops.Delete(ctx, middleware.CurrentUserID(c), id); err != nil {
        return respondError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"message": "Crop deleted"})
}

// LocationHandler serves the admin location catalogue.
type LocationHandler struct {
    Locations *service.LocationService
    Log       logging.Logger
}

func NewLocationHandler(locations *service.LocationService, log logging.Logger) *LocationHandler {
    return &LocationHandler{Locations: locations, Log: log}
}

type locationReq struct {
    District string `json:"district"`
    Taluka   string `json:"taluka"`
    Geo      struct {
        Coordinates []float64 `json:"coordinates"`
    } `json:"geo"`
}

func (h *LocationHandler) Create(c echo.Context) error {
    var req locationReq
    if err := c.Bind(&req); err != nil {
        return badRequest(c, "invalid body")
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    loc, err := h.Locations.Create(ctx, middleware.CurrentUserID(c), service.LocationInput{
        District:    req.District,
        Taluka:      req.Taluka,
        Coordinates: req.Geo.Coordinates,
    })
    if err != nil {
        return respondError(c, h.Log, err)
    }
    return c.JSON(http.StatusCreated, viewLocation(loc))
}

func (h *LocationHandler) List(c echo.Context) error {
    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    locs, err := h.Locations.List(ctx)
    if err != nil {
        return respondError(c, h.Log, err)
    }
    out := make([]locationView, 0, len(locs))
    for _, l := range locs {
        out = append(out, viewLocation(l))
    }
    return c.JSON(http.StatusOK, out)
}
