package handler

import (
    "time"

    "github.com/krushi/krushi-api/internal/model"
)

// JSON views. Model types carry no json tags; everything leaving the API is
// built here so password hashes never reach a client.

type mediaView struct {
    ID          uint64    `json:"id"`
    URL         string    `json:"url"`
    PublicID    string    `json:"publicId"`
    ContentType string    `json:"contentType"`
    Size        int64     `json:"size"`
    CreatedAt   time.Time `json:"createdAt"`
}

func viewMedia(m *model.Media) *mediaView {
    if m == nil {
        return nil
    }
    return &mediaView{ID: m.ID, URL: m.URL, PublicID: m.PublicID, ContentType: m.ContentType, Size: m.SizeBytes, CreatedAt: m.CreatedAt}
}

type geoView struct {
    Type        string     `json:"type"`
    Coordinates [2]float64 `json:"coordinates"`
}

type addressView struct {
    District string `json:"district"`
    Taluka   string `json:"taluka"`
}

type userView struct {
    ID           uint64      `json:"id"`
    FullName     string      `json:"fullName"`
    MobileNumber string      `json:"mobileNumber"`
    Role         model.Role  `json:"role"`
    ProfilePhoto *mediaView  `json:"profilePhoto,omitempty"`
    Location     geoView     `json:"location"`
    Address      addressView `json:"address"`
    Language     string      `json:"language"`
    CreatedAt    time.Time   `json:"createdAt"`
    UpdatedAt    time.Time   `json:"updatedAt"`
}

func viewUser(u model.User) userView {
    return userView{
        ID:           u.ID,
        FullName:     u.FullName,
        MobileNumber: u.MobileNumber,
        Role:         u.Role,
        ProfilePhoto: viewMedia(u.ProfilePhoto),
        Location:     geoView{Type: "Point", Coordinates: [2]float64{u.Longitude, u.Latitude}},
        Address:      addressView{District: u.District, Taluka: u.Taluka},
        Language:     string(u.Language),
        CreatedAt:    u.CreatedAt,
        UpdatedAt:    u.UpdatedAt,
    }
}

func viewUsers(us []model.User) []userView {
    out := make([]userView, 0, len(us))
    for _, u := range us {
        out = append(out, viewUser(u))
    }
    return out
}

type profileView struct {
    ID            uint64                 `json:"id"`
    Qualification string                 `json:"qualification"`
    Experience    int                    `json:"experience"`
    Status        model.AgronomistStatus `json:"status"`
    Availability  model.Availability     `json:"availability"`
    Bio           string                 `json:"bio"`
    IDProof       *mediaView             `json:"idProof,omitempty"`
}

type agronomistView struct {
    userView
    Profile profileView `json:"profile"`
}

func viewAgronomist(a model.Agronomist) agronomistView {
    p := a.Profile
    return agronomistView{
        userView: viewUser(a.User),
        Profile: profileView{
            ID:            p.ID,
            Qualification: p.Qualification,
            Experience:    p.Experience,
            Status:        p.Status,
            Availability:  p.Availability,
            Bio:           p.Bio,
            IDProof:       viewMedia(p.IDProof),
        },
    }
}

func viewAgronomists(as []model.Agronomist) []agronomistView {
    out := make([]agronomistView, 0, len(as))
    for _, a := range as {
        out = append(out, viewAgronomist(a))
    }
    return out
}

// viewAccount renders the role variant of an authenticated account.
func viewAccount(a model.Account) any {
    if ag, ok := a.(*model.Agronomist); ok {
        return viewAgronomist(*ag)
    }
    return viewUser(*a.Identity())
}

type areaView struct {
    Value float64        `json:"value"`
    Unit  model.AreaUnit `json:"unit"`
}

type cropView struct {
    ID           uint64    `json:"id"`
    FarmerID     uint64    `json:"farmerId"`
    CropName     string    `json:"cropName"`
    CropVariety  string    `json:"cropVariety"`
    PlantingDate *string   `json:"plantingDate"`
    Area         areaView  `json:"area"`
    CreatedAt    time.Time `json:"createdAt"`
}

func viewCrop(c model.Crop) cropView {
    v := cropView{
        ID:          c.ID,
        FarmerID:    c.FarmerID,
        CropName:    c.CropName,
        CropVariety: c.CropVariety,
        Area:        areaView{Value: c.Area.Value, Unit: c.Area.Unit},
        CreatedAt:   c.CreatedAt,
    }
    if c.PlantingDate != nil {
        d := c.PlantingDate.Format(time.DateOnly)
        v.PlantingDate = &d
    }
    return v
}

type locationView struct {
    ID        uint64    `json:"id"`
    District  string    `json:"district"`
    Taluka    string    `json:"taluka"`
    Geo       geoView   `json:"geo"`
    CreatedBy *uint64   `json:"createdBy,omitempty"`
    CreatedAt time.Time `json:"createdAt"`
}

func viewLocation(l model.Location) locationView {
    return locationView{
        ID:        l.ID,
        District:  l.District,
        Taluka:    l.Taluka,
        Geo:       geoView{Type: "Point", Coordinates: [2]float64{l.Longitude, l.Latitude}},
        CreatedBy: l.CreatedBy,
        CreatedAt: l.CreatedAt,
    }
}

type reportView struct {
    ID              uint64               `json:"id"`
    FarmerID        uint64               `json:"farmerId"`
    CropID          *uint64              `json:"cropId,omitempty"`
    CropName        *string              `json:"cropName,omitempty"`
    ImageURL        *string              `json:"imageUrl,omitempty"`
    Images          []mediaView          `json:"images"`
    Prediction      *string              `json:"prediction,omitempty"`
    Confidence      *float64             `json:"confidence,omitempty"`
    DetectedDisease *string              `json:"detectedDisease,omitempty"`
    Diagnosis       *string              `json:"diagnosis,omitempty"`
    Recommendation  *string              `json:"recommendation,omitempty"`
    Status          model.ReportStatus   `json:"status"`
    FarmerNotes     string               `json:"farmerNotes"`
    Language        model.ReportLanguage `json:"reportLanguage"`
    AgronomistID    *uint64              `json:"agronomistId,omitempty"`
    CreatedAt       time.Time            `json:"createdAt"`
    UpdatedAt       time.Time            `json:"updatedAt"`
}

func viewReport(r model.DiseaseReport) reportView {
    images := make([]mediaView, 0, len(r.Images))
    for i := range r.Images {
        images = append(images, *viewMedia(&r.Images[i]))
    }
    return reportView{
        ID:              r.ID,
        FarmerID:        r.FarmerID,
        CropID:          r.CropID,
        CropName:        r.CropName,
        ImageURL:        r.ImageURL,
        Images:          images,
        Prediction:      r.Prediction,
        Confidence:      r.Confidence,
        DetectedDisease: r.DetectedDisease,
        Diagnosis:       r.Diagnosis,
        Recommendation:  r.Recommendation,
        Status:          r.Status,
        FarmerNotes:     r.FarmerNotes,
        Language:        r.Language,
        AgronomistID:    r.AgronomistID,
        CreatedAt:       r.CreatedAt,
        UpdatedAt:       r.UpdatedAt,
    }
}
