package model

import "time"

type AreaUnit string

const (
    UnitAcres    AreaUnit = "acres"
    UnitHectares AreaUnit = "hectares"
    UnitGuntha   AreaUnit = "guntha"
)

func (u AreaUnit) Valid() bool {
    return u == UnitAcres || u == UnitHectares || u == UnitGuntha
}

type Area struct {
    Value float64
    Unit  AreaUnit
}

// Crop is a farmer owned row of the `crops` table.
type Crop struct {
    ID           uint64     // crops.id
    FarmerID     uint64     // crops.farmer_id
    CropName     string     // crops.crop_name
    CropVariety  string     // crops.crop_variety
    PlantingDate *time.Time // crops.planting_date (nullable)
    Area         Area       // crops.area_value, crops.area_unit
    CreatedAt    time.Time  // crops.created_at
}
