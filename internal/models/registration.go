package models

import "time"

// StatusPending marks a registration record awaiting admin review.
const StatusPending = "pending"

// Fields is the partial input collected by one wizard step.
// Values are strings, numbers, booleans or *Artifact.
type Fields map[string]any

// Clone returns a shallow copy of f. A nil receiver yields an empty map.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// String returns the string value stored at key, or "" if absent or not a string.
func (f Fields) String(key string) string {
	s, _ := f[key].(string)
	return s
}

// Float returns the numeric value stored at key.
func (f Fields) Float(key string) float64 {
	switch v := f[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}

// Artifact returns the artifact stored at key, or nil.
func (f Fields) Artifact(key string) *Artifact {
	switch v := f[key].(type) {
	case *Artifact:
		return v
	case Artifact:
		return &v
	default:
		return nil
	}
}

// Artifact is a binary file collected by a wizard (selfie, vehicle, ID card, shop photo).
type Artifact struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	Data        []byte `json:"data"`
}

// DriverRecord is inserted when a driver registration is submitted.
type DriverRecord struct {
	ID           string
	UserID       string
	FullName     string
	Phone        string
	VehicleType  string
	VehicleBrand string
	PlateNumber  string
	SelfieURL    string
	VehicleURL   string
	IDCardURL    string
	Status       string
	CreatedAt    time.Time
}

// MerchantRecord is inserted when a merchant registration is submitted.
type MerchantRecord struct {
	ID           string
	OwnerID      string
	OwnerName    string
	Phone        string
	Name         string
	Category     string
	Description  string
	Address      string
	Latitude     float64
	Longitude    float64
	ShopPhotoURL string
	IDCardURL    string
	Status       string
	CreatedAt    time.Time
}
