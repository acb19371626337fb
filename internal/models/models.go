package models

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Persisted shipment status vocabulary. DELIVERED is a legacy alias for
// ARRIVED still present in old rows and must keep projecting correctly.
const (
	ShipmentStatusPlanned    = "PLANNED"
	ShipmentStatusArrived    = "ARRIVED"
	ShipmentStatusDelivered  = "DELIVERED"
	ShipmentStatusRegistered = "REGISTERED"
)

// User roles as stored on the profile document
const (
	RoleCompras = "compras"
	RoleAlmacen = "almacen"
	RoleAdmin   = "admin"
)

// Shipment is the persisted delivery record. A row lives in exactly one of
// the two partitions selected by Archived; the flip is one-directional.
type Shipment struct {
	ID        string         `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	SupplierID        string     `gorm:"not null" json:"supplier_id"`
	SupplierName      string     `gorm:"not null" json:"supplier_name"`
	SupplierNameLower string     `gorm:"index" json:"supplier_name_lower"`
	ExpectedDate      time.Time  `gorm:"not null;index" json:"expected_date"`
	ExpectedByUserID  string     `json:"expected_by_user_id"`
	ExpectedByName    *string    `json:"expected_by_name"`
	ExpectedNotes     *string    `json:"expected_notes"`
	TrackingCode      *string    `json:"tracking_code"`
	Observations      *string    `json:"observations"`
	Island            string     `gorm:"not null;index" json:"island"`
	TransportCompany  *string    `json:"transport_company"`
	EstimatedPallets  *int       `json:"estimated_pallets"`
	EstimatedPackages *int       `json:"estimated_packages"`

	ArrivalDateTime *time.Time `json:"arrival_date_time"`
	Pallets         *int       `json:"pallets"`
	Packages        *int       `json:"packages"`
	ArrivalByUserID *string    `json:"arrival_by_user_id"`

	Status             string     `gorm:"not null;index" json:"status"`
	RegisteredAt       *time.Time `json:"registered_at"`
	RegisteredByUserID *string    `json:"registered_by_user_id"`
	RegisteredByName   *string    `json:"registered_by_name"`

	Archived   bool       `gorm:"not null;index" json:"archived"`
	ArchivedAt *time.Time `json:"archived_at"`

	// Photos is a JSON side list of attachment references, appended and
	// removed independently of the status flow.
	Photos []byte `gorm:"type:jsonb" json:"photos"`
}

// ShipmentPhoto is one entry of the photo side list
type ShipmentPhoto struct {
	ID             string    `json:"id"`
	URL            string    `json:"url"`
	UploadedBy     string    `json:"uploaded_by"`
	UploadedByName string    `json:"uploaded_by_name,omitempty"`
	UploadedAt     time.Time `json:"uploaded_at"`
}

// PhotoList decodes the photo side list
func (s *Shipment) PhotoList() ([]ShipmentPhoto, error) {
	if len(s.Photos) == 0 {
		return nil, nil
	}
	var photos []ShipmentPhoto
	if err := json.Unmarshal(s.Photos, &photos); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal shipment photos")
	}
	return photos, nil
}

// EncodePhotos encodes a photo list for storage
func EncodePhotos(photos []ShipmentPhoto) ([]byte, error) {
	data, err := json.Marshal(photos)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal shipment photos")
	}
	return data, nil
}

// UserProfile carries the role and region assignment for a user
type UserProfile struct {
	ID          string         `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
	DisplayName string         `json:"display_name"`
	Email       *string        `json:"email"`
	Role        string         `gorm:"not null;default:compras" json:"role"`
	Island      *string        `json:"island"`
}

// SetupModels runs the database migrations
func SetupModels(db *gorm.DB) error {
	if err := db.AutoMigrate(&Shipment{}, &UserProfile{}); err != nil {
		return errors.Wrap(err, "failed to auto-migrate models")
	}
	return nil
}
