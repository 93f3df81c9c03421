package registration

import (
	"context"

	"github.com/mmynk/orderstate/internal/gateway"
	"github.com/mmynk/orderstate/internal/models"
)

// Kind names a registration wizard.
type Kind string

const (
	KindDriver   Kind = "driver"
	KindMerchant Kind = "merchant"
)

// TerminalStep is the last step of both wizards. Submit overlays its fields on it.
const TerminalStep = 3

// Field keys collected by the wizards.
const (
	FieldFullName     = "full_name"
	FieldPhone        = "phone"
	FieldVehicleType  = "vehicle_type"
	FieldVehicleBrand = "vehicle_brand"
	FieldPlateNumber  = "plate_number"
	FieldSelfiePhoto  = "selfie_photo"
	FieldVehiclePhoto = "vehicle_photo"
	FieldIDCardPhoto  = "id_card_photo"

	FieldOwnerName   = "owner_name"
	FieldShopName    = "shop_name"
	FieldCategory    = "category"
	FieldDescription = "description"
	FieldAddress     = "address"
	FieldLatitude    = "latitude"
	FieldLongitude   = "longitude"
	FieldShopPhoto   = "shop_photo"
)

// form describes what one wizard collects and how its record is built.
type form struct {
	kind      Kind
	category  string   // upload path prefix
	artifacts []string // required artifact fields, in upload order
	insert    func(ctx context.Context, gw gateway.RegistrationGateway, userID string, f models.Fields, urls map[string]string) (string, error)
	profile   func(f models.Fields) models.ProfileUpdate
}

var driverForm = form{
	kind:      KindDriver,
	category:  "drivers",
	artifacts: []string{FieldSelfiePhoto, FieldVehiclePhoto, FieldIDCardPhoto},
	insert: func(ctx context.Context, gw gateway.RegistrationGateway, userID string, f models.Fields, urls map[string]string) (string, error) {
		return gw.InsertDriverRecord(ctx, &models.DriverRecord{
			UserID:       userID,
			FullName:     f.String(FieldFullName),
			Phone:        f.String(FieldPhone),
			VehicleType:  f.String(FieldVehicleType),
			VehicleBrand: f.String(FieldVehicleBrand),
			PlateNumber:  f.String(FieldPlateNumber),
			SelfieURL:    urls[FieldSelfiePhoto],
			VehicleURL:   urls[FieldVehiclePhoto],
			IDCardURL:    urls[FieldIDCardPhoto],
			Status:       models.StatusPending,
		})
	},
	profile: func(f models.Fields) models.ProfileUpdate {
		return models.ProfileUpdate{FullName: f.String(FieldFullName), Phone: f.String(FieldPhone)}
	},
}

var merchantForm = form{
	kind:      KindMerchant,
	category:  "merchants",
	artifacts: []string{FieldShopPhoto, FieldIDCardPhoto},
	insert: func(ctx context.Context, gw gateway.RegistrationGateway, userID string, f models.Fields, urls map[string]string) (string, error) {
		return gw.InsertMerchantRecord(ctx, &models.MerchantRecord{
			OwnerID:      userID,
			OwnerName:    f.String(FieldOwnerName),
			Phone:        f.String(FieldPhone),
			Name:         f.String(FieldShopName),
			Category:     f.String(FieldCategory),
			Description:  f.String(FieldDescription),
			Address:      f.String(FieldAddress),
			Latitude:     f.Float(FieldLatitude),
			Longitude:    f.Float(FieldLongitude),
			ShopPhotoURL: urls[FieldShopPhoto],
			IDCardURL:    urls[FieldIDCardPhoto],
			Status:       models.StatusPending,
		})
	},
	profile: func(f models.Fields) models.ProfileUpdate {
		return models.ProfileUpdate{FullName: f.String(FieldOwnerName), Phone: f.String(FieldPhone)}
	},
}
