package registration

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/orderstate/internal/gateway/memory"
	"github.com/mmynk/orderstate/internal/models"
)

// fakeIdentity is a fixed session.
type fakeIdentity struct {
	mu        sync.Mutex
	userID    string
	refreshes int
}

func (f *fakeIdentity) UserID() string { return f.userID }

func (f *fakeIdentity) RefreshProfile(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	return nil
}

func photo(name string) *models.Artifact {
	return &models.Artifact{FileName: name, ContentType: "image/jpeg", Data: []byte("jpeg:" + name)}
}

func fillDriver(a *Accumulator) {
	a.SaveStepData(1, models.Fields{FieldFullName: "Budi Santoso", FieldPhone: "08123"})
	a.SaveStepData(2, models.Fields{FieldVehicleType: "motor", FieldVehicleBrand: "Honda", FieldPlateNumber: "B 1234 XY"})
}

func driverFinal() models.Fields {
	return models.Fields{
		FieldSelfiePhoto:  photo("selfie.jpg"),
		FieldVehiclePhoto: photo("vehicle.jpg"),
		FieldIDCardPhoto:  photo("ktp.jpg"),
	}
}

func TestSaveStepData(t *testing.T) {
	t.Run("merges into the same step", func(t *testing.T) {
		a := NewDriver(memory.New(), &fakeIdentity{}, Options{})

		a.SaveStepData(2, models.Fields{"a": 1})
		a.SaveStepData(2, models.Fields{"b": 2})

		d := a.Draft()
		assert.Equal(t, models.Fields{"a": 1, "b": 2}, d.Steps[2])
		assert.Equal(t, 3, d.CurrentStep)
	})

	t.Run("overwrites present keys only", func(t *testing.T) {
		a := NewDriver(memory.New(), &fakeIdentity{}, Options{})

		a.SaveStepData(1, models.Fields{FieldFullName: "Budi", FieldPhone: "0812"})
		a.SaveStepData(1, models.Fields{FieldFullName: "Budi Santoso"})

		assert.Equal(t, models.Fields{FieldFullName: "Budi Santoso", FieldPhone: "0812"}, a.Draft().Steps[1])
	})

	t.Run("draft copies are independent", func(t *testing.T) {
		a := NewDriver(memory.New(), &fakeIdentity{}, Options{})
		a.SaveStepData(1, models.Fields{"a": 1})

		d := a.Draft()
		d.Steps[1]["a"] = 99

		assert.Equal(t, 1, a.Draft().Steps[1]["a"])
	})
}

func TestClearDraft(t *testing.T) {
	a := NewMerchant(memory.New(), &fakeIdentity{}, Options{})
	a.SaveStepData(1, models.Fields{FieldShopName: "Warung"})
	a.SaveStepData(2, models.Fields{FieldAddress: "Jl. Merdeka"})

	a.ClearDraft()

	d := a.Draft()
	assert.Empty(t, d.Steps)
	assert.Equal(t, 1, d.CurrentStep)
}

func TestMerged_FinalOverlaysTerminalStep(t *testing.T) {
	a := NewDriver(memory.New(), &fakeIdentity{}, Options{})
	a.SaveStepData(1, models.Fields{FieldFullName: "Budi"})
	a.SaveStepData(TerminalStep, models.Fields{FieldPlateNumber: "OLD", "note": "kept"})

	merged := a.Merged(models.Fields{FieldPlateNumber: "NEW"})

	assert.Equal(t, "Budi", merged.String(FieldFullName))
	assert.Equal(t, "NEW", merged.String(FieldPlateNumber))
	assert.Equal(t, "kept", merged.String("note"))
	assert.Equal(t, "OLD", a.Draft().Steps[TerminalStep].String(FieldPlateNumber), "stored draft is untouched")
}

func TestSubmit_Driver(t *testing.T) {
	gw := memory.New()
	id := &fakeIdentity{userID: "userA"}
	a := NewDriver(gw, id, Options{})
	fillDriver(a)

	res := a.Submit(context.Background(), driverFinal())

	require.True(t, res.OK, res.Message)
	assert.NotEmpty(t, res.RecordID)
	assert.True(t, res.ProfileUpdated)
	assert.Len(t, res.ArtifactURLs, 3)
	assert.True(t, strings.HasPrefix(res.ArtifactURLs[FieldSelfiePhoto], "memory://drivers/selfie_photo/userA/"))

	drivers := gw.Drivers()
	require.Len(t, drivers, 1)
	rec := drivers[0]
	assert.Equal(t, res.RecordID, rec.ID)
	assert.Equal(t, "userA", rec.UserID)
	assert.Equal(t, models.StatusPending, rec.Status)
	assert.Equal(t, "Budi Santoso", rec.FullName)
	assert.Equal(t, "B 1234 XY", rec.PlateNumber)
	assert.Equal(t, res.ArtifactURLs[FieldVehiclePhoto], rec.VehicleURL)

	profile, err := gw.GetProfile(context.Background(), "userA")
	require.NoError(t, err)
	assert.Equal(t, "Budi Santoso", profile.FullName)
	assert.Equal(t, "08123", profile.Phone)

	assert.Empty(t, a.Draft().Steps, "draft cleared on success")
	assert.Equal(t, 1, id.refreshes)
	assert.False(t, a.InProgress())
}

func TestSubmit_Merchant(t *testing.T) {
	gw := memory.New()
	a := NewMerchant(gw, &fakeIdentity{userID: "userB"}, Options{})
	a.SaveStepData(1, models.Fields{FieldOwnerName: "Sri", FieldPhone: "0813"})
	a.SaveStepData(2, models.Fields{FieldShopName: "Warung Bu Sri", FieldCategory: "indonesian", FieldLatitude: -6.2, FieldLongitude: 106.8})

	res := a.Submit(context.Background(), models.Fields{
		FieldShopPhoto:   photo("shop.jpg"),
		FieldIDCardPhoto: models.Artifact{FileName: "ktp.jpg", Data: []byte("x")},
	})

	require.True(t, res.OK, res.Message)
	shops := gw.Merchants()
	require.Len(t, shops, 1)
	assert.Equal(t, "userB", shops[0].OwnerID)
	assert.Equal(t, "Warung Bu Sri", shops[0].Name)
	assert.InDelta(t, -6.2, shops[0].Latitude, 1e-9)
	assert.Equal(t, models.StatusPending, shops[0].Status)
	assert.Equal(t, 2, gw.Uploads())
}

func TestSubmit_Failures(t *testing.T) {
	tests := []struct {
		name      string
		userID    string
		final     models.Fields
		setup     func(gw *memory.Gateway)
		wantMsg   string
		uploads   int
		inserts   int
		keepDraft bool
	}{
		{
			name:    "no identity",
			final:   driverFinal(),
			wantMsg: "sign in",
		},
		{
			name:   "missing upload",
			userID: "userA",
			final: models.Fields{
				FieldSelfiePhoto: photo("selfie.jpg"),
				FieldIDCardPhoto: photo("ktp.jpg"),
			},
			wantMsg: "vehicle_photo",
		},
		{
			name:    "empty artifact",
			userID:  "userA",
			final:   models.Fields{FieldSelfiePhoto: photo("s"), FieldVehiclePhoto: &models.Artifact{FileName: "v"}, FieldIDCardPhoto: photo("k")},
			wantMsg: "vehicle_photo",
		},
		{
			name:   "upload fails",
			userID: "userA",
			final:  driverFinal(),
			setup: func(gw *memory.Gateway) {
				n := 0
				gw.SetHook(memory.OpUpload, func(context.Context) error {
					n++
					if n == 2 {
						return errors.New("bucket unavailable")
					}
					return nil
				})
			},
			wantMsg: "upload",
			uploads: 1,
		},
		{
			name:   "insert fails",
			userID: "userA",
			final:  driverFinal(),
			setup: func(gw *memory.Gateway) {
				gw.Fail(memory.OpInsertDriver, errors.New("constraint"))
			},
			wantMsg: "save",
			uploads: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := memory.New()
			if tt.setup != nil {
				tt.setup(gw)
			}
			id := &fakeIdentity{userID: tt.userID}
			a := NewDriver(gw, id, Options{})
			fillDriver(a)

			res := a.Submit(context.Background(), tt.final)

			assert.False(t, res.OK)
			assert.Contains(t, res.Message, tt.wantMsg)
			assert.Equal(t, tt.uploads, gw.Uploads())
			assert.Empty(t, gw.Drivers(), "no record inserted")
			assert.NotEmpty(t, a.Draft().Steps, "draft kept for retry")
			assert.Equal(t, 0, id.refreshes)
		})
	}
}

func TestSubmit_ProfileUpdateFailureIsSwallowed(t *testing.T) {
	gw := memory.New()
	gw.Fail(memory.OpUpdateProfile, errors.New("rls denied"))
	a := NewDriver(gw, &fakeIdentity{userID: "userA"}, Options{})
	fillDriver(a)

	res := a.Submit(context.Background(), driverFinal())

	assert.True(t, res.OK)
	assert.False(t, res.ProfileUpdated)
	assert.Len(t, gw.Drivers(), 1)
	assert.Empty(t, a.Draft().Steps)
}

func TestSubmit_ConcurrentFailsFast(t *testing.T) {
	gw := memory.New()
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	gw.SetHook(memory.OpUpload, func(context.Context) error {
		once.Do(func() { close(started) })
		<-release
		return nil
	})
	a := NewDriver(gw, &fakeIdentity{userID: "userA"}, Options{})
	fillDriver(a)

	done := make(chan Result)
	go func() { done <- a.Submit(context.Background(), driverFinal()) }()
	<-started

	assert.True(t, a.InProgress())
	second := a.Submit(context.Background(), driverFinal())
	assert.False(t, second.OK)
	assert.Contains(t, second.Message, "already")

	close(release)
	first := <-done
	assert.True(t, first.OK, first.Message)
	assert.False(t, a.InProgress())
	assert.Len(t, gw.Drivers(), 1)
}

func TestSubmit_KeepsEditsMadeDuringSubmission(t *testing.T) {
	gw := memory.New()
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	gw.SetHook(memory.OpUpload, func(context.Context) error {
		once.Do(func() { close(started) })
		<-release
		return nil
	})
	a := NewDriver(gw, &fakeIdentity{userID: "userA"}, Options{})
	fillDriver(a)

	done := make(chan Result)
	go func() { done <- a.Submit(context.Background(), driverFinal()) }()
	<-started

	a.SaveStepData(1, models.Fields{FieldFullName: "Budi S."})

	close(release)
	res := <-done
	require.True(t, res.OK, res.Message)
	require.Len(t, gw.Drivers(), 1)

	d := a.Draft()
	assert.Equal(t, "Budi S.", d.Steps[1][FieldFullName], "edit made mid-submit survives")
	assert.Equal(t, 2, d.CurrentStep)

	a.ClearDraft()
	assert.Empty(t, a.Draft().Steps)
}
