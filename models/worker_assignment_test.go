package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEffectiveAssignment(t *testing.T) {
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	t.Run("empty", func(t *testing.T) {
		assert.Nil(t, EffectiveAssignment(nil))
	})

	t.Run("newest non superseded wins", func(t *testing.T) {
		list := []WorkerAssignment{
			{ID: "a1", WorkerID: "w1", Status: AssignmentStatusSuperseded, CreatedAt: base},
			{ID: "a3", WorkerID: "w3", Status: AssignmentStatusSuperseded, CreatedAt: base.Add(2 * time.Hour)},
			{ID: "a2", WorkerID: "w2", Status: AssignmentStatusActive, CreatedAt: base.Add(time.Hour)},
		}
		got := EffectiveAssignment(list)
		require.NotNil(t, got)
		assert.Equal(t, "a2", got.ID)
	})

	t.Run("all superseded", func(t *testing.T) {
		list := []WorkerAssignment{
			{ID: "a1", Status: AssignmentStatusSuperseded, CreatedAt: base},
		}
		assert.Nil(t, EffectiveAssignment(list))
	})

	t.Run("input order untouched", func(t *testing.T) {
		list := []WorkerAssignment{
			{ID: "old", Status: AssignmentStatusActive, CreatedAt: base},
			{ID: "new", Status: AssignmentStatusActive, CreatedAt: base.Add(time.Minute)},
		}
		got := EffectiveAssignment(list)
		require.NotNil(t, got)
		assert.Equal(t, "new", got.ID)
		assert.Equal(t, "old", list[0].ID)
	})
}

func TestWorkerPosition(t *testing.T) {
	w := &Worker{}
	assert.Nil(t, w.Position())

	lat, lng := 36.8, 10.18
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	w.Latitude, w.Longitude, w.LocationUpdatedAt = &lat, &lng, &at

	p := w.Position()
	require.NotNil(t, p)
	assert.Equal(t, Position{Latitude: lat, Longitude: lng, UpdatedAt: at}, *p)
}

func TestUserDisplayName(t *testing.T) {
	var nobody *User
	assert.Equal(t, GuestDisplayName, nobody.DisplayName())
	assert.Equal(t, GuestDisplayName, (&User{}).DisplayName())
	assert.Equal(t, "Amira", (&User{FullName: "Amira"}).DisplayName())
}
