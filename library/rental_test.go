package library

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRentalForCreation(t *testing.T) {
	before := time.Now().Truncate(time.Second)
	r, err := NewRental(3, 9)
	require.NoError(t, err)

	assert.Equal(t, int64(0), r.ID())
	assert.Equal(t, int64(3), r.UserID())
	assert.Equal(t, int64(9), r.ItemID())
	assert.False(t, r.RentalDate().Before(before))
	assert.Equal(t, 0, r.RentalDate().Nanosecond())
	assert.True(t, r.RentalDueDate().IsZero())
	assert.Empty(t, r.Username())
	assert.Equal(t, RentalCreated, r.Status(time.Now()))

	_, err = NewRental(0, 9)
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestRentalDateNotInFuture(t *testing.T) {
	r, err := NewRental(1, 1)
	require.NoError(t, err)
	err = r.SetRentalDate(time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestDueDatePinnedToDueHour(t *testing.T) {
	start := time.Date(2024, time.March, 1, 9, 15, 42, 0, time.Local)
	r, err := newRentalAt(1, 1, start)
	require.NoError(t, err)

	inputs := []time.Time{
		time.Date(2024, time.March, 1, 23, 59, 59, 999, time.Local),
		time.Date(2024, time.March, 8, 0, 0, 0, 0, time.Local),
		time.Date(2024, time.March, 15, 20, 0, 0, 1, time.Local),
		time.Date(2024, time.April, 2, 6, 7, 8, 0, time.Local),
	}
	for _, in := range inputs {
		require.NoError(t, r.SetRentalDueDate(in))
		due := r.RentalDueDate()
		assert.Equal(t, DueHour, due.Hour())
		assert.Equal(t, 0, due.Minute())
		assert.Equal(t, 0, due.Second())
		assert.Equal(t, 0, due.Nanosecond())
		assert.Equal(t, in.YearDay(), due.YearDay())
	}

	err = r.SetRentalDueDate(time.Date(2024, time.February, 29, 21, 0, 0, 0, time.Local))
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestReturnDateNotBeforeRentalDate(t *testing.T) {
	start := time.Date(2024, time.May, 10, 12, 0, 0, 0, time.Local)
	r, err := newRentalAt(1, 1, start)
	require.NoError(t, err)

	_, ok := r.RentalReturnDate()
	assert.False(t, ok)

	err = r.SetRentalReturnDate(start.Add(-time.Second))
	assert.ErrorIs(t, err, ErrInvalidDate)
	_, ok = r.RentalReturnDate()
	assert.False(t, ok)

	require.NoError(t, r.SetRentalReturnDate(start))
	got, ok := r.RentalReturnDate()
	require.True(t, ok)
	assert.False(t, got.Before(r.RentalDate()))
	assert.Equal(t, RentalReturned, r.Status(start))
}

func TestRentalStatus(t *testing.T) {
	start := time.Date(2024, time.June, 1, 10, 0, 0, 0, time.Local)
	r, err := newRentalAt(1, 1, start)
	require.NoError(t, err)
	require.NoError(t, r.SetRentalDueDate(dueDateFor(start, 7)))

	assert.Equal(t, RentalOnTime, r.Status(start.AddDate(0, 0, 7)))
	assert.False(t, r.Overdue(r.RentalDueDate()))
	assert.Equal(t, RentalOverdue, r.Status(r.RentalDueDate().Add(time.Second)))
	assert.True(t, r.Overdue(r.RentalDueDate().Add(time.Second)))

	r.setDeleted(true)
	assert.Equal(t, RentalDeleted, r.Status(start))
}

func TestRentalFieldValidation(t *testing.T) {
	r, err := NewRental(1, 1)
	require.NoError(t, err)

	assert.ErrorIs(t, r.SetLateFee(decimal.NewFromInt(-1)), ErrInvalidLateFee)
	assert.ErrorIs(t, r.SetReceipt("  "), ErrInvalidReceipt)
	assert.ErrorIs(t, r.SetUsername(""), ErrInvalidName)
	assert.ErrorIs(t, r.SetItemTitle(""), ErrInvalidTitle)
	assert.ErrorIs(t, r.SetItemType("VINYL"), ErrInvalidType)
	assert.ErrorIs(t, r.SetID(-4), ErrInvalidID)
}

func TestDaysLate(t *testing.T) {
	due := time.Date(2024, time.July, 1, DueHour, 0, 0, 0, time.UTC)
	tests := []struct {
		returned time.Time
		want     int64
	}{
		{due.Add(-time.Hour), 0},
		{due, 0},
		{due.Add(time.Minute), 1},
		{due.Add(24 * time.Hour), 1},
		{due.Add(48 * time.Hour), 2},
		{due.Add(49 * time.Hour), 3},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, daysLate(due, tt.returned), "returned %s", tt.returned)
	}
}

func TestDayBounds(t *testing.T) {
	at := time.Date(2024, time.August, 9, 17, 45, 0, 0, time.Local)
	from, to := dayBounds(at)
	assert.Equal(t, time.Date(2024, time.August, 9, 0, 0, 0, 0, time.Local), from)
	assert.Equal(t, time.Date(2024, time.August, 10, 0, 0, 0, 0, time.Local), to)
}
