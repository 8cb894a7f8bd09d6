package models

const (
	// MaxItemsPerBooking caps how many items one booking may list.
	MaxItemsPerBooking = 10

	// SlotCapacity is how many bookings one (date, time, municipality) triple accepts.
	SlotCapacity = 50

	// FirstCollectionHour and LastCollectionHour bound the requested hour: [8, 18).
	FirstCollectionHour = 8
	LastCollectionHour  = 18

	// DateLayout is the wire and storage format of booking dates.
	DateLayout = "2006-01-02"
)
