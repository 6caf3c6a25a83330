package exr

import (
	"fmt"
	"time"
)

// Standard metadata attribute names
const (
	AttrOwner     = "owner"
	AttrComments  = "comments"
	AttrCapDate   = "capDate"
	AttrUTCOffset = "utcOffset"
)

// StringAttribute returns a string-typed attribute.
func StringAttribute(name, value string) *Attribute {
	return &Attribute{Name: name, Type: AttrTypeString, Value: value}
}

// Owner names the owner of the image.
func Owner(owner string) *Attribute {
	return StringAttribute(AttrOwner, owner)
}

// Comments holds free-form notes about how the image was made.
func Comments(comments string) *Attribute {
	return StringAttribute(AttrComments, comments)
}

// CapDate returns the capDate and utcOffset attributes for t. capDate is
// local time as "YYYY:MM:DD hh:mm:ss"; utcOffset is UTC minus local time
// in seconds.
func CapDate(t time.Time) []*Attribute {
	_, offset := t.Zone()
	date := fmt.Sprintf("%04d:%02d:%02d %02d:%02d:%02d",
		t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second())
	return []*Attribute{
		StringAttribute(AttrCapDate, date),
		{Name: AttrUTCOffset, Type: AttrTypeFloat, Value: float32(-offset)},
	}
}
