package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionTo(t *testing.T) {
	allowed := []struct{ from, to string }{
		{ListingStatusPending, ListingStatusApproved},
		{ListingStatusPending, ListingStatusRejected},
		{ListingStatusRejected, ListingStatusPending},
		{ListingStatusApproved, ListingStatusArchived},
		{ListingStatusRejected, ListingStatusArchived},
	}
	for _, e := range allowed {
		assert.True(t, CanTransitionTo(e.from, e.to), "%s -> %s 应当允许", e.from, e.to)
	}

	denied := []struct{ from, to string }{
		{ListingStatusPending, ListingStatusArchived},
		{ListingStatusApproved, ListingStatusPending},
		{ListingStatusApproved, ListingStatusRejected},
		{ListingStatusArchived, ListingStatusPending},
		{ListingStatusArchived, ListingStatusApproved},
		{ListingStatusArchived, ListingStatusRejected},
		{ListingStatusArchived, ListingStatusArchived},
		{ListingStatusPending, ListingStatusPending},
	}
	for _, e := range denied {
		assert.False(t, CanTransitionTo(e.from, e.to), "%s -> %s 应当拒绝", e.from, e.to)
	}
}

func TestContentSnapshotIsolation(t *testing.T) {
	l := &Listing{
		ImageURLs:    StringList{"a.jpg"},
		MainImageURL: "a.jpg",
		Amenities:    StringList{"parking"},
	}

	c := l.Content()
	c = c.AddImage("b.jpg")

	// 快照编辑不影响实体，直到显式写回
	assert.Equal(t, StringList{"a.jpg"}, l.ImageURLs)

	l.ApplyContent(c)
	assert.Equal(t, StringList{"a.jpg", "b.jpg"}, l.ImageURLs)
}
