package model

import (
	"time"
)

// Status values a License Status Document can carry.
// https://readium.org/lcp-specs/releases/lsd/latest.html
const (
	// StatusReady: the loan is available but hasn't been fulfilled yet.
	StatusReady = "ready"
	// StatusActive: the loan has been fulfilled on at least one device.
	StatusActive = "active"
	// StatusRevoked: the distributor revoked the loan.
	StatusRevoked = "revoked"
	// StatusReturned: the patron returned the loan early.
	StatusReturned = "returned"
	// StatusCancelled: the loan was returned without ever being fulfilled.
	StatusCancelled = "cancelled"
	// StatusExpired: the loan ran out.
	StatusExpired = "expired"
)

// KnownStatus reports whether s is a status value this service understands.
func KnownStatus(s string) bool {
	switch s {
	case StatusReady, StatusActive, StatusRevoked, StatusReturned, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// StatusLink is one entry in a status document's links section.
type StatusLink struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
	Type string `json:"type,omitempty"`
}

// PotentialRights carries the latest date the loan can be extended to.
type PotentialRights struct {
	End *time.Time `json:"end,omitempty"`
}

// StatusDocument is the distributor's authoritative answer about one
// checkout's state.
type StatusDocument struct {
	ID              string          `json:"id,omitempty"`
	Status          string          `json:"status"`
	Message         string          `json:"message,omitempty"`
	Links           []StatusLink    `json:"links,omitempty"`
	PotentialRights PotentialRights `json:"potential_rights,omitempty"`
}

// LoanStatusNotification is the message pushed onto the notification topic
// when a distributor reports a status change out of band.
type LoanStatusNotification struct {
	LoanUID  string         `json:"loanUid"`
	Document StatusDocument `json:"statusDocument"`
}

// Active reports whether the document describes a live loan.
func (d *StatusDocument) Active() bool {
	return d.Status == StatusReady || d.Status == StatusActive
}

// Link returns the first link matching rel, preferring an exact media-type
// match when mediaType is not empty.
func (d *StatusDocument) Link(rel, mediaType string) *StatusLink {
	var fallback *StatusLink
	for i := range d.Links {
		l := &d.Links[i]
		if l.Rel != rel {
			continue
		}
		if mediaType == "" || l.Type == mediaType {
			return l
		}
		if fallback == nil {
			fallback = l
		}
	}
	return fallback
}
