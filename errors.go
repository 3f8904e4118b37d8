package main

import "fmt"

// FetchError means the results page could not be retrieved. It is fatal for
// the event being scraped; callers should not retry automatically.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("failed to fetch %s: status code %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("failed to fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// UnknownCountryError means a scraped country name has no match in the
// country table.
type UnknownCountryError struct {
	Name string
}

func (e *UnknownCountryError) Error() string {
	return fmt.Sprintf("country not found from country name: %q", e.Name)
}

// UnknownRegionError means a scraped state/region has no match in the state
// table. Location parsing swallows it and leaves the state empty.
type UnknownRegionError struct {
	Name string
}

func (e *UnknownRegionError) Error() string {
	return fmt.Sprintf("state/region not found from name: %q", e.Name)
}

// ValidationError rejects an event candidate (or a new player/tournament)
// before anything is written.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// NotCompleteError means the source page doesn't carry finalized results yet.
// The caller should try again once the event has been processed upstream.
type NotCompleteError struct {
	PdgaEventID uint
	Status      string
}

func (e *NotCompleteError) Error() string {
	return fmt.Sprintf("pdga event %d is not complete (status %q)", e.PdgaEventID, e.Status)
}
