package domain

import (
	"context"
	"errors"
)

const mutateAttempts = 3

// MutateEvent reads the event, applies fn and saves the result. When
// another writer saved the event in between, fn runs again on a fresh
// read. fn returning false leaves the event unsaved and MutateEvent
// returns it as read.
func MutateEvent(ctx context.Context, repo EventRepository, id string, fn func(evt *Event) (bool, error)) (Event, error) {
	var err error
	for attempt := 0; attempt < mutateAttempts; attempt++ {
		var evt Event
		if evt, err = repo.Get(ctx, id); err != nil {
			return Event{}, err
		}
		changed, ferr := fn(&evt)
		if ferr != nil {
			return Event{}, ferr
		}
		if !changed {
			return evt, nil
		}
		err = repo.Save(ctx, &evt)
		if err == nil {
			return evt, nil
		}
		if !errors.Is(err, ErrConflict) {
			return Event{}, err
		}
	}
	return Event{}, err
}
