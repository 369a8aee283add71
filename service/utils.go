package service

import (
	"context"
	"time"

	"github.com/airbusgeo/albedo-inversion/service/log"
	"go.uber.org/zap"
)

// StringSet is a set of strings (all elements are unique)
type StringSet map[string]struct{}

// NewStringSet creates a set from a list of strings
func NewStringSet(ss ...string) StringSet {
	set := StringSet{}
	for _, s := range ss {
		set.Push(s)
	}
	return set
}

// Push adds the string to the set if not already exists
func (ss StringSet) Push(s string) {
	ss[s] = struct{}{}
}

// Pop removes the string from the set
func (ss StringSet) Pop(s string) {
	delete(ss, s)
}

// Slice returns a slice from the set
func (ss StringSet) Slice() []string {
	sl := make([]string, 0, len(ss))
	for k := range ss {
		sl = append(sl, k)
	}
	return sl
}

// Exists returns true if the string already exists in the Set
func (ss StringSet) Exists(s string) bool {
	_, ok := ss[s]
	return ok
}

// Retriable calls f up to tries times, waiting delay (doubled at each try) between two calls.
// It stops on success, on a fatal error, on ErrFileNotFound or when ctx is done.
// The error of the last call is returned.
func Retriable(ctx context.Context, f func() error, delay time.Duration, tries int) error {
	var err error
	for i := 0; i < tries; i++ {
		if i > 0 {
			log.Logger(ctx).Debug("retrying", zap.Int("try", i+1), zap.Error(err))
			select {
			case <-ctx.Done():
				return MergeErrors(true, err, ctx.Err())
			case <-time.After(delay):
			}
			delay *= 2
		}
		if err = f(); err == nil || Fatal(err) || IsNotFound(err) {
			return err
		}
	}
	return err
}
