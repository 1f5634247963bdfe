package notification

import (
	"context"
	"strconv"

	"github.com/vulnwatch/vulnwatch-go/internal/errors"
)

// StaticDirectory resolves rule owners to email addresses from
// configuration. A user without an explicit entry falls back to the
// default address.
type StaticDirectory struct {
	byUser      map[string]string
	defaultAddr string
}

// NewStaticDirectory builds a directory from config. Both arguments may be
// empty; resolution then fails for every user and email delivery is skipped.
func NewStaticDirectory(byUser map[string]string, defaultAddr string) *StaticDirectory {
	return &StaticDirectory{byUser: byUser, defaultAddr: defaultAddr}
}

// EmailFor returns the address for the given rule owner.
func (d *StaticDirectory) EmailFor(_ context.Context, userID uint) (string, error) {
	if addr, ok := d.byUser[strconv.FormatUint(uint64(userID), 10)]; ok && addr != "" {
		return addr, nil
	}
	if d.defaultAddr != "" {
		return d.defaultAddr, nil
	}
	return "", errors.Newf("no email address configured for user %d", userID).
		Component("notification").
		Category(errors.CategoryConfiguration).
		Build()
}
