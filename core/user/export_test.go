package user

import "time"

// SetNowFunc replaces the clock of a service built by NewService.
func SetNowFunc(svc Service, now func() time.Time) {
	svc.(*service).nowFunc = now
}

// SetResetNowFunc replaces the clock of the reset tokens of r.
func SetResetNowFunc(r *Resetter, now func() time.Time) {
	r.tokens.nowFunc = now
}
