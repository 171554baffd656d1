package attendance

import "time"

// SetNowFunc replaces the clock of a service built by NewService.
func SetNowFunc(svc Service, now func() time.Time) {
	svc.(*service).nowFunc = now
}
