package deletion

// SyncMail makes the service send its emails before returning, for tests.
func (svc *Service) SyncMail() *Service {
	svc.dispatch = func(fn func()) { fn() }
	return svc
}
