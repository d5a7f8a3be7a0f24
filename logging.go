package utp

import "github.com/sirupsen/logrus"

// connLogger returns the logger to use for a connection's lifecycle
// events. Callers inject a *logrus.Entry via Config-adjacent constructors;
// nil falls back to the standard logger, mirroring the injected-logger-
// trait design note in spec §9 (never constructed from inside the buffer
// engine itself, which stays a pure state machine).
func connLogger(base *logrus.Entry, connID uint16) *logrus.Entry {
	if base == nil {
		base = logrus.NewEntry(logrus.StandardLogger())
	}
	return base.WithField("conn_id", connID)
}
