package ioworker

import "github.com/sirupsen/logrus"

// newWorkerLogger returns a *logrus.Entry pre-tagged with the worker's id,
// following the one-field-per-subsystem convention the retrieved corpus
// uses for structured logging. A nil base falls back to logrus' standard
// logger so a Worker is always usable without explicit logger wiring.
func newWorkerLogger(base *logrus.Logger, id WorkerID) *logrus.Entry {
	if base == nil {
		base = logrus.StandardLogger()
	}
	return base.WithField("worker_id", int(id))
}
