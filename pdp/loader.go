package pdp

import (
	"os"
	"sync/atomic"

	"github.com/oarkflow/identityd/logger"
)

// Loader reads the policy document from a file path, validates it,
// and publishes the resulting PolicySet by atomic reference swap.
// Evaluators read the published pointer exactly once per evaluation;
// a concurrent reload never tears their view, per the hot-reload
// contract in the concurrency model.
type Loader struct {
	path string
	log  logger.Logger

	current atomic.Pointer[PolicySet]
	gen     atomic.Uint64
}

// NewLoader constructs a Loader bound to a policies file path. It does
// not read the file; call Load to perform the initial synchronous load.
func NewLoader(path string, log logger.Logger) *Loader {
	if log == nil {
		log = logger.NewNullLogger()
	}
	return &Loader{path: path, log: log}
}

// Load performs the initial, must-succeed load at startup. A failure
// here should abort the process per the startup-misconfiguration contract.
func (l *Loader) Load() error {
	return l.reload()
}

// Reload re-reads the policies file and republishes a new PolicySet on
// success. On any validation or I/O failure the previously published
// set is left untouched and the error is returned.
func (l *Loader) Reload() error {
	return l.reload()
}

func (l *Loader) reload() error {
	data, err := os.ReadFile(l.path)
	if err != nil {
		l.log.Error("policy reload failed: read", "path", l.path, "error", err.Error())
		return ioErr(err)
	}
	next := l.gen.Add(1)
	ps, err := parsePolicySet(data, next)
	if err != nil {
		l.log.Error("policy reload failed: validate", "path", l.path, "error", err.Error())
		return err
	}
	l.current.Store(ps)
	l.log.Info("policy set published", "path", l.path, "generation", next, "rules", len(ps.Policies))
	return nil
}

// Current returns the currently published PolicySet. It is safe to
// call concurrently with Reload; the returned pointer is a stable
// snapshot for the duration of one evaluation.
func (l *Loader) Current() *PolicySet {
	return l.current.Load()
}
