package log

// TB is the subset of testing.TB used by the Testing logger.
type TB interface {
	Errorf(string, ...interface{})
	Fatalf(string, ...interface{})
	Logf(string, ...interface{})
	Helper()
}

// Testing logs debug messages to the test log. Error messages fail the test unless Quiet is
// set, which is useful for tests that provoke errors on purpose.
type Testing struct {
	TB
	Default
	Quiet bool
}

// NewTesting returns a testing logger for tb.
func NewTesting(tb TB) *Testing { return &Testing{TB: tb} }

func (l *Testing) Debug(m string, s ...interface{}) {
	l.Helper()
	l.Logf(tfmt("DEB ", m, s, l.Tags))
}
func (l *Testing) Error(m string, s ...interface{}) {
	l.Helper()
	if l.Quiet {
		l.Logf(tfmt("ERR ", m, s, l.Tags))
		return
	}
	l.Errorf(tfmt("ERR ", m, s, l.Tags))
}
func (l *Testing) Crit(m string, s ...interface{}) {
	l.Helper()
	l.Fatalf(tfmt("CRI ", m, s, l.Tags))
}
func (l *Testing) With(tags ...interface{}) Logger {
	return &Testing{l.TB, *l.Default.with(tags), l.Quiet}
}
