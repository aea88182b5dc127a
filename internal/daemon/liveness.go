package daemon

import "os"

// ParentWatch detects that the process which started us has exited. The
// parent pid is captured at construction; once the parent dies the
// process is reparented (to init or a subreaper) and the pid changes.
// A parent pid of 1 always counts as orphaned, so a parent that died
// before construction is still noticed.
type ParentWatch struct {
	ppid    int
	getppid func() int
}

func NewParentWatch() *ParentWatch {
	return NewParentWatchFunc(os.Getppid)
}

// NewParentWatchFunc reads the parent pid through getppid.
func NewParentWatchFunc(getppid func() int) *ParentWatch {
	return &ParentWatch{ppid: getppid(), getppid: getppid}
}

// Orphaned reports whether the original parent is gone.
func (w *ParentWatch) Orphaned() bool {
	ppid := w.getppid()
	return ppid == 1 || ppid != w.ppid
}

// Parent returns the parent pid seen at construction.
func (w *ParentWatch) Parent() int {
	return w.ppid
}
