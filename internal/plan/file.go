package plan

// File is a plan document re-read from disk on every query. The coding
// agent edits the file between queries, so cached parses would go stale.
type File struct {
	Path string
}

// NewFile returns a File for the plan at path.
func NewFile(path string) *File {
	return &File{Path: path}
}

// NextTask returns the first incomplete task, or nil when the plan is
// finished.
func (f *File) NextTask() (*Task, error) {
	doc, err := Read(f.Path)
	if err != nil {
		return nil, err
	}
	return doc.NextTask(), nil
}

// IsCompleted reports whether task (thread, number) is checked off.
func (f *File) IsCompleted(thread, number int) (bool, error) {
	doc, err := Read(f.Path)
	if err != nil {
		return false, err
	}
	return doc.IsCompleted(thread, number), nil
}

// Remaining returns the number of incomplete tasks.
func (f *File) Remaining() (int, error) {
	doc, err := Read(f.Path)
	if err != nil {
		return 0, err
	}
	return doc.Remaining(), nil
}
