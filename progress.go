package ftp

import "io"

// progressWriter wraps an io.Writer and reports the absolute position
// reached after each Write.
type progressWriter struct {
	w io.Writer

	// position starts at the resume offset
	position int64

	report func(position int64)
}

// Write implements io.Writer.
func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.w.Write(p)
	pw.position += int64(n)
	if n > 0 {
		pw.report(pw.position)
	}
	return n, err
}

// withProgress returns w wrapped so that the session's ProgressFunc sees the
// transfer of name, starting at base. Without a ProgressFunc, w is returned
// as is.
func (s *Session) withProgress(w io.Writer, name string, base int64) io.Writer {
	if s.progress == nil {
		return w
	}
	return &progressWriter{
		w:        w,
		position: base,
		report:   func(position int64) { s.progress(name, position) },
	}
}
