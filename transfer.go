package ftp

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/gonzalop/resumable-ftp/internal/ratelimit"
)

// Upload stores the local file under its base name in the remote working
// directory. See UploadAs.
//
// Example:
//
//	// Resumes a previous partial upload of backup.tar if the server supports REST.
//	err := s.Upload("/var/backups/backup.tar", true)
func (s *Session) Upload(localPath string, resume bool) error {
	if err := s.requireLogin("Upload"); err != nil {
		return err
	}
	return s.UploadAs(localPath, filepath.Base(localPath), resume)
}

// UploadAs stores the local file as remoteName.
//
// With resume, the transfer switches to binary mode and asks the server for
// the size of remoteName. A server that cannot answer SIZE is treated as
// having nothing yet. If the remote copy is longer than the local file the
// upload starts over; if both have the same length nothing is transferred.
// Otherwise the upload continues at the remote size, or from the beginning
// when the server rejects REST.
func (s *Session) UploadAs(localPath, remoteName string, resume bool) error {
	if err := s.requireLogin("UploadAs"); err != nil {
		return err
	}

	log := s.logger.WithFields(logrus.Fields{"local": localPath, "remote": remoteName})

	var offset int64
	remoteKnown := false
	if resume {
		if err := s.SetTransferMode(ModeBinary); err != nil {
			return err
		}

		size, err := s.Size(remoteName)
		var pe *ProtocolError
		switch {
		case err == nil:
			offset = size
			remoteKnown = true
		case errors.As(err, &pe):
			log.WithField("code", pe.Code).Info("remote size unavailable, uploading whole file")
		default:
			return err
		}
	}

	f, err := os.Open(localPath)
	if err != nil {
		return s.fail(&LocalIOError{Op: "open", Path: localPath, Err: err})
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return s.fail(&LocalIOError{Op: "stat", Path: localPath, Err: err})
	}

	if resume {
		switch {
		case info.Size() < offset:
			log.Info("remote file is larger, overwriting")
			offset = 0
		case remoteKnown && info.Size() == offset:
			log.Info("skipping completed upload, turn resume off to not detect")
			return nil
		}
	}

	data, err := s.openDataConn()
	if err != nil {
		return err
	}

	if offset > 0 {
		resp, err := s.sendCommand(fmt.Sprintf("REST %d", offset))
		if err != nil {
			data.Close()
			return s.fail(err)
		}
		if resp.Code != 350 {
			log.WithField("code", resp.Code).Info("resuming not supported, uploading whole file")
			offset = 0
		}
	}

	log.Info("uploading file")
	if err := s.startDataCommand(data, "STOR "+remoteName); err != nil {
		return err
	}

	var streamErr error
	if offset > 0 {
		log.WithField("offset", offset).Info("resuming upload")
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			streamErr = &LocalIOError{Op: "seek", Path: localPath, Err: err}
		}
	}
	if streamErr == nil {
		streamErr = s.send(data, f, localPath, remoteName, offset)
	}

	if err := s.finishDataConn(data, "STOR", streamErr); err != nil {
		return err
	}

	log.WithField("dir", s.workDir).Info("uploaded file")
	return nil
}

// send streams r over the data connection in chunks until r is exhausted.
func (s *Session) send(data *deadlineConn, r io.Reader, localPath, name string, base int64) error {
	w := s.withProgress(ratelimit.NewWriter(data, ratelimit.New(s.bandwidth)), name, base)
	buf := make([]byte, s.chunkSize)

	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return &ConnectionError{Op: "send", Addr: data.RemoteAddr().String(), Err: err}
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return &LocalIOError{Op: "read", Path: localPath, Err: rerr}
		}
	}
}

// Download retrieves remoteName into localPath in binary mode. An empty
// localPath means the remote name. The local file is created if missing and
// otherwise opened in place.
//
// With resume, the length of the local file is sent with REST. If the server
// accepts it the download appends from there; if not, the download silently
// proceeds from the start of the file.
//
// The receive loop is bounded by the session timeout, see WithReceiveDeadline.
func (s *Session) Download(remoteName, localPath string, resume bool) (err error) {
	if err := s.requireLogin("Download"); err != nil {
		return err
	}
	if err := s.SetTransferMode(ModeBinary); err != nil {
		return err
	}

	if localPath == "" {
		localPath = remoteName
	}

	log := s.logger.WithFields(logrus.Fields{"local": localPath, "remote": remoteName})
	log.WithField("dir", s.workDir).Info("downloading file")

	f, err := os.OpenFile(localPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return s.fail(&LocalIOError{Op: "open", Path: localPath, Err: err})
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = s.fail(&LocalIOError{Op: "close", Path: localPath, Err: cerr})
		}
	}()

	data, err := s.openDataConn()
	if err != nil {
		return err
	}

	var offset int64
	if resume {
		info, err := f.Stat()
		if err != nil {
			data.Close()
			return s.fail(&LocalIOError{Op: "stat", Path: localPath, Err: err})
		}

		if size := info.Size(); size > 0 {
			resp, err := s.sendCommand(fmt.Sprintf("REST %d", size))
			if err != nil {
				data.Close()
				return s.fail(err)
			}
			if resp.Code != 350 {
				log.WithField("code", resp.Code).Infof("resuming not supported: %s", resp.Message)
			} else {
				if _, err := f.Seek(size, io.SeekStart); err != nil {
					data.Close()
					return s.fail(&LocalIOError{Op: "seek", Path: localPath, Err: err})
				}
				offset = size
				log.WithField("offset", offset).Info("resuming download")
			}
		}
	}

	if err := s.startDataCommand(data, "RETR "+remoteName); err != nil {
		return err
	}

	n, streamErr := s.receive(data, s.withProgress(f, remoteName, offset), localPath)
	if streamErr == nil {
		if err := f.Truncate(offset + n); err != nil {
			streamErr = &LocalIOError{Op: "truncate", Path: localPath, Err: err}
		}
	}

	if err := s.finishDataConn(data, "RETR", streamErr); err != nil {
		return err
	}

	log.WithField("bytes", offset+n).Info("downloaded file")
	return nil
}
