package ftp

import (
	"bytes"
	"errors"
	"path"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/sirupsen/logrus"
)

// CreateDirectory creates a remote directory with MKD.
func (s *Session) CreateDirectory(name string) error {
	if name == "" || name == "." {
		return s.fail(ErrInvalidDirectory)
	}
	if err := s.requireLogin("CreateDirectory"); err != nil {
		return err
	}

	if _, err := s.expectCode("MKD "+name, 250, 257); err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{"dir": name, "cwd": s.workDir}).Info("created directory")
	return nil
}

// Delete removes a remote file with DELE.
func (s *Session) Delete(name string) error {
	if err := s.requireLogin("Delete"); err != nil {
		return err
	}

	if _, err := s.expectCode("DELE "+name, 250); err != nil {
		return err
	}

	s.logger.WithField("name", name).Info("deleted file")
	return nil
}

// Rename renames oldName to newName with RNFR and RNTO.
//
// Unless replace is set, the working directory listing is checked first and
// the rename fails with a ProtocolError when newName is already present.
// The check runs before RNFR because RNTO must directly follow it, so when
// oldName is missing and newName exists the error is "File already exists"
// rather than the server's RNFR refusal.
func (s *Session) Rename(oldName, newName string, replace bool) error {
	if err := s.requireLogin("Rename"); err != nil {
		return err
	}

	if !replace {
		names, err := s.ListSimple(newName)
		if err != nil {
			return err
		}
		if containsName(names, newName) {
			return s.fail(&ProtocolError{Command: "RNTO", Response: "File already exists"})
		}
	}

	if _, err := s.expectCode("RNFR "+oldName, 350); err != nil {
		return err
	}
	if _, err := s.expectCode("RNTO "+newName, 250); err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{"from": oldName, "to": newName}).Info("renamed file")
	return nil
}

// containsName reports whether an NLST entry names target. Servers answer
// "NLST dir/file" either with the argument as given or with its base name.
func containsName(names []string, target string) bool {
	base := path.Base(target)
	for _, n := range names {
		if n == target || path.Base(n) == base {
			return true
		}
	}
	return false
}

// ListSimple returns the names reported by NLST for mask. An empty mask
// lists the working directory.
//
// A listing the server refuses, or one that reports a missing path, is
// returned as an empty slice rather than an error. Only a session that is
// not logged in and transport failures are errors.
//
// Example:
//
//	names, err := s.ListSimple("*.csv")
func (s *Session) ListSimple(mask string) ([]string, error) {
	if err := s.requireLogin("ListSimple"); err != nil {
		return nil, err
	}

	data, err := s.openDataConn()
	if err != nil {
		return nil, err
	}

	cmd := "NLST"
	if mask != "" {
		cmd += " " + mask
	}

	resp, err := s.sendCommand(cmd)
	if err != nil {
		data.Close()
		return nil, s.fail(err)
	}
	if resp.Code != 125 && resp.Code != 150 {
		data.Close()
		s.logger.WithFields(logrus.Fields{"mask": mask, "code": resp.Code}).Info("no listing available")
		return []string{}, nil
	}

	var buf bytes.Buffer
	_, streamErr := s.receive(data, &buf, "")

	var closeErr error
	if err := data.Close(); err != nil {
		closeErr = &ConnectionError{Op: "close data connection", Err: err}
	}

	resp, err = s.readReply("NLST")
	if err := joinErrors(streamErr, closeErr, err); err != nil {
		return nil, s.fail(err)
	}

	text := buf.String()
	if resp.Code != 226 || strings.Contains(text, "No such file or directory") {
		s.logger.WithFields(logrus.Fields{"mask": mask, "code": resp.Code}).Info("no listing available")
		return []string{}, nil
	}

	names := []string{}
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r", ""), "\n") {
		if line != "" {
			names = append(names, line)
		}
	}

	s.logger.WithFields(logrus.Fields{"mask": mask, "entries": len(names)}).Debug("listed names")
	return names, nil
}

// UploadDirectory mirrors localDir into a remote directory of the same base
// name inside the working directory, creating it when NLST shows nothing for
// it. Every file matching fileMask is uploaded with resume enabled. With
// recursive, subdirectories are mirrored the same way. The working directory
// is restored once each directory is done; after a failure it is left
// wherever the failure happened.
//
// A leading "~" in localDir is expanded to the user's home directory.
func (s *Session) UploadDirectory(localDir string, recursive bool, fileMask string) error {
	if err := s.requireLogin("UploadDirectory"); err != nil {
		return err
	}

	dir, err := homedir.Expand(localDir)
	if err != nil {
		return s.fail(&LocalIOError{Op: "expand", Path: localDir, Err: err})
	}

	return s.uploadDirectory(dir, recursive, fileMask)
}

func (s *Session) uploadDirectory(dir string, recursive bool, fileMask string) error {
	root := rootName(dir)
	log := s.logger.WithFields(logrus.Fields{"local": dir, "remote": root})

	names, err := s.ListSimple(root)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		// An existing but empty directory also lists as empty, so a refused
		// MKD is left for CWD to judge.
		if err := s.CreateDirectory(root); err != nil {
			var pe *ProtocolError
			if !errors.As(err, &pe) {
				return err
			}
			log.Warn("could not create remote directory, trying to enter it")
		}
	}

	if err := s.ChangeWorkingDirectory(root); err != nil {
		return err
	}

	files, err := s.tree.Files(dir, fileMask)
	if err != nil {
		return s.fail(&LocalIOError{Op: "list files", Path: dir, Err: err})
	}
	for _, f := range files {
		if err := s.Upload(f, true); err != nil {
			return err
		}
	}

	if recursive {
		subdirs, err := s.tree.Dirs(dir)
		if err != nil {
			return s.fail(&LocalIOError{Op: "list directories", Path: dir, Err: err})
		}
		for _, sub := range subdirs {
			if err := s.uploadDirectory(sub, true, fileMask); err != nil {
				return err
			}
		}
	}

	if err := s.ChangeWorkingDirectory(".."); err != nil {
		return err
	}

	log.WithField("files", len(files)).Info("uploaded directory")
	return nil
}

// rootName returns the last segment of a local directory path, accepting
// either separator.
func rootName(dir string) string {
	p := strings.ReplaceAll(dir, `\`, "/")
	p = strings.TrimRight(p, "/")
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[i+1:]
	}
	return p
}
