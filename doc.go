// Package ftp implements a resumable FTP client over plain TCP and passive
// mode data connections.
//
// # Overview
//
// A Session drives one control connection:
//   - Login with USER/PASS and an optional initial working directory
//   - Resumable Upload and Download using SIZE and REST
//   - NLST listings, MKD, DELE, RNFR/RNTO
//   - Recursive directory upload
//   - Optional bandwidth limiting and progress reporting
//   - Leveled logging through any logrus.FieldLogger
//
// # Basic Usage
//
//	s, err := ftp.New(ftp.Config{
//	    Host:     "ftp.example.com",
//	    Username: "demo",
//	    Password: "secret",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := s.Login(); err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//
// # File Transfers
//
// Upload keeps the local base name on the server; UploadAs picks the remote
// name. With resume set, a partial remote copy is continued and a complete
// one is left alone:
//
//	if err := s.Upload("backup.tar", true); err != nil {
//	    log.Fatal(err)
//	}
//
// Download appends to an existing local file when resuming:
//
//	if err := s.Download("backup.tar", "/tmp/backup.tar", true); err != nil {
//	    log.Fatal(err)
//	}
//
// # Timeouts
//
// Config.Timeout bounds every control reply. The receive loops of Download
// and ListSimple use it too: by default as one ceiling on the whole
// transfer, or, with WithReceiveDeadline(DeadlineIdle), as the longest
// silence tolerated on the data connection.
//
// # Error Handling
//
// Failures are reported as one of four types:
//
//	*ProtocolError   // unexpected status code or malformed reply
//	*ConnectionError // resolve, dial or socket failure
//	*StateError      // operation needs a logged-in session
//	*LocalIOError    // local file failure
//
// Use errors.As to inspect them:
//
//	if err := s.Delete("old.log"); err != nil {
//	    var pe *ftp.ProtocolError
//	    if errors.As(err, &pe) && pe.IsPermanent() {
//	        fmt.Printf("server refused: %s\n", pe.Response)
//	    }
//	}
//
// A StateError also matches ErrNotLoggedIn with errors.Is. When a transfer
// fails in more than one place, for example the stream and the completion
// reply, the errors are combined and each stays reachable through errors.As.
//
// A Session is not safe for concurrent use.
package ftp
