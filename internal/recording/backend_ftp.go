package recording

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/textproto"
	"time"

	"github.com/rapidaai/dialer/internal/dialererr"
)

// FTPBackend stores recordings on a legacy FTP server, for PBX
// deployments whose compliance archive predates object storage. No FTP
// client library appears anywhere in the retrieval pack, so this talks
// RFC 959 directly over net/textproto — see DESIGN.md.
type FTPBackend struct {
	Addr     string
	User     string
	Pass     string
	BaseDir  string
}

func NewFTPBackend(addr, user, pass, baseDir string) *FTPBackend {
	return &FTPBackend{Addr: addr, User: user, Pass: pass, BaseDir: baseDir}
}

func (b *FTPBackend) dial() (*textproto.Conn, error) {
	conn, err := textproto.Dial("tcp", b.Addr)
	if err != nil {
		return nil, dialererr.New(dialererr.KindTransientNetwork, "recording.ftp.dial", err)
	}
	if _, _, err := conn.ReadResponse(220); err != nil {
		conn.Close()
		return nil, dialererr.New(dialererr.KindProtocolViolation, "recording.ftp.banner", err)
	}
	if err := conn.PrintfLine("USER %s", b.User); err != nil {
		conn.Close()
		return nil, dialererr.New(dialererr.KindTransientNetwork, "recording.ftp.user", err)
	}
	if _, _, err := conn.ReadResponse(331); err != nil {
		conn.Close()
		return nil, dialererr.New(dialererr.KindProtocolViolation, "recording.ftp.user", err)
	}
	if err := conn.PrintfLine("PASS %s", b.Pass); err != nil {
		conn.Close()
		return nil, dialererr.New(dialererr.KindTransientNetwork, "recording.ftp.pass", err)
	}
	if _, _, err := conn.ReadResponse(230); err != nil {
		conn.Close()
		return nil, dialererr.New(dialererr.KindProtocolViolation, "recording.ftp.pass", err)
	}
	return conn, nil
}

func (b *FTPBackend) passive(conn *textproto.Conn) (string, error) {
	if err := conn.PrintfLine("PASV"); err != nil {
		return "", err
	}
	_, line, err := conn.ReadResponse(227)
	if err != nil {
		return "", err
	}
	return parsePASV(line)
}

func parsePASV(line string) (string, error) {
	start := -1
	for i, c := range line {
		if c == '(' {
			start = i
			break
		}
	}
	if start < 0 {
		return "", fmt.Errorf("malformed PASV response: %s", line)
	}
	var a, bnum, c, d, p1, p2 int
	if _, err := fmt.Sscanf(line[start:], "(%d,%d,%d,%d,%d,%d)", &a, &bnum, &c, &d, &p1, &p2); err != nil {
		return "", err
	}
	port := p1*256 + p2
	return fmt.Sprintf("%d.%d.%d.%d:%d", a, bnum, c, d, port), nil
}

func (b *FTPBackend) Store(ctx context.Context, recordingID string, startedAt time.Time, format string, data []byte) (string, error) {
	key := datePartitionedKey(recordingID, startedAt, format)
	conn, err := b.dial()
	if err != nil {
		return "", err
	}
	defer conn.Close()

	dataAddr, err := b.passive(conn)
	if err != nil {
		return "", dialererr.New(dialererr.KindProtocolViolation, "recording.ftp.pasv", err)
	}
	if err := conn.PrintfLine("STOR %s/%s", b.BaseDir, key); err != nil {
		return "", dialererr.New(dialererr.KindTransientNetwork, "recording.ftp.stor", err)
	}
	if _, _, err := conn.ReadResponse(150); err != nil {
		return "", dialererr.New(dialererr.KindProtocolViolation, "recording.ftp.stor", err)
	}
	dataConn, err := textproto.Dial("tcp", dataAddr)
	if err != nil {
		return "", dialererr.New(dialererr.KindTransientNetwork, "recording.ftp.data_conn", err)
	}
	if _, err := io.Copy(dataConn.W, bytes.NewReader(data)); err != nil {
		dataConn.Close()
		return "", dialererr.New(dialererr.KindTransientNetwork, "recording.ftp.upload", err)
	}
	dataConn.W.Flush()
	dataConn.Close()
	if _, _, err := conn.ReadResponse(226); err != nil {
		return "", dialererr.New(dialererr.KindProtocolViolation, "recording.ftp.complete", err)
	}
	return key, nil
}

func (b *FTPBackend) Retrieve(ctx context.Context, path string) ([]byte, error) {
	conn, err := b.dial()
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	dataAddr, err := b.passive(conn)
	if err != nil {
		return nil, dialererr.New(dialererr.KindProtocolViolation, "recording.ftp.pasv", err)
	}
	if err := conn.PrintfLine("RETR %s/%s", b.BaseDir, path); err != nil {
		return nil, dialererr.New(dialererr.KindTransientNetwork, "recording.ftp.retr", err)
	}
	code, _, err := conn.ReadResponse(150)
	if err != nil {
		if code == 550 {
			return nil, dialererr.New(dialererr.KindNotFound, "recording.ftp.retr", err)
		}
		return nil, dialererr.New(dialererr.KindProtocolViolation, "recording.ftp.retr", err)
	}
	dataConn, err := textproto.Dial("tcp", dataAddr)
	if err != nil {
		return nil, dialererr.New(dialererr.KindTransientNetwork, "recording.ftp.data_conn", err)
	}
	defer dataConn.Close()
	data, err := io.ReadAll(dataConn.R)
	if err != nil {
		return nil, dialererr.New(dialererr.KindTransientNetwork, "recording.ftp.download", err)
	}
	conn.ReadResponse(226)
	return data, nil
}

func (b *FTPBackend) Delete(ctx context.Context, path string) error {
	conn, err := b.dial()
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := conn.PrintfLine("DELE %s/%s", b.BaseDir, path); err != nil {
		return dialererr.New(dialererr.KindTransientNetwork, "recording.ftp.dele", err)
	}
	if _, _, err := conn.ReadResponse(250); err != nil {
		return dialererr.New(dialererr.KindProtocolViolation, "recording.ftp.dele", err)
	}
	return nil
}

func (b *FTPBackend) URL(path string) string {
	return "ftp://" + b.Addr + "/" + b.BaseDir + "/" + path
}
