package broker

import (
	"context"

	"github.com/sshbroker/engine/pkg/sftpcache"
	"github.com/sshbroker/engine/pkg/sshconn"
	"github.com/sshbroker/engine/pkg/transfer"
)

// sessionInfoPayload mirrors the documented SessionInfo command payload.
type sessionInfoPayload struct {
	Host              string `cbor:"host"`
	Port              int    `cbor:"port"`
	Username          string `cbor:"username"`
	Variant           string `cbor:"variant"`
	Password          string `cbor:"password,omitempty"`
	PrivateKeyPEM     []byte `cbor:"privateKeyPem,omitempty"`
	Passphrase        string `cbor:"passphrase,omitempty"`
	DefaultWorkingDir string `cbor:"defaultWorkingDir,omitempty"`
}

func (p sessionInfoPayload) toSession() (*sshconn.Session, error) {
	cred := sshconn.Credential{
		Variant:       sshconn.CredentialVariant(p.Variant),
		Password:      p.Password,
		PrivateKeyPEM: p.PrivateKeyPEM,
		Passphrase:    p.Passphrase,
	}

	return sshconn.NewSession(p.Host, p.Port, p.Username, cred, p.DefaultWorkingDir)
}

type sessionIDPayload struct {
	SessionID string `cbor:"sessionId"`
}

type executeCommandPayload struct {
	SessionID string `cbor:"sessionId"`
	Command   string `cbor:"command"`
}

type createShellPayload struct {
	SessionID string `cbor:"sessionId"`
	ShellID   string `cbor:"shellId"`
	Rows      int    `cbor:"rows"`
	Cols      int    `cbor:"cols"`
}

type shellWritePayload struct {
	ShellID string `cbor:"shellId"`
	Data    []byte `cbor:"data"`
}

type shellResizePayload struct {
	ShellID string `cbor:"shellId"`
	Rows    int    `cbor:"rows"`
	Cols    int    `cbor:"cols"`
}

type shellIDPayload struct {
	ShellID string `cbor:"shellId"`
}

type connectionIDPayload struct {
	ConnectionID string `cbor:"connectionId"`
}

type createSFTPClientPayload struct {
	SessionID string `cbor:"sessionId"`
}

type readDirectoryPayload struct {
	ConnectionID string `cbor:"connectionId"`
	Path         string `cbor:"path"`
}

type readFilePayload struct {
	ConnectionID string `cbor:"connectionId"`
	Path         string `cbor:"path"`
	Start        int64  `cbor:"start"`
	Length       int64  `cbor:"length"`
	Encoding     string `cbor:"encoding"`
}

type writeFilePayload struct {
	ConnectionID string `cbor:"connectionId"`
	Path         string `cbor:"path"`
	Content      string `cbor:"content"`
	Encoding     string `cbor:"encoding"`
}

type statPayload struct {
	ConnectionID string `cbor:"connectionId"`
	Path         string `cbor:"path"`
}

type statResult struct {
	Size        int64  `cbor:"size"`
	ModifyTime  int64  `cbor:"modifyTime"`
	IsDirectory bool   `cbor:"isDirectory"`
	Permissions uint32 `cbor:"permissions"`
}

type readFileResult struct {
	Content   string `cbor:"content"`
	TotalSize int64  `cbor:"totalSize"`
	BytesRead int64  `cbor:"bytesRead"`
}

type fileSpecPayload struct {
	SourcePath string `cbor:"sourcePath"`
	DestPath   string `cbor:"destPath"`
	Size       int64  `cbor:"size"`
}

func (p fileSpecPayload) toFileSpec() transfer.FileSpec {
	return transfer.FileSpec{SourcePath: p.SourcePath, DestPath: p.DestPath, Size: p.Size}
}

type transferConfigPayload struct {
	Compression string `cbor:"compression,omitempty"`
	Parallel    bool   `cbor:"parallel"`
	MaxChunks   int    `cbor:"maxChunks,omitempty"`
}

func (p transferConfigPayload) toConfig() transfer.Config {
	return transfer.Config{Compression: p.Compression, Parallel: p.Parallel, MaxChunks: p.MaxChunks}
}

type downloadStartPayload struct {
	TaskID    string                `cbor:"taskId"`
	SessionID string                `cbor:"sessionId"`
	File      fileSpecPayload       `cbor:"file"`
	Config    transferConfigPayload `cbor:"config"`
}

type uploadStartPayload struct {
	TaskID    string                `cbor:"taskId"`
	SessionID string                `cbor:"sessionId"`
	Files     []fileSpecPayload     `cbor:"files"`
	Config    transferConfigPayload `cbor:"config"`
}

type taskIDPayload struct {
	TaskID string `cbor:"taskId"`
}

// handler decodes its own payload from raw and returns the value to encode
// as the response's `data` field (nil for a bare {ok: true}).
type handler func(ctx context.Context, e *Engine, raw []byte) (any, error)

// dispatchTable maps every documented command channel to its handler. It
// is the single place new channels get wired in; adding one never touches
// any component downstream of Dispatch.
var dispatchTable = map[string]handler{ //nolint:gochecknoglobals // static, read-only routing table
	"ssh:connect":         handleSSHConnect,
	"ssh:disconnect":      handleSSHDisconnect,
	"ssh:is-connected":    handleSSHIsConnected,
	"ssh:execute-command": handleSSHExecuteCommand,
	"ssh:create-shell":    handleSSHCreateShell,
	"ssh:write":           handleSSHWrite,
	"ssh:resize":          handleSSHResize,
	"ssh:close-shell":     handleSSHCloseShell,
	"sftp:create-client":  handleSFTPCreateClient,
	"sftp:read-directory": handleSFTPReadDirectory,
	"sftp:read-file":      handleSFTPReadFile,
	"sftp:write-file":     handleSFTPWriteFile,
	"sftp:stat":           handleSFTPStat,
	"sftp:close-client":   handleSFTPCloseClient,
	"download:start":      handleDownloadStart,
	"download:pause":      handleDownloadPause,
	"download:resume":     handleDownloadResume,
	"download:cancel":     handleDownloadCancel,
	"upload:start":        handleUploadStart,
	"upload:pause":        handleUploadPause,
	"upload:resume":       handleUploadResume,
	"upload:cancel":       handleUploadCancel,
}

func handleSSHConnect(ctx context.Context, e *Engine, raw []byte) (any, error) {
	var info sessionInfoPayload
	if err := decode(raw, &info); err != nil {
		return nil, err
	}

	session, err := info.toSession()
	if err != nil {
		return nil, err
	}

	if err := e.pools.Register(ctx, session); err != nil {
		return nil, err
	}

	e.sessions[session.ID] = session

	return nil, nil //nolint:nilnil // {ok} responses carry no data
}

func handleSSHDisconnect(_ context.Context, e *Engine, raw []byte) (any, error) {
	var p sessionIDPayload
	if err := decode(raw, &p); err != nil {
		return nil, err
	}

	if err := e.pools.DisconnectSession(p.SessionID); err != nil {
		return nil, err
	}

	delete(e.sessions, p.SessionID)

	return nil, nil //nolint:nilnil // {ok} responses carry no data
}

func handleSSHIsConnected(_ context.Context, e *Engine, raw []byte) (any, error) {
	var p sessionIDPayload
	if err := decode(raw, &p); err != nil {
		return nil, err
	}

	return e.pools.IsConnected(p.SessionID), nil
}

func handleSSHExecuteCommand(ctx context.Context, e *Engine, raw []byte) (any, error) {
	var p executeCommandPayload
	if err := decode(raw, &p); err != nil {
		return nil, err
	}

	result, err := e.executor.Exec(ctx, p.SessionID, p.Command)
	if err != nil {
		return nil, err
	}

	return result.Stdout, nil
}

func handleSSHCreateShell(ctx context.Context, e *Engine, raw []byte) (any, error) {
	var p createShellPayload
	if err := decode(raw, &p); err != nil {
		return nil, err
	}

	shell, err := e.shells.OpenShell(ctx, p.SessionID, p.ShellID, p.Rows, p.Cols)
	if err != nil {
		return nil, err
	}

	go e.shellReaderLoop(ctx, shell)

	return nil, nil //nolint:nilnil // {ok} responses carry no data
}

func handleSSHWrite(_ context.Context, e *Engine, raw []byte) (any, error) {
	var p shellWritePayload
	if err := decode(raw, &p); err != nil {
		return nil, err
	}

	return nil, e.shells.Write(p.ShellID, p.Data)
}

func handleSSHResize(_ context.Context, e *Engine, raw []byte) (any, error) {
	var p shellResizePayload
	if err := decode(raw, &p); err != nil {
		return nil, err
	}

	return nil, e.shells.Resize(p.ShellID, p.Rows, p.Cols)
}

func handleSSHCloseShell(_ context.Context, e *Engine, raw []byte) (any, error) {
	var p shellIDPayload
	if err := decode(raw, &p); err != nil {
		return nil, err
	}

	return nil, e.shells.CloseShell(p.ShellID)
}

func handleSFTPCreateClient(ctx context.Context, e *Engine, raw []byte) (any, error) {
	var p createSFTPClientPayload
	if err := decode(raw, &p); err != nil {
		return nil, err
	}

	_, err := e.sftp.CreateClient(ctx, p.SessionID)

	return nil, err
}

func handleSFTPReadDirectory(_ context.Context, e *Engine, raw []byte) (any, error) {
	var p readDirectoryPayload
	if err := decode(raw, &p); err != nil {
		return nil, err
	}

	return e.sftp.ReadDir(p.ConnectionID, p.Path, true)
}

func handleSFTPReadFile(_ context.Context, e *Engine, raw []byte) (any, error) {
	var p readFilePayload
	if err := decode(raw, &p); err != nil {
		return nil, err
	}

	content, total, read, err := e.sftp.ReadRange(p.ConnectionID, p.Path, p.Start, p.Length, sftpcache.Encoding(p.Encoding))
	if err != nil {
		return nil, err
	}

	return readFileResult{Content: content, TotalSize: total, BytesRead: read}, nil
}

func handleSFTPWriteFile(_ context.Context, e *Engine, raw []byte) (any, error) {
	var p writeFilePayload
	if err := decode(raw, &p); err != nil {
		return nil, err
	}

	return nil, e.sftp.WriteText(p.ConnectionID, p.Path, p.Content, sftpcache.Encoding(p.Encoding))
}

func handleSFTPStat(_ context.Context, e *Engine, raw []byte) (any, error) {
	var p statPayload
	if err := decode(raw, &p); err != nil {
		return nil, err
	}

	entry, err := e.sftp.Stat(p.ConnectionID, p.Path)
	if err != nil {
		return nil, err
	}

	return statResult{
		Size:        entry.Size,
		ModifyTime:  entry.ModTime,
		IsDirectory: entry.IsDirectory,
		Permissions: entry.Permissions,
	}, nil
}

func handleSFTPCloseClient(_ context.Context, e *Engine, raw []byte) (any, error) {
	var p connectionIDPayload
	if err := decode(raw, &p); err != nil {
		return nil, err
	}

	return nil, e.sftp.Close(p.ConnectionID)
}

func handleDownloadStart(ctx context.Context, e *Engine, raw []byte) (any, error) {
	var p downloadStartPayload
	if err := decode(raw, &p); err != nil {
		return nil, err
	}

	return nil, e.transfer.StartDownload(ctx, p.TaskID, p.SessionID, p.File.toFileSpec(), p.Config.toConfig())
}

func handleDownloadPause(_ context.Context, e *Engine, raw []byte) (any, error) {
	var p taskIDPayload
	if err := decode(raw, &p); err != nil {
		return nil, err
	}

	return nil, e.transfer.Pause(p.TaskID)
}

func handleDownloadResume(ctx context.Context, e *Engine, raw []byte) (any, error) {
	var p taskIDPayload
	if err := decode(raw, &p); err != nil {
		return nil, err
	}

	return nil, e.transfer.Resume(ctx, p.TaskID)
}

func handleDownloadCancel(_ context.Context, e *Engine, raw []byte) (any, error) {
	var p taskIDPayload
	if err := decode(raw, &p); err != nil {
		return nil, err
	}

	return nil, e.transfer.Cancel(p.TaskID)
}

func handleUploadStart(ctx context.Context, e *Engine, raw []byte) (any, error) {
	var p uploadStartPayload
	if err := decode(raw, &p); err != nil {
		return nil, err
	}

	files := make([]transfer.FileSpec, 0, len(p.Files))
	for _, f := range p.Files {
		files = append(files, f.toFileSpec())
	}

	return nil, e.transfer.StartUpload(ctx, p.TaskID, p.SessionID, files, p.Config.toConfig())
}

func handleUploadPause(_ context.Context, e *Engine, raw []byte) (any, error) {
	var p taskIDPayload
	if err := decode(raw, &p); err != nil {
		return nil, err
	}

	return nil, e.transfer.Pause(p.TaskID)
}

func handleUploadResume(ctx context.Context, e *Engine, raw []byte) (any, error) {
	var p taskIDPayload
	if err := decode(raw, &p); err != nil {
		return nil, err
	}

	return nil, e.transfer.Resume(ctx, p.TaskID)
}

func handleUploadCancel(_ context.Context, e *Engine, raw []byte) (any, error) {
	var p taskIDPayload
	if err := decode(raw, &p); err != nil {
		return nil, err
	}

	return nil, e.transfer.Cancel(p.TaskID)
}
