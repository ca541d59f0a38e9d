package device

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/nerrad567/camlink-core/internal/protocol"
)

// JobState is the state of one transfer slot.
type JobState int

// Job states.
const (
	JobIdle JobState = iota
	JobRequesting
	JobTransferring
	JobCompleted
	JobFailed
	JobSkipped
)

func (s JobState) String() string {
	switch s {
	case JobIdle:
		return "idle"
	case JobRequesting:
		return "requesting"
	case JobTransferring:
		return "transferring"
	case JobCompleted:
		return "completed"
	case JobFailed:
		return "failed"
	case JobSkipped:
		return "skipped"
	default:
		return fmt.Sprintf("job_state(%d)", int(s))
	}
}

// Active reports whether the slot is occupied.
func (s JobState) Active() bool { return s == JobRequesting || s == JobTransferring }

// DownloadFunc receives the single terminal result of a download.
type DownloadFunc func(t FileType, result DownloadResult)

// UploadFunc receives upload progress (0-99) and then exactly one sentinel.
type UploadFunc func(t FileType, code int)

// JobInfo describes the current or last job of a slot.
type JobInfo struct {
	ID       string
	Slot     int
	FileType FileType
	State    JobState
	Progress int
	Path     string
}

type slotPaths struct {
	mini     string
	resource string
}

type callFunc func(ctx context.Context, op protocol.Opcode, payload []byte) (Response, error)

// TransferManager runs file transfers for one device, one job per slot.
//
// A job is a goroutine that drives the exchange with blocking calls through
// the device dispatcher. Starting a job on an occupied slot fails; there is
// no cancel, but closing the device fails every active job.
//
// Thread Safety:
//   - All exported methods are safe for concurrent use.
//   - Callbacks of all slots run in order on one goroutine owned by the
//     manager. They may call Device.Close.
type TransferManager struct {
	call      callFunc
	chunkSize int
	logger    Logger
	metrics   Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	paths      [MaxResourceSlots]slotPaths
	logPath    string
	jobs       [MaxResourceSlots]JobInfo
	closed     bool
	onDownload DownloadFunc
	onUpload   UploadFunc

	callbacks *callbackQueue
}

func newTransferManager(call callFunc, opts *Options) *TransferManager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &TransferManager{
		call:      call,
		chunkSize: opts.ChunkSize,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		ctx:       ctx,
		cancel:    cancel,
		callbacks: newCallbackQueue(opts.Logger),
	}
	for i := range m.jobs {
		m.jobs[i].Slot = i
	}
	return m
}

// SetLocalResourcePath configures slot index: mini is the thumbnail
// download destination, resource is the image and video download
// destination and the upload source. Empty strings clear a path.
func (m *TransferManager) SetLocalResourcePath(mini, resource string, index int) bool {
	if index < 0 || index >= MaxResourceSlots {
		return false
	}
	m.mu.Lock()
	m.paths[index] = slotPaths{mini: mini, resource: resource}
	m.mu.Unlock()
	return true
}

// SetLocalLogPath configures the log download destination.
func (m *TransferManager) SetLocalLogPath(path string) {
	m.mu.Lock()
	m.logPath = path
	m.mu.Unlock()
}

// SetDownloadCallback installs the download result callback.
func (m *TransferManager) SetDownloadCallback(cb DownloadFunc) {
	m.mu.Lock()
	m.onDownload = cb
	m.mu.Unlock()
}

// SetUploadCallback installs the upload progress callback.
func (m *TransferManager) SetUploadCallback(cb UploadFunc) {
	m.mu.Lock()
	m.onUpload = cb
	m.mu.Unlock()
}

// Job returns the state of slot.
func (m *TransferManager) Job(slot int) (JobInfo, bool) {
	if slot < 0 || slot >= MaxResourceSlots {
		return JobInfo{}, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.jobs[slot], true
}

// Jobs returns every slot.
func (m *TransferManager) Jobs() []JobInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]JobInfo(nil), m.jobs[:]...)
}

// pathFor is called with m.mu held.
func (m *TransferManager) pathFor(t FileType) string {
	if t == FileDownloadLog {
		return m.logPath
	}
	p := m.paths[t.Slot()]
	if t.Kind() == ResourceThumbnail {
		return p.mini
	}
	return p.resource
}

// reserve claims the slot for t. It returns false, changing nothing, when
// t has the wrong direction, no path is configured, or the slot is busy.
func (m *TransferManager) reserve(t FileType, dir Direction) (string, bool) {
	if !t.Valid() || t.Direction() != dir {
		return "", false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	path := m.pathFor(t)
	slot := t.Slot()
	if m.closed || path == "" || m.jobs[slot].State.Active() {
		return "", false
	}
	m.jobs[slot] = JobInfo{ID: uuid.NewString(), Slot: slot, FileType: t, State: JobRequesting, Path: path}
	m.wg.Add(1)
	return path, true
}

// StartDownload begins downloading t into its configured local path.
//
// Returns false without any callback when t is not a download type, no
// destination is configured for its slot, or the slot already has an
// active job. Otherwise exactly one DownloadFunc call reports the result.
func (m *TransferManager) StartDownload(t FileType) bool {
	path, ok := m.reserve(t, Download)
	if !ok {
		return false
	}
	go m.runDownload(t, path)
	return true
}

// StartUpload begins uploading the slot's resource file as t.
//
// Same preconditions as StartDownload. Progress 0-99 is reported while
// chunks are sent, then exactly one of UploadSuccess, UploadError,
// UploadWarn (device busy) or UploadFailure (device rejected the file).
func (m *TransferManager) StartUpload(t FileType) bool {
	path, ok := m.reserve(t, Upload)
	if !ok {
		return false
	}
	go m.runUpload(t, path)
	return true
}

// Close fails active jobs and waits for their goroutines. Their final
// callbacks may still be running when Close returns.
func (m *TransferManager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cancel()
	m.wg.Wait()
	m.callbacks.close()
}

func (m *TransferManager) setState(t FileType, state JobState, progress int) {
	m.mu.Lock()
	j := &m.jobs[t.Slot()]
	if j.FileType == t {
		j.State = state
		j.Progress = progress
	}
	m.mu.Unlock()
}

func (m *TransferManager) finishDownload(t FileType, r DownloadResult) {
	state := JobFailed
	switch r {
	case DownloadSuccess:
		state = JobCompleted
	case DownloadSameWithLocal:
		state = JobSkipped
	}
	m.setState(t, state, 0)
	m.metrics.TransferFinished(Download, int(r))
	m.logger.Info("download finished", "file_type", t.String(), "result", r.String())

	m.mu.Lock()
	cb := m.onDownload
	m.mu.Unlock()
	if cb != nil {
		m.callbacks.push(func() { cb(t, r) })
	}
}

func (m *TransferManager) runDownload(t FileType, path string) {
	defer m.wg.Done()
	m.finishDownload(t, m.download(t, path))
}

func (m *TransferManager) download(t FileType, path string) DownloadResult {
	resp, err := m.call(m.ctx, protocol.OpFileQuery, protocol.FileQuery{FileType: uint32(t)}.MarshalRequest())
	if err != nil {
		if errors.Is(err, ErrCommResp) || errors.Is(err, ErrCommMode) {
			return DownloadTypeErr
		}
		return DownloadErr
	}
	remote, err := protocol.UnmarshalFileQueryResponse(resp.Payload)
	if err != nil {
		return DownloadErr
	}
	if !remote.Exists {
		return DownloadNotExist
	}

	if digest, size, err := hashFile(path); err == nil && size == remote.Size && digest == remote.Digest {
		return DownloadSameWithLocal
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		m.logger.Warn("download destination unusable", "path", path, "error", err)
		return DownloadNameErr
	}
	part := path + ".part"
	f, err := os.Create(part)
	if err != nil {
		m.logger.Warn("download destination unusable", "path", path, "error", err)
		return DownloadNameErr
	}

	m.setState(t, JobTransferring, 0)
	digest, err := m.readRemote(t, remote.Size, f)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && digest != remote.Digest {
		err = errors.New("digest mismatch")
	}
	if err == nil {
		err = os.Rename(part, path)
	}
	if err != nil {
		_ = os.Remove(part)
		m.logger.Warn("download failed", "file_type", t.String(), "error", err)
		return DownloadErr
	}
	return DownloadSuccess
}

// readRemote copies size bytes of t into w and returns their digest.
func (m *TransferManager) readRemote(t FileType, size uint64, w io.Writer) ([protocol.DigestSize]byte, error) {
	h := sha256.New()
	out := io.MultiWriter(w, h)

	var offset uint64
	for offset < size {
		want := uint64(m.chunkSize)
		if size-offset < want {
			want = size - offset
		}
		req, _ := protocol.FileChunk{FileType: uint32(t), Offset: offset, Length: uint32(want)}.MarshalBinary()
		resp, err := m.call(m.ctx, protocol.OpFileRead, req)
		if err != nil {
			return [protocol.DigestSize]byte{}, err
		}
		var chunk protocol.FileChunk
		if err := chunk.UnmarshalBinary(resp.Payload); err != nil {
			return [protocol.DigestSize]byte{}, err
		}
		if chunk.Offset != offset || len(chunk.Data) == 0 || uint64(len(chunk.Data)) > want {
			return [protocol.DigestSize]byte{}, fmt.Errorf("bad chunk at offset %d", offset)
		}
		if _, err := out.Write(chunk.Data); err != nil {
			return [protocol.DigestSize]byte{}, err
		}
		offset += uint64(len(chunk.Data))
	}

	var sum [protocol.DigestSize]byte
	copy(sum[:], h.Sum(nil))
	return sum, nil
}

func (m *TransferManager) runUpload(t FileType, path string) {
	defer m.wg.Done()

	code := m.upload(t, path)
	state := JobFailed
	if code == UploadSuccess {
		state = JobCompleted
	}
	m.setState(t, state, 0)
	m.metrics.TransferFinished(Upload, code)
	m.logger.Info("upload finished", "file_type", t.String(), "code", code)
	m.progress(t, code)
}

func (m *TransferManager) progress(t FileType, code int) {
	m.mu.Lock()
	cb := m.onUpload
	m.mu.Unlock()
	if cb != nil {
		m.callbacks.push(func() { cb(t, code) })
	}
}

func uploadCode(err error) int {
	switch CodeOf(err) {
	case CodeBusy:
		return UploadWarn
	case CodeResp, CodeLength, CodeMode, CodeInited:
		return UploadFailure
	default:
		return UploadError
	}
}

func (m *TransferManager) upload(t FileType, path string) int {
	content, err := os.ReadFile(path)
	if err != nil {
		m.logger.Warn("upload source unreadable", "path", path, "error", err)
		return UploadError
	}

	begin, _ := protocol.UploadBegin{
		FileType: uint32(t),
		Size:     uint64(len(content)),
		Digest:   sha256.Sum256(content),
	}.MarshalBinary()
	if _, err := m.call(m.ctx, protocol.OpUploadBegin, begin); err != nil {
		return uploadCode(err)
	}

	m.setState(t, JobTransferring, 0)
	m.progress(t, 0)

	last := 0
	for offset := 0; offset < len(content); {
		end := min(offset+m.chunkSize, len(content))
		chunk, _ := protocol.FileChunk{FileType: uint32(t), Offset: uint64(offset), Data: content[offset:end]}.MarshalBinary()
		if _, err := m.call(m.ctx, protocol.OpUploadChunk, chunk); err != nil {
			return uploadCode(err)
		}
		offset = end

		pct := min(offset*100/len(content), 99)
		if pct != last {
			last = pct
			m.setState(t, JobTransferring, pct)
			m.progress(t, pct)
		}
	}

	if _, err := m.call(m.ctx, protocol.OpUploadEnd, protocol.PutUint32(uint32(t))); err != nil {
		return uploadCode(err)
	}
	return UploadSuccess
}

func hashFile(path string) ([protocol.DigestSize]byte, uint64, error) {
	var sum [protocol.DigestSize]byte
	f, err := os.Open(path)
	if err != nil {
		return sum, 0, err
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return sum, 0, err
	}
	copy(sum[:], h.Sum(nil))
	return sum, uint64(n), nil
}
