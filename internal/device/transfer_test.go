package device

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/camlink-core/internal/protocol"
	"github.com/nerrad567/camlink-core/internal/transport/loopback"
)

func TestFileTypeSlots(t *testing.T) {
	tests := []struct {
		ft   FileType
		name string
		slot int
		kind ResourceKind
		dir  Direction
	}{
		{FileDownloadMini0, "mini0", 0, ResourceThumbnail, Download},
		{FileDownloadImage2, "image2", 2, ResourceImage, Download},
		{FileUploadImage3, "upload_image3", 3, ResourceImage, Upload},
		{FileDownloadVideo1, "video1", 1, ResourceVideo, Download},
		{FileUploadVideo0, "upload_video0", 0, ResourceVideo, Upload},
		{FileDownloadLog, "log", 0, ResourceLog, Download},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.ft.Valid())
			assert.Equal(t, tt.name, tt.ft.String())
			assert.Equal(t, tt.slot, tt.ft.Slot())
			assert.Equal(t, tt.kind, tt.ft.Kind())
			assert.Equal(t, tt.dir, tt.ft.Direction())

			parsed, err := ParseFileType(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.ft, parsed)
		})
	}

	assert.False(t, (FileDownloadMini0 | FileDownloadMini1).Valid())
	assert.False(t, FileType(1<<21).Valid())
	_, err := ParseFileType("mini9")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

// transferRecorder collects callbacks.
type transferRecorder struct {
	mu        sync.Mutex
	downloads []DownloadResult
	uploads   []int
}

func (r *transferRecorder) download(_ FileType, res DownloadResult) {
	r.mu.Lock()
	r.downloads = append(r.downloads, res)
	r.mu.Unlock()
}

func (r *transferRecorder) upload(_ FileType, code int) {
	r.mu.Lock()
	r.uploads = append(r.uploads, code)
	r.mu.Unlock()
}

func (r *transferRecorder) snapshot() ([]DownloadResult, []int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]DownloadResult(nil), r.downloads...), append([]int(nil), r.uploads...)
}

func newTransferFixture(t *testing.T, opts Options) (*Device, *loopback.SimDevice, *TransferManager, *transferRecorder, string) {
	t.Helper()
	d, sim, _ := openSim(t, ProductTailAir, &TailAirStatus{}, opts)
	rec := &transferRecorder{}
	tm := d.Transfers()
	tm.SetDownloadCallback(rec.download)
	tm.SetUploadCallback(rec.upload)
	return d, sim, tm, rec, t.TempDir()
}

func waitDownloads(t *testing.T, rec *transferRecorder, n int) []DownloadResult {
	t.Helper()
	require.Eventually(t, func() bool {
		d, _ := rec.snapshot()
		return len(d) >= n
	}, 3*time.Second, 5*time.Millisecond)
	d, _ := rec.snapshot()
	return d
}

func TestDownloadWithoutPath(t *testing.T) {
	_, _, tm, rec, _ := newTransferFixture(t, Options{})

	assert.False(t, tm.StartDownload(FileDownloadMini0))
	assert.False(t, tm.StartDownload(FileUploadImage0), "upload type accepted by StartDownload")

	time.Sleep(20 * time.Millisecond)
	downloads, _ := rec.snapshot()
	assert.Empty(t, downloads)
	job, _ := tm.Job(0)
	assert.Equal(t, JobIdle, job.State)
}

func TestDownloadCompletes(t *testing.T) {
	_, sim, tm, rec, dir := newTransferFixture(t, Options{ChunkSize: 7})

	content := []byte("a picture worth a thousand chunks")
	sim.PutFile(uint32(FileDownloadImage1), content)
	dest := filepath.Join(dir, "nested", "image1.jpg")
	require.True(t, tm.SetLocalResourcePath("", dest, 1))

	require.True(t, tm.StartDownload(FileDownloadImage1))
	assert.Equal(t, []DownloadResult{DownloadSuccess}, waitDownloads(t, rec, 1))

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, content, got)
	_, err = os.Stat(dest + ".part")
	assert.True(t, os.IsNotExist(err))

	job, _ := tm.Job(1)
	assert.Equal(t, JobCompleted, job.State)
	assert.Greater(t, sim.Requests(protocol.OpFileRead), 1)
}

func TestDownloadSkipsIdenticalLocal(t *testing.T) {
	_, sim, tm, rec, dir := newTransferFixture(t, Options{})

	content := []byte("same bytes")
	sim.PutFile(uint32(FileDownloadImage0), content)
	dest := filepath.Join(dir, "image0.jpg")
	require.NoError(t, os.WriteFile(dest, content, 0o644))
	tm.SetLocalResourcePath("", dest, 0)

	require.True(t, tm.StartDownload(FileDownloadImage0))
	assert.Equal(t, []DownloadResult{DownloadSameWithLocal}, waitDownloads(t, rec, 1))
	assert.Equal(t, 0, sim.Requests(protocol.OpFileRead))

	job, _ := tm.Job(0)
	assert.Equal(t, JobSkipped, job.State)
}

func TestDownloadNotExist(t *testing.T) {
	_, _, tm, rec, dir := newTransferFixture(t, Options{})
	tm.SetLocalResourcePath(filepath.Join(dir, "mini2.jpg"), "", 2)

	require.True(t, tm.StartDownload(FileDownloadMini2))
	assert.Equal(t, []DownloadResult{DownloadNotExist}, waitDownloads(t, rec, 1))
}

func TestDownloadTypeRejected(t *testing.T) {
	_, sim, tm, rec, dir := newTransferFixture(t, Options{})
	sim.Handle(protocol.OpFileQuery, func(protocol.Frame) (int32, []byte) {
		return protocol.CodeRejected, nil
	})
	tm.SetLocalLogPath(filepath.Join(dir, "device.log"))

	require.True(t, tm.StartDownload(FileDownloadLog))
	assert.Equal(t, []DownloadResult{DownloadTypeErr}, waitDownloads(t, rec, 1))
}

func TestDownloadSlotBusy(t *testing.T) {
	_, sim, tm, rec, dir := newTransferFixture(t, Options{})
	sim.PutFile(uint32(FileDownloadVideo3), []byte("video"))
	sim.SetDelay(50 * time.Millisecond)
	tm.SetLocalResourcePath(filepath.Join(dir, "mini3"), filepath.Join(dir, "video3"), 3)

	require.True(t, tm.StartDownload(FileDownloadVideo3))
	before, _ := tm.Job(3)
	assert.False(t, tm.StartDownload(FileDownloadMini3), "second job on an active slot")
	after, _ := tm.Job(3)
	assert.Equal(t, before.FileType, after.FileType)
	assert.NotEmpty(t, before.ID)
	assert.Equal(t, before.ID, after.ID)

	assert.Equal(t, []DownloadResult{DownloadSuccess}, waitDownloads(t, rec, 1))
}

func TestUploadProgress(t *testing.T) {
	_, sim, tm, rec, dir := newTransferFixture(t, Options{ChunkSize: 4})

	src := filepath.Join(dir, "bg.png")
	content := []byte("0123456789abcdef")
	require.NoError(t, os.WriteFile(src, content, 0o644))
	tm.SetLocalResourcePath("", src, 2)

	require.True(t, tm.StartUpload(FileUploadImage2))
	require.Eventually(t, func() bool {
		_, u := rec.snapshot()
		return len(u) > 0 && u[len(u)-1] == UploadSuccess
	}, 3*time.Second, 5*time.Millisecond)

	_, uploads := rec.snapshot()
	assert.Equal(t, []int{0, 25, 50, 75, 99, UploadSuccess}, uploads)

	stored, ok := sim.Uploaded(uint32(FileUploadImage2))
	require.True(t, ok)
	assert.Equal(t, content, stored)
}

func TestUploadFailureCodes(t *testing.T) {
	_, sim, tm, rec, dir := newTransferFixture(t, Options{})
	src := filepath.Join(dir, "v.mp4")
	require.NoError(t, os.WriteFile(src, []byte("clip"), 0o644))
	tm.SetLocalResourcePath("", src, 0)

	sim.SetBusy(true)
	require.True(t, tm.StartUpload(FileUploadVideo0))
	require.Eventually(t, func() bool { _, u := rec.snapshot(); return len(u) == 1 }, 3*time.Second, 5*time.Millisecond)
	sim.SetBusy(false)

	sim.Handle(protocol.OpUploadEnd, func(protocol.Frame) (int32, []byte) { return protocol.CodeRejected, nil })
	require.Eventually(t, func() bool { return tm.StartUpload(FileUploadVideo0) }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		_, u := rec.snapshot()
		return len(u) > 1 && u[len(u)-1] < 0
	}, 3*time.Second, 5*time.Millisecond)

	_, uploads := rec.snapshot()
	assert.Equal(t, UploadWarn, uploads[0])
	assert.Equal(t, UploadFailure, uploads[len(uploads)-1])
}

func TestDisconnectFailsActiveJobs(t *testing.T) {
	d, sim, tm, rec, dir := newTransferFixture(t, Options{})
	sim.PutFile(uint32(FileDownloadImage0), []byte("never arrives"))
	sim.Mute(protocol.OpFileRead, true)
	tm.SetLocalResourcePath("", filepath.Join(dir, "img"), 0)

	require.True(t, tm.StartDownload(FileDownloadImage0))
	require.Eventually(t, func() bool { return sim.Requests(protocol.OpFileRead) == 1 }, time.Second, time.Millisecond)

	require.NoError(t, d.Close())
	assert.Equal(t, []DownloadResult{DownloadErr}, waitDownloads(t, rec, 1))
	job, _ := tm.Job(0)
	assert.Equal(t, JobFailed, job.State)
	assert.False(t, tm.StartDownload(FileDownloadImage0), "job started after close")
}

func TestCloseFromTransferCallback(t *testing.T) {
	tests := []struct {
		name  string
		start func(tm *TransferManager, sim *loopback.SimDevice, dir string) bool
	}{
		{"download result", func(tm *TransferManager, sim *loopback.SimDevice, dir string) bool {
			sim.PutFile(uint32(FileDownloadImage1), []byte("frame"))
			tm.SetLocalResourcePath("", filepath.Join(dir, "img1"), 1)
			return tm.StartDownload(FileDownloadImage1)
		}},
		{"upload progress", func(tm *TransferManager, _ *loopback.SimDevice, dir string) bool {
			src := filepath.Join(dir, "bg.png")
			if err := os.WriteFile(src, []byte("0123456789"), 0o644); err != nil {
				return false
			}
			tm.SetLocalResourcePath("", src, 2)
			return tm.StartUpload(FileUploadImage2)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, sim, _ := openSim(t, ProductTailAir, &TailAirStatus{}, Options{ChunkSize: 2})
			tm := d.Transfers()
			closed := make(chan struct{})
			var once sync.Once
			closeDevice := func() {
				once.Do(func() {
					d.Close()
					close(closed)
				})
			}
			tm.SetDownloadCallback(func(FileType, DownloadResult) { closeDevice() })
			tm.SetUploadCallback(func(FileType, int) { closeDevice() })

			require.True(t, tt.start(tm, sim, t.TempDir()))
			select {
			case <-closed:
			case <-time.After(2 * time.Second):
				t.Fatal("Close from a transfer callback did not return")
			}
			assert.False(t, d.Alive())
		})
	}
}
