package portal

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFindArtifactAcceptsCompletedPDF(t *testing.T) {
	dir := t.TempDir()
	want := writeFile(t, dir, "report.pdf", "%PDF-1.7 data")

	got, ok := FindArtifact(dir)
	require.True(t, ok)
	require.Equal(t, want, got)
}

func TestFindArtifactRejectsInProgressMarkers(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "report.pdf", "%PDF-1.7 data")
	writeFile(t, dir, "report.pdf.crdownload", "partial")

	_, ok := FindArtifact(dir)
	require.False(t, ok, "a .crdownload marker means the download has not settled")
}

func TestFindArtifactRejectsEmptyPDF(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "empty.pdf", "")

	_, ok := FindArtifact(dir)
	require.False(t, ok)
}

func TestFindArtifactIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "notes.txt", "hello")

	_, ok := FindArtifact(dir)
	require.False(t, ok)
}

func TestWaitForArtifactPicksUpLateFile(t *testing.T) {
	dir := t.TempDir()

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = os.WriteFile(filepath.Join(dir, "late.pdf"), []byte("%PDF-1.7"), 0o644)
	}()

	path, err := WaitForArtifact(context.Background(), dir, time.Second, 10*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "late.pdf"), path)
}

func TestWaitForArtifactTimesOut(t *testing.T) {
	dir := t.TempDir()

	_, err := WaitForArtifact(context.Background(), dir, 50*time.Millisecond, 10*time.Millisecond)
	require.Error(t, err)
}
