package storage

import (
	"io"
	"path"
)

type BlobStore interface {
	Put(key string, r io.Reader) (string, error) // returns canonical key
	Get(key string) (io.ReadCloser, error)
	SignedURL(key string) (string, error) // fs returns "file://..." for dev
}

// Artifact names written for every archived run.
const (
	ArtifactReport      = "report.txt"
	ArtifactAssignments = "assignments.csv"
	ArtifactWorkbook    = "analysis.xlsx"
)

// UploadKey is where the original input of a run is kept.
func UploadKey(runID, name string) string {
	return path.Join("uploads", runID, path.Base(name))
}

// ArtifactKey is where a rendered artifact of a run is kept.
func ArtifactKey(runID, name string) string {
	return path.Join("runs", runID, name)
}
