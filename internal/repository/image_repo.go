package repository

import "context"

// ImageMaterializer stores remote images on the local filesystem.
type ImageMaterializer interface {
	// Download saves url and returns its relative token. An empty savePath
	// selects the date-partitioned default location.
	Download(ctx context.Context, url, savePath string) (string, bool)
	// DownloadAll downloads urls in order and returns the tokens of those that succeeded.
	DownloadAll(ctx context.Context, urls []string, savePath string) []string
}
