package entity

// FetchResult is a successfully fetched HTTP body.
type FetchResult struct {
	URL        string
	StatusCode int
	Body       []byte
}
