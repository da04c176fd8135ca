package models

// AudioFile represents one physical audio track belonging to a library item
type AudioFile struct {
	Filename      string  `json:"filename"`
	Codec         string  `json:"codec"`
	Bitrate       int64   `json:"bitrate"` // bits per second
	Channels      int     `json:"channels"`
	ChannelLayout string  `json:"channelLayout,omitempty"`
	Duration      float64 `json:"duration"` // seconds
	MimeType      string  `json:"mimeType"`
	SizeBytes     int64   `json:"sizeBytes"`
}

// LibraryItem represents one owned audiobook from the library server
type LibraryItem struct {
	ID         string      `json:"id"`
	ExternalID string      `json:"externalId"` // catalog identifier, may be empty
	Title      string      `json:"title"`
	Author     string      `json:"author"`
	Path       string      `json:"path"`
	SizeBytes  int64       `json:"sizeBytes"`
	AudioFiles []AudioFile `json:"audioFiles"`
}

// HasExternalID reports whether the item carries a catalog identifier
func (i *LibraryItem) HasExternalID() bool {
	return i.ExternalID != ""
}

// TotalDuration returns the summed duration of all audio files in seconds
func (i *LibraryItem) TotalDuration() float64 {
	var total float64
	for _, f := range i.AudioFiles {
		total += f.Duration
	}
	return total
}

// Library represents a library on the server
type Library struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	MediaType string `json:"mediaType"`
	Provider  string `json:"provider"`
}

// LibraryStats holds aggregate statistics for a library
type LibraryStats struct {
	TotalItems    int     `json:"totalItems"`
	TotalAuthors  int     `json:"totalAuthors"`
	TotalGenres   int     `json:"totalGenres"`
	TotalDuration float64 `json:"totalDuration"`
	TotalSize     int64   `json:"totalSize"`
}

// AuthorSummary is one author as returned by the library server
type AuthorSummary struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	NumBooks int    `json:"numBooks"`
}

// Collection is a user-defined grouping of library items
type Collection struct {
	ID          string   `json:"id"`
	LibraryID   string   `json:"libraryId"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	BookIDs     []string `json:"bookIds"`
}

// User identifies the authenticated library user
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Type     string `json:"type"`
}
