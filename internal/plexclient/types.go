// Package plexclient talks XML over HTTPS to a Plex Media Server (and
// optionally Plex's online metadata endpoint), exposing the
// list_sections/iter_items/fetch_metadata/resolve_home_user operations
// the engine needs. One small HTTP client type plus a doRequest helper
// over XML/REST.
package plexclient

import "encoding/xml"

// Section is a Plex library section (e.g. "Movies", "Anime").
type Section struct {
	Key  string
	Type string // movie, show
	Title string
}

type mediaContainer struct {
	XMLName   xml.Name    `xml:"MediaContainer"`
	Size      int         `xml:"size,attr"`
	Directory []directory `xml:"Directory"`
	Video     []video     `xml:"Video"`
}

type directory struct {
	Key   string `xml:"key,attr"`
	Type  string `xml:"type,attr"`
	Title string `xml:"title,attr"`
}

type video struct {
	RatingKey       string  `xml:"ratingKey,attr"`
	ParentRatingKey string  `xml:"parentRatingKey,attr"`
	Type            string  `xml:"type,attr"`
	Title           string  `xml:"title,attr"`
	Year            int     `xml:"year,attr"`
	AddedAt         int64   `xml:"addedAt,attr"`
	UpdatedAt       int64   `xml:"updatedAt,attr"`
	LastViewedAt    int64   `xml:"lastViewedAt,attr"`
	UserRating      float64 `xml:"userRating,attr"`
	ViewCount       int     `xml:"viewCount,attr"`
	ViewOffset      int64   `xml:"viewOffset,attr"`
	Duration        int64   `xml:"duration,attr"`
	ParentIndex     int     `xml:"parentIndex,attr"` // season number for episodes
	Index           int     `xml:"index,attr"`       // episode number, or season number for seasons
	Guid            string  `xml:"guid,attr"`
	Guids           []guid  `xml:"Guid"`
	Review          []review `xml:"Review"`
}

type guid struct {
	ID string `xml:"id,attr"`
}

type review struct {
	Text string `xml:"text,attr"`
}

type accountsContainer struct {
	XMLName xml.Name  `xml:"MediaContainer"`
	Users   []account `xml:"Account"`
}

type account struct {
	ID    string `xml:"id,attr"`
	Name  string `xml:"name,attr"`
	Admin int    `xml:"admin,attr"`
}
